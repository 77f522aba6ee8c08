// Copyright 2026 The disvm Authors
// This file is part of the disvm library.
//
// The disvm library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The disvm library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the disvm library. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"unicode"

	"github.com/disvm/disvm/core/tooling"
	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/internal/flags"
	"github.com/disvm/disvm/params"
	"github.com/disvm/disvm/tools"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// RunConfig are the settings of a run.
type RunConfig struct {
	Threads     int
	Entry       uint64
	Tools       []string
	ToolConfig  map[string]string `toml:",omitempty"` // raw JSON per tool name
	Breakpoints []string          `toml:",omitempty"` // module:pc
	Once        bool
	Output      string
}

type disvmConfig struct {
	VM       vm.Config
	Dispatch tooling.Config
	Run      RunConfig
}

func defaultConfig() disvmConfig {
	return disvmConfig{
		VM:       vm.DefaultConfig,
		Dispatch: tooling.DefaultConfig,
		Run: RunConfig{
			Threads: 1,
			Output:  "table",
		},
	}
}

func loadConfig(file string, cfg *disvmConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// buildConfig starts from the defaults, applies the config file if one is
// given and lets the command line override both.
func buildConfig(ctx *cli.Context) (disvmConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(ConfigFileFlag.Name); file != "" {
		if err := loadConfig(flags.ExpandPath(file), &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(ThreadsFlag.Name) {
		cfg.Run.Threads = ctx.Int(ThreadsFlag.Name)
	}
	if ctx.IsSet(EntryFlag.Name) {
		cfg.Run.Entry = ctx.Uint64(EntryFlag.Name)
	}
	if ctx.IsSet(StackLimitFlag.Name) {
		cfg.VM.StackLimit = ctx.Uint64(StackLimitFlag.Name)
	}
	if ctx.IsSet(StepLimitFlag.Name) {
		cfg.VM.StepLimit = ctx.Uint64(StepLimitFlag.Name)
	}
	if ctx.IsSet(StrictFlag.Name) {
		cfg.Dispatch.StrictInvariants = ctx.Bool(StrictFlag.Name)
	}
	cfg.Run.Tools = append(cfg.Run.Tools, ctx.StringSlice(ToolFlag.Name)...)
	for _, arg := range ctx.StringSlice(ToolConfigFlag.Name) {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return cfg, fmt.Errorf("invalid --%s %q, want name={...}", ToolConfigFlag.Name, arg)
		}
		if cfg.Run.ToolConfig == nil {
			cfg.Run.ToolConfig = make(map[string]string)
		}
		cfg.Run.ToolConfig[name] = raw
	}
	cfg.Run.Breakpoints = append(cfg.Run.Breakpoints, ctx.StringSlice(BreakpointFlag.Name)...)
	if ctx.IsSet(BreakOnceFlag.Name) {
		cfg.Run.Once = ctx.Bool(BreakOnceFlag.Name)
	}
	if ctx.IsSet(OutputFormatFlag.Name) {
		cfg.Run.Output = ctx.String(OutputFormatFlag.Name)
	}
	return cfg, validateConfig(&cfg)
}

func validateConfig(cfg *disvmConfig) error {
	if cfg.Run.Threads < 1 {
		return fmt.Errorf("thread count must be positive, have %d", cfg.Run.Threads)
	}
	switch cfg.Run.Output {
	case "table", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", cfg.Run.Output)
	}
	for name := range cfg.Run.ToolConfig {
		found := false
		for _, tool := range cfg.Run.Tools {
			found = found || tool == name
		}
		if !found {
			return fmt.Errorf("configuration given for tool %q which is not loaded", name)
		}
	}
	return nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	io.WriteString(w, "# disvm "+params.VersionWithMeta+"\n\n")
	w.Write(out)
	return nil
}

// listTools is the tools command.
func listTools(ctx *cli.Context) error {
	for _, name := range tools.DefaultDirectory.Names() {
		fmt.Fprintln(ctx.App.Writer, name)
	}
	return nil
}
