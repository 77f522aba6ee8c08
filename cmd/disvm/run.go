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
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disvm/disvm/core/asm"
	"github.com/disvm/disvm/core/tooling"
	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/log"
	"github.com/disvm/disvm/tools"
	"github.com/disvm/disvm/tools/native"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

func runCmd(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one program file")
	}
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.Bool(EchoFlag.Name) {
		cfg.VM.Output = ctx.App.Writer
	}
	m, err := loadProgram(ctx.Args().First())
	if err != nil {
		return err
	}
	rep, runErr := execute(ctx.Context, cfg, m)
	if rep != nil {
		if err := rep.write(ctx.App.Writer, cfg.Run.Output); err != nil {
			return err
		}
	}
	return runErr
}

// loadProgram reads a module from disk. Files ending in .hex hold the
// encoded bytecode, anything else is assembler source.
func loadProgram(path string) (*vm.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)

	var prog []vm.Instruction
	if ext == ".hex" {
		text := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
		code, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		prog, err = asm.Decode(code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else {
		prog, err = asm.Assemble(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if len(prog) == 0 {
		return nil, fmt.Errorf("%s: %w", path, vm.ErrNoCode)
	}
	return vm.NewModule(name, 0, prog), nil
}

// execute loads the tools and the module into a fresh VM, runs the threads
// and collects the report. The report is returned even if the run failed.
func execute(ctx context.Context, cfg disvmConfig, m *vm.Module) (*report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	machine := vm.New(cfg.VM)
	machine.SetLogger(log.Root().New("component", "vm"))
	dispatch := tooling.New(machine, cfg.Dispatch)

	var errs *multierror.Error
	loaded, dbg, err := loadTools(dispatch, cfg.Run)
	if err != nil {
		errs = multierror.Append(errs, err)
		errs = multierror.Append(errs, dispatch.Close())
		return nil, errs.ErrorOrNil()
	}
	if err := machine.LoadModule(m); err != nil {
		errs = multierror.Append(errs, err)
		errs = multierror.Append(errs, dispatch.Close())
		return nil, errs.ErrorOrNil()
	}
	if dbg != nil {
		if missing := dbg.Unarmed(); len(missing) > 0 {
			errs = multierror.Append(errs, fmt.Errorf("breakpoints %v could not be armed", missing))
			errs = multierror.Append(errs, dispatch.Close())
			return nil, errs.ErrorOrNil()
		}
	}

	start := time.Now()
	results, runErr := machine.RunThreads(ctx, m, cfg.Run.Entry, cfg.Run.Threads)
	elapsed := time.Since(start)
	log.Debug("Threads finished", "module", m.Name, "threads", cfg.Run.Threads, "elapsed", elapsed, "err", runErr)

	rep := &report{
		Module:  m.Name,
		Size:    m.Code().Len(),
		Elapsed: elapsed.String(),
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		rep.Threads = append(rep.Threads, threadReport{
			Thread: res.Thread,
			Steps:  res.Steps,
			Output: res.Output,
			Stack:  res.Stack,
		})
	}
	for _, t := range loaded {
		result, err := t.tool.GetResult()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("tool %s: %w", t.name, err))
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(result, &decoded); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("tool %s: %w", t.name, err))
			continue
		}
		if rep.Tools == nil {
			rep.Tools = make(map[string]interface{})
		}
		rep.Tools[t.name] = decoded
	}
	if dbg != nil {
		hits := dbg.Hits()
		rep.Breakpoints = make(map[string]uint64)
		for _, loc := range dbg.Locations() {
			rep.Breakpoints[loc.String()] = hits[loc]
		}
		rep.Code = asm.DisassembleCode(m.Code(), func(pc uint64) (vm.OpCode, bool) {
			return dispatch.Original(m, pc)
		})
	}
	if runErr != nil {
		rep.Error = runErr.Error()
		errs = multierror.Append(errs, runErr)
	}
	if err := dispatch.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return rep, errs.ErrorOrNil()
}

type namedTool struct {
	name string
	tool tools.Tool
}

// loadTools instantiates the configured tools and loads them, followed by a
// debugger when breakpoints were requested.
func loadTools(dispatch *tooling.Dispatch, cfg RunConfig) ([]namedTool, *native.Debugger, error) {
	var loaded []namedTool
	for _, name := range cfg.Tools {
		var raw json.RawMessage
		if c, ok := cfg.ToolConfig[name]; ok {
			raw = json.RawMessage(c)
		}
		tool, err := tools.DefaultDirectory.New(name, raw)
		if err != nil {
			return nil, nil, err
		}
		if _, err := dispatch.LoadTool(tool); err != nil {
			return nil, nil, fmt.Errorf("tool %s: %w", name, err)
		}
		loaded = append(loaded, namedTool{name: name, tool: tool})
	}
	if len(cfg.Breakpoints) == 0 {
		return loaded, nil, nil
	}
	config := native.DebuggerConfig{Once: cfg.Once}
	for _, s := range cfg.Breakpoints {
		loc, err := native.ParseLocation(s)
		if err != nil {
			return nil, nil, err
		}
		config.Breakpoints = append(config.Breakpoints, loc)
	}
	dbg, err := native.NewDebugger(config)
	if err != nil {
		return nil, nil, err
	}
	if _, err := dispatch.LoadTool(dbg); err != nil {
		return nil, nil, err
	}
	return loaded, dbg, nil
}
