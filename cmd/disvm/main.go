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

// disvm assembles and runs disvm programs with tools attached.
package main

import (
	"fmt"
	"os"

	"github.com/disvm/disvm/internal/debug"
	"github.com/disvm/disvm/internal/flags"
	"github.com/urfave/cli/v2"

	// Force-load the native tools to trigger registration
	_ "github.com/disvm/disvm/tools/native"
)

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.MiscCategory,
	}

	// VM flags.
	ThreadsFlag = &cli.IntFlag{
		Name:     "threads",
		Usage:    "Number of threads to run concurrently",
		Value:    1,
		Category: flags.VMCategory,
	}
	EntryFlag = &cli.Uint64Flag{
		Name:     "entry",
		Usage:    "Program counter the threads start at",
		Category: flags.VMCategory,
	}
	StackLimitFlag = &cli.Uint64Flag{
		Name:     "vm.stack",
		Usage:    "Maximum operand stack height",
		Category: flags.VMCategory,
	}
	StepLimitFlag = &cli.Uint64Flag{
		Name:     "vm.steps",
		Usage:    "Instruction budget per thread (0 = unlimited)",
		Category: flags.VMCategory,
	}
	EchoFlag = &cli.BoolFlag{
		Name:     "echo",
		Usage:    "Print values written by OUT as they are produced",
		Category: flags.VMCategory,
	}

	// Tool flags.
	ToolFlag = &cli.StringSliceFlag{
		Name:     "tool",
		Usage:    "Load the named tool (repeatable)",
		Category: flags.ToolCategory,
	}
	ToolConfigFlag = &cli.StringSliceFlag{
		Name:     "tool.config",
		Usage:    "JSON configuration of a tool as name={...} (repeatable)",
		Category: flags.ToolCategory,
	}
	BreakpointFlag = &cli.StringSliceFlag{
		Name:     "breakpoint",
		Aliases:  []string{"b"},
		Usage:    "Arm a breakpoint at module:pc (repeatable)",
		Category: flags.ToolCategory,
	}
	BreakOnceFlag = &cli.BoolFlag{
		Name:     "breakpoint.once",
		Usage:    "Clear each breakpoint after its first hit",
		Category: flags.ToolCategory,
	}
	StrictFlag = &cli.BoolFlag{
		Name:     "tool.strict",
		Usage:    "Panic on tool dispatch invariant violations",
		Category: flags.ToolCategory,
	}

	// Report flags.
	OutputFormatFlag = &cli.StringFlag{
		Name:     "output",
		Aliases:  []string{"o"},
		Usage:    "Report format (table|yaml)",
		Value:    "table",
		Category: flags.MiscCategory,
	}
)

var runFlags = []cli.Flag{
	ConfigFileFlag,
	ThreadsFlag,
	EntryFlag,
	StackLimitFlag,
	StepLimitFlag,
	EchoFlag,
	ToolFlag,
	ToolConfigFlag,
	BreakpointFlag,
	BreakOnceFlag,
	StrictFlag,
	OutputFormatFlag,
}

var (
	runCommand = &cli.Command{
		Action:    runCmd,
		Name:      "run",
		Usage:     "Run a program with the configured tools",
		ArgsUsage: "<file.dis|file.hex>",
		Flags:     runFlags,
		Description: `
The run command assembles the given source file, or decodes it when it holds
hex encoded bytecode, loads it as a module named after the file and runs it.
Tools are loaded before the module so they observe its load event.`,
	}
	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "",
		Flags:       runFlags,
		Description: `The dumpconfig command shows configuration values.`,
	}
	toolsCommand = &cli.Command{
		Action: listTools,
		Name:   "tools",
		Usage:  "List the available tools",
	}
)

var app = flags.NewApp("the disvm command line interface")

func init() {
	app.Flags = debug.Flags
	app.Commands = []*cli.Command{
		runCommand,
		dumpConfigCommand,
		toolsCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		flags.MigrateGlobalFlags(ctx)
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
