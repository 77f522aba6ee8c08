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

// Package debug wires the command line logging flags to the root logger.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/disvm/disvm/internal/flags"
	"github.com/disvm/disvm/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	logFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "Log format to use (terminal|logfmt)",
		Value:    "terminal",
		Category: flags.LoggingCategory,
	}
	logFileFlag = &cli.StringFlag{
		Name:     "log.file",
		Usage:    "Write logs to a file",
		Category: flags.LoggingCategory,
	}
	logRotateFlag = &cli.BoolFlag{
		Name:     "log.rotate",
		Usage:    "Enables log file rotation",
		Category: flags.LoggingCategory,
	}
	logMaxSizeMBsFlag = &cli.IntFlag{
		Name:     "log.maxsize",
		Usage:    "Maximum size in MBs of a single log file",
		Value:    100,
		Category: flags.LoggingCategory,
	}
	logMaxBackupsFlag = &cli.IntFlag{
		Name:     "log.maxbackups",
		Usage:    "Maximum number of log files to retain",
		Value:    10,
		Category: flags.LoggingCategory,
	}
	logCompressFlag = &cli.BoolFlag{
		Name:     "log.compress",
		Usage:    "Compress the log files",
		Category: flags.LoggingCategory,
	}
	logOriginsFlag = &cli.BoolFlag{
		Name:     "log.origins",
		Usage:    "Prints call site location (file and line number) on terminal output",
		Category: flags.LoggingCategory,
	}
)

// Flags holds all command-line flags required for debugging.
var Flags = []cli.Flag{
	verbosityFlag,
	logFormatFlag,
	logFileFlag,
	logRotateFlag,
	logMaxSizeMBsFlag,
	logMaxBackupsFlag,
	logCompressFlag,
	logOriginsFlag,
}

var logOutputFile io.WriteCloser

// Setup initializes the root logger based on the CLI flags. It should be
// called as early as possible in the program.
func Setup(ctx *cli.Context) error {
	var (
		output   = io.Writer(os.Stderr)
		usecolor = false
		logFile  = flags.ExpandPath(ctx.String(logFileFlag.Name))
	)
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		if ctx.Bool(logRotateFlag.Name) {
			logOutputFile = &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    ctx.Int(logMaxSizeMBsFlag.Name),
				MaxBackups: ctx.Int(logMaxBackupsFlag.Name),
				Compress:   ctx.Bool(logCompressFlag.Name),
			}
		} else {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			logOutputFile = f
		}
		output = logOutputFile
	} else {
		usecolor = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
		if usecolor {
			output = colorable.NewColorableStderr()
		}
	}

	var format log.Format
	switch ctx.String(logFormatFlag.Name) {
	case "terminal", "":
		format = log.TerminalFormat(usecolor)
	case "logfmt":
		format = log.LogfmtFormat()
	default:
		return fmt.Errorf("unknown log format: %q", ctx.String(logFormatFlag.Name))
	}
	log.PrintOrigins(ctx.Bool(logOriginsFlag.Name))

	verbosity := ctx.Int(verbosityFlag.Name)
	if verbosity <= 0 {
		log.Root().SetHandler(log.DiscardHandler())
		return nil
	}
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), log.StreamHandler(output, format)))
	return nil
}

// Exit releases the log file opened by Setup, if any.
func Exit() {
	if logOutputFile != nil {
		logOutputFile.Close()
		logOutputFile = nil
	}
}
