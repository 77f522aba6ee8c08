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

// disasm is a pretty-printer for disvm bytecode.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/disvm/disvm/core/asm"
)

func main() {
	if err := disasm(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// disasm reads hex encoded bytecode from in and writes the listing to out.
func disasm(in io.Reader, out io.Writer) error {
	code, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	text := strings.TrimPrefix(strings.TrimSpace(string(code)), "0x")
	fmt.Fprintln(out, text)

	lines, err := asm.DisassembleHex(text)
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return err
}
