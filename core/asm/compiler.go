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

package asm

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/disvm/disvm/core/vm"
	"github.com/hashicorp/go-multierror"
)

// Compiler contains information about the parsed source
// and holds the tokens for the program.
type Compiler struct {
	tokens []token
	out    []vm.Instruction

	labels    map[string]int
	labelErrs []error

	pc, pos int

	debug bool
}

// NewCompiler returns a new allocated compiler.
func NewCompiler(debug bool) *Compiler {
	return &Compiler{
		labels: make(map[string]int),
		debug:  debug,
	}
}

// Feed feeds tokens into ch and are interpreted by
// the compiler.
//
// feed is the first pass in the compile stage as it collects the used labels
// in the program and keeps a program counter which is used to determine the
// locations of the labels. Every element is exactly one instruction, so a
// label refers to the index of the next instruction.
func (c *Compiler) Feed(ch <-chan token) {
	for i := range ch {
		switch i.typ {
		case element:
			c.pc++
		case labelDef:
			if _, ok := c.labels[i.text]; ok {
				c.labelErrs = append(c.labelErrs, fmt.Errorf("%d: label %q redefined", i.lineno+1, i.text))
			}
			c.labels[i.text] = c.pc
		}
		c.tokens = append(c.tokens, i)
	}
	if c.debug {
		fmt.Fprintln(os.Stderr, "found", len(c.labels), "labels")
	}
}

// Compile compiles the current tokens and returns the instruction sequence
// and every error found. A line with an error is skipped and compilation
// continues with the next line.
//
// compile is the second stage in the compile phase which compiles the tokens
// to disvm instructions.
func (c *Compiler) Compile() ([]vm.Instruction, []error) {
	errors := append([]error(nil), c.labelErrs...)
	// continue looping over the tokens until
	// the stack has been exhausted.
	for c.pos < len(c.tokens) {
		if err := c.compileLine(); err != nil {
			errors = append(errors, err)
			c.skipLine()
		}
	}
	return c.out, errors
}

// next returns the next token and increments the
// position.
func (c *Compiler) next() token {
	token := c.tokens[c.pos]
	c.pos++
	return token
}

// skipLine advances past the end of the current line.
func (c *Compiler) skipLine() {
	for c.pos < len(c.tokens) {
		if t := c.tokens[c.pos-1]; t.typ == lineEnd || t.typ == eof {
			return
		}
		c.pos++
	}
}

// compileLine compiles a single line instruction e.g.
// "push 1", "loop: jnz @loop".
func (c *Compiler) compileLine() error {
	n := c.next()
	if n.typ != lineStart {
		return compileErr(n, n.typ.String(), lineStart.String())
	}

	lvalue := c.next()
	if lvalue.typ == labelDef {
		lvalue = c.next()
	}
	switch lvalue.typ {
	case eof, lineEnd:
		return nil
	case element:
		if err := c.compileElement(lvalue); err != nil {
			return err
		}
	default:
		return compileErr(lvalue, lvalue.text, fmt.Sprintf("%v or %v", labelDef, element))
	}

	if n := c.next(); n.typ != lineEnd && n.typ != eof {
		return compileErr(n, n.text, lineEnd.String())
	}
	return nil
}

// compileElement compiles an opcode and, for opcodes that take one, its
// immediate argument.
func (c *Compiler) compileElement(element token) error {
	op, ok := vm.StringToOp(strings.ToUpper(element.text))
	if !ok {
		return fmt.Errorf("%d: unknown instruction %q", element.lineno+1, element.text)
	}
	if op == vm.BRKPT {
		return fmt.Errorf("%d: %v is reserved for breakpoints", element.lineno+1, op)
	}
	in := vm.Instruction{Op: op}
	if op.HasArg() {
		rvalue := c.next()
		switch rvalue.typ {
		case number:
			v, err := parseNumber(rvalue)
			if err != nil {
				return err
			}
			in.Arg = v
		case label:
			pc, ok := c.labels[rvalue.text]
			if !ok {
				return fmt.Errorf("%d: undefined label %q", rvalue.lineno+1, rvalue.text)
			}
			in.Arg = int64(pc)
		default:
			return compileErr(rvalue, rvalue.text, "number or label")
		}
	}
	c.output(in)
	return nil
}

// parseNumber parses a decimal or hexadecimal immediate.
func parseNumber(tok token) (int64, error) {
	v, err := strconv.ParseInt(tok.text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%d: invalid number %q", tok.lineno+1, tok.text)
	}
	return v, nil
}

func (c *Compiler) output(in vm.Instruction) {
	if c.debug {
		fmt.Printf("%d: %v\n", len(c.out), in)
	}
	c.out = append(c.out, in)
}

type compileError struct {
	got  string
	want string

	lineno int
}

func (err compileError) Error() string {
	return fmt.Sprintf("%d: syntax error: unexpected %v, expected %v", err.lineno, err.got, err.want)
}

func compileErr(c token, got, want string) error {
	return compileError{
		got:    got,
		want:   want,
		lineno: c.lineno + 1,
	}
}

// Assemble compiles source in one go. All compile errors are returned
// together.
func Assemble(source []byte) ([]vm.Instruction, error) {
	c := NewCompiler(false)
	c.Feed(Lex(source, false))
	prog, errs := c.Compile()
	if len(errs) > 0 {
		return nil, multierror.Append(nil, errs...)
	}
	return prog, nil
}
