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

package vm

import (
	"fmt"

	"go.uber.org/atomic"
)

// Instruction is a single decoded instruction. Arg is ignored for opcodes
// without an immediate.
type Instruction struct {
	Op  OpCode
	Arg int64
}

func (in Instruction) String() string {
	if in.Op.HasArg() {
		return fmt.Sprintf("%v %d", in.Op, in.Arg)
	}
	return in.Op.String()
}

// cell is one slot of a code section. The opcode is kept in an atomic word so
// that a breakpoint can be written while other threads fetch from the same
// module.
type cell struct {
	op  atomic.Uint32
	arg int64
}

// Code is the code section of a module, indexed by program counter. Apart
// from breakpoint patching it is read-only once created.
type Code struct {
	cells []cell
}

// NewCode copies prog into a fresh code section.
func NewCode(prog []Instruction) *Code {
	c := &Code{cells: make([]cell, len(prog))}
	for i, in := range prog {
		c.cells[i].op.Store(uint32(in.Op))
		c.cells[i].arg = in.Arg
	}
	return c
}

// Len returns the number of instructions in the section.
func (c *Code) Len() uint64 {
	return uint64(len(c.cells))
}

// Op returns the opcode currently stored at pc. The caller must ensure pc is
// in range.
func (c *Code) Op(pc uint64) OpCode {
	return OpCode(c.cells[pc].op.Load())
}

// Arg returns the immediate stored at pc.
func (c *Code) Arg(pc uint64) int64 {
	return c.cells[pc].arg
}

// At returns the instruction currently stored at pc.
func (c *Code) At(pc uint64) Instruction {
	return Instruction{Op: c.Op(pc), Arg: c.Arg(pc)}
}

// Instructions returns a snapshot of the section, including any BRKPT
// opcodes currently written into it.
func (c *Code) Instructions() []Instruction {
	out := make([]Instruction, len(c.cells))
	for i := range c.cells {
		out[i] = c.At(uint64(i))
	}
	return out
}

// patch stores op at pc and returns the opcode it replaced.
func (c *Code) patch(pc uint64, op OpCode) OpCode {
	return OpCode(c.cells[pc].op.Swap(uint32(op)))
}

// compareAndPatch stores op at pc only if the cell holds old.
func (c *Code) compareAndPatch(pc uint64, old, op OpCode) bool {
	return c.cells[pc].op.CompareAndSwap(uint32(old), uint32(op))
}
