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

// Package asm provides support for dealing with disvm assembly: a lexer and
// compiler for the text form, and an encoder, iterator and disassembler for
// the binary form.
//
// The binary form stores every instruction as its opcode byte followed, for
// opcodes that take an immediate, by the argument as eight big-endian bytes.
package asm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/disvm/disvm/core/vm"
)

const argSize = 8

// Encode serializes an instruction sequence to the binary form.
func Encode(prog []vm.Instruction) []byte {
	out := make([]byte, 0, len(prog)*(1+argSize))
	for _, in := range prog {
		out = append(out, byte(in.Op))
		if in.Op.HasArg() {
			out = binary.BigEndian.AppendUint64(out, uint64(in.Arg))
		}
	}
	return out
}

// Iterator for disassembled disvm instructions
type instructionIterator struct {
	code    []byte
	offset  int
	pc      uint64
	arg     int64
	op      vm.OpCode
	size    int
	error   error
	started bool
}

// NewInstructionIterator creates a new instruction iterator.
func NewInstructionIterator(code []byte) *instructionIterator {
	it := new(instructionIterator)
	it.code = code
	return it
}

// Next returns true if there is a next instruction and moves on.
func (it *instructionIterator) Next() bool {
	if it.error != nil || len(it.code) <= it.offset {
		// We previously reached an error or the end.
		return false
	}

	if it.started {
		// Since the iteration has been already started we move to the next instruction.
		it.offset += it.size
		it.pc++
	} else {
		// We start the iteration from the first instruction.
		it.started = true
	}

	if len(it.code) <= it.offset {
		// We reached the end.
		return false
	}
	it.op = vm.OpCode(it.code[it.offset])
	it.size, it.arg = 1, 0
	if it.op.HasArg() {
		if len(it.code) < it.offset+1+argSize {
			it.error = fmt.Errorf("incomplete instruction at %v", it.pc)
			return false
		}
		it.arg = int64(binary.BigEndian.Uint64(it.code[it.offset+1:]))
		it.size += argSize
	}
	return true
}

// Error returns any error that may have been encountered.
func (it *instructionIterator) Error() error {
	return it.error
}

// PC returns the PC of the current instruction.
func (it *instructionIterator) PC() uint64 {
	return it.pc
}

// Op returns the opcode of the current instruction.
func (it *instructionIterator) Op() vm.OpCode {
	return it.op
}

// Arg returns the argument of the current instruction.
func (it *instructionIterator) Arg() int64 {
	return it.arg
}

// Instruction returns the current instruction.
func (it *instructionIterator) Instruction() vm.Instruction {
	return vm.Instruction{Op: it.op, Arg: it.arg}
}

// Decode parses the binary form back into an instruction sequence.
func Decode(code []byte) ([]vm.Instruction, error) {
	var prog []vm.Instruction
	it := NewInstructionIterator(code)
	for it.Next() {
		prog = append(prog, it.Instruction())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return prog, nil
}

// FormatInstruction renders one listing line.
func FormatInstruction(pc uint64, in vm.Instruction) string {
	if in.Op.HasArg() {
		return fmt.Sprintf("%05d: %v %d", pc, in.Op, in.Arg)
	}
	return fmt.Sprintf("%05d: %v", pc, in.Op)
}

// DisassembleHex decodes hex encoded bytecode and disassembles it. When the
// code ends in a truncated instruction, the lines before it are returned
// together with the error.
func DisassembleHex(code string) ([]string, error) {
	script, err := hex.DecodeString(code)
	if err != nil {
		return nil, err
	}
	var lines []string
	it := NewInstructionIterator(script)
	for it.Next() {
		lines = append(lines, FormatInstruction(it.PC(), it.Instruction()))
	}
	return lines, it.Error()
}

// Disassemble returns all disassembled disvm instructions in human-readable format.
func Disassemble(script []byte) ([]string, error) {
	instrs := make([]string, 0)

	it := NewInstructionIterator(script)
	for it.Next() {
		instrs = append(instrs, FormatInstruction(it.PC(), it.Instruction()))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return instrs, nil
}

// DisassembleCode returns the listing of a live code section. Armed
// breakpoints show up as BRKPT followed by the displaced opcode reported by
// original.
func DisassembleCode(code *vm.Code, original func(pc uint64) (vm.OpCode, bool)) []string {
	lines := make([]string, 0, code.Len())
	for pc := uint64(0); pc < code.Len(); pc++ {
		in := code.At(pc)
		if in.Op == vm.BRKPT && original != nil {
			if op, ok := original(pc); ok {
				in.Op = op
				lines = append(lines, FormatInstruction(pc, in)+"  ; BRKPT")
				continue
			}
		}
		lines = append(lines, FormatInstruction(pc, in))
	}
	return lines
}
