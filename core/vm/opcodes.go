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
)

// OpCode is a disvm opcode
type OpCode byte

// HasArg reports whether instructions with this opcode carry an immediate
// argument.
func (op OpCode) HasArg() bool {
	switch op {
	case PUSH, JMP, JZ, JNZ, CALL:
		return true
	}
	return false
}

// IsJump reports whether the opcode may transfer control to its argument.
func (op OpCode) IsJump() bool {
	switch op {
	case JMP, JZ, JNZ, CALL:
		return true
	}
	return false
}

// 0x0 range - control ops.
const (
	NOP  OpCode = 0x0
	HALT OpCode = 0x1
)

// 0x10 range - arithmetic ops.
const (
	ADD OpCode = 0x10 + iota
	SUB
	MUL
	DIV
	MOD
	NEG
)

// 0x20 range - comparison ops.
const (
	EQ OpCode = 0x20 + iota
	LT
	GT
	NOT
)

// 0x30 range - stack ops.
const (
	PUSH OpCode = 0x30 + iota
	POP
	DUP
	SWAP
)

// 0x40 range - flow ops.
const (
	JMP OpCode = 0x40 + iota
	JZ
	JNZ
	CALL
	RET
)

// 0x50 range - io ops.
const (
	OUT OpCode = 0x50
)

// 0xf0 range - debugging ops.
const (
	// BRKPT is written over an instruction's opcode by a breakpoint. It is
	// never emitted by the assembler.
	BRKPT OpCode = 0xf0
)

var opCodeToString = map[OpCode]string{
	NOP:  "NOP",
	HALT: "HALT",

	ADD: "ADD",
	SUB: "SUB",
	MUL: "MUL",
	DIV: "DIV",
	MOD: "MOD",
	NEG: "NEG",

	EQ:  "EQ",
	LT:  "LT",
	GT:  "GT",
	NOT: "NOT",

	PUSH: "PUSH",
	POP:  "POP",
	DUP:  "DUP",
	SWAP: "SWAP",

	JMP:  "JMP",
	JZ:   "JZ",
	JNZ:  "JNZ",
	CALL: "CALL",
	RET:  "RET",

	OUT: "OUT",

	BRKPT: "BRKPT",
}

func (op OpCode) String() string {
	str := opCodeToString[op]
	if len(str) == 0 {
		return fmt.Sprintf("opcode %#x not defined", int(op))
	}
	return str
}

var stringToOp = func() map[string]OpCode {
	m := make(map[string]OpCode, len(opCodeToString))
	for op, name := range opCodeToString {
		m[name] = op
	}
	return m
}()

// StringToOp finds the opcode whose name is stored in `str`.
func StringToOp(str string) (OpCode, bool) {
	op, ok := stringToOp[str]
	return op, ok
}
