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

type (
	executionFunc func(in *interpreter, arg int64) error
)

type operation struct {
	// execute is the operation function
	execute executionFunc
	// minStack tells how many stack items are required
	minStack int
	// diff is the net change of the stack height
	diff int
}

// JumpTable contains the disvm opcodes supported at a given version.
type JumpTable [256]*operation

var instructionSet = newInstructionSet()

// newInstructionSet returns the instructions understood by the interpreter.
// BRKPT has no entry: it is resolved through the tool dispatch before the
// table is consulted.
func newInstructionSet() JumpTable {
	return JumpTable{
		NOP: {
			execute: opNop,
		},
		HALT: {
			execute: opHalt,
		},
		ADD: {
			execute:  opAdd,
			minStack: 2,
			diff:     -1,
		},
		SUB: {
			execute:  opSub,
			minStack: 2,
			diff:     -1,
		},
		MUL: {
			execute:  opMul,
			minStack: 2,
			diff:     -1,
		},
		DIV: {
			execute:  opDiv,
			minStack: 2,
			diff:     -1,
		},
		MOD: {
			execute:  opMod,
			minStack: 2,
			diff:     -1,
		},
		NEG: {
			execute:  opNeg,
			minStack: 1,
		},
		EQ: {
			execute:  opEq,
			minStack: 2,
			diff:     -1,
		},
		LT: {
			execute:  opLt,
			minStack: 2,
			diff:     -1,
		},
		GT: {
			execute:  opGt,
			minStack: 2,
			diff:     -1,
		},
		NOT: {
			execute:  opNot,
			minStack: 1,
		},
		PUSH: {
			execute: opPush,
			diff:    1,
		},
		POP: {
			execute:  opPop,
			minStack: 1,
			diff:     -1,
		},
		DUP: {
			execute:  opDup,
			minStack: 1,
			diff:     1,
		},
		SWAP: {
			execute:  opSwap,
			minStack: 2,
		},
		JMP: {
			execute: opJmp,
		},
		JZ: {
			execute:  opJz,
			minStack: 1,
			diff:     -1,
		},
		JNZ: {
			execute:  opJnz,
			minStack: 1,
			diff:     -1,
		},
		CALL: {
			execute: opCall,
		},
		RET: {
			execute: opRet,
		},
		OUT: {
			execute:  opOut,
			minStack: 1,
			diff:     -1,
		},
	}
}
