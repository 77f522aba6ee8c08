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
	"errors"
	"fmt"
)

// List of interpreter errors
var (
	ErrInvalidPC        = errors.New("program counter out of range")
	ErrInvalidJump      = errors.New("invalid jump destination")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrDepth            = errors.New("max call depth exceeded")
	ErrStepLimitReached = errors.New("step limit reached")
	ErrAborted          = errors.New("execution aborted")
	ErrNoToolDispatch   = errors.New("breakpoint reached without a tool dispatch")
	ErrModuleExists     = errors.New("module already loaded")
	ErrUnknownModule    = errors.New("unknown module")
	ErrNoCode           = errors.New("module has no code")
)

// ErrStackUnderflow wraps an evaluation error when the items on the stack
// are fewer than the minimal number required by the operation.
type ErrStackUnderflow struct {
	stackLen int
	required int
}

func (e *ErrStackUnderflow) Error() string {
	return fmt.Sprintf("stack underflow (%d <=> %d)", e.stackLen, e.required)
}

// ErrStackOverflow wraps an evaluation error when the stack would exceed its
// configured limit.
type ErrStackOverflow struct {
	stackLen int
	limit    int
}

func (e *ErrStackOverflow) Error() string {
	return fmt.Sprintf("stack limit reached %d (%d)", e.stackLen, e.limit)
}

// ErrInvalidOpCode wraps an evaluation error when an invalid opcode is encountered.
type ErrInvalidOpCode struct {
	opcode OpCode
}

func (e *ErrInvalidOpCode) Error() string { return fmt.Sprintf("invalid opcode: %s", e.opcode) }

// BreakpointError is returned when the tool dispatch fails to resolve a
// breakpoint the interpreter fetched.
type BreakpointError struct {
	Module string
	PC     uint64
	Err    error
}

func (e *BreakpointError) Error() string {
	return fmt.Sprintf("breakpoint at %s:%d: %v", e.Module, e.PC, e.Err)
}

func (e *BreakpointError) Unwrap() error { return e.Err }
