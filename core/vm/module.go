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
	"strings"
)

// RuntimeFlags are the module header flag bits.
type RuntimeFlags uint32

const (
	// FlagBuiltin marks modules implemented by the runtime itself. Their code
	// may not be patched.
	FlagBuiltin RuntimeFlags = 1 << iota
	// FlagDynamic marks modules loaded after the VM started running threads.
	FlagDynamic
)

func (f RuntimeFlags) String() string {
	var names []string
	if f&FlagBuiltin != 0 {
		names = append(names, "builtin")
	}
	if f&FlagDynamic != 0 {
		names = append(names, "dynamic")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Header carries the metadata of a module.
type Header struct {
	RuntimeFlags RuntimeFlags
	Entry        uint64 // default entry point
}

// Module is a loaded unit of code. Modules are shared by pointer: the same
// *Module is seen by every thread executing it and by the tool dispatch.
type Module struct {
	Name   string
	Header Header

	code *Code
}

// NewModule creates a module from an instruction sequence.
func NewModule(name string, flags RuntimeFlags, prog []Instruction) *Module {
	return &Module{
		Name:   name,
		Header: Header{RuntimeFlags: flags},
		code:   NewCode(prog),
	}
}

// Code returns the module's code section.
func (m *Module) Code() *Code {
	return m.code
}

// IsBuiltin reports whether the builtin flag is set in the module header.
func (m *Module) IsBuiltin() bool {
	return m.Header.RuntimeFlags&FlagBuiltin != 0
}

// PatchOpcode overwrites the opcode at pc, leaving the immediate untouched,
// and returns the previous opcode. It is the only way to mutate a loaded
// code section and is reserved for the breakpoint registry.
func (m *Module) PatchOpcode(pc uint64, op OpCode) (OpCode, error) {
	if pc >= m.code.Len() {
		return 0, fmt.Errorf("%w: pc %d beyond module %q (%d instructions)", ErrInvalidPC, pc, m.Name, m.code.Len())
	}
	return m.code.patch(pc, op), nil
}

// CompareAndPatchOpcode overwrites the opcode at pc with op if the cell
// currently holds old, and reports whether it did. Like PatchOpcode it is
// reserved for the breakpoint registry.
func (m *Module) CompareAndPatchOpcode(pc uint64, old, op OpCode) (bool, error) {
	if pc >= m.code.Len() {
		return false, fmt.Errorf("%w: pc %d beyond module %q (%d instructions)", ErrInvalidPC, pc, m.Name, m.code.Len())
	}
	return m.code.compareAndPatch(pc, old, op), nil
}

func (m *Module) String() string {
	return fmt.Sprintf("%s(%d instructions, flags=%v)", m.Name, m.code.Len(), m.Header.RuntimeFlags)
}
