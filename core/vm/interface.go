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

// ToolDispatch is the tool-facing side of the VM as seen by the interpreter.
type ToolDispatch interface {
	// OnBreakpoint is called after the fetch unit read BRKPT. regs.PC has
	// already been advanced past the instruction. The returned opcode is
	// executed in place of BRKPT.
	OnBreakpoint(regs *Registers, vm *VM) (OpCode, error)

	// FireEvent delivers ev to the subscribers of its kind on the calling
	// goroutine.
	FireEvent(ev Event)

	// Subscribed reports whether anyone listens to kind, letting the
	// interpreter skip building payloads.
	Subscribed(kind EventKind) bool
}
