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

// Frame is a saved return address pushed by CALL.
type Frame struct {
	ReturnPC uint64
}

// Registers is the architectural state of a thread. PC already points past
// the instruction being executed while its operation runs, so a breakpoint
// handler finds the fetched instruction at PC-1.
type Registers struct {
	PC     uint64
	Module *Module
	Thread uint64
	Stack  *Stack
	Frames []Frame
	Steps  uint64
}

// Depth returns the current call depth.
func (r *Registers) Depth() int {
	return len(r.Frames)
}
