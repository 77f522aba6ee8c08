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

/*
Package vm implements the disvm stack machine.

A module is a named, immutable sequence of instructions. The interpreter
executes a module on a thread: it fetches the instruction at the program
counter, advances the counter and runs the operation found in the jump table.

Tools observe execution through a ToolDispatch. The interpreter raises events
at its emission points (module load, thread begin and end, every executed
opcode, call, return and exception) and, when it fetches BRKPT, asks the
dispatch for the opcode that was displaced by the breakpoint and executes that
instead. Breakpoints are therefore transparent to the program being run.
*/
package vm
