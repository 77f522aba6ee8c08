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

package params

const (
	StackLimit     uint64 = 1024    // Maximum number of values on an operand stack.
	CallDepthLimit uint64 = 1024    // Maximum depth of the call frame stack.
	StepLimit      uint64 = 1 << 24 // Default instruction budget for a single thread, zero disables it.

	MaxCodeSize = 1 << 16 // Maximum number of instructions in a module
)
