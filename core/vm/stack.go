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

// Stack is the operand stack of a thread.
type Stack struct {
	data  []int64
	limit int
}

func newstack(limit uint64) *Stack {
	return &Stack{data: make([]int64, 0, 16), limit: int(limit)}
}

// Data returns the underlying slice, bottom first. Callers must not modify
// the contents of the returned data.
func (st *Stack) Data() []int64 {
	return st.data
}

// Len returns the number of items on the stack.
func (st *Stack) Len() int {
	return len(st.data)
}

// Peek returns the topmost item, or zero on an empty stack.
func (st *Stack) Peek() int64 {
	if len(st.data) == 0 {
		return 0
	}
	return st.data[len(st.data)-1]
}

func (st *Stack) push(v int64) {
	// NOTE push limit is checked against the operation's stack delta before
	// execution
	st.data = append(st.data, v)
}

func (st *Stack) pop() (ret int64) {
	ret = st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return
}

func (st *Stack) peek() *int64 {
	return &st.data[len(st.data)-1]
}

func (st *Stack) swap() {
	n := len(st.data)
	st.data[n-2], st.data[n-1] = st.data[n-1], st.data[n-2]
}

func (st *Stack) dup() {
	st.push(st.data[len(st.data)-1])
}

func (st *Stack) snapshot() []int64 {
	out := make([]int64, len(st.data))
	copy(out, st.data)
	return out
}
