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

// EventKind enumerates the observable VM occurrences tools can subscribe to.
// The set is closed: kinds are fixed at build time.
type EventKind uint8

const (
	EventModuleLoad EventKind = iota
	EventThreadBegin
	EventThreadEnd
	EventOpcode
	EventBreakpoint
	EventException
	EventCall
	EventReturn

	NumEventKinds = iota
)

var eventKindNames = [NumEventKinds]string{
	EventModuleLoad:  "moduleload",
	EventThreadBegin: "threadbegin",
	EventThreadEnd:   "threadend",
	EventOpcode:      "opcode",
	EventBreakpoint:  "breakpoint",
	EventException:   "exception",
	EventCall:        "call",
	EventReturn:      "return",
}

// Valid reports whether k is one of the enumerated kinds.
func (k EventKind) Valid() bool {
	return k < NumEventKinds
}

func (k EventKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("event(%d)", uint8(k))
	}
	return eventKindNames[k]
}

// EventKindFromString parses the lower-case name of an event kind.
func EventKindFromString(s string) (EventKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range eventKindNames {
		if name == s {
			return EventKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// AllEventKinds returns every kind in enumeration order.
func AllEventKinds() []EventKind {
	kinds := make([]EventKind, NumEventKinds)
	for i := range kinds {
		kinds[i] = EventKind(i)
	}
	return kinds
}

// Event is the payload delivered to tool callbacks. The concrete type is
// determined by Kind.
type Event interface {
	Kind() EventKind
}

// ModuleLoadEvent is raised after a module became visible to the VM.
type ModuleLoadEvent struct {
	Module *Module
}

// ThreadBeginEvent is raised before a thread executes its first instruction.
type ThreadBeginEvent struct {
	Thread uint64
	Module *Module
	Entry  uint64
}

// ThreadEndEvent is raised when a thread stops, successfully or not.
type ThreadEndEvent struct {
	Thread uint64
	Module *Module
	Steps  uint64
	Err    error
}

// OpcodeEvent is raised before an operation executes. Op is the opcode that
// is about to run, which differs from the code cell while a breakpoint is
// armed at PC.
type OpcodeEvent struct {
	Thread uint64
	Module *Module
	PC     uint64
	Op     OpCode
	Stack  []int64
}

// BreakpointEvent is raised when a thread fetches BRKPT at PC.
type BreakpointEvent struct {
	Thread    uint64
	Module    *Module
	PC        uint64
	Original  OpCode
	Registers *Registers
	VM        *VM
}

// ExceptionEvent is raised when an operation fails and the thread unwinds.
type ExceptionEvent struct {
	Thread uint64
	Module *Module
	PC     uint64
	Err    error
}

// CallEvent is raised when CALL pushes a frame.
type CallEvent struct {
	Thread uint64
	Module *Module
	From   uint64
	To     uint64
	Depth  int
}

// ReturnEvent is raised when RET pops a frame.
type ReturnEvent struct {
	Thread uint64
	Module *Module
	From   uint64
	To     uint64
	Depth  int
}

func (ModuleLoadEvent) Kind() EventKind  { return EventModuleLoad }
func (ThreadBeginEvent) Kind() EventKind { return EventThreadBegin }
func (ThreadEndEvent) Kind() EventKind   { return EventThreadEnd }
func (OpcodeEvent) Kind() EventKind      { return EventOpcode }
func (BreakpointEvent) Kind() EventKind  { return EventBreakpoint }
func (ExceptionEvent) Kind() EventKind   { return EventException }
func (CallEvent) Kind() EventKind        { return EventCall }
func (ReturnEvent) Kind() EventKind      { return EventReturn }
