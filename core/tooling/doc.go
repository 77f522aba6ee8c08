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
Package tooling implements the tool dispatch of the disvm virtual machine.

A Dispatch is owned by one VM. It lets external tools (debuggers, profilers,
tracers) attach to the VM, subscribe to its events and install breakpoints in
loaded modules. It keeps three registries, each behind its own lock:

  - the tool registry assigns tool ids and runs the OnLoad/OnUnload hooks,
  - the event registry maps event kinds to cookie-keyed callbacks and fans
    events out to them,
  - the breakpoint registry writes BRKPT over module code, remembers the
    displaced opcode and hands it back to the interpreter on a hit.

Tool ids, event cookies and breakpoint cookies come from three separate
counters that start at 1 and are never reissued, even when the record they
named is gone.

Hooks and callbacks

OnLoad and OnUnload run while the tool registry lock is held. They may
subscribe to events and set breakpoints, but must not load or unload tools.

Event callbacks run on the goroutine that raised the event with no registry
lock held. They may subscribe, unsubscribe, set and clear breakpoints. A
callback that panics is recovered and logged; the remaining subscribers still
receive the event.
*/
package tooling
