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

package tooling

import (
	"fmt"

	"github.com/disvm/disvm/core/vm"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Breakpoint describes an installed breakpoint.
type Breakpoint struct {
	Cookie   BreakpointCookie
	Module   *vm.Module
	PC       uint64
	Original vm.OpCode
}

func checkModule(m *vm.Module) error {
	if m == nil {
		return fmt.Errorf("%w: nil module", ErrInvalidArgument)
	}
	if m.IsBuiltin() {
		return fmt.Errorf("%w: module %q is builtin", ErrInvalidArgument, m.Name)
	}
	return nil
}

// SetBreakpoint writes BRKPT into the code cell at pc of m and remembers the
// opcode it displaced. Recording and patching happen in one critical section
// of the breakpoint lock.
func (d *Dispatch) SetBreakpoint(m *vm.Module, pc uint64) (BreakpointCookie, error) {
	if err := checkModule(m); err != nil {
		return 0, err
	}
	if size := m.Code().Len(); pc >= size {
		return 0, fmt.Errorf("%w: pc %d out of range for module %q (%d instructions)", ErrInvalidArgument, pc, m.Name, size)
	}
	d.bpMu.Lock()
	defer d.bpMu.Unlock()

	if d.closed.Load() {
		return 0, ErrClosed
	}
	original := m.Code().Op(pc)
	if original == vm.BRKPT {
		return 0, fmt.Errorf("%w: %s:%d", ErrAlreadySet, m.Name, pc)
	}
	cookie := bpCookies.next()
	d.bps[cookie] = location{module: m, pc: pc}
	pcs := d.originals[m]
	if pcs == nil {
		pcs = make(map[uint64]vm.OpCode)
		d.originals[m] = pcs
	}
	pcs[pc] = original
	if _, err := m.PatchOpcode(pc, vm.BRKPT); err != nil {
		// Range was checked above, code sections never shrink.
		delete(d.bps, cookie)
		d.forgetOriginal(m, pc)
		return 0, d.violation("patch %s:%d: %v", m.Name, pc, err)
	}
	d.metrics.breakpointsSet.Inc(1)
	d.metrics.armed.Update(int64(len(d.bps)))
	d.log.Debug("Set breakpoint", "module", m.Name, "pc", pc, "cookie", cookie, "original", original)
	return cookie, nil
}

// ClearBreakpoint restores the displaced opcode of the breakpoint named by
// cookie. Unknown cookies are ignored.
func (d *Dispatch) ClearBreakpoint(cookie BreakpointCookie) {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()

	loc, ok := d.bps[cookie]
	if !ok {
		return
	}
	delete(d.bps, cookie)
	if err := d.restoreLocked(cookie, loc); err != nil {
		return
	}
	d.metrics.breakpointsCleared.Inc(1)
	d.metrics.armed.Update(int64(len(d.bps)))
	d.log.Debug("Cleared breakpoint", "module", loc.module.Name, "pc", loc.pc, "cookie", cookie)
}

// restoreLocked writes the original opcode back into the cell named by loc
// and drops its record. The cookie entry must already be removed. A cell that
// no longer holds BRKPT was changed behind the registry's back; it is left
// as found and reported.
func (d *Dispatch) restoreLocked(cookie BreakpointCookie, loc location) error {
	original, ok := d.originals[loc.module][loc.pc]
	if !ok {
		return d.violation("breakpoint %d at %s:%d has no original opcode", cookie, loc.module.Name, loc.pc)
	}
	d.forgetOriginal(loc.module, loc.pc)

	restored, err := loc.module.CompareAndPatchOpcode(loc.pc, vm.BRKPT, original)
	if err != nil {
		return d.violation("restore %s:%d: %v", loc.module.Name, loc.pc, err)
	}
	if !restored {
		return d.violation("breakpoint %d at %s:%d held %v instead of %v", cookie, loc.module.Name, loc.pc, loc.module.Code().Op(loc.pc), vm.BRKPT)
	}
	return nil
}

// forgetOriginal drops the original opcode record of a cell, and the
// module's table once it is empty.
func (d *Dispatch) forgetOriginal(m *vm.Module, pc uint64) {
	pcs := d.originals[m]
	delete(pcs, pc)
	if len(pcs) == 0 {
		delete(d.originals, m)
	}
}

// OriginalOpcode returns the opcode displaced by the breakpoint at pc of m.
// A missing record means the caller saw BRKPT where the dispatch never put
// one, which is reported as an invariant violation.
func (d *Dispatch) OriginalOpcode(m *vm.Module, pc uint64) (vm.OpCode, error) {
	if err := checkModule(m); err != nil {
		return 0, err
	}
	d.bpMu.Lock()
	defer d.bpMu.Unlock()

	original, ok := d.originals[m][pc]
	if !ok {
		return 0, d.violation("no breakpoint recorded at %s:%d", m.Name, pc)
	}
	return original, nil
}

// OnBreakpoint is called by the interpreter after it fetched BRKPT. The
// program counter has already moved past the instruction, so the breakpoint
// sits at regs.PC-1. Subscribers of vm.EventBreakpoint are notified after
// the breakpoint lock is released, and the displaced opcode is returned for
// execution.
func (d *Dispatch) OnBreakpoint(regs *vm.Registers, machine *vm.VM) (vm.OpCode, error) {
	if regs == nil || regs.PC == 0 {
		return 0, fmt.Errorf("%w: no instruction was fetched", ErrInvalidArgument)
	}
	m, pc := regs.Module, regs.PC-1
	if err := checkModule(m); err != nil {
		return 0, err
	}
	d.bpMu.Lock()
	original, ok := d.originals[m][pc]
	if !ok {
		// The breakpoint may have been cleared between the fetch and this
		// call, in which case the cell holds the restored opcode again.
		if current := m.Code().Op(pc); current != vm.BRKPT {
			d.bpMu.Unlock()
			return current, nil
		}
		d.bpMu.Unlock()
		return 0, d.violation("no breakpoint recorded at %s:%d", m.Name, pc)
	}
	d.bpMu.Unlock()

	d.metrics.breakpointHits.Inc(1)
	d.log.Trace("Hit breakpoint", "module", m.Name, "pc", pc, "thread", regs.Thread, "original", original)
	if d.Subscribed(vm.EventBreakpoint) {
		d.FireEvent(vm.BreakpointEvent{
			Thread:    regs.Thread,
			Module:    m,
			PC:        pc,
			Original:  original,
			Registers: regs,
			VM:        machine,
		})
	}
	return original, nil
}

// Breakpoints returns the installed breakpoints ordered by cookie.
func (d *Dispatch) Breakpoints() []Breakpoint {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()

	cookies := maps.Keys(d.bps)
	slices.Sort(cookies)
	out := make([]Breakpoint, 0, len(cookies))
	for _, cookie := range cookies {
		loc := d.bps[cookie]
		out = append(out, Breakpoint{
			Cookie:   cookie,
			Module:   loc.module,
			PC:       loc.pc,
			Original: d.originals[loc.module][loc.pc],
		})
	}
	return out
}

// Original reports the displaced opcode at pc of m if a breakpoint is
// installed there. Unlike OriginalOpcode a missing record is not an error.
func (d *Dispatch) Original(m *vm.Module, pc uint64) (vm.OpCode, bool) {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()

	op, ok := d.originals[m][pc]
	return op, ok
}
