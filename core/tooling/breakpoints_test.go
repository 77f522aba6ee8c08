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
	"testing"

	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/log"
	"github.com/stretchr/testify/require"
)

func TestBreakpointRoundTrip(t *testing.T) {
	d := newTestDispatch(t, Config{})
	m := newTestModule("main", 0)
	require.Equal(t, vm.ADD, m.Code().Op(7))

	k, err := d.SetBreakpoint(m, 7)
	require.NoError(t, err)
	require.NotZero(t, k)
	require.Equal(t, vm.BRKPT, m.Code().Op(7))

	op, err := d.OriginalOpcode(m, 7)
	require.NoError(t, err)
	require.Equal(t, vm.ADD, op)
	require.Equal(t, []Breakpoint{{Cookie: k, Module: m, PC: 7, Original: vm.ADD}}, d.Breakpoints())

	d.ClearBreakpoint(k)
	require.Equal(t, vm.ADD, m.Code().Op(7))
	require.Empty(t, d.Breakpoints())
	require.Empty(t, d.originals, "empty module tables are dropped")

	_, ok := d.Original(m, 7)
	require.False(t, ok)
}

func TestBreakpointDuplicate(t *testing.T) {
	d := newTestDispatch(t, Config{})
	m := newTestModule("main", 0)

	k, err := d.SetBreakpoint(m, 7)
	require.NoError(t, err)
	_, err = d.SetBreakpoint(m, 7)
	require.ErrorIs(t, err, ErrAlreadySet)

	require.Len(t, d.Breakpoints(), 1)
	op, err := d.OriginalOpcode(m, 7)
	require.NoError(t, err)
	require.Equal(t, vm.ADD, op)

	// The failed set did not consume a cookie.
	k2, err := d.SetBreakpoint(m, 8)
	require.NoError(t, err)
	require.Equal(t, k+1, k2)
}

func TestBreakpointHandshake(t *testing.T) {
	d := newTestDispatch(t, Config{})
	m := newTestModule("main", 0)
	_, err := d.SetBreakpoint(m, 7)
	require.NoError(t, err)

	regs := &vm.Registers{PC: 8, Module: m, Thread: 3}
	op, err := d.OnBreakpoint(regs, nil)
	require.NoError(t, err)
	require.Equal(t, vm.ADD, op)

	// The breakpoint stays armed after a hit.
	require.Equal(t, vm.BRKPT, m.Code().Op(7))
	require.Equal(t, int64(1), counterValue(d, MetricBreakpointHits))
}

func TestBreakpointHitEvent(t *testing.T) {
	machine := vm.New(vm.Config{})
	d := New(machine, Config{Logger: log.New()})
	defer d.Close()

	m := newTestModule("main", 0)
	k, err := d.SetBreakpoint(m, 7)
	require.NoError(t, err)

	var hits []vm.BreakpointEvent
	_, err = d.SubscribeEvent(vm.EventBreakpoint, func(ev vm.Event) {
		hit := ev.(vm.BreakpointEvent)
		hits = append(hits, hit)
		// Callbacks may use the breakpoint registry.
		d.ClearBreakpoint(k)
	})
	require.NoError(t, err)

	regs := &vm.Registers{PC: 8, Module: m, Thread: 5}
	op, err := d.OnBreakpoint(regs, machine)
	require.NoError(t, err)
	require.Equal(t, vm.ADD, op)

	require.Len(t, hits, 1)
	require.Equal(t, uint64(7), hits[0].PC)
	require.Equal(t, uint64(5), hits[0].Thread)
	require.Equal(t, vm.ADD, hits[0].Original)
	require.Same(t, regs, hits[0].Registers)
	require.Same(t, machine, hits[0].VM)
	require.Equal(t, vm.ADD, m.Code().Op(7))
}

func TestBreakpointBuiltinRefused(t *testing.T) {
	d := newTestDispatch(t, Config{})
	builtin := newTestModule("$sys", vm.FlagBuiltin)
	before := builtin.Code().Instructions()

	first, err := d.SetBreakpoint(newTestModule("main", 0), 7)
	require.NoError(t, err)
	_, err = d.SetBreakpoint(builtin, 7)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, before, builtin.Code().Instructions())
	require.Len(t, d.Breakpoints(), 1)
	require.NotContains(t, d.originals, builtin)

	_, err = d.OriginalOpcode(builtin, 7)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.OnBreakpoint(&vm.Registers{PC: 8, Module: builtin}, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	k, err := d.SetBreakpoint(newTestModule("main", 0), 7)
	require.NoError(t, err)
	require.Equal(t, first+1, k, "refused breakpoints do not consume cookies")
}

func TestBreakpointInvalidArguments(t *testing.T) {
	d := newTestDispatch(t, Config{})
	m := newTestModule("main", 0)
	size := m.Code().Len()

	_, err := d.SetBreakpoint(nil, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.OriginalOpcode(nil, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = d.SetBreakpoint(m, size)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.SetBreakpoint(m, size+100)
	require.ErrorIs(t, err, ErrInvalidArgument)

	k, err := d.SetBreakpoint(m, size-1)
	require.NoError(t, err)
	require.Equal(t, vm.BRKPT, m.Code().Op(size-1))
	d.ClearBreakpoint(k)
	require.Equal(t, vm.HALT, m.Code().Op(size-1))

	_, err = d.OnBreakpoint(nil, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.OnBreakpoint(&vm.Registers{PC: 0, Module: m}, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBreakpointClearUnknown(t *testing.T) {
	d := newTestDispatch(t, Config{})
	m := newTestModule("main", 0)
	k, err := d.SetBreakpoint(m, 2)
	require.NoError(t, err)

	d.ClearBreakpoint(k + 1)
	d.ClearBreakpoint(0)
	require.Equal(t, vm.BRKPT, m.Code().Op(2))

	d.ClearBreakpoint(k)
	d.ClearBreakpoint(k)
	require.Equal(t, vm.DUP, m.Code().Op(2))
	require.Equal(t, int64(1), counterValue(d, MetricBreakpointsCleared))
}

func TestBreakpointNeighbours(t *testing.T) {
	d := newTestDispatch(t, Config{Logger: log.New()})
	m := newTestModule("main", 0)

	_, err := d.SetBreakpoint(m, 6)
	require.NoError(t, err)
	_, err = d.SetBreakpoint(m, 8)
	require.NoError(t, err)

	op, err := d.OriginalOpcode(m, 6)
	require.NoError(t, err)
	require.Equal(t, vm.SWAP, op)
	op, err = d.OriginalOpcode(m, 8)
	require.NoError(t, err)
	require.Equal(t, vm.ADD, op)

	_, err = d.OriginalOpcode(m, 7)
	require.ErrorIs(t, err, ErrInvariantViolation)

	// The unpatched cell between them resolves to itself.
	op, err = d.OnBreakpoint(&vm.Registers{PC: 8, Module: m}, nil)
	require.NoError(t, err)
	require.Equal(t, vm.ADD, op)
}

// Breakpoints are keyed by module identity, not by name or content.
func TestBreakpointModuleIdentity(t *testing.T) {
	d := newTestDispatch(t, Config{})
	a, b := newTestModule("main", 0), newTestModule("main", 0)

	ka, err := d.SetBreakpoint(a, 7)
	require.NoError(t, err)
	kb, err := d.SetBreakpoint(b, 7)
	require.NoError(t, err)
	require.NotEqual(t, ka, kb)

	d.ClearBreakpoint(ka)
	require.Equal(t, vm.ADD, a.Code().Op(7))
	require.Equal(t, vm.BRKPT, b.Code().Op(7))
	_, ok := d.Original(a, 7)
	require.False(t, ok)
	op, ok := d.Original(b, 7)
	require.True(t, ok)
	require.Equal(t, vm.ADD, op)
	require.Len(t, d.originals, 1)
}

// A breakpoint cleared between the fetch of BRKPT and the dispatch lookup
// resolves to the restored cell.
func TestBreakpointClearedBeforeLookup(t *testing.T) {
	d := newTestDispatch(t, Config{StrictInvariants: true})
	m := newTestModule("main", 0)

	k, err := d.SetBreakpoint(m, 7)
	require.NoError(t, err)
	regs := &vm.Registers{PC: 8, Module: m}
	d.ClearBreakpoint(k)

	op, err := d.OnBreakpoint(regs, nil)
	require.NoError(t, err)
	require.Equal(t, vm.ADD, op)
}

func TestBreakpointForeignBrkpt(t *testing.T) {
	m := newTestModule("main", 0)
	_, err := m.PatchOpcode(4, vm.BRKPT)
	require.NoError(t, err)
	regs := &vm.Registers{PC: 5, Module: m}

	lenient := newTestDispatch(t, Config{Logger: log.New()})
	_, err = lenient.OnBreakpoint(regs, nil)
	require.ErrorIs(t, err, ErrInvariantViolation)

	// A BRKPT the dispatch did not write cannot be set over either.
	_, err = lenient.SetBreakpoint(m, 4)
	require.ErrorIs(t, err, ErrAlreadySet)

	strict := newTestDispatch(t, Config{StrictInvariants: true})
	require.Panics(t, func() { strict.OnBreakpoint(regs, nil) })
	require.Panics(t, func() { strict.OriginalOpcode(m, 4) })

	// The lock was released by the panic.
	_, err = strict.SetBreakpoint(m, 5)
	require.NoError(t, err)
}

// Restoring a cell that no longer holds BRKPT is reported but still writes
// the original back.
func TestBreakpointTamperedCell(t *testing.T) {
	d := newTestDispatch(t, Config{Logger: log.New()})
	m := newTestModule("main", 0)

	k, err := d.SetBreakpoint(m, 7)
	require.NoError(t, err)
	_, err = m.PatchOpcode(7, vm.NOP)
	require.NoError(t, err)

	// The foreign opcode is kept; only the records are dropped.
	d.ClearBreakpoint(k)
	require.Equal(t, vm.NOP, m.Code().Op(7))
	require.Empty(t, d.Breakpoints())
	require.Empty(t, d.originals)
	require.Zero(t, counterValue(d, MetricBreakpointsCleared))

	strict := newTestDispatch(t, Config{StrictInvariants: true})
	k, err = strict.SetBreakpoint(m, 8)
	require.NoError(t, err)
	_, err = m.PatchOpcode(8, vm.SUB)
	require.NoError(t, err)
	require.Panics(t, func() { strict.ClearBreakpoint(k) })
	require.Equal(t, vm.SUB, m.Code().Op(8))
}
