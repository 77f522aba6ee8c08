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
	"errors"
	"sync"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/internal/testlog"
	"github.com/disvm/disvm/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testTool records its lifecycle hooks. onLoad, when set, runs inside
// OnLoad with the controller the tool received.
type testTool struct {
	mu      sync.Mutex
	loads   int
	unloads int
	id      ToolID
	ctl     Controller
	machine *vm.VM

	onLoad   func(ctl Controller) error
	onUnload func()
}

func (t *testTool) OnLoad(machine *vm.VM, ctl Controller, id ToolID) error {
	t.mu.Lock()
	t.loads++
	t.id, t.ctl, t.machine = id, ctl, machine
	t.mu.Unlock()
	if t.onLoad != nil {
		return t.onLoad(ctl)
	}
	return nil
}

func (t *testTool) OnUnload() {
	t.mu.Lock()
	t.unloads++
	t.mu.Unlock()
	if t.onUnload != nil {
		t.onUnload()
	}
}

func (t *testTool) counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loads, t.unloads
}

func newTestDispatch(t *testing.T, config Config) *Dispatch {
	t.Helper()
	if config.Logger == nil {
		config.Logger = testlog.Logger(t, log.LvlWarn)
	}
	return New(nil, config)
}

// newTestModule returns a module of ten instructions whose cell 7 holds ADD.
func newTestModule(name string, flags vm.RuntimeFlags) *vm.Module {
	prog := []vm.Instruction{
		{Op: vm.PUSH, Arg: 1}, // 0
		{Op: vm.PUSH, Arg: 2}, // 1
		{Op: vm.DUP},          // 2
		{Op: vm.POP},          // 3
		{Op: vm.NOP},          // 4
		{Op: vm.PUSH, Arg: 3}, // 5
		{Op: vm.SWAP},         // 6
		{Op: vm.ADD},          // 7
		{Op: vm.ADD},          // 8
		{Op: vm.HALT},         // 9
	}
	return vm.NewModule(name, flags, prog)
}

// Load two tools, unload the first, close the dispatch.
func TestLoadUnloadRoundTrip(t *testing.T) {
	d := newTestDispatch(t, Config{})
	a, b := new(testTool), new(testTool)

	id1, err := d.LoadTool(a)
	require.NoError(t, err)
	id2, err := d.LoadTool(b)
	require.NoError(t, err)
	require.Greater(t, id2, id1)
	require.Equal(t, id1, a.id)
	require.NotNil(t, a.ctl)

	require.Equal(t, 1, d.UnloadTool(id1))
	_, unloads := a.counts()
	require.Equal(t, 1, unloads)
	require.Equal(t, []ToolID{id2}, d.Tools())

	require.NoError(t, d.Close())
	loadsA, unloadsA := a.counts()
	loadsB, unloadsB := b.counts()
	require.Equal(t, 1, loadsA)
	require.Equal(t, 1, unloadsA, "closing must not unload twice")
	require.Equal(t, 1, loadsB)
	require.Equal(t, 1, unloadsB)
	require.Zero(t, d.ToolCount())
}

func TestLoadToolNil(t *testing.T) {
	d := newTestDispatch(t, Config{})
	_, err := d.LoadTool(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Zero(t, d.ToolCount())
}

func TestLoadToolFailureTaintsID(t *testing.T) {
	d := newTestDispatch(t, Config{Logger: log.New()})
	failErr := errors.New("no thanks")

	first, err := d.LoadTool(new(testTool))
	require.NoError(t, err)

	failing := &testTool{onLoad: func(Controller) error { return failErr }}
	_, err = d.LoadTool(failing)
	require.ErrorIs(t, err, failErr)
	require.Zero(t, d.ToolCount())

	panicking := &testTool{onLoad: func(Controller) error { panic("boom") }}
	_, err = d.LoadTool(panicking)
	require.ErrorIs(t, err, ErrToolPanic)
	require.Zero(t, d.ToolCount())

	id, err := d.LoadTool(new(testTool))
	require.NoError(t, err)
	require.Equal(t, first+3, id, "ids of failed loads are not reissued")

	// Failed tools are never unloaded.
	require.NoError(t, d.Close())
	_, unloads := failing.counts()
	require.Zero(t, unloads)
}

func TestLoadToolFailureReleasesPartialState(t *testing.T) {
	d := newTestDispatch(t, Config{ReclaimOnUnload: true, Logger: log.New()})
	m := newTestModule("main", 0)

	tool := &testTool{onLoad: func(ctl Controller) error {
		if _, err := ctl.SubscribeEvent(vm.EventOpcode, func(vm.Event) {}); err != nil {
			return err
		}
		if _, err := ctl.SetBreakpoint(m, 7); err != nil {
			return err
		}
		return errors.New("half way")
	}}
	_, err := d.LoadTool(tool)
	require.Error(t, err)
	require.Zero(t, d.SubscriptionCount(vm.EventOpcode))
	require.Empty(t, d.Breakpoints())
	require.Equal(t, vm.ADD, m.Code().Op(7))
}

func TestUnloadUnknownTool(t *testing.T) {
	d := newTestDispatch(t, Config{})
	id, err := d.LoadTool(new(testTool))
	require.NoError(t, err)

	require.Equal(t, 1, d.UnloadTool(id+1))
	require.Equal(t, 1, d.UnloadTool(0))
	require.Equal(t, 0, d.UnloadTool(id))
	require.Equal(t, 0, d.UnloadTool(id))
}

// Two dispatches in one process never hand out the same id or cookie.
func TestIDsUniqueAcrossDispatches(t *testing.T) {
	type issued struct {
		tools  []ToolID
		events []EventCookie
		bps    []BreakpointCookie
	}
	run := func(d *Dispatch, m *vm.Module, out *issued) error {
		for pc := uint64(0); pc < m.Code().Len(); pc++ {
			id, err := d.LoadTool(new(testTool))
			if err != nil {
				return err
			}
			cookie, err := d.SubscribeEvent(vm.EventCall, func(vm.Event) {})
			if err != nil {
				return err
			}
			k, err := d.SetBreakpoint(m, pc)
			if err != nil {
				return err
			}
			out.tools = append(out.tools, id)
			out.events = append(out.events, cookie)
			out.bps = append(out.bps, k)
		}
		return nil
	}
	a := newTestDispatch(t, Config{})
	b := newTestDispatch(t, Config{})
	var fromA, fromB issued
	var g errgroup.Group
	g.Go(func() error { return run(a, newTestModule("a", 0), &fromA) })
	g.Go(func() error { return run(b, newTestModule("b", 0), &fromB) })
	require.NoError(t, g.Wait())

	for _, got := range []issued{fromA, fromB} {
		require.True(t, slices.IsSorted(got.tools))
		require.True(t, slices.IsSorted(got.events))
		require.True(t, slices.IsSorted(got.bps))
	}
	require.Equal(t, 20, mapset.NewSet(append(fromA.tools, fromB.tools...)...).Cardinality(), "tool ids reissued")
	require.Equal(t, 20, mapset.NewSet(append(fromA.events, fromB.events...)...).Cardinality(), "event cookies reissued")
	require.Equal(t, 20, mapset.NewSet(append(fromA.bps, fromB.bps...)...).Cardinality(), "breakpoint cookies reissued")

	first, err := a.LoadTool(new(testTool))
	require.NoError(t, err)
	second, err := b.LoadTool(new(testTool))
	require.NoError(t, err)
	require.Greater(t, second, first)
}

func TestUnloadPanicIsContained(t *testing.T) {
	d := newTestDispatch(t, Config{Logger: log.New()})
	tool := &testTool{onUnload: func() { panic("unload") }}
	id, err := d.LoadTool(tool)
	require.NoError(t, err)
	require.Equal(t, 0, d.UnloadTool(id))

	// The tool lock was released despite the panic.
	_, err = d.LoadTool(new(testTool))
	require.NoError(t, err)
}

func TestHooksReceiveMachine(t *testing.T) {
	machine := vm.New(vm.Config{})
	d := New(machine, Config{Logger: testlog.Logger(t, log.LvlWarn)})
	defer d.Close()

	require.Equal(t, vm.ToolDispatch(d), machine.Tools())
	tool := new(testTool)
	_, err := d.LoadTool(tool)
	require.NoError(t, err)
	require.Same(t, machine, tool.machine)
}

func TestControllerAfterUnload(t *testing.T) {
	d := newTestDispatch(t, Config{})
	tool := new(testTool)
	id, err := d.LoadTool(tool)
	require.NoError(t, err)
	d.UnloadTool(id)

	_, err = tool.ctl.SubscribeEvent(vm.EventCall, func(vm.Event) {})
	require.ErrorIs(t, err, ErrToolUnloaded)
	_, err = tool.ctl.SetBreakpoint(newTestModule("main", 0), 1)
	require.ErrorIs(t, err, ErrToolUnloaded)
}

func TestUnloadReclaimsRegistrations(t *testing.T) {
	for _, reclaim := range []bool{false, true} {
		d := newTestDispatch(t, Config{ReclaimOnUnload: reclaim, Logger: log.New()})
		m := newTestModule("main", 0)
		tool := &testTool{onLoad: func(ctl Controller) error {
			// The first subscription is released by the tool itself.
			cookie, err := ctl.SubscribeEvent(vm.EventCall, func(vm.Event) {})
			if err != nil {
				return err
			}
			ctl.UnsubscribeEvent(cookie)
			if _, err := ctl.SubscribeEvent(vm.EventReturn, func(vm.Event) {}); err != nil {
				return err
			}
			_, err = ctl.SetBreakpoint(m, 3)
			return err
		}}
		id, err := d.LoadTool(tool)
		require.NoError(t, err)
		d.UnloadTool(id)

		if reclaim {
			require.Zero(t, d.SubscriptionCount(vm.EventReturn))
			require.Empty(t, d.Breakpoints())
			require.Equal(t, vm.POP, m.Code().Op(3))
		} else {
			require.Equal(t, 1, d.SubscriptionCount(vm.EventReturn))
			require.Len(t, d.Breakpoints(), 1)
			require.Equal(t, vm.BRKPT, m.Code().Op(3))
		}
		require.NoError(t, d.Close())
		require.Equal(t, vm.POP, m.Code().Op(3))
	}
}
