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
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingDispatch is a ToolDispatch that stores events and resolves
// breakpoints from a fixed table.
type recordingDispatch struct {
	mu        sync.Mutex
	events    []Event
	originals map[uint64]OpCode
	hits      []uint64
}

func (d *recordingDispatch) OnBreakpoint(regs *Registers, vm *VM) (OpCode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hits = append(d.hits, regs.PC)
	op, ok := d.originals[regs.PC-1]
	if !ok {
		return 0, errors.New("no original")
	}
	return op, nil
}

func (d *recordingDispatch) FireEvent(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatch) Subscribed(kind EventKind) bool { return true }

func (d *recordingDispatch) kinds() []EventKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kinds []EventKind
	for _, ev := range d.events {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

func newTestVM(t *testing.T, prog []Instruction) (*VM, *Module) {
	t.Helper()
	vm := New(Config{})
	m := NewModule("main", 0, prog)
	require.NoError(t, vm.LoadModule(m))
	return vm, m
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		op   OpCode
		x, y int64
		want int64
	}{
		{ADD, 3, 4, 7},
		{SUB, 3, 4, -1},
		{MUL, -3, 4, -12},
		{DIV, 9, 2, 4},
		{DIV, -9, 2, -4},
		{MOD, 9, 4, 1},
		{EQ, 4, 4, 1},
		{EQ, 4, 5, 0},
		{LT, 3, 4, 1},
		{LT, 4, 3, 0},
		{GT, 4, 3, 1},
		{GT, 3, 3, 0},
	}
	for _, tt := range tests {
		vm, m := newTestVM(t, []Instruction{
			{Op: PUSH, Arg: tt.x},
			{Op: PUSH, Arg: tt.y},
			{Op: tt.op},
			{Op: HALT},
		})
		res, err := vm.Exec(context.Background(), m, 0)
		require.NoError(t, err, "%v", tt.op)
		require.Equal(t, []int64{tt.want}, res.Stack, "%v %d %d", tt.op, tt.x, tt.y)
	}
}

func TestUnaryOps(t *testing.T) {
	vm, m := newTestVM(t, []Instruction{
		{Op: PUSH, Arg: 5},
		{Op: NEG},
		{Op: PUSH, Arg: 0},
		{Op: NOT},
		{Op: PUSH, Arg: 1},
		{Op: DUP},
		{Op: SWAP},
		{Op: POP},
		{Op: HALT},
	})
	res, err := vm.Exec(context.Background(), m, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{-5, 1, 1}, res.Stack)
	require.EqualValues(t, 9, res.Steps)
}

func TestLoopAndOutput(t *testing.T) {
	// Count down from 3, printing every value.
	var out bytes.Buffer
	vm := New(Config{Output: &out})
	m := NewModule("loop", 0, []Instruction{
		{Op: PUSH, Arg: 3}, // 0
		{Op: DUP},          // 1
		{Op: OUT},          // 2
		{Op: PUSH, Arg: 1}, // 3
		{Op: SUB},          // 4
		{Op: DUP},          // 5
		{Op: JNZ, Arg: 1},  // 6
		{Op: HALT},         // 7
	})
	require.NoError(t, vm.LoadModule(m))
	res, err := vm.Exec(context.Background(), m, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 1}, res.Output)
	require.Equal(t, "3\n2\n1\n", out.String())
}

func TestExecutionErrors(t *testing.T) {
	tests := []struct {
		name  string
		prog  []Instruction
		check func(t *testing.T, err error)
	}{
		{"div by zero", []Instruction{{Op: PUSH, Arg: 1}, {Op: PUSH}, {Op: DIV}}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrDivisionByZero)
		}},
		{"underflow", []Instruction{{Op: ADD}}, func(t *testing.T, err error) {
			var underflow *ErrStackUnderflow
			require.ErrorAs(t, err, &underflow)
		}},
		{"bad jump", []Instruction{{Op: JMP, Arg: 42}}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrInvalidJump)
		}},
		{"run off the end", []Instruction{{Op: NOP}}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrInvalidPC)
		}},
		{"invalid opcode", []Instruction{{Op: OpCode(0xee)}}, func(t *testing.T, err error) {
			var invalid *ErrInvalidOpCode
			require.ErrorAs(t, err, &invalid)
		}},
		{"stray breakpoint", []Instruction{{Op: BRKPT}}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrNoToolDispatch)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, m := newTestVM(t, tt.prog)
			res, err := vm.Exec(context.Background(), m, 0)
			require.NotNil(t, res)
			tt.check(t, err)
		})
	}
}

func TestStackOverflow(t *testing.T) {
	vm := New(Config{StackLimit: 2})
	m := NewModule("main", 0, []Instruction{{Op: PUSH}, {Op: PUSH}, {Op: PUSH}, {Op: HALT}})
	require.NoError(t, vm.LoadModule(m))
	_, err := vm.Exec(context.Background(), m, 0)
	var overflow *ErrStackOverflow
	require.ErrorAs(t, err, &overflow)
}

func TestCallDepth(t *testing.T) {
	vm := New(Config{CallDepthLimit: 8})
	m := NewModule("main", 0, []Instruction{{Op: CALL, Arg: 0}})
	require.NoError(t, vm.LoadModule(m))
	_, err := vm.Exec(context.Background(), m, 0)
	require.ErrorIs(t, err, ErrDepth)
}

func TestStepLimitAndCancel(t *testing.T) {
	vm := New(Config{StepLimit: 100})
	m := NewModule("spin", 0, []Instruction{{Op: JMP, Arg: 0}})
	require.NoError(t, vm.LoadModule(m))

	res, err := vm.Exec(context.Background(), m, 0)
	require.ErrorIs(t, err, ErrStepLimitReached)
	require.EqualValues(t, 100, res.Steps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	unlimited := New(Config{})
	require.NoError(t, unlimited.LoadModule(m))
	_, err = unlimited.Exec(ctx, m, 0)
	require.ErrorIs(t, err, context.Canceled)

	unlimited.Cancel()
	_, err = unlimited.Exec(context.Background(), m, 0)
	require.ErrorIs(t, err, ErrAborted)
}

func TestCallReturnEvents(t *testing.T) {
	tools := new(recordingDispatch)
	vm := New(Config{})
	vm.SetTools(tools)
	m := NewModule("main", 0, []Instruction{
		{Op: CALL, Arg: 3}, // 0
		{Op: OUT},          // 1
		{Op: HALT},         // 2
		{Op: PUSH, Arg: 9}, // 3
		{Op: RET},          // 4
	})
	require.NoError(t, vm.LoadModule(m))
	res, err := vm.Exec(context.Background(), m, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{9}, res.Output)

	require.Equal(t, []EventKind{
		EventModuleLoad,
		EventThreadBegin,
		EventOpcode, EventCall,
		EventOpcode,
		EventOpcode, EventReturn,
		EventOpcode,
		EventOpcode,
		EventThreadEnd,
	}, tools.kinds())

	call := tools.events[3].(CallEvent)
	require.EqualValues(t, 0, call.From)
	require.EqualValues(t, 3, call.To)
	require.Equal(t, 1, call.Depth)
	ret := tools.events[6].(ReturnEvent)
	require.EqualValues(t, 4, ret.From)
	require.EqualValues(t, 1, ret.To)
	require.Equal(t, 0, ret.Depth)
}

func TestExceptionEvent(t *testing.T) {
	tools := new(recordingDispatch)
	vm := New(Config{})
	vm.SetTools(tools)
	m := NewModule("main", 0, []Instruction{{Op: PUSH, Arg: 1}, {Op: PUSH}, {Op: MOD}})
	require.NoError(t, vm.LoadModule(m))
	_, err := vm.Exec(context.Background(), m, 0)
	require.ErrorIs(t, err, ErrDivisionByZero)

	var exc *ExceptionEvent
	for _, ev := range tools.events {
		if e, ok := ev.(ExceptionEvent); ok {
			exc = &e
		}
	}
	require.NotNil(t, exc)
	require.EqualValues(t, 2, exc.PC)
	require.ErrorIs(t, exc.Err, ErrDivisionByZero)

	end := tools.events[len(tools.events)-1].(ThreadEndEvent)
	require.ErrorIs(t, end.Err, ErrDivisionByZero)
}

func TestBreakpointHandshake(t *testing.T) {
	vm, m := newTestVM(t, []Instruction{
		{Op: PUSH, Arg: 2},
		{Op: PUSH, Arg: 5},
		{Op: ADD},
		{Op: HALT},
	})
	tools := &recordingDispatch{originals: map[uint64]OpCode{2: ADD}}
	vm.SetTools(tools)

	prev, err := m.PatchOpcode(2, BRKPT)
	require.NoError(t, err)
	require.Equal(t, ADD, prev)

	res, err := vm.Exec(context.Background(), m, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, res.Stack)
	require.Equal(t, []uint64{3}, tools.hits, "handler must see the advanced pc")
	require.Equal(t, BRKPT, m.Code().Op(2), "breakpoint stays armed")

	// The opcode event reports the displaced opcode, not BRKPT.
	var ops []OpCode
	for _, ev := range tools.events {
		if e, ok := ev.(OpcodeEvent); ok {
			ops = append(ops, e.Op)
		}
	}
	require.Equal(t, []OpCode{PUSH, PUSH, ADD, HALT}, ops)
}

func TestBreakpointResolutionFailure(t *testing.T) {
	vm, m := newTestVM(t, []Instruction{{Op: NOP}, {Op: HALT}})
	vm.SetTools(&recordingDispatch{})
	_, err := m.PatchOpcode(1, BRKPT)
	require.NoError(t, err)

	_, err = vm.Exec(context.Background(), m, 0)
	var bpErr *BreakpointError
	require.ErrorAs(t, err, &bpErr)
	require.EqualValues(t, 1, bpErr.PC)
}

func TestPatchOpcodeRange(t *testing.T) {
	m := NewModule("main", 0, []Instruction{{Op: HALT}})
	_, err := m.PatchOpcode(1, BRKPT)
	require.ErrorIs(t, err, ErrInvalidPC)
}

func TestCompareAndPatchOpcode(t *testing.T) {
	m := NewModule("main", 0, []Instruction{{Op: PUSH, Arg: 7}, {Op: HALT}})

	ok, err := m.CompareAndPatchOpcode(0, BRKPT, PUSH)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, PUSH, m.Code().Op(0))

	ok, err = m.CompareAndPatchOpcode(0, PUSH, BRKPT)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Instruction{Op: BRKPT, Arg: 7}, m.Code().At(0))

	_, err = m.CompareAndPatchOpcode(2, BRKPT, HALT)
	require.ErrorIs(t, err, ErrInvalidPC)
}

func TestLoadModule(t *testing.T) {
	vm := New(Config{})
	require.ErrorIs(t, vm.LoadModule(nil), ErrNoCode)
	require.ErrorIs(t, vm.LoadModule(NewModule("empty", 0, nil)), ErrNoCode)

	a := NewModule("a", 0, []Instruction{{Op: HALT}})
	require.NoError(t, vm.LoadModule(a))
	require.ErrorIs(t, vm.LoadModule(NewModule("a", 0, []Instruction{{Op: HALT}})), ErrModuleExists)
	require.Same(t, a, vm.Module("a"))
	require.Equal(t, []*Module{a}, vm.Modules())
	require.Zero(t, a.Header.RuntimeFlags&FlagDynamic)

	_, err := vm.Exec(context.Background(), NewModule("b", 0, []Instruction{{Op: HALT}}), 0)
	require.ErrorIs(t, err, ErrUnknownModule)
}

func TestRunThreads(t *testing.T) {
	vm, m := newTestVM(t, []Instruction{
		{Op: PUSH, Arg: 6},
		{Op: PUSH, Arg: 7},
		{Op: MUL},
		{Op: OUT},
		{Op: HALT},
	})
	results, err := vm.RunThreads(context.Background(), m, 0, 8)
	require.NoError(t, err)
	require.Len(t, results, 8)

	seen := make(map[uint64]bool)
	for _, res := range results {
		require.Equal(t, []int64{42}, res.Output)
		require.False(t, seen[res.Thread], "thread id reused")
		seen[res.Thread] = true
	}
}

func TestOpCodeNames(t *testing.T) {
	for op, name := range opCodeToString {
		have, ok := StringToOp(name)
		require.True(t, ok)
		require.Equal(t, op, have)
	}
	_, ok := StringToOp("JUMPDEST")
	require.False(t, ok)
	require.Equal(t, "opcode 0xee not defined", OpCode(0xee).String())
}

func TestEventKinds(t *testing.T) {
	for _, kind := range AllEventKinds() {
		require.True(t, kind.Valid())
		parsed, err := EventKindFromString(kind.String())
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}
	require.False(t, EventKind(NumEventKinds).Valid())
	_, err := EventKindFromString("gc")
	require.Error(t, err)
}
