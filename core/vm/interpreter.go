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
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/disvm/disvm/log"
	"github.com/disvm/disvm/params"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ctxCheckInterval is the number of steps between context checks.
const ctxCheckInterval = 1024

// Config are the configuration options for the VM.
type Config struct {
	StackLimit     uint64    // Maximum operand stack height
	CallDepthLimit uint64    // Maximum number of nested CALLs
	StepLimit      uint64    // Instruction budget per thread, zero means unlimited
	Output         io.Writer `toml:"-"` // Destination of OUT, discarded when nil
}

// DefaultConfig contains the default limits of a VM.
var DefaultConfig = Config{
	StackLimit:     params.StackLimit,
	CallDepthLimit: params.CallDepthLimit,
	StepLimit:      params.StepLimit,
}

// Result is the outcome of running one thread.
type Result struct {
	Thread uint64
	Steps  uint64
	Stack  []int64 // operand stack when the thread stopped
	Output []int64 // values written by OUT, in order
}

// VM holds the loaded modules and runs threads over them. It is safe for
// concurrent use; every thread has its own registers and stack while the
// modules, and therefore the code sections, are shared.
type VM struct {
	config Config
	table  *JumpTable
	log    log.Logger

	toolsMu sync.RWMutex
	tools   ToolDispatch

	mu      sync.RWMutex
	modules []*Module
	byName  map[string]*Module

	lastThread atomic.Uint64
	running    atomic.Int64
	abort      atomic.Bool

	outMu sync.Mutex
}

// New returns a new VM. Zero limits in config are replaced by the defaults.
func New(config Config) *VM {
	if config.StackLimit == 0 {
		config.StackLimit = DefaultConfig.StackLimit
	}
	if config.CallDepthLimit == 0 {
		config.CallDepthLimit = DefaultConfig.CallDepthLimit
	}
	if config.Output == nil {
		config.Output = io.Discard
	}
	return &VM{
		config: config,
		table:  &instructionSet,
		log:    log.New("component", "vm"),
		byName: make(map[string]*Module),
	}
}

// Config returns the configuration the VM runs with.
func (vm *VM) Config() Config {
	return vm.config
}

// SetLogger replaces the VM's logger.
func (vm *VM) SetLogger(l log.Logger) {
	vm.log = l
}

// SetTools attaches the tool dispatch. Threads started afterwards report to
// it; running threads keep the dispatch they started with.
func (vm *VM) SetTools(tools ToolDispatch) {
	vm.toolsMu.Lock()
	defer vm.toolsMu.Unlock()
	vm.tools = tools
}

// Tools returns the attached tool dispatch, or nil.
func (vm *VM) Tools() ToolDispatch {
	vm.toolsMu.RLock()
	defer vm.toolsMu.RUnlock()
	return vm.tools
}

// LoadModule makes m visible to the VM and raises a module-load event. A
// module loaded while threads are running is flagged dynamic.
func (vm *VM) LoadModule(m *Module) error {
	if m == nil || m.code == nil || m.code.Len() == 0 {
		return ErrNoCode
	}
	if m.code.Len() > params.MaxCodeSize {
		return fmt.Errorf("module %q: %d instructions exceed limit %d", m.Name, m.code.Len(), params.MaxCodeSize)
	}
	if m.Header.Entry >= m.code.Len() {
		return fmt.Errorf("module %q: entry %d: %w", m.Name, m.Header.Entry, ErrInvalidPC)
	}
	vm.mu.Lock()
	if _, ok := vm.byName[m.Name]; ok {
		vm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModuleExists, m.Name)
	}
	if vm.running.Load() > 0 {
		m.Header.RuntimeFlags |= FlagDynamic
	}
	vm.modules = append(vm.modules, m)
	vm.byName[m.Name] = m
	vm.mu.Unlock()

	vm.log.Debug("Loaded module", "name", m.Name, "size", m.code.Len(), "flags", m.Header.RuntimeFlags)
	if tools := vm.Tools(); tools != nil && tools.Subscribed(EventModuleLoad) {
		tools.FireEvent(ModuleLoadEvent{Module: m})
	}
	return nil
}

// Module returns the loaded module with the given name, or nil.
func (vm *VM) Module(name string) *Module {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.byName[name]
}

// Modules returns the loaded modules in load order.
func (vm *VM) Modules() []*Module {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]*Module(nil), vm.modules...)
}

// Cancel aborts every running and future thread at the next instruction
// boundary.
func (vm *VM) Cancel() {
	vm.abort.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (vm *VM) Cancelled() bool {
	return vm.abort.Load()
}

func (vm *VM) write(v int64) {
	vm.outMu.Lock()
	defer vm.outMu.Unlock()
	fmt.Fprintln(vm.config.Output, v)
}

// Exec runs a new thread on m starting at entry and returns when the thread
// halts, fails or is cancelled. The result is non-nil even on failure.
func (vm *VM) Exec(ctx context.Context, m *Module, entry uint64) (*Result, error) {
	if m == nil || vm.Module(m.Name) != m {
		return nil, ErrUnknownModule
	}
	if entry >= m.code.Len() {
		return nil, fmt.Errorf("entry %d: %w", entry, ErrInvalidPC)
	}
	in := &interpreter{
		vm:    vm,
		tools: vm.Tools(),
		stack: newstack(vm.config.StackLimit),
	}
	in.regs = &Registers{
		PC:     entry,
		Module: m,
		Thread: vm.lastThread.Inc(),
		Stack:  in.stack,
	}
	vm.running.Inc()
	defer vm.running.Dec()

	if in.subscribed(EventThreadBegin) {
		in.tools.FireEvent(ThreadBeginEvent{Thread: in.regs.Thread, Module: m, Entry: entry})
	}
	err := in.run(ctx)
	if in.subscribed(EventThreadEnd) {
		in.tools.FireEvent(ThreadEndEvent{Thread: in.regs.Thread, Module: m, Steps: in.regs.Steps, Err: err})
	}
	vm.log.Trace("Thread finished", "thread", in.regs.Thread, "module", m.Name, "steps", in.regs.Steps, "err", err)

	return &Result{
		Thread: in.regs.Thread,
		Steps:  in.regs.Steps,
		Stack:  in.stack.snapshot(),
		Output: in.output,
	}, err
}

// RunThreads runs n threads on m concurrently. The first failure cancels the
// context of the remaining threads. Results are indexed by thread slot.
func (vm *VM) RunThreads(ctx context.Context, m *Module, entry uint64, n int) ([]*Result, error) {
	results := make([]*Result, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := vm.Exec(gctx, m, entry)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// interpreter is the per-thread execution state.
type interpreter struct {
	vm     *VM
	tools  ToolDispatch
	regs   *Registers
	stack  *Stack
	output []int64
	halted bool
}

func (in *interpreter) subscribed(kind EventKind) bool {
	return in.tools != nil && in.tools.Subscribed(kind)
}

func (in *interpreter) jump(dest int64) error {
	if dest < 0 || uint64(dest) >= in.regs.Module.code.Len() {
		return fmt.Errorf("%w: %d", ErrInvalidJump, dest)
	}
	in.regs.PC = uint64(dest)
	return nil
}

// run loops over the module code until the thread halts or an error occurs.
func (in *interpreter) run(ctx context.Context) error {
	var (
		regs  = in.regs
		code  = regs.Module.code
		limit = int(in.vm.config.StackLimit)
		steps = in.vm.config.StepLimit
	)
	for !in.halted {
		if in.vm.abort.Load() {
			return ErrAborted
		}
		if regs.Steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if steps != 0 && regs.Steps >= steps {
			return ErrStepLimitReached
		}
		if regs.PC >= code.Len() {
			return in.fault(fmt.Errorf("%w: %d", ErrInvalidPC, regs.PC))
		}
		// Fetch and advance. The cell is read without locking: a concurrent
		// breakpoint update is seen either before or after the write, and the
		// dispatch resolves BRKPT to the displaced opcode.
		op, arg := code.Op(regs.PC), code.Arg(regs.PC)
		regs.PC++
		regs.Steps++

		if op == BRKPT {
			if in.tools == nil {
				return in.fault(&BreakpointError{Module: regs.Module.Name, PC: regs.PC - 1, Err: ErrNoToolDispatch})
			}
			orig, err := in.tools.OnBreakpoint(regs, in.vm)
			if err != nil {
				return in.fault(&BreakpointError{Module: regs.Module.Name, PC: regs.PC - 1, Err: err})
			}
			op = orig
		}
		operation := in.vm.table[op]
		if operation == nil {
			return in.fault(&ErrInvalidOpCode{opcode: op})
		}
		// Validate stack
		if sLen := in.stack.Len(); sLen < operation.minStack {
			return in.fault(&ErrStackUnderflow{stackLen: sLen, required: operation.minStack})
		} else if sLen+operation.diff > limit {
			return in.fault(&ErrStackOverflow{stackLen: sLen, limit: limit})
		}
		if in.subscribed(EventOpcode) {
			in.tools.FireEvent(OpcodeEvent{
				Thread: regs.Thread,
				Module: regs.Module,
				PC:     regs.PC - 1,
				Op:     op,
				Stack:  in.stack.Data(),
			})
		}
		if err := operation.execute(in, arg); err != nil {
			return in.fault(err)
		}
	}
	return nil
}

// fault raises an exception event for err at the instruction being executed.
func (in *interpreter) fault(err error) error {
	if in.subscribed(EventException) {
		pc := in.regs.PC
		if pc > 0 {
			pc--
		}
		in.tools.FireEvent(ExceptionEvent{
			Thread: in.regs.Thread,
			Module: in.regs.Module,
			PC:     pc,
			Err:    err,
		})
	}
	return err
}
