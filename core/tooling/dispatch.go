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
	"sync"

	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/log"
	"github.com/hashicorp/go-multierror"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/atomic"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ToolID names a loaded tool.
type ToolID uint64

// EventCookie names an event subscription.
type EventCookie uint64

// BreakpointCookie names an installed breakpoint.
type BreakpointCookie uint64

// Config are the configuration options of a Dispatch.
type Config struct {
	// StrictInvariants turns invariant violations into panics instead of
	// logged errors.
	StrictInvariants bool

	// ReclaimOnUnload releases the subscriptions and breakpoints a tool still
	// holds when it is unloaded. Without it they are only reported.
	ReclaimOnUnload bool

	// Metrics receives the dispatch counters. A private registry is used
	// when nil.
	Metrics metrics.Registry `toml:"-"`

	// Logger is the parent logger; the dispatch adds component=tool to it.
	Logger log.Logger `toml:"-"`
}

// DefaultConfig contains the default settings of a Dispatch.
var DefaultConfig = Config{
	ReclaimOnUnload: true,
}

// counter hands out strictly increasing values starting at one.
type counter[T constraints.Unsigned] struct {
	last atomic.Uint64
}

func (c *counter[T]) next() T {
	return T(c.last.Inc())
}

// Tool ids and both cookie kinds are unique within the process, across every
// Dispatch. A value is never handed out twice, even if its registration failed.
var (
	toolIDs      counter[ToolID]
	eventCookies counter[EventCookie]
	bpCookies    counter[BreakpointCookie]
)

// subscription is an entry of the event registry.
type subscription struct {
	cookie EventCookie
	cb     EventCallback
}

// location identifies a code cell. The module pointer is the identity key;
// the record holding it keeps the module alive.
type location struct {
	module *vm.Module
	pc     uint64
}

// Dispatch coordinates the tools attached to one VM.
type Dispatch struct {
	config  Config
	machine *vm.VM
	log     log.Logger
	metrics *dispatchMetrics
	closed  atomic.Bool

	// Tool registry
	toolMu sync.Mutex
	tools  map[ToolID]*toolEntry

	// Event registry
	eventMu   sync.Mutex
	subs      [vm.NumEventKinds][]subscription
	subKinds  map[EventCookie]vm.EventKind
	subCounts [vm.NumEventKinds]atomic.Int64

	// Breakpoint registry
	bpMu      sync.Mutex
	bps       map[BreakpointCookie]location
	originals map[*vm.Module]map[uint64]vm.OpCode
}

// New creates the dispatch of machine and attaches it, so the interpreter
// reports breakpoints and events to it. A nil machine is allowed for tools
// that never look at the VM.
func New(machine *vm.VM, config Config) *Dispatch {
	if config.Metrics == nil {
		config.Metrics = metrics.NewRegistry()
	}
	parent := config.Logger
	if parent == nil {
		parent = log.Root()
	}
	d := &Dispatch{
		config:    config,
		machine:   machine,
		log:       parent.New("component", "tool"),
		metrics:   newDispatchMetrics(config.Metrics),
		tools:     make(map[ToolID]*toolEntry),
		subKinds:  make(map[EventCookie]vm.EventKind),
		bps:       make(map[BreakpointCookie]location),
		originals: make(map[*vm.Module]map[uint64]vm.OpCode),
	}
	if machine != nil {
		machine.SetTools(d)
	}
	return d
}

// VM returns the machine the dispatch belongs to.
func (d *Dispatch) VM() *vm.VM {
	return d.machine
}

// Metrics returns the registry holding the dispatch counters.
func (d *Dispatch) Metrics() metrics.Registry {
	return d.config.Metrics
}

// Close unloads every tool, drops all subscriptions and restores every code
// cell that still holds a breakpoint. Each loaded tool receives exactly one
// OnUnload. Close is idempotent; afterwards LoadTool, SubscribeEvent and
// SetBreakpoint fail with ErrClosed while the removal operations are no-ops.
func (d *Dispatch) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	var result *multierror.Error

	tools, err := d.closeTools()
	if err != nil {
		result = multierror.Append(result, err)
	}
	subs := d.closeEvents()
	bps, err := d.closeBreakpoints()
	if err != nil {
		result = multierror.Append(result, err)
	}
	d.log.Debug("Closed tool dispatch", "tools", tools, "subscriptions", subs, "breakpoints", bps)
	return result.ErrorOrNil()
}

func (d *Dispatch) closeTools() (int, error) {
	d.toolMu.Lock()
	defer d.toolMu.Unlock()

	var result *multierror.Error
	ids := maps.Keys(d.tools)
	slices.Sort(ids)
	for _, id := range ids {
		entry := d.tools[id]
		delete(d.tools, id)
		if err := d.callOnUnload(id, entry.tool); err != nil {
			result = multierror.Append(result, err)
		}
		entry.ctl.retire()
		d.metrics.toolsUnloaded.Inc(1)
	}
	d.metrics.tools.Update(0)
	return len(ids), result.ErrorOrNil()
}

func (d *Dispatch) closeEvents() int {
	d.eventMu.Lock()
	defer d.eventMu.Unlock()

	for kind := range d.subs {
		d.subs[kind] = nil
		d.subCounts[kind].Store(0)
	}
	dropped := len(d.subKinds)
	d.subKinds = make(map[EventCookie]vm.EventKind)
	d.metrics.subscriptions.Update(0)
	return dropped
}

func (d *Dispatch) closeBreakpoints() (int, error) {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()

	var result *multierror.Error
	cookies := maps.Keys(d.bps)
	slices.Sort(cookies)
	for _, cookie := range cookies {
		loc := d.bps[cookie]
		delete(d.bps, cookie)
		if err := d.restoreLocked(cookie, loc); err != nil {
			result = multierror.Append(result, err)
		}
	}
	d.metrics.armed.Update(0)
	return len(cookies), result.ErrorOrNil()
}

// violation reports an invariant violation. In strict mode it panics,
// otherwise it logs and returns the error.
func (d *Dispatch) violation(format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
	if d.config.StrictInvariants {
		panic(err)
	}
	d.log.Error("Tool dispatch invariant violated", "err", err)
	return err
}
