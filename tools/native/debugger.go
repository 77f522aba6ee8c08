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

package native

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/disvm/disvm/core/tooling"
	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/event"
	"github.com/disvm/disvm/log"
	"github.com/disvm/disvm/tools"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func init() {
	tools.DefaultDirectory.Register("debugger", newDebugger)
}

// Location names a code cell by module name and program counter.
type Location struct {
	Module string `json:"module" yaml:"module"`
	PC     uint64 `json:"pc" yaml:"pc"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Module, l.PC)
}

// ParseLocation parses a "module:pc" pair.
func ParseLocation(s string) (Location, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx <= 0 || idx == len(s)-1 {
		return Location{}, fmt.Errorf("invalid breakpoint location %q, want module:pc", s)
	}
	pc, err := strconv.ParseUint(s[idx+1:], 0, 64)
	if err != nil {
		return Location{}, fmt.Errorf("invalid breakpoint pc in %q: %w", s, err)
	}
	return Location{Module: s[:idx], PC: pc}, nil
}

// DebuggerConfig lists the breakpoints the debugger arms.
type DebuggerConfig struct {
	Breakpoints []Location `json:"breakpoints"`
	Once        bool       `json:"once"` // clear each breakpoint after its first hit
}

// Hit is published for every breakpoint hit.
type Hit struct {
	Location
	Thread   uint64
	Original vm.OpCode
	Stack    []int64
}

// Debugger arms breakpoints at configured locations as soon as the module
// they refer to is loaded, and reports every hit.
type Debugger struct {
	config DebuggerConfig
	want   map[Location]bool
	log    log.Logger
	feed   event.FeedOf[Hit]

	mu     sync.Mutex
	ctl    tooling.Controller
	armed  map[Location]tooling.BreakpointCookie
	owned  map[tooling.BreakpointCookie]Location
	hits   map[Location]uint64
	closed bool
}

func newDebugger(cfg json.RawMessage) (tools.Tool, error) {
	var config DebuggerConfig
	if cfg != nil {
		if err := json.Unmarshal(cfg, &config); err != nil {
			return nil, err
		}
	}
	return NewDebugger(config)
}

// NewDebugger creates a debugger for the given breakpoints.
func NewDebugger(config DebuggerConfig) (*Debugger, error) {
	if len(config.Breakpoints) == 0 {
		return nil, errors.New("debugger needs at least one breakpoint")
	}
	d := &Debugger{
		config: config,
		want:   make(map[Location]bool),
		log:    log.Root().New("tool", "debugger"),
		armed:  make(map[Location]tooling.BreakpointCookie),
		owned:  make(map[tooling.BreakpointCookie]Location),
		hits:   make(map[Location]uint64),
	}
	for _, loc := range config.Breakpoints {
		d.want[loc] = true
	}
	return d, nil
}

// SubscribeHits delivers every hit to ch. Hits are sent from the VM thread
// that hit the breakpoint, which blocks until every subscriber received it.
func (d *Debugger) SubscribeHits(ch chan<- Hit) event.Subscription {
	return d.feed.Subscribe(ch)
}

// OnLoad arms the breakpoints of modules that are already loaded and
// watches for the others.
func (d *Debugger) OnLoad(machine *vm.VM, ctl tooling.Controller, id tooling.ToolID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ctl = ctl
	if _, err := ctl.SubscribeEvent(vm.EventBreakpoint, d.onBreakpoint); err != nil {
		return err
	}
	if _, err := ctl.SubscribeEvent(vm.EventModuleLoad, d.onModuleLoad); err != nil {
		return err
	}
	if machine != nil {
		for _, m := range machine.Modules() {
			if err := d.armLocked(m); err != nil {
				return err
			}
		}
	}
	d.log.Debug("Debugger loaded", "id", id, "breakpoints", len(d.want), "armed", len(d.armed))
	return nil
}

// OnUnload clears every breakpoint the debugger still holds.
func (d *Debugger) OnUnload() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	cookies := maps.Keys(d.owned)
	slices.Sort(cookies)
	for _, cookie := range cookies {
		d.ctl.ClearBreakpoint(cookie)
	}
	d.owned = make(map[tooling.BreakpointCookie]Location)
	d.armed = make(map[Location]tooling.BreakpointCookie)
}

func (d *Debugger) onModuleLoad(ev vm.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if err := d.armLocked(ev.(vm.ModuleLoadEvent).Module); err != nil {
		d.log.Warn("Failed to arm breakpoints", "err", err)
	}
}

// armLocked sets the configured breakpoints that belong to m.
func (d *Debugger) armLocked(m *vm.Module) error {
	for _, loc := range d.config.Breakpoints {
		if loc.Module != m.Name {
			continue
		}
		if _, ok := d.armed[loc]; ok {
			continue
		}
		if d.config.Once && d.hits[loc] > 0 {
			continue
		}
		cookie, err := d.ctl.SetBreakpoint(m, loc.PC)
		if err != nil {
			return fmt.Errorf("arm %v: %w", loc, err)
		}
		d.armed[loc] = cookie
		d.owned[cookie] = loc
		d.log.Debug("Armed breakpoint", "location", loc, "cookie", cookie)
	}
	return nil
}

func (d *Debugger) onBreakpoint(ev vm.Event) {
	bp := ev.(vm.BreakpointEvent)
	loc := Location{Module: bp.Module.Name, PC: bp.PC}

	d.mu.Lock()
	cookie, ok := d.armed[loc]
	if !ok {
		d.mu.Unlock()
		return
	}
	d.hits[loc]++
	if d.config.Once {
		delete(d.armed, loc)
		delete(d.owned, cookie)
		d.ctl.ClearBreakpoint(cookie)
	}
	d.mu.Unlock()

	d.log.Info("Breakpoint hit", "location", loc, "thread", bp.Thread, "op", bp.Original)
	hit := Hit{Location: loc, Thread: bp.Thread, Original: bp.Original}
	if bp.Registers != nil && bp.Registers.Stack != nil {
		hit.Stack = append([]int64(nil), bp.Registers.Stack.Data()...)
	}
	d.feed.Send(hit)
}

// Hits returns the number of hits per location.
func (d *Debugger) Hits() map[Location]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[Location]uint64, len(d.hits))
	for loc, n := range d.hits {
		out[loc] = n
	}
	return out
}

// Locations returns the configured breakpoint locations.
func (d *Debugger) Locations() []Location {
	return append([]Location(nil), d.config.Breakpoints...)
}

// Unarmed returns the configured locations that are neither armed nor done,
// because their module was never loaded or arming failed.
func (d *Debugger) Unarmed() []Location {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Location
	for _, loc := range d.config.Breakpoints {
		if _, ok := d.armed[loc]; ok {
			continue
		}
		if d.config.Once && d.hits[loc] > 0 {
			continue
		}
		out = append(out, loc)
	}
	return out
}

// Armed returns the locations currently armed, sorted.
func (d *Debugger) Armed() []Location {
	d.mu.Lock()
	defer d.mu.Unlock()

	locs := maps.Keys(d.armed)
	slices.SortFunc(locs, func(a, b Location) int {
		if a.Module != b.Module {
			return strings.Compare(a.Module, b.Module)
		}
		switch {
		case a.PC < b.PC:
			return -1
		case a.PC > b.PC:
			return 1
		}
		return 0
	})
	return locs
}

// GetResult returns the hit counts keyed by "module:pc".
func (d *Debugger) GetResult() (json.RawMessage, error) {
	hits := d.Hits()
	out := make(map[string]uint64, len(d.want))
	for loc := range d.want {
		out[loc.String()] = hits[loc]
	}
	return json.Marshal(out)
}
