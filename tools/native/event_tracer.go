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
	"fmt"

	"github.com/disvm/disvm/core/tooling"
	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/log"
	"github.com/disvm/disvm/tools"
	"go.uber.org/atomic"
)

func init() {
	tools.DefaultDirectory.Register("eventTracer", newEventTracer)
}

// EventTracerConfig selects the event kinds to trace, by name. An empty
// list traces every kind.
type EventTracerConfig struct {
	Kinds []string `json:"kinds"`
}

// EventTracer logs every event of the configured kinds and counts them.
type EventTracer struct {
	kinds   []vm.EventKind
	counts  [vm.NumEventKinds]atomic.Uint64
	log     log.Logger
	ctl     tooling.Controller
	cookies []tooling.EventCookie
}

func newEventTracer(cfg json.RawMessage) (tools.Tool, error) {
	var config EventTracerConfig
	if cfg != nil {
		if err := json.Unmarshal(cfg, &config); err != nil {
			return nil, err
		}
	}
	return NewEventTracer(config, log.Root())
}

// NewEventTracer creates a tracer writing to the given logger.
func NewEventTracer(config EventTracerConfig, logger log.Logger) (*EventTracer, error) {
	t := &EventTracer{log: logger.New("tool", "events")}
	if len(config.Kinds) == 0 {
		t.kinds = vm.AllEventKinds()
		return t, nil
	}
	seen := make(map[vm.EventKind]bool)
	for _, name := range config.Kinds {
		kind, err := vm.EventKindFromString(name)
		if err != nil {
			return nil, err
		}
		if !seen[kind] {
			seen[kind] = true
			t.kinds = append(t.kinds, kind)
		}
	}
	return t, nil
}

// OnLoad subscribes to the configured kinds.
func (t *EventTracer) OnLoad(_ *vm.VM, ctl tooling.Controller, id tooling.ToolID) error {
	t.ctl = ctl
	for _, kind := range t.kinds {
		cookie, err := ctl.SubscribeEvent(kind, t.onEvent)
		if err != nil {
			return err
		}
		t.cookies = append(t.cookies, cookie)
	}
	t.log.Debug("Tracing events", "id", id, "kinds", len(t.kinds))
	return nil
}

// OnUnload drops every subscription.
func (t *EventTracer) OnUnload() {
	for _, cookie := range t.cookies {
		t.ctl.UnsubscribeEvent(cookie)
	}
	t.cookies = nil
}

func (t *EventTracer) onEvent(ev vm.Event) {
	kind := ev.Kind()
	t.counts[kind].Inc()

	switch ev := ev.(type) {
	case vm.ModuleLoadEvent:
		t.log.Info("Module loaded", "module", ev.Module.Name, "size", ev.Module.Code().Len(), "flags", ev.Module.Header.RuntimeFlags)
	case vm.ThreadBeginEvent:
		t.log.Debug("Thread started", "thread", ev.Thread, "module", ev.Module.Name, "entry", ev.Entry)
	case vm.ThreadEndEvent:
		if ev.Err != nil {
			t.log.Warn("Thread failed", "thread", ev.Thread, "module", ev.Module.Name, "steps", ev.Steps, "err", ev.Err)
		} else {
			t.log.Debug("Thread finished", "thread", ev.Thread, "module", ev.Module.Name, "steps", ev.Steps)
		}
	case vm.OpcodeEvent:
		t.log.Trace("Opcode", "thread", ev.Thread, "pc", ev.PC, "op", ev.Op, "stack", formatStack(ev.Stack))
	case vm.BreakpointEvent:
		t.log.Info("Breakpoint", "thread", ev.Thread, "module", ev.Module.Name, "pc", ev.PC, "op", ev.Original)
	case vm.ExceptionEvent:
		t.log.Warn("Exception", "thread", ev.Thread, "module", ev.Module.Name, "pc", ev.PC, "err", ev.Err)
	case vm.CallEvent:
		t.log.Debug("Call", "thread", ev.Thread, "from", ev.From, "to", ev.To, "depth", ev.Depth)
	case vm.ReturnEvent:
		t.log.Debug("Return", "thread", ev.Thread, "from", ev.From, "to", ev.To, "depth", ev.Depth)
	}
}

// Count returns the number of events of kind seen so far.
func (t *EventTracer) Count(kind vm.EventKind) uint64 {
	if !kind.Valid() {
		return 0
	}
	return t.counts[kind].Load()
}

// GetResult returns the event counts keyed by kind name.
func (t *EventTracer) GetResult() (json.RawMessage, error) {
	out := make(map[string]uint64, len(t.kinds))
	for _, kind := range t.kinds {
		out[kind.String()] = t.counts[kind].Load()
	}
	return json.Marshal(out)
}

func formatStack(stack []int64) string {
	const limit = 8
	if len(stack) > limit {
		return fmt.Sprintf("%v...+%d", stack[len(stack)-limit:], len(stack)-limit)
	}
	return fmt.Sprint(stack)
}
