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
	"sync"

	"github.com/deckarep/golang-set/v2"
	"github.com/disvm/disvm/core/vm"
	"golang.org/x/exp/slices"
)

// Controller is the handle a tool uses to act on the dispatch.
type Controller interface {
	SubscribeEvent(kind vm.EventKind, cb EventCallback) (EventCookie, error)
	UnsubscribeEvent(cookie EventCookie)
	SetBreakpoint(m *vm.Module, pc uint64) (BreakpointCookie, error)
	ClearBreakpoint(cookie BreakpointCookie)
}

var (
	_ Controller      = (*Dispatch)(nil)
	_ Controller      = (*controller)(nil)
	_ vm.ToolDispatch = (*Dispatch)(nil)
)

// controller forwards a tool's requests to the dispatch and records the
// subscriptions and breakpoints the tool still holds, so they can be
// reported or released when the tool goes away.
type controller struct {
	d  *Dispatch
	id ToolID

	mu   sync.Mutex
	subs mapset.Set[EventCookie]
	bps  mapset.Set[BreakpointCookie]
	done bool
}

func newController(d *Dispatch, id ToolID) *controller {
	return &controller{
		d:    d,
		id:   id,
		subs: mapset.NewThreadUnsafeSet[EventCookie](),
		bps:  mapset.NewThreadUnsafeSet[BreakpointCookie](),
	}
}

func (c *controller) SubscribeEvent(kind vm.EventKind, cb EventCallback) (EventCookie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return 0, ErrToolUnloaded
	}
	cookie, err := c.d.SubscribeEvent(kind, cb)
	if err != nil {
		return 0, err
	}
	c.subs.Add(cookie)
	return cookie, nil
}

func (c *controller) UnsubscribeEvent(cookie EventCookie) {
	c.mu.Lock()
	c.subs.Remove(cookie)
	c.mu.Unlock()

	c.d.UnsubscribeEvent(cookie)
}

func (c *controller) SetBreakpoint(m *vm.Module, pc uint64) (BreakpointCookie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return 0, ErrToolUnloaded
	}
	cookie, err := c.d.SetBreakpoint(m, pc)
	if err != nil {
		return 0, err
	}
	c.bps.Add(cookie)
	return cookie, nil
}

func (c *controller) ClearBreakpoint(cookie BreakpointCookie) {
	c.mu.Lock()
	c.bps.Remove(cookie)
	c.mu.Unlock()

	c.d.ClearBreakpoint(cookie)
}

// held returns the cookies still held by the tool, sorted, and closes the
// controller for new registrations.
func (c *controller) held() ([]EventCookie, []BreakpointCookie) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.done = true
	subs, bps := c.subs.ToSlice(), c.bps.ToSlice()
	c.subs.Clear()
	c.bps.Clear()
	slices.Sort(subs)
	slices.Sort(bps)
	return subs, bps
}

// finish runs after the tool was unloaded. Leftover registrations are
// released when reclaim is set and reported otherwise.
func (c *controller) finish(reclaim bool) {
	subs, bps := c.held()
	if len(subs) == 0 && len(bps) == 0 {
		return
	}
	if !reclaim {
		c.d.log.Warn("Unloaded tool left registrations behind", "id", c.id, "subscriptions", len(subs), "breakpoints", len(bps))
		return
	}
	for _, cookie := range subs {
		c.d.UnsubscribeEvent(cookie)
	}
	for _, cookie := range bps {
		c.d.ClearBreakpoint(cookie)
	}
	c.d.log.Debug("Reclaimed tool registrations", "id", c.id, "subscriptions", len(subs), "breakpoints", len(bps))
}

// retire closes the controller without touching the registries, which the
// dispatch is about to drop wholesale.
func (c *controller) retire() {
	c.held()
}
