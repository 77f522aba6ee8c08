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
	"github.com/go-stack/stack"
	"golang.org/x/exp/slices"
)

// EventCallback receives the events of the kind it subscribed to. The
// concrete payload type is fixed by the kind, e.g. vm.BreakpointEvent for
// vm.EventBreakpoint.
type EventCallback func(ev vm.Event)

// SubscribeEvent registers cb for events of the given kind and returns the
// cookie naming the subscription.
func (d *Dispatch) SubscribeEvent(kind vm.EventKind, cb EventCallback) (EventCookie, error) {
	if cb == nil {
		return 0, fmt.Errorf("%w: nil callback", ErrInvalidArgument)
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown event kind %d", ErrInvalidArgument, kind)
	}
	d.eventMu.Lock()
	defer d.eventMu.Unlock()

	if d.closed.Load() {
		return 0, ErrClosed
	}
	cookie := eventCookies.next()
	// Cookies only grow, so appending keeps every kind's list in cookie order.
	d.subs[kind] = append(d.subs[kind], subscription{cookie: cookie, cb: cb})
	d.subKinds[cookie] = kind
	d.subCounts[kind].Inc()

	d.metrics.subscribed.Inc(1)
	d.metrics.subscriptions.Update(int64(len(d.subKinds)))
	d.log.Debug("Subscribed to event", "kind", kind, "cookie", cookie)
	return cookie, nil
}

// UnsubscribeEvent removes the subscription named by cookie. Unknown cookies
// are ignored. An event fire that already started may still deliver to the
// removed callback.
func (d *Dispatch) UnsubscribeEvent(cookie EventCookie) {
	d.eventMu.Lock()
	defer d.eventMu.Unlock()

	kind, ok := d.subKinds[cookie]
	if !ok {
		return
	}
	delete(d.subKinds, cookie)
	subs := d.subs[kind]
	idx := slices.IndexFunc(subs, func(s subscription) bool { return s.cookie == cookie })
	if idx < 0 {
		d.violation("event cookie %d missing from %v subscribers", cookie, kind)
		return
	}
	// Fires hold a copy of the old list, so the backing array must not be
	// shifted in place.
	d.subs[kind] = append(subs[:idx:idx], subs[idx+1:]...)
	d.subCounts[kind].Dec()

	d.metrics.unsubscribed.Inc(1)
	d.metrics.subscriptions.Update(int64(len(d.subKinds)))
	d.log.Debug("Unsubscribed from event", "kind", kind, "cookie", cookie)
}

// Subscribed reports whether kind has at least one subscriber. It takes no
// lock and is meant as a fast path for the interpreter.
func (d *Dispatch) Subscribed(kind vm.EventKind) bool {
	return kind.Valid() && d.subCounts[kind].Load() > 0
}

// SubscriptionCount returns the number of subscriptions to kind.
func (d *Dispatch) SubscriptionCount(kind vm.EventKind) int {
	if !kind.Valid() {
		return 0
	}
	d.eventMu.Lock()
	defer d.eventMu.Unlock()
	return len(d.subs[kind])
}

// FireEvent delivers ev to every subscriber of its kind, in cookie order, on
// the calling goroutine. The subscriber list is captured before the first
// callback runs: subscriptions made during the fire do not see it.
func (d *Dispatch) FireEvent(ev vm.Event) {
	if ev == nil {
		return
	}
	kind := ev.Kind()
	if !d.Subscribed(kind) {
		return
	}
	d.eventMu.Lock()
	subs := d.subs[kind]
	d.eventMu.Unlock()

	d.metrics.eventsFired.Inc(1)
	for _, sub := range subs {
		d.deliver(kind, sub, ev)
	}
}

func (d *Dispatch) deliver(kind vm.EventKind, sub subscription, ev vm.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.callbackPanics.Inc(1)
			d.log.Error("Event callback panicked", "kind", kind, "cookie", sub.cookie, "err", r,
				"stack", fmt.Sprintf("%v", stack.Trace().TrimRuntime()))
		}
	}()
	sub.cb(ev)
}
