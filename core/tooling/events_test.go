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
	"testing"

	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/log"
	"github.com/stretchr/testify/require"
)

// Every subscriber of a kind receives each fired payload exactly once, a
// subscriber of another kind receives nothing.
func TestEventFanOut(t *testing.T) {
	d := newTestDispatch(t, Config{})
	seen := make(map[int][]vm.CallEvent)

	var cookies []EventCookie
	for i := 0; i < 3; i++ {
		i := i
		cookie, err := d.SubscribeEvent(vm.EventCall, func(ev vm.Event) {
			seen[i] = append(seen[i], ev.(vm.CallEvent))
		})
		require.NoError(t, err)
		cookies = append(cookies, cookie)
	}
	var returns int
	_, err := d.SubscribeEvent(vm.EventReturn, func(vm.Event) { returns++ })
	require.NoError(t, err)
	require.Equal(t, []EventCookie{1, 2, 3}, cookies)

	require.True(t, d.Subscribed(vm.EventCall))
	require.False(t, d.Subscribed(vm.EventOpcode))
	require.False(t, d.Subscribed(vm.NumEventKinds))

	first := vm.CallEvent{From: 1, To: 5, Depth: 1}
	d.FireEvent(first)
	for i := 0; i < 3; i++ {
		require.Equal(t, []vm.CallEvent{first}, seen[i])
	}
	require.Zero(t, returns)

	d.UnsubscribeEvent(cookies[1])
	second := vm.CallEvent{From: 6, To: 2, Depth: 2}
	d.FireEvent(second)
	require.Equal(t, []vm.CallEvent{first, second}, seen[0])
	require.Equal(t, []vm.CallEvent{first}, seen[1])
	require.Equal(t, []vm.CallEvent{first, second}, seen[2])
	require.Equal(t, 2, d.SubscriptionCount(vm.EventCall))

	d.UnsubscribeEvent(cookies[0])
	d.UnsubscribeEvent(cookies[2])
	require.False(t, d.Subscribed(vm.EventCall))
}

// Callbacks run in subscription order.
func TestEventOrder(t *testing.T) {
	d := newTestDispatch(t, Config{})
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_, err := d.SubscribeEvent(vm.EventThreadEnd, func(vm.Event) { order = append(order, i) })
		require.NoError(t, err)
	}
	d.FireEvent(vm.ThreadEndEvent{})
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestEventPayloadDelivered(t *testing.T) {
	d := newTestDispatch(t, Config{})
	m := newTestModule("main", 0)

	var seen vm.ExceptionEvent
	_, err := d.SubscribeEvent(vm.EventException, func(ev vm.Event) {
		seen = ev.(vm.ExceptionEvent)
	})
	require.NoError(t, err)

	d.FireEvent(vm.ExceptionEvent{Thread: 4, Module: m, PC: 9, Err: vm.ErrDivisionByZero})
	require.Equal(t, uint64(4), seen.Thread)
	require.Same(t, m, seen.Module)
	require.Equal(t, uint64(9), seen.PC)
	require.ErrorIs(t, seen.Err, vm.ErrDivisionByZero)
}

func TestSubscribeInvalid(t *testing.T) {
	d := newTestDispatch(t, Config{})

	first, err := d.SubscribeEvent(vm.EventCall, func(vm.Event) {})
	require.NoError(t, err)
	_, err = d.SubscribeEvent(vm.EventCall, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.SubscribeEvent(vm.NumEventKinds, func(vm.Event) {})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.SubscribeEvent(vm.EventKind(200), func(vm.Event) {})
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Rejected subscriptions do not consume cookies.
	cookie, err := d.SubscribeEvent(vm.EventCall, func(vm.Event) {})
	require.NoError(t, err)
	require.Equal(t, first+1, cookie)
}

func TestUnsubscribeUnknownCookie(t *testing.T) {
	d := newTestDispatch(t, Config{})
	cookie, err := d.SubscribeEvent(vm.EventOpcode, func(vm.Event) {})
	require.NoError(t, err)

	d.UnsubscribeEvent(cookie + 1)
	d.UnsubscribeEvent(0)
	require.Equal(t, 1, d.SubscriptionCount(vm.EventOpcode))

	d.UnsubscribeEvent(cookie)
	d.UnsubscribeEvent(cookie)
	require.Zero(t, d.SubscriptionCount(vm.EventOpcode))
}

func TestFireWithoutSubscribers(t *testing.T) {
	d := newTestDispatch(t, Config{})
	d.FireEvent(vm.OpcodeEvent{})
	d.FireEvent(nil)
	require.Zero(t, counterValue(d, MetricEventsFired))
}

// A subscription added by a callback does not see the event being fired,
// a subscription removed by a callback still does.
func TestSubscribeDuringFire(t *testing.T) {
	d := newTestDispatch(t, Config{})
	var (
		late    int
		removed int
		victim  EventCookie
	)
	_, err := d.SubscribeEvent(vm.EventThreadBegin, func(vm.Event) {
		_, err := d.SubscribeEvent(vm.EventThreadBegin, func(vm.Event) { late++ })
		require.NoError(t, err)
		d.UnsubscribeEvent(victim)
	})
	require.NoError(t, err)
	victim, err = d.SubscribeEvent(vm.EventThreadBegin, func(vm.Event) { removed++ })
	require.NoError(t, err)

	d.FireEvent(vm.ThreadBeginEvent{})
	require.Zero(t, late)
	require.Equal(t, 1, removed)

	d.FireEvent(vm.ThreadBeginEvent{})
	require.Equal(t, 1, late)
	require.Equal(t, 1, removed)
}

func TestCallbackPanicIsContained(t *testing.T) {
	d := newTestDispatch(t, Config{Logger: log.New()})
	var calls int

	_, err := d.SubscribeEvent(vm.EventReturn, func(vm.Event) { panic("bad tool") })
	require.NoError(t, err)
	_, err = d.SubscribeEvent(vm.EventReturn, func(vm.Event) { calls++ })
	require.NoError(t, err)

	require.NotPanics(t, func() { d.FireEvent(vm.ReturnEvent{}) })
	require.Equal(t, 1, calls)
	require.Equal(t, int64(1), counterValue(d, MetricCallbackPanics))
}

func TestConcurrentSubscribeAndFire(t *testing.T) {
	d := newTestDispatch(t, Config{})
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		calls int
	)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cookie, err := d.SubscribeEvent(vm.EventOpcode, func(vm.Event) {
					mu.Lock()
					calls++
					mu.Unlock()
				})
				if err != nil {
					t.Error(err)
					return
				}
				d.UnsubscribeEvent(cookie)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.FireEvent(vm.OpcodeEvent{PC: uint64(j)})
			}
		}()
	}
	wg.Wait()
	require.Zero(t, d.SubscriptionCount(vm.EventOpcode))
	require.False(t, d.Subscribed(vm.EventOpcode))
}
