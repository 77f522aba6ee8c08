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

package event

import (
	"sync"

	"golang.org/x/exp/slices"
)

// FeedOf delivers values to every subscribed channel. Tools use it to publish
// observations, such as breakpoint hits, to consumers outside the interpreter
// thread.
//
// The zero value is ready to use.
type FeedOf[T any] struct {
	sendLock sync.Mutex // serializes Send

	mu   sync.Mutex
	subs []*feedOfSub[T] // replaced, never modified in place
}

// Subscribe adds a channel to the feed. Future sends are delivered on the
// channel until the subscription is canceled.
//
// Slow subscribers are not dropped, so the channel should have ample buffer
// space.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	sub := &feedOfSub[T]{feed: f, channel: channel, err: make(chan error)}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs[:len(f.subs):len(f.subs)], sub)
	return sub
}

func (f *FeedOf[T]) remove(sub *feedOfSub[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if i := slices.Index(f.subs, sub); i >= 0 {
		f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
	}
}

// Send delivers value to all subscribed channels and returns the number of
// subscribers that received it. It blocks until every subscriber has either
// received the value or unsubscribed.
func (f *FeedOf[T]) Send(value T) (nsent int) {
	f.sendLock.Lock()
	defer f.sendLock.Unlock()

	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()

	// Serve the ready subscribers first, then wait for the slow ones.
	var pending []*feedOfSub[T]
	for _, sub := range subs {
		select {
		case sub.channel <- value:
			nsent++
		default:
			pending = append(pending, sub)
		}
	}
	for _, sub := range pending {
		select {
		case sub.channel <- value:
			nsent++
		case <-sub.err:
		}
	}
	return nsent
}

type feedOfSub[T any] struct {
	feed    *FeedOf[T]
	channel chan<- T
	errOnce sync.Once
	err     chan error
}

func (sub *feedOfSub[T]) Unsubscribe() {
	sub.errOnce.Do(func() {
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedOfSub[T]) Err() <-chan error {
	return sub.err
}
