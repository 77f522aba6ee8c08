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

// Package testlog provides a log handler for unit tests.
package testlog

import (
	"sync"
	"testing"

	"github.com/disvm/disvm/log"
)

// T is the subset of testing.TB the test logger writes through.
type T interface {
	Helper()
	Logf(format string, args ...interface{})
}

var _ T = (testing.TB)(nil)

// Handler returns a log handler which logs to the unit test log of t.
func Handler(t T, level log.Lvl) log.Handler {
	return log.LvlFilterHandler(level, &handler{t: t, fmt: log.TerminalFormat(false)})
}

type handler struct {
	t   T
	fmt log.Format
}

func (h *handler) Log(r *log.Record) error {
	h.t.Logf("%s", h.fmt.Format(r))
	return nil
}

// logger implements log.Logger such that all output goes to the unit test
// log via t.Logf. Records are buffered by the inner logger and flushed from
// the wrapping method so the Helper marks apply to the caller.
type logger struct {
	t  T
	l  log.Logger
	mu *sync.Mutex
	h  *bufHandler
}

type bufHandler struct {
	buf []*log.Record
	fmt log.Format
}

func (h *bufHandler) Log(r *log.Record) error {
	h.buf = append(h.buf, r)
	return nil
}

// Logger returns a logger which logs to the unit test log of t.
func Logger(t T, level log.Lvl) log.Logger {
	l := &logger{
		t:  t,
		l:  log.New(),
		mu: new(sync.Mutex),
		h:  &bufHandler{fmt: log.TerminalFormat(false)},
	}
	l.l.SetHandler(log.LvlFilterHandler(level, l.h))
	return l
}

func (l *logger) emit(write func(string, ...interface{}), msg string, ctx []interface{}) {
	l.t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	write(msg, ctx...)
	for _, r := range l.h.buf {
		l.t.Logf("%s", l.h.fmt.Format(r))
	}
	l.h.buf = nil
}

func (l *logger) Trace(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Trace, msg, ctx)
}

func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Debug, msg, ctx)
}

func (l *logger) Info(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Info, msg, ctx)
}

func (l *logger) Warn(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Warn, msg, ctx)
}

func (l *logger) Error(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Error, msg, ctx)
}

// Crit logs at error level instead of exiting the test binary.
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Error, msg, ctx)
}

func (l *logger) New(ctx ...interface{}) log.Logger {
	return &logger{l.t, l.l.New(ctx...), l.mu, l.h}
}

func (l *logger) GetHandler() log.Handler {
	return l.l.GetHandler()
}

func (l *logger) SetHandler(h log.Handler) {
	l.l.SetHandler(h)
}
