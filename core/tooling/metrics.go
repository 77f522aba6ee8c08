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
	"github.com/rcrowley/go-metrics"
)

// Metric names registered by a Dispatch.
const (
	MetricToolsLoaded        = "tool/tools/loaded"
	MetricToolsUnloaded      = "tool/tools/unloaded"
	MetricToolLoadFailures   = "tool/tools/failures"
	MetricTools              = "tool/tools/active"
	MetricSubscribed         = "tool/events/subscribed"
	MetricUnsubscribed       = "tool/events/unsubscribed"
	MetricSubscriptions      = "tool/events/active"
	MetricEventsFired        = "tool/events/fired"
	MetricCallbackPanics     = "tool/events/panics"
	MetricBreakpointsSet     = "tool/breakpoints/set"
	MetricBreakpointsCleared = "tool/breakpoints/cleared"
	MetricBreakpointHits     = "tool/breakpoints/hits"
	MetricBreakpointsArmed   = "tool/breakpoints/armed"
)

// dispatchMetrics holds counters and gauges only. Meters and timers tick
// from a background goroutine that would outlive the dispatch.
type dispatchMetrics struct {
	toolsLoaded      metrics.Counter
	toolsUnloaded    metrics.Counter
	toolLoadFailures metrics.Counter
	tools            metrics.Gauge

	subscribed     metrics.Counter
	unsubscribed   metrics.Counter
	subscriptions  metrics.Gauge
	eventsFired    metrics.Counter
	callbackPanics metrics.Counter

	breakpointsSet     metrics.Counter
	breakpointsCleared metrics.Counter
	breakpointHits     metrics.Counter
	armed              metrics.Gauge
}

func newDispatchMetrics(r metrics.Registry) *dispatchMetrics {
	return &dispatchMetrics{
		toolsLoaded:      metrics.GetOrRegisterCounter(MetricToolsLoaded, r),
		toolsUnloaded:    metrics.GetOrRegisterCounter(MetricToolsUnloaded, r),
		toolLoadFailures: metrics.GetOrRegisterCounter(MetricToolLoadFailures, r),
		tools:            metrics.GetOrRegisterGauge(MetricTools, r),

		subscribed:     metrics.GetOrRegisterCounter(MetricSubscribed, r),
		unsubscribed:   metrics.GetOrRegisterCounter(MetricUnsubscribed, r),
		subscriptions:  metrics.GetOrRegisterGauge(MetricSubscriptions, r),
		eventsFired:    metrics.GetOrRegisterCounter(MetricEventsFired, r),
		callbackPanics: metrics.GetOrRegisterCounter(MetricCallbackPanics, r),

		breakpointsSet:     metrics.GetOrRegisterCounter(MetricBreakpointsSet, r),
		breakpointsCleared: metrics.GetOrRegisterCounter(MetricBreakpointsCleared, r),
		breakpointHits:     metrics.GetOrRegisterCounter(MetricBreakpointHits, r),
		armed:              metrics.GetOrRegisterGauge(MetricBreakpointsArmed, r),
	}
}
