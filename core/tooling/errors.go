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

import "errors"

var (
	// ErrInvalidArgument is returned for nil tools, callbacks or modules,
	// unknown event kinds, builtin modules and out-of-range program counters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadySet is returned when a breakpoint is already installed at the
	// requested location.
	ErrAlreadySet = errors.New("breakpoint already set")

	// ErrInvariantViolation reports inconsistent dispatch state. It indicates
	// a bug in the dispatch itself rather than in the caller.
	ErrInvariantViolation = errors.New("tool dispatch invariant violated")

	// ErrClosed is returned by operations that would register new state on a
	// closed dispatch.
	ErrClosed = errors.New("tool dispatch closed")

	// ErrToolPanic wraps the value recovered from a panicking tool hook.
	ErrToolPanic = errors.New("tool panicked")

	// ErrToolUnloaded is returned by a controller whose tool has been unloaded.
	ErrToolUnloaded = errors.New("tool unloaded")
)
