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

// Package tools holds the registry of tools that can be loaded into a VM by
// name, the way the disvm command selects them.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/disvm/disvm/core/tooling"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Tool is a tooling.Tool that can report what it observed.
type Tool interface {
	tooling.Tool

	// GetResult returns the tool's findings as JSON.
	GetResult() (json.RawMessage, error)
}

type ctorFn func(cfg json.RawMessage) (Tool, error)

// DefaultDirectory is the directory of tools built into disvm. The native
// tools register themselves from their package init.
var DefaultDirectory = NewDirectory()

// Directory maps tool names to constructors.
type Directory struct {
	mu    sync.RWMutex
	elems map[string]ctorFn
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{elems: make(map[string]ctorFn)}
}

// Register adds a tool constructor by name, replacing any earlier one.
func (d *Directory) Register(name string, f ctorFn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elems[name] = f
}

// New instantiates a tool by name. cfg is passed to the constructor as is
// and may be nil.
func (d *Directory) New(name string, cfg json.RawMessage) (Tool, error) {
	d.mu.RLock()
	f, ok := d.elems[name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool %q not found", name)
	}
	t, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	return t, nil
}

// Names returns the registered tool names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := maps.Keys(d.elems)
	slices.Sort(names)
	return names
}
