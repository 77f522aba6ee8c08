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
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Tool is an external observer of the VM.
type Tool interface {
	// OnLoad is called once when the tool is loaded. ctl is the tool's handle
	// on the dispatch and id the id it was assigned. Returning an error, or
	// panicking, aborts the load.
	OnLoad(machine *vm.VM, ctl Controller, id ToolID) error

	// OnUnload is called once when the tool is unloaded, explicitly or when
	// the dispatch closes.
	OnUnload()
}

type toolEntry struct {
	tool Tool
	ctl  *controller
}

// LoadTool assigns the next tool id to tool, registers it and runs its
// OnLoad hook. If OnLoad fails the registration is removed before the error
// is returned, and the id is never handed out again.
func (d *Dispatch) LoadTool(tool Tool) (ToolID, error) {
	if tool == nil {
		return 0, fmt.Errorf("%w: nil tool", ErrInvalidArgument)
	}
	d.toolMu.Lock()
	defer d.toolMu.Unlock()

	if d.closed.Load() {
		return 0, ErrClosed
	}
	id := toolIDs.next()
	ctl := newController(d, id)
	d.tools[id] = &toolEntry{tool: tool, ctl: ctl}

	if err := d.callOnLoad(id, tool, ctl); err != nil {
		delete(d.tools, id)
		ctl.finish(d.config.ReclaimOnUnload)
		d.metrics.toolLoadFailures.Inc(1)
		d.log.Warn("Failed to load tool", "id", id, "err", err)
		return 0, fmt.Errorf("load tool %d: %w", id, err)
	}
	d.metrics.toolsLoaded.Inc(1)
	d.metrics.tools.Update(int64(len(d.tools)))
	d.log.Debug("Loaded tool", "id", id, "tools", len(d.tools))
	return id, nil
}

// UnloadTool removes the tool with the given id and runs its OnUnload hook.
// It returns the number of tools still loaded; an unknown id leaves the
// registry untouched.
func (d *Dispatch) UnloadTool(id ToolID) int {
	d.toolMu.Lock()
	defer d.toolMu.Unlock()

	entry, ok := d.tools[id]
	if !ok {
		return len(d.tools)
	}
	delete(d.tools, id)
	if err := d.callOnUnload(id, entry.tool); err != nil {
		d.log.Error("Tool failed to unload", "id", id, "err", err)
	}
	entry.ctl.finish(d.config.ReclaimOnUnload)

	d.metrics.toolsUnloaded.Inc(1)
	d.metrics.tools.Update(int64(len(d.tools)))
	d.log.Debug("Unloaded tool", "id", id, "tools", len(d.tools))
	return len(d.tools)
}

// Tools returns the ids of the loaded tools in ascending order.
func (d *Dispatch) Tools() []ToolID {
	d.toolMu.Lock()
	defer d.toolMu.Unlock()

	ids := maps.Keys(d.tools)
	slices.Sort(ids)
	return ids
}

// ToolCount returns the number of loaded tools.
func (d *Dispatch) ToolCount() int {
	d.toolMu.Lock()
	defer d.toolMu.Unlock()
	return len(d.tools)
}

func (d *Dispatch) callOnLoad(id ToolID, tool Tool, ctl Controller) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: OnLoad: %v", ErrToolPanic, r)
		}
	}()
	return tool.OnLoad(d.machine, ctl, id)
}

func (d *Dispatch) callOnUnload(id ToolID, tool Tool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %d: %w: OnUnload: %v", id, ErrToolPanic, r)
		}
	}()
	tool.OnUnload()
	return nil
}
