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
	"errors"

	"github.com/disvm/disvm/core/tooling"
	"github.com/disvm/disvm/core/vm"
	"github.com/disvm/disvm/tools"
	"go.uber.org/atomic"
)

func init() {
	tools.DefaultDirectory.Register("opcodeCounter", newOpcodeCounter)
}

// OpcodeCounter counts how many times each opcode is executed, over all
// threads of the VM it is loaded into.
type OpcodeCounter struct {
	counts [256]atomic.Uint64
	ctl    tooling.Controller
	cookie tooling.EventCookie
}

func newOpcodeCounter(cfg json.RawMessage) (tools.Tool, error) {
	if len(cfg) > 0 && string(cfg) != "null" && string(cfg) != "{}" {
		return nil, errors.New("opcode counter takes no configuration")
	}
	return new(OpcodeCounter), nil
}

// OnLoad subscribes to executed opcodes.
func (c *OpcodeCounter) OnLoad(_ *vm.VM, ctl tooling.Controller, _ tooling.ToolID) error {
	cookie, err := ctl.SubscribeEvent(vm.EventOpcode, c.onOpcode)
	if err != nil {
		return err
	}
	c.ctl, c.cookie = ctl, cookie
	return nil
}

// OnUnload drops the subscription.
func (c *OpcodeCounter) OnUnload() {
	c.ctl.UnsubscribeEvent(c.cookie)
}

func (c *OpcodeCounter) onOpcode(ev vm.Event) {
	c.counts[ev.(vm.OpcodeEvent).Op].Inc()
}

// Count returns the number of times op was executed.
func (c *OpcodeCounter) Count(op vm.OpCode) uint64 {
	return c.counts[op].Load()
}

// Results returns the non-zero opcode counts keyed by opcode name.
func (c *OpcodeCounter) Results() map[string]uint64 {
	out := make(map[string]uint64)
	for op := range c.counts {
		if n := c.counts[op].Load(); n > 0 {
			out[vm.OpCode(op).String()] = n
		}
	}
	return out
}

// GetResult returns the counts as a JSON object.
func (c *OpcodeCounter) GetResult() (json.RawMessage, error) {
	return json.Marshal(c.Results())
}
