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

package vm

func opNop(in *interpreter, arg int64) error {
	return nil
}

func opHalt(in *interpreter, arg int64) error {
	in.halted = true
	return nil
}

func opAdd(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	*x += y
	return nil
}

func opSub(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	*x -= y
	return nil
}

func opMul(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	*x *= y
	return nil
}

func opDiv(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	if y == 0 {
		return ErrDivisionByZero
	}
	*x /= y
	return nil
}

func opMod(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	if y == 0 {
		return ErrDivisionByZero
	}
	*x %= y
	return nil
}

func opNeg(in *interpreter, arg int64) error {
	x := in.stack.peek()
	*x = -*x
	return nil
}

func opEq(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	*x = boolToWord(*x == y)
	return nil
}

func opLt(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	*x = boolToWord(*x < y)
	return nil
}

func opGt(in *interpreter, arg int64) error {
	y, x := in.stack.pop(), in.stack.peek()
	*x = boolToWord(*x > y)
	return nil
}

func opNot(in *interpreter, arg int64) error {
	x := in.stack.peek()
	*x = boolToWord(*x == 0)
	return nil
}

func opPush(in *interpreter, arg int64) error {
	in.stack.push(arg)
	return nil
}

func opPop(in *interpreter, arg int64) error {
	in.stack.pop()
	return nil
}

func opDup(in *interpreter, arg int64) error {
	in.stack.dup()
	return nil
}

func opSwap(in *interpreter, arg int64) error {
	in.stack.swap()
	return nil
}

func opJmp(in *interpreter, arg int64) error {
	return in.jump(arg)
}

func opJz(in *interpreter, arg int64) error {
	if in.stack.pop() == 0 {
		return in.jump(arg)
	}
	return nil
}

func opJnz(in *interpreter, arg int64) error {
	if in.stack.pop() != 0 {
		return in.jump(arg)
	}
	return nil
}

func opCall(in *interpreter, arg int64) error {
	regs := in.regs
	if uint64(len(regs.Frames)) >= in.vm.config.CallDepthLimit {
		return ErrDepth
	}
	from := regs.PC - 1
	regs.Frames = append(regs.Frames, Frame{ReturnPC: regs.PC})
	if err := in.jump(arg); err != nil {
		regs.Frames = regs.Frames[:len(regs.Frames)-1]
		return err
	}
	if in.subscribed(EventCall) {
		in.tools.FireEvent(CallEvent{
			Thread: regs.Thread,
			Module: regs.Module,
			From:   from,
			To:     regs.PC,
			Depth:  len(regs.Frames),
		})
	}
	return nil
}

func opRet(in *interpreter, arg int64) error {
	regs := in.regs
	if len(regs.Frames) == 0 {
		// Returning from the entry point ends the thread.
		in.halted = true
		return nil
	}
	from := regs.PC - 1
	frame := regs.Frames[len(regs.Frames)-1]
	regs.Frames = regs.Frames[:len(regs.Frames)-1]
	regs.PC = frame.ReturnPC
	if in.subscribed(EventReturn) {
		in.tools.FireEvent(ReturnEvent{
			Thread: regs.Thread,
			Module: regs.Module,
			From:   from,
			To:     regs.PC,
			Depth:  len(regs.Frames),
		})
	}
	return nil
}

func opOut(in *interpreter, arg int64) error {
	v := in.stack.pop()
	in.output = append(in.output, v)
	in.vm.write(v)
	return nil
}

func boolToWord(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
