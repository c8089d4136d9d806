/*
fox32 - per-opcode execution.

Copyright 2026, fox32vm contributors.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/
package cpu

import (
	"log/slog"

	"github.com/fox32vm/fox32/internal/decode"
)

// execute runs inst at the current ip and returns the instruction pointer
// to resume at, or nil if a fault was queued instead (ip stays put).
// fatal is non-nil only for a host-level condition (e.g. a ROM write),
// which the caller treats as unrecoverable.
func (c *CPU) execute(inst decode.Instruction) (next *uint32, fatal error) {
	cu := &cursor{c: c, addr: c.ip + 2}

	// Niladic: no operand tail at all.
	switch inst.Op {
	case decode.OpNop:
		return c.advance(cu.addr), nil
	case decode.OpHalt:
		if decode.EvalCond(inst.Cond, c.zero, c.carry) {
			c.halted = true
		}
		return c.advance(cu.addr), nil
	case decode.OpBrk:
		// Debug hook: logs a register dump through slog.
		if decode.EvalCond(inst.Cond, c.zero, c.carry) {
			slog.Info("brk", "ip", c.ip, "regs", c.regs, "rsp", c.rsp,
				"resp", c.resp, "rfp", c.rfp, "flags", c.flagByte())
		}
		return c.advance(cu.addr), nil
	case decode.OpRet:
		if !decode.EvalCond(inst.Cond, c.zero, c.carry) {
			return c.advance(cu.addr), nil
		}
		ip, ok := c.popStack32()
		if !ok {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.rsp})
			return nil, nil
		}
		return &ip, nil
	case decode.OpReti:
		if !decode.EvalCond(inst.Cond, c.zero, c.carry) {
			return c.advance(cu.addr), nil
		}
		fb, ok := c.popStack8()
		if !ok {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.rsp})
			return nil, nil
		}
		ip, ok := c.popStack32()
		if !ok {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.rsp})
			return nil, nil
		}
		c.setFlagByte(fb)
		if c.swapSP {
			oldSP, ok := c.popStack32()
			if !ok {
				c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.rsp})
				return nil, nil
			}
			c.rsp = oldSP
		}
		return &ip, nil
	case decode.OpIse:
		if decode.EvalCond(inst.Cond, c.zero, c.carry) {
			c.interrupt = true
		}
		return c.advance(cu.addr), nil
	case decode.OpIcl:
		if decode.EvalCond(inst.Cond, c.zero, c.carry) {
			c.interrupt = false
		}
		return c.advance(cu.addr), nil
	case decode.OpMse:
		if decode.EvalCond(inst.Cond, c.zero, c.carry) {
			c.mem.SetMMUEnabled(true)
		}
		return c.advance(cu.addr), nil
	case decode.OpMcl:
		if decode.EvalCond(inst.Cond, c.zero, c.carry) {
			c.mem.SetMMUEnabled(false)
		}
		return c.advance(cu.addr), nil
	}

	// Every remaining opcode consumes a source-tail operand first.
	src, pf, err := cu.fetchOperand(inst.Src, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: cu.faultAddr})
		return nil, nil
	}

	switch inst.Op {
	case decode.OpInc, decode.OpDec, decode.OpNot:
		return c.execUnaryRMW(inst, cu, src)
	case decode.OpJmp, decode.OpCall, decode.OpLoop, decode.OpRjmp, decode.OpRcall, decode.OpRloop:
		return c.execBranch(inst, cu, src)
	case decode.OpPush:
		return c.execPush(inst, cu, src)
	case decode.OpPop:
		return c.execPop(inst, cu, src)
	case decode.OpInt, decode.OpTlb, decode.OpFlp:
		val, pf, faultAddr, err := c.loadOperand(src, inst.Size)
		if err != nil {
			return nil, err
		}
		if pf {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: faultAddr})
			return nil, nil
		}
		if !decode.EvalCond(inst.Cond, c.zero, c.carry) {
			return c.advance(cu.addr), nil
		}
		switch inst.Op {
		case decode.OpInt:
			c.PostSoftIRQ(uint8(val))
		case decode.OpTlb:
			c.mem.FlushTLB(&val)
		case decode.OpFlp:
			c.mem.FlushPage(val)
		}
		return c.advance(cu.addr), nil
	}

	// Everything else is a full (dst, src) binary form; src was already
	// fetched above (wire order is source tail, then destination tail).
	srcVal, pf, faultAddr, err := c.loadOperand(src, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: faultAddr})
		return nil, nil
	}

	dst, pf, err := cu.fetchOperand(inst.Dst, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: cu.faultAddr})
		return nil, nil
	}

	if inst.Op == decode.OpRta {
		return c.execRta(inst, cu, dst, srcVal)
	}

	return c.execBinary(inst, cu, dst, srcVal)
}

// advance packages a next-ip value without allocating at each call site.
func (c *CPU) advance(addr uint32) *uint32 {
	return &addr
}

// execUnaryRMW handles inc/dec/not: the source-tail operand is both the
// read value and the write-back target. Per SPEC_FULL.md's decision to
// keep conditional execution uniform across opcodes, the read-modify-write
// is skipped entirely (no dereference, no fault) when the condition fails.
func (c *CPU) execUnaryRMW(inst decode.Instruction, cu *cursor, src operand) (*uint32, error) {
	if src.kind == decode.KindImmediate {
		// An immediate can't be written back; malformed encoding.
		c.queueFault(Fault{Kind: FaultInvalidOpcode, HasOperand: true, Operand: uint32(inst.Raw)})
		return nil, nil
	}
	if !decode.EvalCond(inst.Cond, c.zero, c.carry) {
		return c.advance(cu.addr), nil
	}

	old, pf, faultAddr, err := c.loadOperand(src, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: faultAddr})
		return nil, nil
	}

	var result uint32
	var zero, carry bool
	switch inst.Op {
	case decode.OpInc:
		result, zero, carry = aluAdd(old, 1, inst.Size)
	case decode.OpDec:
		result, zero, carry = aluSub(old, 1, inst.Size)
	case decode.OpNot:
		result, zero = aluNot(old, inst.Size)
		carry = c.carry
	}

	pf, faultAddr, err = c.storeOperand(src, result, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultWrite, HasOperand: true, Operand: faultAddr})
		return nil, nil
	}
	c.zero, c.carry = zero, carry
	return c.advance(cu.addr), nil
}

// execBranch handles jmp/call/loop/rjmp/rcall/rloop, all of which only
// read the source operand as a target value (absolute or ip-relative).
func (c *CPU) execBranch(inst decode.Instruction, cu *cursor, src operand) (*uint32, error) {
	val, pf, faultAddr, err := c.loadOperand(src, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: faultAddr})
		return nil, nil
	}

	fallthroughIP := cu.addr
	should := decode.EvalCond(inst.Cond, c.zero, c.carry)

	switch inst.Op {
	case decode.OpJmp:
		if should {
			return c.advance(val), nil
		}
		return c.advance(fallthroughIP), nil
	case decode.OpCall:
		if should {
			c.pushStack32(fallthroughIP)
			return c.advance(val), nil
		}
		return c.advance(fallthroughIP), nil
	case decode.OpLoop:
		r31, _, _, _ := c.loadOperand(operand{kind: decode.KindRegister, reg: 31}, decode.SizeWord)
		r31--
		c.setReg(31, r31)
		if should && r31 != 0 {
			return c.advance(val), nil
		}
		return c.advance(fallthroughIP), nil
	case decode.OpRjmp:
		if should {
			return c.advance(c.ip + val), nil
		}
		return c.advance(fallthroughIP), nil
	case decode.OpRcall:
		if should {
			c.pushStack32(fallthroughIP)
			return c.advance(c.ip + val), nil
		}
		return c.advance(fallthroughIP), nil
	case decode.OpRloop:
		r31, _, _, _ := c.loadOperand(operand{kind: decode.KindRegister, reg: 31}, decode.SizeWord)
		r31--
		c.setReg(31, r31)
		if should && r31 != 0 {
			return c.advance(c.ip + val), nil
		}
		return c.advance(fallthroughIP), nil
	}
	return c.advance(fallthroughIP), nil
}

// execPush handles push size,cc,src: the source value is read, then
// written to the (possibly swapped) stack if the condition holds.
func (c *CPU) execPush(inst decode.Instruction, cu *cursor, src operand) (*uint32, error) {
	val, pf, faultAddr, err := c.loadOperand(src, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: faultAddr})
		return nil, nil
	}
	if decode.EvalCond(inst.Cond, c.zero, c.carry) {
		switch inst.Size {
		case decode.SizeByte:
			c.pushStack8(uint8(val))
		case decode.SizeHalf:
			c.pushStack16(uint16(val))
		default:
			c.pushStack32(val)
		}
	}
	return c.advance(cu.addr), nil
}

// execPop handles pop size,cc,src: src names the destination to receive
// the popped value (the wire's lone operand slot doubles as a write
// target, as it does for inc/dec/not).
func (c *CPU) execPop(inst decode.Instruction, cu *cursor, dst operand) (*uint32, error) {
	if dst.kind == decode.KindImmediate {
		c.queueFault(Fault{Kind: FaultInvalidOpcode, HasOperand: true, Operand: uint32(inst.Raw)})
		return nil, nil
	}
	if !decode.EvalCond(inst.Cond, c.zero, c.carry) {
		return c.advance(cu.addr), nil
	}

	var val uint32
	switch inst.Size {
	case decode.SizeByte:
		b, ok := c.popStack8()
		if !ok {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.rsp})
			return nil, nil
		}
		val = uint32(b)
	case decode.SizeHalf:
		h, ok := c.popStack16()
		if !ok {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.rsp})
			return nil, nil
		}
		val = uint32(h)
	default:
		w, ok := c.popStack32()
		if !ok {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.rsp})
			return nil, nil
		}
		val = w
	}

	pf, faultAddr, err := c.storeOperand(dst, val, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultWrite, HasOperand: true, Operand: faultAddr})
		return nil, nil
	}
	return c.advance(cu.addr), nil
}

// execRta handles rta dst, src: writes ip+src into dst, where a
// register-pointer destination treats its register as a relative address.
func (c *CPU) execRta(inst decode.Instruction, cu *cursor, dst operand, srcVal uint32) (*uint32, error) {
	target := c.ip + srcVal
	should := decode.EvalCond(inst.Cond, c.zero, c.carry)

	switch dst.kind {
	case decode.KindRegister:
		if should {
			c.setReg(dst.reg, target)
		}
	case decode.KindRegisterPointer:
		ptr := c.ip + c.Reg(dst.reg)
		if should {
			pf, faultAddr, err := c.storeOperand(operand{kind: decode.KindImmediatePointer, imm: ptr}, target, decode.SizeWord)
			if err != nil {
				return nil, err
			}
			if pf {
				c.queueFault(Fault{Kind: FaultPageFaultWrite, HasOperand: true, Operand: faultAddr})
				return nil, nil
			}
		}
	default: // KindImmediatePointer
		ptr := c.ip + dst.imm
		if should {
			pf, faultAddr, err := c.storeOperand(operand{kind: decode.KindImmediatePointer, imm: ptr}, target, decode.SizeWord)
			if err != nil {
				return nil, err
			}
			if pf {
				c.queueFault(Fault{Kind: FaultPageFaultWrite, HasOperand: true, Operand: faultAddr})
				return nil, nil
			}
		}
	}
	return c.advance(cu.addr), nil
}

// execBinary handles the full (dst, src) opcodes: add/sub/mul/div/rem/
// and/or/xor/sla/rol/sra/srl/ror/bse/bcl/bts/cmp/mov/movz/in/out.
//
// For read-modify-write forms the destination is always loaded first (so a
// faulting pointer destination reports the fault even when the condition
// later turns out false); the store and flag update are conditional.
func (c *CPU) execBinary(inst decode.Instruction, cu *cursor, dst operand, srcVal uint32) (*uint32, error) {
	should := decode.EvalCond(inst.Cond, c.zero, c.carry)

	switch inst.Op {
	case decode.OpMov:
		if should {
			pf, faultAddr, err := c.storeOperand(dst, srcVal, inst.Size)
			if err != nil {
				return nil, err
			}
			if pf {
				c.queueFault(Fault{Kind: FaultPageFaultWrite, HasOperand: true, Operand: faultAddr})
				return nil, nil
			}
		}
		return c.advance(cu.addr), nil
	case decode.OpMovz:
		// movz only targets a register: it zero-extends into the full
		// 32-bit width, which a memory destination has no room for.
		if dst.kind != decode.KindRegister {
			c.queueFault(Fault{Kind: FaultInvalidOpcode, HasOperand: true, Operand: uint32(inst.Raw)})
			return nil, nil
		}
		if should {
			c.setReg(dst.reg, srcVal&uint32(sizeMask(inst.Size)))
		}
		return c.advance(cu.addr), nil
	case decode.OpIn:
		val := c.bus.Read(srcVal)
		if should {
			pf, faultAddr, err := c.storeOperand(dst, val, decode.SizeWord)
			if err != nil {
				return nil, err
			}
			if pf {
				c.queueFault(Fault{Kind: FaultPageFaultWrite, HasOperand: true, Operand: faultAddr})
				return nil, nil
			}
		}
		return c.advance(cu.addr), nil
	case decode.OpOut:
		port, pf, faultAddr, err := c.loadOperand(dst, decode.SizeWord)
		if err != nil {
			return nil, err
		}
		if pf {
			c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: faultAddr})
			return nil, nil
		}
		if should {
			c.bus.Write(port, srcVal)
		}
		return c.advance(cu.addr), nil
	}

	old, pf, faultAddr, err := c.loadOperand(dst, inst.Size)
	if err != nil {
		return nil, err
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: faultAddr})
		return nil, nil
	}

	var result uint32
	var zero, carry bool
	store := true

	switch inst.Op {
	case decode.OpAdd:
		result, zero, carry = aluAdd(old, srcVal, inst.Size)
	case decode.OpSub:
		result, zero, carry = aluSub(old, srcVal, inst.Size)
	case decode.OpCmp:
		result, zero, carry = aluSub(old, srcVal, inst.Size)
		store = false
	case decode.OpMul:
		result, zero, carry = aluMul(old, srcVal, inst.Size)
	case decode.OpDiv:
		divisor := srcVal & uint32(sizeMask(inst.Size))
		if should && divisor == 0 {
			c.queueFault(Fault{Kind: FaultDivideByZero})
			return nil, nil
		}
		carry = c.carry
		if divisor != 0 {
			result = truncate(uint64(old&uint32(sizeMask(inst.Size)))/uint64(divisor), inst.Size)
		}
		zero = result == 0
	case decode.OpRem:
		divisor := srcVal & uint32(sizeMask(inst.Size))
		if should && divisor == 0 {
			c.queueFault(Fault{Kind: FaultDivideByZero})
			return nil, nil
		}
		carry = c.carry
		if divisor != 0 {
			result = truncate(uint64(old&uint32(sizeMask(inst.Size)))%uint64(divisor), inst.Size)
		}
		zero = result == 0
	case decode.OpAnd:
		result, zero = aluAnd(old, srcVal, inst.Size)
		carry = c.carry
	case decode.OpOr:
		result, zero = aluOr(old, srcVal, inst.Size)
		carry = c.carry
	case decode.OpXor:
		result, zero = aluXor(old, srcVal, inst.Size)
		carry = c.carry
	case decode.OpSla:
		result, zero, carry = aluSLA(old, srcVal, inst.Size)
	case decode.OpSrl:
		result, zero, carry = aluSRL(old, srcVal, inst.Size)
	case decode.OpSra:
		result, zero, carry = aluSRA(old, srcVal, inst.Size)
	case decode.OpRol:
		result, zero, carry = aluROL(old, srcVal, inst.Size)
	case decode.OpRor:
		result, zero, carry = aluROR(old, srcVal, inst.Size)
	case decode.OpBse:
		result = bitSet(old, srcVal)
		zero, carry = c.zero, c.carry
	case decode.OpBcl:
		result = bitClear(old, srcVal)
		zero, carry = c.zero, c.carry
	case decode.OpBts:
		zero = bitTestZero(old, srcVal)
		carry = c.carry
		store = false
	}

	if !should {
		return c.advance(cu.addr), nil
	}
	if store {
		pf, faultAddr, err := c.storeOperand(dst, result, inst.Size)
		if err != nil {
			return nil, err
		}
		if pf {
			c.queueFault(Fault{Kind: FaultPageFaultWrite, HasOperand: true, Operand: faultAddr})
			return nil, nil
		}
	}
	c.zero, c.carry = zero, carry
	return c.advance(cu.addr), nil
}
