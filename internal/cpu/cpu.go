/*
fox32 - fetch-decode-execute loop, stack, and interrupt/exception dispatch.

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

import "github.com/fox32vm/fox32/internal/decode"

// flagByte packs {swap_sp, interrupt, carry, zero} per SPEC_FULL.md §3.
func (c *CPU) flagByte() uint8 {
	var b uint8
	if c.zero {
		b |= 1 << 0
	}
	if c.carry {
		b |= 1 << 1
	}
	if c.interrupt {
		b |= 1 << 2
	}
	if c.swapSP {
		b |= 1 << 3
	}
	return b
}

func (c *CPU) setFlagByte(b uint8) {
	c.zero = b&(1<<0) != 0
	c.carry = b&(1<<1) != 0
	c.interrupt = b&(1<<2) != 0
	c.swapSP = b&(1<<3) != 0
}

// pushStack8/16/32 decrement rsp and write, committing rsp only when the
// write succeeds: a faulting push leaves rsp at its prior value.
func (c *CPU) pushStack32(word uint32) {
	addr := c.rsp - 4
	pf, fatal := c.mem.Write32(addr, word)
	if !pf && fatal == nil {
		c.rsp = addr
	}
}

func (c *CPU) pushStack16(half uint16) {
	addr := c.rsp - 2
	pf, fatal := c.mem.Write16(addr, half)
	if !pf && fatal == nil {
		c.rsp = addr
	}
}

func (c *CPU) pushStack8(b uint8) {
	addr := c.rsp - 1
	pf, fatal := c.mem.Write8(addr, b)
	if !pf && fatal == nil {
		c.rsp = addr
	}
}

// popStack8/32 read at rsp and advance only on success, mirroring
// pushStack8/32; ok is false on a page fault so callers can abort cleanly.
func (c *CPU) popStack32() (value uint32, ok bool) {
	v, pf, fatal := c.mem.Read32(c.rsp)
	if pf || fatal != nil {
		return 0, false
	}
	c.rsp += 4
	return v, true
}

func (c *CPU) popStack8() (value uint8, ok bool) {
	v, pf, fatal := c.mem.Read8(c.rsp)
	if pf || fatal != nil {
		return 0, false
	}
	c.rsp++
	return v, true
}

func (c *CPU) popStack16() (value uint16, ok bool) {
	v, pf, fatal := c.mem.Read16(c.rsp)
	if pf || fatal != nil {
		return 0, false
	}
	c.rsp += 2
	return v, true
}

// queueFault overwrites the single pending-exception slot, per the
// single-pending-slot model: a later fault in the same step replaces an
// earlier one rather than queuing behind it.
func (c *CPU) queueFault(f Fault) {
	c.pendingException = &f
}

// dispatchInterrupt runs the interrupt-entry sequence for a hardware or
// software vector, reading the handler address from the vector table at
// physical page 0 with the MMU bypassed.
func (c *CPU) dispatchInterrupt(vector uint8) {
	addr, ok := c.mem.ReadPhysWord(uint32(vector) * 4)
	if !ok {
		return
	}

	if c.swapSP {
		old := c.rsp
		c.rsp = c.resp
		c.pushStack32(old)
	}
	c.pushStack32(c.ip)
	c.pushStack8(c.flagByte())
	c.swapSP = false

	c.interrupt = false
	c.halted = false
	c.ip = addr
}

// dispatchException runs the exception-entry sequence; the vector table
// base is offset by 256 exception vectors, and a defined operand is pushed
// after the flag byte.
func (c *CPU) dispatchException(vector uint8, hasOperand bool, operand uint32) {
	addr, ok := c.mem.ReadPhysWord((256 + uint32(vector)) * 4)
	if !ok {
		return
	}

	if c.swapSP {
		old := c.rsp
		c.rsp = c.resp
		c.pushStack32(old)
	}
	c.pushStack32(c.ip)
	c.pushStack8(c.flagByte())
	c.swapSP = false

	if hasOperand {
		c.pushStack32(operand)
	}

	c.interrupt = false
	c.halted = false
	c.ip = addr
}

// Step runs one dispatch-or-fetch-decode-execute cycle, per SPEC_FULL.md
// §4.3: a pending exception always preempts; a pending soft or hardware
// interrupt preempts only while the interrupt flag is set.
func (c *CPU) Step() {
	c.pollHardIRQ()

	if c.pendingException != nil {
		f := c.pendingException
		c.pendingException = nil
		c.dispatchException(uint8(f.Kind), f.HasOperand, f.Operand)
		return
	}
	if c.pendingSoftIRQ != nil && c.interrupt {
		v := *c.pendingSoftIRQ
		c.pendingSoftIRQ = nil
		c.dispatchInterrupt(v)
		return
	}
	if c.pendingHardIRQ != nil && c.interrupt {
		v := *c.pendingHardIRQ
		c.pendingHardIRQ = nil
		c.dispatchInterrupt(v)
		return
	}

	if c.halted {
		return
	}

	half, pf, fatal := c.mem.Read16(c.ip)
	if fatal != nil {
		panic(fatal)
	}
	if pf {
		c.queueFault(Fault{Kind: FaultPageFaultRead, HasOperand: true, Operand: c.ip})
		return
	}

	inst, ok := decode.Decode(half)
	if !ok {
		c.queueFault(Fault{Kind: FaultInvalidOpcode, HasOperand: true, Operand: uint32(half)})
		return
	}

	next, fatal := c.execute(inst)
	if fatal != nil {
		panic(fatal)
	}
	if next != nil {
		c.ip = *next
	}
	// On a queued fault, ip deliberately stays put: the faulted instruction
	// is retried as the handler's return address once it's resolved.
}
