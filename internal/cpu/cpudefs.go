/*
fox32 - CPU state definitions: registers, flags, faults.

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
	"github.com/fox32vm/fox32/internal/decode"
	"github.com/fox32vm/fox32/internal/memory"
)

// Register ids for the three special registers; r0..r31 are 0..31.
const (
	RegRSP  uint8 = 32
	RegRESP uint8 = 33
	RegRFP  uint8 = 34

	resetIP uint32 = 0xF0000000

	vsyncVector     uint8 = 0xFF
	audioHalfVector uint8 = 0xFE
)

// FaultKind identifies one of the four recoverable exceptions.
type FaultKind int

const (
	FaultDivideByZero FaultKind = iota
	FaultInvalidOpcode
	FaultPageFaultRead
	FaultPageFaultWrite
)

// Fault is a pending recoverable exception, queued for dispatch on the
// next Step call.
type Fault struct {
	Kind       FaultKind
	HasOperand bool
	Operand    uint32
}

// Bus is the interface the CPU uses to execute in/out opcodes. It is
// implemented by internal/iobus.Bus; kept as an interface here so the
// interpreter does not import the device layer.
type Bus interface {
	Read(port uint32) uint32
	Write(port uint32, value uint32)
}

// CPU holds all interpreter state: the fetch-decode-execute loop,
// registers, flags, and pending interrupt/exception slots.
type CPU struct {
	regs [32]uint32
	rsp  uint32
	resp uint32
	rfp  uint32

	zero      bool
	carry     bool
	interrupt bool
	swapSP    bool

	ip     uint32
	halted bool

	mem *memory.Memory
	bus Bus

	// Exactly one pending vector per class, per SPEC_FULL.md §9: a new
	// post of the same class overwrites rather than queues.
	pendingException *Fault
	pendingSoftIRQ   *uint8
	pendingHardIRQ   *uint8

	// hardIRQ is the MPSC channel external device tasks post hardware
	// interrupt vectors through (§5). Closing it signals VM shutdown.
	hardIRQ <-chan uint8
	closed  bool
}

// New constructs a CPU wired to mem and bus, draining hardware interrupts
// from hardIRQ. The returned CPU is already in the reset state.
func New(mem *memory.Memory, bus Bus, hardIRQ <-chan uint8) *CPU {
	c := &CPU{mem: mem, bus: bus, hardIRQ: hardIRQ}
	c.Reset()
	return c
}

// Reset restores the power-on state described in SPEC_FULL.md §4.3.
func (c *CPU) Reset() {
	c.regs = [32]uint32{}
	c.rsp = 0
	c.resp = 0
	c.rfp = 0
	c.zero = false
	c.carry = false
	c.interrupt = false
	c.swapSP = false
	c.ip = resetIP
	c.halted = false
	c.mem.SetMMUEnabled(false)
	c.mem.FlushTLB(nil)
	c.pendingException = nil
	c.pendingSoftIRQ = nil
	c.pendingHardIRQ = nil
}

// IP returns the current instruction pointer (for the debug console).
func (c *CPU) IP() uint32 { return c.ip }

// Halted reports whether the CPU is in the halt state.
func (c *CPU) Halted() bool { return c.halted }

// Closed reports whether the hardIRQ channel has been observed closed.
// A driver loop should stop calling Step once Halted and Closed both hold.
func (c *CPU) Closed() bool { return c.closed }

// Flags returns the current {zero, carry, interrupt, swapSP} flags.
func (c *CPU) Flags() (zero, carry, interrupt, swapSP bool) {
	return c.zero, c.carry, c.interrupt, c.swapSP
}

// Reg returns the value of register id (0..34); id outside that range is
// a programming error in the caller and panics, per SPEC_FULL.md §3.
func (c *CPU) Reg(id uint8) uint32 {
	switch {
	case id < 32:
		return c.regs[id]
	case id == RegRSP:
		return c.rsp
	case id == RegRESP:
		return c.resp
	case id == RegRFP:
		return c.rfp
	default:
		panic("fox32: register id out of range")
	}
}

// setReg writes the full 32 bits of register id.
func (c *CPU) setReg(id uint8, value uint32) {
	switch {
	case id < 32:
		c.regs[id] = value
	case id == RegRSP:
		c.rsp = value
	case id == RegRESP:
		c.resp = value
	case id == RegRFP:
		c.rfp = value
	default:
		panic("fox32: register id out of range")
	}
}

// setRegSized writes only the low bits corresponding to size, preserving
// the untouched upper bits of the target register (mov semantics).
func (c *CPU) setRegSized(id uint8, value uint32, size decode.Size) {
	if size == decode.SizeWord {
		c.setReg(id, value)
		return
	}
	mask := uint32(1)<<uint(size) - 1
	old := c.Reg(id)
	c.setReg(id, (old &^ mask) | (value & mask))
}

// PostSoftIRQ implements the int opcode's enqueue step.
func (c *CPU) PostSoftIRQ(vector uint8) {
	v := vector
	c.pendingSoftIRQ = &v
}

// PostHardIRQ lets a host collaborator post a hardware interrupt directly
// (used by tests and by devices not routed through the hardIRQ channel,
// e.g. VSYNC / audio-half callbacks invoked in-process).
func (c *CPU) PostHardIRQ(vector uint8) {
	v := vector
	c.pendingHardIRQ = &v
}

// pollHardIRQ fills the single hard-interrupt slot from the external
// channel, per SPEC_FULL.md §5: a non-blocking poll while running, but a
// blocking receive while halted, since the CPU task has nothing else to
// do until a hardware interrupt or a channel close wakes it.
func (c *CPU) pollHardIRQ() {
	if c.hardIRQ == nil || c.pendingHardIRQ != nil {
		return
	}
	if c.halted {
		v, ok := <-c.hardIRQ
		if !ok {
			c.closed = true
			return
		}
		c.pendingHardIRQ = &v
		return
	}
	select {
	case v, ok := <-c.hardIRQ:
		if !ok {
			c.closed = true
			return
		}
		c.pendingHardIRQ = &v
	default:
	}
}
