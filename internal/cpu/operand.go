/*
fox32 - Operand fetch, load, and store.

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

// operand is a decoded, not-yet-loaded source or destination. Register
// operands hold the register id; pointer operands hold the register id
// to dereference or the literal address; immediates hold their value.
type operand struct {
	kind decode.OperandKind
	reg  uint8  // Register, RegisterPointer
	imm  uint32 // Immediate value, or ImmediatePointer address
}

// cursor walks the operand tail bytes following the opcode half, in wire
// order (source tail, then destination tail), tracking the address of
// any byte that faults so the CPU can report it as the exception operand.
type cursor struct {
	c         *CPU
	addr      uint32
	faultAddr uint32
}

func (cu *cursor) readByte() (value uint8, pageFault bool, fatal error) {
	b, pf, err := cu.c.mem.Read8(cu.addr)
	if pf {
		cu.faultAddr = cu.addr
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	cu.addr++
	return b, false, nil
}

func (cu *cursor) readSized(size decode.Size) (value uint32, pageFault bool, fatal error) {
	var v uint32
	for i := 0; i < size.Bytes(); i++ {
		b, pf, err := cu.readByte()
		if pf || err != nil {
			return 0, pf, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, false, nil
}

func (cu *cursor) readAddr() (uint32, bool, error) {
	return cu.readSized(decode.SizeWord)
}

// fetchOperand consumes the tail bytes for one operand kind, per
// SPEC_FULL.md §4.3's "Operand read" rules (destination mirrors source).
func (cu *cursor) fetchOperand(kind decode.OperandKind, size decode.Size) (operand, bool, error) {
	switch kind {
	case decode.KindRegister:
		id, pf, err := cu.readByte()
		return operand{kind: kind, reg: id}, pf, err
	case decode.KindRegisterPointer:
		id, pf, err := cu.readByte()
		return operand{kind: kind, reg: id}, pf, err
	case decode.KindImmediate:
		v, pf, err := cu.readSized(size)
		return operand{kind: kind, imm: v}, pf, err
	default: // KindImmediatePointer
		addr, pf, err := cu.readAddr()
		return operand{kind: kind, imm: addr}, pf, err
	}
}

// loadOperand reads the current value of op at the given size. pageFault
// is true on a dereference fault (always a read fault here); faultAddr
// names the failing virtual address.
func (c *CPU) loadOperand(op operand, size decode.Size) (value uint32, pageFault bool, faultAddr uint32, fatal error) {
	switch op.kind {
	case decode.KindRegister:
		return c.Reg(op.reg), false, 0, nil
	case decode.KindImmediate:
		return op.imm, false, 0, nil
	case decode.KindRegisterPointer:
		addr := c.Reg(op.reg)
		v, pf, err := c.mem.ReadSized(addr, int(size))
		return v, pf, addr, err
	default: // KindImmediatePointer
		v, pf, err := c.mem.ReadSized(op.imm, int(size))
		return v, pf, op.imm, err
	}
}

// storeOperand writes value into op. Storing to an Immediate operand
// never happens: the decoder rejects an immediate destination.
func (c *CPU) storeOperand(op operand, value uint32, size decode.Size) (pageFault bool, faultAddr uint32, fatal error) {
	switch op.kind {
	case decode.KindRegister:
		c.setRegSized(op.reg, value, size)
		return false, 0, nil
	case decode.KindRegisterPointer:
		addr := c.Reg(op.reg)
		pf, err := c.mem.WriteSized(addr, value, int(size))
		return pf, addr, err
	default: // KindImmediatePointer
		pf, err := c.mem.WriteSized(op.imm, value, int(size))
		return pf, op.imm, err
	}
}

// pointerAddr returns the effective address a register-pointer or
// immediate-pointer destination resolves to; used by rta.
func (c *CPU) pointerAddr(op operand) uint32 {
	if op.kind == decode.KindRegisterPointer {
		return c.Reg(op.reg)
	}
	return op.imm
}
