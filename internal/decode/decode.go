/*
fox32 - Instruction decoder.

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
package decode

// Size is an operand width.
type Size int

const (
	SizeByte Size = 8
	SizeHalf Size = 16
	SizeWord Size = 32
)

// Bytes reports how many bytes an operand of this size occupies.
func (s Size) Bytes() int {
	return int(s) / 8
}

// Cond is the 3-bit execution condition field.
type Cond uint8

const (
	CondAlways Cond = 0
	CondZero   Cond = 1
	CondNotZero Cond = 2
	CondCarry  Cond = 3
	CondNotCarry Cond = 4
	CondGreater Cond = 5
	CondLessEqual Cond = 6
)

// OperandKind distinguishes register, register-pointer, immediate, and
// immediate-pointer operands.
type OperandKind uint8

const (
	KindRegister OperandKind = iota
	KindRegisterPointer
	KindImmediate
	KindImmediatePointer
)

// Op identifies a decoded opcode mnemonic.
type Op int

const (
	OpNop Op = iota
	OpHalt
	OpBrk
	OpAdd
	OpInc
	OpSub
	OpDec
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpNot
	OpSla
	OpRol
	OpSra
	OpSrl
	OpRor
	OpBse
	OpBcl
	OpBts
	OpCmp
	OpMov
	OpMovz
	OpJmp
	OpCall
	OpLoop
	OpRjmp
	OpRcall
	OpRloop
	OpRta
	OpPush
	OpPop
	OpRet
	OpReti
	OpIn
	OpOut
	OpIse
	OpIcl
	OpInt
	OpMse
	OpMcl
	OpTlb
	OpFlp
)

// opDef is one row of the 6-bit opcode table (§6 of SPEC_FULL.md).
type opDef struct {
	op      Op
	defined bool
}

// opcode table indexed by the raw 6-bit field.
var opTable = func() [64]opDef {
	var t [64]opDef
	set := func(code uint8, op Op) { t[code] = opDef{op: op, defined: true} }

	set(0x00, OpNop)
	set(0x10, OpHalt)
	set(0x20, OpBrk)
	set(0x01, OpAdd)
	set(0x11, OpInc)
	set(0x21, OpSub)
	set(0x31, OpDec)
	set(0x02, OpMul)
	set(0x22, OpDiv)
	set(0x32, OpRem)
	set(0x03, OpAnd)
	set(0x13, OpOr)
	set(0x23, OpXor)
	set(0x33, OpNot)
	set(0x04, OpSla)
	set(0x24, OpRol)
	set(0x05, OpSra)
	set(0x15, OpSrl)
	set(0x25, OpRor)
	set(0x06, OpBse)
	set(0x16, OpBcl)
	set(0x26, OpBts)
	set(0x07, OpCmp)
	set(0x17, OpMov)
	set(0x27, OpMovz)
	set(0x08, OpJmp)
	set(0x18, OpCall)
	set(0x28, OpLoop)
	set(0x09, OpRjmp)
	set(0x19, OpRcall)
	set(0x29, OpRloop)
	set(0x39, OpRta)
	set(0x0A, OpPush)
	set(0x1A, OpPop)
	set(0x2A, OpRet)
	set(0x3A, OpReti)
	set(0x0B, OpIn)
	set(0x1B, OpOut)
	set(0x0C, OpIse)
	set(0x1C, OpIcl)
	set(0x2C, OpInt)
	set(0x0D, OpMse)
	set(0x1D, OpMcl)
	set(0x2D, OpTlb)
	set(0x3D, OpFlp)

	return t
}()

// Instruction is a fully decoded opcode half-word.
type Instruction struct {
	Raw  uint16
	Size Size
	Op   Op
	Cond Cond
	Dst  OperandKind
	Src  OperandKind
}

// Decode parses a 16-bit opcode half-word per SPEC_FULL.md §3's field
// layout: [size:2][opcode:6][reserved:1][cond:3][dst:2][src:2].
// It reports ok=false for any undefined field or unlisted opcode.
func Decode(half uint16) (Instruction, bool) {
	sizeBits := (half >> 14) & 0x3
	opcodeBits := uint8((half >> 8) & 0x3F)
	condBits := Cond((half >> 4) & 0x7)
	dstBits := OperandKind((half >> 2) & 0x3)
	srcBits := OperandKind(half & 0x3)

	var size Size
	switch sizeBits {
	case 0:
		size = SizeByte
	case 1:
		size = SizeHalf
	case 2:
		size = SizeWord
	default:
		return Instruction{}, false
	}

	if condBits > CondLessEqual {
		return Instruction{}, false
	}

	// dst: 0 register, 1 register-pointer, 3 immediate-pointer; 2 (the
	// wire slot an immediate destination would occupy) is undefined, so
	// an immediate dst can never decode.
	if dstBits == KindImmediate {
		return Instruction{}, false
	}

	def := opTable[opcodeBits]
	if !def.defined {
		return Instruction{}, false
	}

	return Instruction{
		Raw:  half,
		Size: size,
		Op:   def.op,
		Cond: condBits,
		Dst:  dstBits,
		Src:  srcBits,
	}, true
}

// EvalCond reports whether the condition holds given the flags.
func EvalCond(cond Cond, zero, carry bool) bool {
	switch cond {
	case CondAlways:
		return true
	case CondZero:
		return zero
	case CondNotZero:
		return !zero
	case CondCarry:
		return carry
	case CondNotCarry:
		return !carry
	case CondGreater:
		return !carry && !zero
	case CondLessEqual:
		return carry || zero
	default:
		return false
	}
}
