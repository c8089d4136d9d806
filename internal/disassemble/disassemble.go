/*
fox32 - Textual disassembly of one decoded instruction.

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
package disassemble

import (
	"fmt"
	"strings"

	"github.com/fox32vm/fox32/internal/decode"
)

// mnemonics names every Op for the disassembler. internal/assemble keeps
// its own mnemonic-to-Op map and does not use this table.
var mnemonics = map[decode.Op]string{
	decode.OpNop: "nop", decode.OpHalt: "halt", decode.OpBrk: "brk",
	decode.OpAdd: "add", decode.OpInc: "inc", decode.OpSub: "sub", decode.OpDec: "dec",
	decode.OpMul: "mul", decode.OpDiv: "div", decode.OpRem: "rem",
	decode.OpAnd: "and", decode.OpOr: "or", decode.OpXor: "xor", decode.OpNot: "not",
	decode.OpSla: "sla", decode.OpRol: "rol", decode.OpSra: "sra", decode.OpSrl: "srl", decode.OpRor: "ror",
	decode.OpBse: "bse", decode.OpBcl: "bcl", decode.OpBts: "bts",
	decode.OpCmp: "cmp", decode.OpMov: "mov", decode.OpMovz: "movz",
	decode.OpJmp: "jmp", decode.OpCall: "call", decode.OpLoop: "loop",
	decode.OpRjmp: "rjmp", decode.OpRcall: "rcall", decode.OpRloop: "rloop", decode.OpRta: "rta",
	decode.OpPush: "push", decode.OpPop: "pop", decode.OpRet: "ret", decode.OpReti: "reti",
	decode.OpIn: "in", decode.OpOut: "out",
	decode.OpIse: "ise", decode.OpIcl: "icl", decode.OpInt: "int",
	decode.OpMse: "mse", decode.OpMcl: "mcl", decode.OpTlb: "tlb", decode.OpFlp: "flp",
}

var condSuffix = map[decode.Cond]string{
	decode.CondAlways:    "",
	decode.CondZero:      ".z",
	decode.CondNotZero:   ".nz",
	decode.CondCarry:     ".c",
	decode.CondNotCarry:  ".nc",
	decode.CondGreater:   ".g",
	decode.CondLessEqual: ".le",
}

func sizeSuffix(size decode.Size) string {
	switch size {
	case decode.SizeByte:
		return ".8"
	case decode.SizeHalf:
		return ".16"
	default:
		return ".32"
	}
}

func regName(id uint8) string {
	switch id {
	case 32:
		return "rsp"
	case 33:
		return "resp"
	case 34:
		return "rfp"
	default:
		return fmt.Sprintf("r%d", id)
	}
}

// niladic lists opcodes with no operand tail at all.
var niladic = map[decode.Op]bool{
	decode.OpNop: true, decode.OpHalt: true, decode.OpBrk: true,
	decode.OpRet: true, decode.OpReti: true,
	decode.OpIse: true, decode.OpIcl: true, decode.OpMse: true, decode.OpMcl: true,
}

// srcOnly lists opcodes that consume only a source-tail operand.
var srcOnly = map[decode.Op]bool{
	decode.OpJmp: true, decode.OpCall: true, decode.OpLoop: true,
	decode.OpRjmp: true, decode.OpRcall: true, decode.OpRloop: true,
	decode.OpPush: true, decode.OpPop: true, decode.OpInc: true, decode.OpDec: true, decode.OpNot: true,
	decode.OpInt: true, decode.OpTlb: true, decode.OpFlp: true,
}

// MemReader is the narrow read-only memory access disassembly needs; it is
// satisfied by *memory.Memory.
type MemReader interface {
	Read8(addr uint32) (value uint8, pageFault bool, fatal error)
}

// operandText reads one operand's tail bytes starting at addr and renders
// it, returning the new address (advanced past the tail) and false if a
// read faulted partway through.
func operandText(mem MemReader, addr uint32, kind decode.OperandKind, size decode.Size, pointerBrackets bool) (string, uint32, bool) {
	readByte := func() (uint8, bool) {
		v, pf, err := mem.Read8(addr)
		if pf || err != nil {
			return 0, false
		}
		addr++
		return v, true
	}
	readSized := func(n int) (uint32, bool) {
		var v uint32
		for i := 0; i < n; i++ {
			b, ok := readByte()
			if !ok {
				return 0, false
			}
			v |= uint32(b) << (8 * i)
		}
		return v, true
	}

	switch kind {
	case decode.KindRegister:
		id, ok := readByte()
		if !ok {
			return "", addr, false
		}
		return regName(id), addr, true
	case decode.KindRegisterPointer:
		id, ok := readByte()
		if !ok {
			return "", addr, false
		}
		return "[" + regName(id) + "]", addr, true
	case decode.KindImmediate:
		v, ok := readSized(size.Bytes())
		if !ok {
			return "", addr, false
		}
		return fmt.Sprintf("0x%x", v), addr, true
	default: // KindImmediatePointer
		v, ok := readSized(4)
		if !ok {
			return "", addr, false
		}
		if pointerBrackets {
			return fmt.Sprintf("[0x%x]", v), addr, true
		}
		return fmt.Sprintf("0x%x", v), addr, true
	}
}

// Instruction renders one decoded instruction at ip, in source order
// (mnemonic, destination, source) even though the wire order reads source
// before destination.
func Instruction(mem MemReader, ip uint32, inst decode.Instruction) (text string, length int, ok bool) {
	name, known := mnemonics[inst.Op]
	if !known {
		return "", 0, false
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteString(condSuffix[inst.Cond])
	if !niladic[inst.Op] {
		b.WriteString(sizeSuffix(inst.Size))
	}

	addr := ip + 2

	if niladic[inst.Op] {
		return b.String(), int(addr - ip), true
	}

	srcText, addr2, fok := operandText(mem, addr, inst.Src, inst.Size, true)
	if !fok {
		return "", 0, false
	}
	addr = addr2

	if srcOnly[inst.Op] {
		b.WriteString(" ")
		b.WriteString(srcText)
		return b.String(), int(addr - ip), true
	}

	dstText, addr3, dok := operandText(mem, addr, inst.Dst, inst.Size, true)
	if !dok {
		return "", 0, false
	}
	addr = addr3

	b.WriteString(" ")
	b.WriteString(dstText)
	b.WriteString(", ")
	b.WriteString(srcText)
	return b.String(), int(addr - ip), true
}
