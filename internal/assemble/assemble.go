/*
fox32 - Minimal two-pass textual assembler, used to build test fixture
programs instead of hand-encoding opcode bytes.

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

// Package assemble turns small fox32 programs (one instruction per line,
// `mnemonic[.cond][.size] dst, src`) into opcode bytes. It exists for test
// fixtures, not as a production toolchain component: unknown syntax is a
// hard error rather than a best-effort recovery.
//
// Syntax:
//
//	label:               defines a label at the current address
//	add.32 r0, 1         mnemonic, optional .cond, optional .size, operands
//	mov.8 [0x1000], r1   register-pointer and immediate-pointer operands
//	jmp.z loop           a bare identifier operand resolves as a label
//
// Operands are comma-separated in source order (destination, source);
// niladic and single-operand opcodes take zero or one operand respectively.
package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fox32vm/fox32/internal/decode"
)

var mnemonicToOp = map[string]decode.Op{
	"nop": decode.OpNop, "halt": decode.OpHalt, "brk": decode.OpBrk,
	"add": decode.OpAdd, "inc": decode.OpInc, "sub": decode.OpSub, "dec": decode.OpDec,
	"mul": decode.OpMul, "div": decode.OpDiv, "rem": decode.OpRem,
	"and": decode.OpAnd, "or": decode.OpOr, "xor": decode.OpXor, "not": decode.OpNot,
	"sla": decode.OpSla, "rol": decode.OpRol, "sra": decode.OpSra, "srl": decode.OpSrl, "ror": decode.OpRor,
	"bse": decode.OpBse, "bcl": decode.OpBcl, "bts": decode.OpBts,
	"cmp": decode.OpCmp, "mov": decode.OpMov, "movz": decode.OpMovz,
	"jmp": decode.OpJmp, "call": decode.OpCall, "loop": decode.OpLoop,
	"rjmp": decode.OpRjmp, "rcall": decode.OpRcall, "rloop": decode.OpRloop, "rta": decode.OpRta,
	"push": decode.OpPush, "pop": decode.OpPop, "ret": decode.OpRet, "reti": decode.OpReti,
	"in": decode.OpIn, "out": decode.OpOut,
	"ise": decode.OpIse, "icl": decode.OpIcl, "int": decode.OpInt,
	"mse": decode.OpMse, "mcl": decode.OpMcl, "tlb": decode.OpTlb, "flp": decode.OpFlp,
}

var opcodeByte = map[decode.Op]uint8{
	decode.OpNop: 0x00, decode.OpHalt: 0x10, decode.OpBrk: 0x20,
	decode.OpAdd: 0x01, decode.OpInc: 0x11, decode.OpSub: 0x21, decode.OpDec: 0x31,
	decode.OpMul: 0x02, decode.OpDiv: 0x22, decode.OpRem: 0x32,
	decode.OpAnd: 0x03, decode.OpOr: 0x13, decode.OpXor: 0x23, decode.OpNot: 0x33,
	decode.OpSla: 0x04, decode.OpRol: 0x24, decode.OpSra: 0x05, decode.OpSrl: 0x15, decode.OpRor: 0x25,
	decode.OpBse: 0x06, decode.OpBcl: 0x16, decode.OpBts: 0x26,
	decode.OpCmp: 0x07, decode.OpMov: 0x17, decode.OpMovz: 0x27,
	decode.OpJmp: 0x08, decode.OpCall: 0x18, decode.OpLoop: 0x28,
	decode.OpRjmp: 0x09, decode.OpRcall: 0x19, decode.OpRloop: 0x29, decode.OpRta: 0x39,
	decode.OpPush: 0x0A, decode.OpPop: 0x1A, decode.OpRet: 0x2A, decode.OpReti: 0x3A,
	decode.OpIn: 0x0B, decode.OpOut: 0x1B,
	decode.OpIse: 0x0C, decode.OpIcl: 0x1C, decode.OpInt: 0x2C,
	decode.OpMse: 0x0D, decode.OpMcl: 0x1D, decode.OpTlb: 0x2D, decode.OpFlp: 0x3D,
}

var condByName = map[string]decode.Cond{
	"":   decode.CondAlways,
	"z":  decode.CondZero,
	"nz": decode.CondNotZero,
	"c":  decode.CondCarry,
	"nc": decode.CondNotCarry,
	"g":  decode.CondGreater,
	"le": decode.CondLessEqual,
}

var niladicOps = map[decode.Op]bool{
	decode.OpNop: true, decode.OpHalt: true, decode.OpBrk: true,
	decode.OpRet: true, decode.OpReti: true,
	decode.OpIse: true, decode.OpIcl: true, decode.OpMse: true, decode.OpMcl: true,
}

var srcOnlyOps = map[decode.Op]bool{
	decode.OpJmp: true, decode.OpCall: true, decode.OpLoop: true,
	decode.OpRjmp: true, decode.OpRcall: true, decode.OpRloop: true,
	decode.OpPush: true, decode.OpPop: true, decode.OpInc: true, decode.OpDec: true, decode.OpNot: true,
	decode.OpInt: true, decode.OpTlb: true, decode.OpFlp: true,
}

type operand struct {
	kind  decode.OperandKind
	reg   uint8
	label string // non-empty if this operand resolves via a label
	value uint32
}

type line struct {
	addr uint32
	op   decode.Op
	cond decode.Cond
	size decode.Size
	dst  operand
	src  operand
}

// Assemble compiles source into a flat byte stream starting at base
// (labels resolve relative to base, matching how a ROM program's `jmp`
// targets are absolute addresses).
func Assemble(source string, base uint32) ([]byte, map[string]uint32, error) {
	labels := map[string]uint32{}
	var lines []line
	addr := base

	for n, raw := range strings.Split(source, "\n") {
		lineNo := n + 1
		text := stripComment(raw)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if strings.HasSuffix(text, ":") {
			name := strings.TrimSuffix(text, ":")
			if _, dup := labels[name]; dup {
				return nil, nil, fmt.Errorf("line %d: duplicate label %q", lineNo, name)
			}
			labels[name] = addr
			continue
		}

		ln, err := parseLine(text, addr, lineNo)
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, ln)
		addr += ln.length()
	}

	var out []byte
	for _, ln := range lines {
		encoded, err := ln.encode(labels)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, encoded...)
	}
	return out, labels, nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return s[:i]
	}
	return s
}

func (ln line) length() uint32 {
	n := uint32(2) // opcode half
	if niladicOps[ln.op] {
		return n
	}
	n += operandLen(ln.src, ln.size)
	if !srcOnlyOps[ln.op] {
		n += operandLen(ln.dst, ln.size)
	}
	return n
}

func operandLen(o operand, size decode.Size) uint32 {
	switch o.kind {
	case decode.KindRegister, decode.KindRegisterPointer:
		return 1
	case decode.KindImmediate:
		return uint32(size.Bytes())
	default: // KindImmediatePointer
		return 4
	}
}

func parseLine(text string, addr uint32, lineNo int) (line, error) {
	fields := strings.SplitN(text, " ", 2)
	mnemonicPart := fields[0]
	rest := ""
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}

	parts := strings.Split(mnemonicPart, ".")
	base := strings.ToLower(parts[0])
	op, ok := mnemonicToOp[base]
	if !ok {
		return line{}, fmt.Errorf("line %d: unknown mnemonic %q", lineNo, base)
	}

	cond := decode.CondAlways
	size := decode.SizeWord
	for _, suffix := range parts[1:] {
		suffix = strings.ToLower(suffix)
		if c, ok := condByName[suffix]; ok && suffix != "" {
			cond = c
			continue
		}
		switch suffix {
		case "8":
			size = decode.SizeByte
		case "16":
			size = decode.SizeHalf
		case "32":
			size = decode.SizeWord
		default:
			return line{}, fmt.Errorf("line %d: unknown suffix %q", lineNo, suffix)
		}
	}

	ln := line{addr: addr, op: op, cond: cond, size: size}
	if niladicOps[op] {
		return ln, nil
	}

	operandStrs := splitOperands(rest)
	if srcOnlyOps[op] {
		if len(operandStrs) != 1 {
			return line{}, fmt.Errorf("line %d: %s takes exactly one operand", lineNo, base)
		}
		src, err := parseOperand(operandStrs[0], true)
		if err != nil {
			return line{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		ln.src = src
		ln.dst = operand{kind: decode.KindRegister}
		return ln, nil
	}

	if len(operandStrs) != 2 {
		return line{}, fmt.Errorf("line %d: %s takes a destination and a source operand", lineNo, base)
	}
	dst, err := parseOperand(operandStrs[0], false)
	if err != nil {
		return line{}, fmt.Errorf("line %d: destination: %w", lineNo, err)
	}
	src, err := parseOperand(operandStrs[1], true)
	if err != nil {
		return line{}, fmt.Errorf("line %d: source: %w", lineNo, err)
	}
	ln.dst = dst
	ln.src = src
	return ln, nil
}

func splitOperands(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

var regByName = func() map[string]uint8 {
	m := map[string]uint8{"rsp": 32, "resp": 33, "rfp": 34}
	for i := 0; i < 32; i++ {
		m[fmt.Sprintf("r%d", i)] = uint8(i)
	}
	return m
}()

func parseOperand(s string, allowImmediate bool) (operand, error) {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if reg, ok := regByName[strings.ToLower(inner)]; ok {
			return operand{kind: decode.KindRegisterPointer, reg: reg}, nil
		}
		val, label, err := parseValue(inner)
		if err != nil {
			return operand{}, err
		}
		return operand{kind: decode.KindImmediatePointer, value: val, label: label}, nil
	}

	if reg, ok := regByName[strings.ToLower(s)]; ok {
		return operand{kind: decode.KindRegister, reg: reg}, nil
	}

	if !allowImmediate {
		return operand{}, fmt.Errorf("invalid destination operand %q", s)
	}
	val, label, err := parseValue(s)
	if err != nil {
		return operand{}, err
	}
	return operand{kind: decode.KindImmediate, value: val, label: label}, nil
}

// parseValue parses a numeric literal, a single-quoted character literal,
// or (if neither) treats s as a label reference to resolve in pass two.
func parseValue(s string) (value uint32, label string, err error) {
	if len(s) == 3 && s[0] == '\'' && s[2] == '\'' {
		return uint32(s[1]), "", nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, "", fmt.Errorf("invalid hex literal %q: %w", s, err)
		}
		return uint32(v), "", nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return uint32(v), "", nil
	}
	return 0, s, nil
}

func (ln line) encode(labels map[string]uint32) ([]byte, error) {
	opByte, ok := opcodeByte[ln.op]
	if !ok {
		return nil, fmt.Errorf("internal: no opcode byte for %v", ln.op)
	}

	var sizeBits uint16
	switch ln.size {
	case decode.SizeByte:
		sizeBits = 0
	case decode.SizeHalf:
		sizeBits = 1
	default:
		sizeBits = 2
	}

	half := sizeBits<<14 | uint16(opByte)<<8 | uint16(ln.cond)<<4 | uint16(ln.dst.kind)<<2 | uint16(ln.src.kind)
	out := []byte{byte(half), byte(half >> 8)}

	if niladicOps[ln.op] {
		return out, nil
	}

	srcBytes, err := ln.src.resolve(ln.size, labels)
	if err != nil {
		return nil, err
	}
	out = append(out, srcBytes...)

	if !srcOnlyOps[ln.op] {
		dstBytes, err := ln.dst.resolve(ln.size, labels)
		if err != nil {
			return nil, err
		}
		out = append(out, dstBytes...)
	}
	return out, nil
}

func (o operand) resolve(size decode.Size, labels map[string]uint32) ([]byte, error) {
	value := o.value
	if o.label != "" {
		v, ok := labels[o.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", o.label)
		}
		value = v
	}

	switch o.kind {
	case decode.KindRegister, decode.KindRegisterPointer:
		return []byte{o.reg}, nil
	case decode.KindImmediate:
		return leBytes(value, size.Bytes()), nil
	default: // KindImmediatePointer
		return leBytes(value, 4), nil
	}
}

func leBytes(v uint32, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
