/*
fox32 - ALU semantics: arithmetic, logic, shift, and bit-test helpers.

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

// sizeMask returns the bitmask covering the low bits of an operand size.
func sizeMask(size decode.Size) uint64 {
	return (uint64(1) << uint(size)) - 1
}

// truncate narrows a 64-bit intermediate result to size bits.
func truncate(v uint64, size decode.Size) uint32 {
	return uint32(v & sizeMask(size))
}

// aluAdd computes dst+src at size, wrapping, and reports the flags.
func aluAdd(dst, src uint32, size decode.Size) (result uint32, zero, carry bool) {
	sum := uint64(dst&uint32(sizeMask(size))) + uint64(src&uint32(sizeMask(size)))
	result = truncate(sum, size)
	zero = result == 0
	carry = sum > sizeMask(size)
	return
}

// aluSub computes dst-src at size, wrapping, and reports the flags.
// Used by sub, cmp, and dec (src=1).
func aluSub(dst, src uint32, size decode.Size) (result uint32, zero, carry bool) {
	mask := sizeMask(size)
	d := uint64(dst) & mask
	s := uint64(src) & mask
	diff := (d - s) & mask
	result = truncate(diff, size)
	zero = result == 0
	carry = d < s
	return
}

// aluMul computes dst*src at size, wrapping, and reports overflow as
// both zero and carry per SPEC_FULL.md §4.3 ("mul: set zero and carry
// on overflow").
func aluMul(dst, src uint32, size decode.Size) (result uint32, zero, carry bool) {
	mask := sizeMask(size)
	product := (uint64(dst) & mask) * (uint64(src) & mask)
	result = truncate(product, size)
	overflow := product > mask
	zero = overflow
	carry = overflow
	return
}

// aluAnd/Or/Xor update zero only; carry is untouched by the caller.
func aluAnd(dst, src uint32, size decode.Size) (result uint32, zero bool) {
	result = truncate(uint64(dst)&uint64(src), size)
	return result, result == 0
}

func aluOr(dst, src uint32, size decode.Size) (result uint32, zero bool) {
	result = truncate(uint64(dst)|uint64(src), size)
	return result, result == 0
}

func aluXor(dst, src uint32, size decode.Size) (result uint32, zero bool) {
	result = truncate(uint64(dst)^uint64(src), size)
	return result, result == 0
}

// aluNot computes the bitwise NOT of the full 32-bit register value and
// reports it truncated to size; callers write only the low size bits
// back, preserving the destination's upper bits (SPEC_FULL.md §9).
func aluNot(dst uint32, size decode.Size) (result uint32, zero bool) {
	result = truncate(uint64(^dst), size)
	return result, result == 0
}

// shiftCount masks a shift/rotate amount modulo the operand width, per
// SPEC_FULL.md §9 ("shifts mask the shift count modulo the width").
func shiftCount(count uint32, size decode.Size) uint32 {
	return count & (uint32(size) - 1)
}

// aluSLA is a logical shift left; the bit shifted out becomes carry.
func aluSLA(dst, count uint32, size decode.Size) (result uint32, zero, carry bool) {
	n := shiftCount(count, size)
	mask := sizeMask(size)
	v := uint64(dst) & mask
	if n == 0 {
		result = truncate(v, size)
		return result, result == 0, false
	}
	out := (v >> (uint(size) - uint(n))) & 1
	result = truncate(v<<n, size)
	return result, result == 0, out != 0
}

// aluSRL is a logical (unsigned) shift right.
func aluSRL(dst, count uint32, size decode.Size) (result uint32, zero, carry bool) {
	n := shiftCount(count, size)
	mask := sizeMask(size)
	v := uint64(dst) & mask
	if n == 0 {
		result = truncate(v, size)
		return result, result == 0, false
	}
	out := (v >> (n - 1)) & 1
	result = truncate(v>>n, size)
	return result, result == 0, out != 0
}

// aluSRA is an arithmetic (sign-extending) shift right.
func aluSRA(dst, count uint32, size decode.Size) (result uint32, zero, carry bool) {
	n := shiftCount(count, size)
	mask := sizeMask(size)
	v := uint64(dst) & mask
	signBit := uint64(1) << (uint(size) - 1)
	negative := v&signBit != 0
	if n == 0 {
		result = truncate(v, size)
		return result, result == 0, false
	}
	out := (v >> (n - 1)) & 1
	shifted := v >> n
	if negative {
		// Sign-extend the vacated high bits with ones.
		fill := (mask << (uint(size) - uint(n))) & mask
		shifted |= fill
	}
	result = truncate(shifted, size)
	return result, result == 0, out != 0
}

// aluROL rotates left; the bit rotated out (== bit rotated in) is carry.
func aluROL(dst, count uint32, size decode.Size) (result uint32, zero, carry bool) {
	n := shiftCount(count, size)
	mask := sizeMask(size)
	v := uint64(dst) & mask
	w := uint(size)
	if n == 0 {
		result = truncate(v, size)
		return result, result == 0, false
	}
	rotated := ((v << n) | (v >> (w - uint(n)))) & mask
	out := (v >> (w - uint(n))) & 1
	result = truncate(rotated, size)
	return result, result == 0, out != 0
}

// aluROR rotates right.
func aluROR(dst, count uint32, size decode.Size) (result uint32, zero, carry bool) {
	n := shiftCount(count, size)
	mask := sizeMask(size)
	v := uint64(dst) & mask
	w := uint(size)
	if n == 0 {
		result = truncate(v, size)
		return result, result == 0, false
	}
	rotated := ((v >> n) | (v << (w - uint(n)))) & mask
	out := (v >> (n - 1)) & 1
	result = truncate(rotated, size)
	return result, result == 0, out != 0
}

// bitSet/bitClear implement bse/bcl: set or clear bit n of dst.
func bitSet(dst, n uint32) uint32 {
	return dst | (1 << (n & 31))
}

func bitClear(dst, n uint32) uint32 {
	return dst &^ (1 << (n & 31))
}

// bitTestZero implements bts's flag: zero iff bit n is clear in dst.
func bitTestZero(dst, n uint32) bool {
	return dst&(1<<(n&31)) == 0
}
