package decode

import "testing"

func encode(size Size, opcode uint8, cond Cond, dst, src OperandKind) uint16 {
	var sizeBits uint16
	switch size {
	case SizeByte:
		sizeBits = 0
	case SizeHalf:
		sizeBits = 1
	case SizeWord:
		sizeBits = 2
	}
	return sizeBits<<14 | uint16(opcode)<<8 | uint16(cond)<<4 | uint16(dst)<<2 | uint16(src)
}

func TestDecodeKnownOpcode(t *testing.T) {
	half := encode(SizeWord, 0x01, CondAlways, KindRegister, KindImmediate)
	inst, ok := Decode(half)
	if !ok {
		t.Fatalf("Decode(%#04x) reported not-ok", half)
	}
	if inst.Op != OpAdd {
		t.Errorf("Op = %v, want OpAdd", inst.Op)
	}
	if inst.Size != SizeWord {
		t.Errorf("Size = %v, want SizeWord", inst.Size)
	}
	if inst.Dst != KindRegister || inst.Src != KindImmediate {
		t.Errorf("Dst/Src = %v/%v, want Register/Immediate", inst.Dst, inst.Src)
	}
}

func TestDecodeUndefinedOpcode(t *testing.T) {
	half := encode(SizeWord, 0x3F, CondAlways, KindRegister, KindRegister)
	if _, ok := Decode(half); ok {
		t.Error("Decode reported ok for an undefined opcode field")
	}
}

func TestDecodeInvalidCondRejected(t *testing.T) {
	half := encode(SizeWord, 0x01, CondAlways, KindRegister, KindRegister) | (7 << 4)
	if _, ok := Decode(half); ok {
		t.Error("Decode reported ok for condition value 7, which is out of range")
	}
}

func TestDecodeImmediateDestinationRejected(t *testing.T) {
	half := encode(SizeWord, 0x01, CondAlways, KindImmediate, KindRegister)
	if _, ok := Decode(half); ok {
		t.Error("Decode reported ok for an immediate destination, which has no wire encoding")
	}
}

func TestDecodeAllSizes(t *testing.T) {
	cases := []struct {
		size Size
		want Size
	}{
		{SizeByte, SizeByte},
		{SizeHalf, SizeHalf},
		{SizeWord, SizeWord},
	}
	for _, tc := range cases {
		half := encode(tc.size, 0x00, CondAlways, KindRegister, KindRegister)
		inst, ok := Decode(half)
		if !ok || inst.Size != tc.want {
			t.Errorf("size bits for %v: got %v, ok=%v", tc.size, inst.Size, ok)
		}
	}
}

func TestEvalCond(t *testing.T) {
	cases := []struct {
		cond        Cond
		zero, carry bool
		want        bool
	}{
		{CondAlways, false, false, true},
		{CondZero, true, false, true},
		{CondZero, false, false, false},
		{CondNotZero, false, false, true},
		{CondCarry, false, true, true},
		{CondNotCarry, false, false, true},
		{CondGreater, false, false, true},
		{CondGreater, true, false, false},
		{CondGreater, false, true, false},
		{CondLessEqual, true, false, true},
		{CondLessEqual, false, true, true},
		{CondLessEqual, false, false, false},
	}
	for _, tc := range cases {
		if got := EvalCond(tc.cond, tc.zero, tc.carry); got != tc.want {
			t.Errorf("EvalCond(%v, zero=%v, carry=%v) = %v, want %v", tc.cond, tc.zero, tc.carry, got, tc.want)
		}
	}
}
