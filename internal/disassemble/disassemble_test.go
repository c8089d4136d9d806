package disassemble

import (
	"testing"

	"github.com/fox32vm/fox32/internal/assemble"
	"github.com/fox32vm/fox32/internal/decode"
	"github.com/fox32vm/fox32/internal/memory"
)

func assembleAndLoad(t *testing.T, source string) *memory.Memory {
	t.Helper()
	code, _, err := assemble.Assemble(source, memory.ROMBase)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	m := memory.New(0x10000, uint32(len(code)))
	m.LoadROM(code)
	return m
}

func decodeAt(t *testing.T, m *memory.Memory, addr uint32) decode.Instruction {
	t.Helper()
	b0, _, _ := m.Read8(addr)
	b1, _, _ := m.Read8(addr + 1)
	half := uint16(b0) | uint16(b1)<<8
	inst, ok := decode.Decode(half)
	if !ok {
		t.Fatalf("Decode(%#04x) at %#x reported not-ok", half, addr)
	}
	return inst
}

func TestInstructionRendersBinaryMovInDestSourceOrder(t *testing.T) {
	m := assembleAndLoad(t, "mov r0, 5")
	inst := decodeAt(t, m, memory.ROMBase)
	text, length, ok := Instruction(m, memory.ROMBase, inst)
	if !ok {
		t.Fatal("Instruction reported not-ok")
	}
	want := "mov.32 r0, 0x5"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if length != 7 {
		t.Errorf("length = %d, want 7", length)
	}
}

func TestInstructionRendersSrcOnlyOp(t *testing.T) {
	m := assembleAndLoad(t, "push r3")
	inst := decodeAt(t, m, memory.ROMBase)
	text, _, ok := Instruction(m, memory.ROMBase, inst)
	if !ok {
		t.Fatal("Instruction reported not-ok")
	}
	if text != "push.32 r3" {
		t.Errorf("text = %q, want %q", text, "push.32 r3")
	}
}

func TestInstructionRendersNiladicOpWithNoSizeSuffix(t *testing.T) {
	m := assembleAndLoad(t, "halt")
	inst := decodeAt(t, m, memory.ROMBase)
	text, length, ok := Instruction(m, memory.ROMBase, inst)
	if !ok {
		t.Fatal("Instruction reported not-ok")
	}
	if text != "halt" {
		t.Errorf("text = %q, want %q", text, "halt")
	}
	if length != 2 {
		t.Errorf("length = %d, want 2", length)
	}
}

func TestInstructionRendersConditionSuffix(t *testing.T) {
	m := assembleAndLoad(t, "mov.z r0, r1")
	inst := decodeAt(t, m, memory.ROMBase)
	text, _, ok := Instruction(m, memory.ROMBase, inst)
	if !ok {
		t.Fatal("Instruction reported not-ok")
	}
	if text != "mov.z.32 r0, r1" {
		t.Errorf("text = %q, want %q", text, "mov.z.32 r0, r1")
	}
}

func TestInstructionRendersRegisterPointerOperand(t *testing.T) {
	m := assembleAndLoad(t, "mov [r1], r0")
	inst := decodeAt(t, m, memory.ROMBase)
	text, _, ok := Instruction(m, memory.ROMBase, inst)
	if !ok {
		t.Fatal("Instruction reported not-ok")
	}
	if text != "mov.32 [r1], r0" {
		t.Errorf("text = %q, want %q", text, "mov.32 [r1], r0")
	}
}

func TestInstructionRendersSpecialRegisterNames(t *testing.T) {
	m := assembleAndLoad(t, "mov rsp, 0x2000")
	inst := decodeAt(t, m, memory.ROMBase)
	text, _, ok := Instruction(m, memory.ROMBase, inst)
	if !ok {
		t.Fatal("Instruction reported not-ok")
	}
	if text != "mov.32 rsp, 0x2000" {
		t.Errorf("text = %q, want %q", text, "mov.32 rsp, 0x2000")
	}
}

func TestInstructionTruncatedOperandIsNotOK(t *testing.T) {
	m := assembleAndLoad(t, "mov r0, 5")
	inst := decodeAt(t, m, memory.ROMBase)
	// memory.ROMBase + len(rom) - 1 leaves only one readable byte, not
	// enough for the 4-byte immediate source tail.
	if _, _, ok := Instruction(m, memory.ROMBase+uint32(m.ROMSize())-1, inst); ok {
		t.Error("Instruction should report not-ok when an operand tail runs past readable memory")
	}
}
