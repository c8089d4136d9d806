package hid

import "testing"

func TestKeyboardPushPopOrder(t *testing.T) {
	k := NewKeyboard()
	k.Push(1)
	k.Push(2)
	k.Push(3)

	for _, want := range []uint8{1, 2, 3} {
		got, ok := k.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %d, %v, want %d, true", got, ok, want)
		}
	}
	if _, ok := k.Pop(); ok {
		t.Error("Pop() on empty ring reported ok")
	}
}

func TestKeyboardPopEmptyReturnsZero(t *testing.T) {
	k := NewKeyboard()
	code, ok := k.Pop()
	if ok || code != 0 {
		t.Errorf("Pop() on empty ring = %d, %v, want 0, false", code, ok)
	}
}

func TestKeyboardOverflowDropsNewest(t *testing.T) {
	k := NewKeyboard()
	for i := 0; i < ringCapacity; i++ {
		k.Push(uint8(i))
	}
	k.Push(0xFF) // ring is full; this push should be dropped

	for i := 0; i < ringCapacity; i++ {
		got, ok := k.Pop()
		if !ok || got != uint8(i) {
			t.Fatalf("Pop() #%d = %d, %v, want %d, true", i, got, ok, i)
		}
	}
	if _, ok := k.Pop(); ok {
		t.Error("ring produced more entries than its capacity")
	}
}

func TestMouseButtonsClickedReleasedClearOnRead(t *testing.T) {
	m := NewMouse()
	m.SetButton(MouseClicked | MouseHeld)

	got := m.ReadButtons()
	if got != MouseClicked|MouseHeld {
		t.Fatalf("ReadButtons() = %#x, want %#x", got, MouseClicked|MouseHeld)
	}

	// Clicked should have cleared; Held persists.
	got = m.ReadButtons()
	if got != MouseHeld {
		t.Errorf("ReadButtons() after clear = %#x, want %#x (held only)", got, MouseHeld)
	}
}

func TestMouseWriteButtonsOverwrites(t *testing.T) {
	m := NewMouse()
	m.SetButton(MouseHeld)
	m.WriteButtons(MouseClicked)
	if got := m.ReadButtons(); got != MouseClicked {
		t.Errorf("ReadButtons() after WriteButtons = %#x, want %#x", got, MouseClicked)
	}
}

func TestMousePositionRoundTrip(t *testing.T) {
	m := NewMouse()
	const x, y = uint32(123), uint32(456)
	packed := y<<16 | x
	m.SetPosition(packed)
	if got := m.Position(); got != packed {
		t.Errorf("Position() = %#x, want %#x", got, packed)
	}
}
