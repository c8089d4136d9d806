/*
fox32 - Keyboard and mouse HID state: a bounded scan-code ring and a
mutex-protected mouse latch, both polled by the CPU through the I/O bus.

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
package hid

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// ringCapacity is the keyboard scan-code ring's fixed capacity.
const ringCapacity = 32

// Keyboard is a lock-free single-producer single-consumer bounded ring of
// pending scan codes. The HID task (producer) calls Push; the CPU task
// (consumer, via the I/O bus) calls Pop once per poll of the keyboard port.
type Keyboard struct {
	buf        [ringCapacity]uint8
	head, tail atomic.Uint32 // head: next write slot; tail: next read slot
}

// NewKeyboard returns an empty keyboard ring.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Push enqueues a scan code. On overflow it drops the newest key (the one
// just pushed) and logs a warning, per SPEC_FULL.md §5.
func (k *Keyboard) Push(code uint8) {
	h := k.head.Load()
	t := k.tail.Load()
	if h-t >= ringCapacity {
		slog.Warn("keyboard ring overflow, dropping scan code", "code", code)
		return
	}
	k.buf[h%ringCapacity] = code
	k.head.Store(h + 1)
}

// Pop removes and returns the oldest scan code, or (0, false) if empty.
// Per SPEC_FULL.md §4.4 the IO port reads 0 when empty rather than
// distinguishing "no key" from "key 0", so callers reading via the bus
// ignore the ok result.
func (k *Keyboard) Pop() (code uint8, ok bool) {
	t := k.tail.Load()
	h := k.head.Load()
	if t == h {
		return 0, false
	}
	v := k.buf[t%ringCapacity]
	k.tail.Store(t + 1)
	return v, true
}

// Mouse button latch bits, per SPEC_FULL.md §4.4.
const (
	MouseClicked  uint32 = 1 << 0
	MouseReleased uint32 = 1 << 1
	MouseHeld     uint32 = 1 << 2
)

// Mouse is the mutex-protected button-latch and position state the HID
// task writes and the CPU reads through the I/O bus.
type Mouse struct {
	mu       sync.Mutex
	buttons  uint32
	position uint32 // y<<16 | x
}

// NewMouse returns a mouse with no buttons held and position (0, 0).
func NewMouse() *Mouse {
	return &Mouse{}
}

// SetButton ORs bits into the latch (HID task reporting an edge or hold).
func (m *Mouse) SetButton(bits uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons |= bits
}

// ReadButtons returns the latch and clears the clicked/released edge bits,
// leaving "held" untouched, per SPEC_FULL.md §4.4 ("reads clear the
// clicked/released edge flags").
func (m *Mouse) ReadButtons() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.buttons
	m.buttons &^= MouseClicked | MouseReleased
	return v
}

// WriteButtons overwrites the latch verbatim (the IO port also allows a
// guest write to the button latch).
func (m *Mouse) WriteButtons(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons = v
}

// SetPosition records the mouse position as y<<16|x.
func (m *Mouse) SetPosition(packed uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = packed
}

// Position returns the current y<<16|x position.
func (m *Mouse) Position() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}
