/*
fox32 - Overlay compositor: 32 RGBA sprites blended over a background.

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
package overlay

import (
	"image"
	"image/color"
	"sync"
)

// Count is the number of overlay slots.
const Count = 32

// Width and Height are the fixed background dimensions.
const (
	Width  = 640
	Height = 480
)

// Overlay is one sprite's control-word state, addressed by the I/O bus's
// per-overlay settings (position, size, framebuffer pointer, enable).
type Overlay struct {
	X, Y         uint16
	W, H         uint16
	FramePointer uint32
	Enabled      bool
}

// Table is the mutex-protected array of 32 overlays: the CPU task writes
// it via IO ports, the display task reads it once per frame.
type Table struct {
	mu       sync.Mutex
	overlays [Count]Overlay
}

// NewTable returns a table with all overlays disabled.
func NewTable() *Table {
	return &Table{}
}

// SetPosition, SetSize, SetFramePointer, and SetEnabled update one field of
// overlay index (0..31); out-of-range indices are ignored. The I/O bus
// passes port&0xFF as the index, so indices 32..255 do reach these
// methods and are dropped here.
func (t *Table) SetPosition(index int, packed uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return
	}
	t.overlays[index].X = uint16(packed & 0xFFFF)
	t.overlays[index].Y = uint16(packed >> 16)
}

func (t *Table) SetSize(index int, packed uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return
	}
	t.overlays[index].W = uint16(packed & 0xFFFF)
	t.overlays[index].H = uint16(packed >> 16)
}

func (t *Table) SetFramePointer(index int, ptr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return
	}
	t.overlays[index].FramePointer = ptr
}

func (t *Table) SetEnabled(index int, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return
	}
	t.overlays[index].Enabled = enabled
}

// Position, Size, FramePointer, and Enabled read back one field, packed
// the same way the I/O bus reports it.
func (t *Table) Position(index int) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return 0
	}
	o := t.overlays[index]
	return uint32(o.Y)<<16 | uint32(o.X)
}

func (t *Table) Size(index int) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return 0
	}
	o := t.overlays[index]
	return uint32(o.H)<<16 | uint32(o.W)
}

func (t *Table) FramePointer(index int) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return 0
	}
	return t.overlays[index].FramePointer
}

func (t *Table) Enabled(index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= Count {
		return false
	}
	return t.overlays[index].Enabled
}

// snapshot copies the overlay array under lock, so Composite never holds
// the mutex while it blits (display work can be slow; the CPU task must
// not stall on it).
func (t *Table) snapshot() [Count]Overlay {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overlays
}

// Composite blits every enabled overlay in index order (0 first, 31 last;
// later overlays win on overlap) from ram onto bg, clipping each to the
// background's right and bottom edges. A pixel whose alpha byte is 0 is
// skipped; all others are copied verbatim, per SPEC_FULL.md §4.7.
func Composite(bg *image.RGBA, table *Table, ram []byte) {
	overlays := table.snapshot()
	for i := range overlays {
		o := overlays[i]
		if !o.Enabled || o.W == 0 || o.H == 0 {
			continue
		}
		blit(bg, o, ram)
	}
}

func blit(bg *image.RGBA, o Overlay, ram []byte) {
	w, h := int(o.W), int(o.H)
	x0, y0 := int(o.X), int(o.Y)

	bounds := bg.Bounds()
	if x0 >= bounds.Max.X || y0 >= bounds.Max.Y {
		return
	}
	if x0+w > bounds.Max.X {
		w = bounds.Max.X - x0
	}
	if y0+h > bounds.Max.Y {
		h = bounds.Max.Y - y0
	}

	stride := int(o.W) * 4
	base := int64(o.FramePointer)
	for row := 0; row < h; row++ {
		srcRow := base + int64(row)*int64(stride)
		for col := 0; col < w; col++ {
			off := srcRow + int64(col)*4
			if off < 0 || off+4 > int64(len(ram)) {
				continue
			}
			a := ram[off+3]
			if a == 0 {
				continue
			}
			bg.SetRGBA(x0+col, y0+row, color.RGBA{
				R: ram[off],
				G: ram[off+1],
				B: ram[off+2],
				A: a,
			})
		}
	}
}
