/*
fox32 - Memory-mapped I/O bus: routes `in`/`out` port accesses to the
terminal sink, overlay compositor, HID devices, audio channel, and disk
controller.

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
package iobus

import (
	"io"
	"log/slog"

	"github.com/fox32vm/fox32/internal/audio"
	"github.com/fox32vm/fox32/internal/disk"
	"github.com/fox32vm/fox32/internal/hid"
	"github.com/fox32vm/fox32/internal/overlay"
)

// Port ranges and fixed addresses, per SPEC_FULL.md §4.4.
const (
	portTerminal = 0x00000000

	overlayBase = 0x80000000
	overlayTop  = 0x8000031F

	portMouseButtons = 0x80000400
	portMousePos     = 0x80000401

	portKeyboard = 0x80000500
	portAudio    = 0x80000600

	diskBase = 0x80001000
	diskTop  = 0x80005FFF
)

// Disk controller sub-operations: named after the spec's 0x10/.../0x50
// labels, which are (port>>12)&0xF multiplied by 0x10 for readability —
// the actual shifted field only ever takes values 1..5.
const (
	diskOpMountState  = 1
	diskOpBufferBase  = 2
	diskOpReadSector  = 3
	diskOpWriteSector = 4
	diskOpUnmount     = 5
)

// ramAccessor is the slice of Memory the bus DMAs disk sectors through.
type ramAccessor interface {
	RAM() []byte
}

// Bus implements cpu.Bus, dispatching port accesses to the device layer.
// Per SPEC_FULL.md §4.4's closing line, any port outside the documented
// ranges reads 0 and ignores writes.
type Bus struct {
	Terminal io.Writer
	Overlays *overlay.Table
	Keyboard *hid.Keyboard
	Mouse    *hid.Mouse
	Audio    *audio.Channel
	Disk     *disk.Controller
	Mem      ramAccessor

	// OnFatal is invoked for every error a disk sector operation raises:
	// disk.ErrSeekPastEnd (seek past the end of the device, or a RAM buffer
	// that would run past the end of RAM) as well as slot-range and
	// not-mounted errors. If nil, the error is logged and the operation is
	// treated as a no-op rather than crashing the bus.
	OnFatal func(error)

	diskBufferPtr [disk.Slots]uint32
}

// New returns a bus with no terminal sink configured; callers should set
// Terminal before use (cmd/fox32 wires it to stdout).
func New(overlays *overlay.Table, kb *hid.Keyboard, mouse *hid.Mouse, ch *audio.Channel, dc *disk.Controller, mem ramAccessor) *Bus {
	return &Bus{
		Overlays: overlays,
		Keyboard: kb,
		Mouse:    mouse,
		Audio:    ch,
		Disk:     dc,
		Mem:      mem,
	}
}

// Read implements cpu.Bus.
func (b *Bus) Read(port uint32) uint32 {
	switch {
	case port == portTerminal:
		return 0
	case port >= overlayBase && port <= overlayTop:
		return b.readOverlay(port)
	case port == portMouseButtons:
		return b.Mouse.ReadButtons()
	case port == portMousePos:
		return b.Mouse.Position()
	case port == portKeyboard:
		v, _ := b.Keyboard.Pop()
		return uint32(v)
	case port == portAudio:
		if b.Audio.Enabled() {
			return 1
		}
		return 0
	case port >= diskBase && port <= diskTop:
		return b.readDisk(port)
	default:
		return 0
	}
}

// Write implements cpu.Bus.
func (b *Bus) Write(port uint32, value uint32) {
	switch {
	case port == portTerminal:
		if b.Terminal != nil {
			b.Terminal.Write([]byte{byte(value)})
		}
	case port >= overlayBase && port <= overlayTop:
		b.writeOverlay(port, value)
	case port == portMouseButtons:
		b.Mouse.WriteButtons(value)
	case port == portMousePos:
		b.Mouse.SetPosition(value)
	case port == portKeyboard:
		// Keyboard port is read-only (scan codes arrive from the HID
		// task, not the guest); writes are ignored.
	case port == portAudio:
		b.Audio.SetEnabled(value != 0)
	case port >= diskBase && port <= diskTop:
		b.writeDisk(port, value)
	default:
		// Unknown port: soft warning per SPEC_FULL.md §7, write ignored.
		slog.Warn("write to unknown I/O port ignored", "port", port, "value", value)
	}
}

func (b *Bus) readOverlay(port uint32) uint32 {
	index := int(port & 0xFF)
	setting := (port >> 8) & 0xFF
	switch setting {
	case 0:
		return b.Overlays.Position(index)
	case 1:
		return b.Overlays.Size(index)
	case 2:
		return b.Overlays.FramePointer(index)
	case 3:
		if b.Overlays.Enabled(index) {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func (b *Bus) writeOverlay(port uint32, value uint32) {
	index := int(port & 0xFF)
	setting := (port >> 8) & 0xFF
	switch setting {
	case 0:
		b.Overlays.SetPosition(index, value)
	case 1:
		b.Overlays.SetSize(index, value)
	case 2:
		b.Overlays.SetFramePointer(index, value)
	case 3:
		b.Overlays.SetEnabled(index, value != 0)
	}
}

func diskOp(port uint32) (op int, id int) {
	return int(port>>12) & 0xF, int(port & 0xFFF)
}

func (b *Bus) readDisk(port uint32) uint32 {
	op, id := diskOp(port)
	if id < 0 || id >= disk.Slots {
		return 0
	}
	switch op {
	case diskOpMountState:
		mounted, err := b.Disk.Mounted(id)
		if err != nil {
			return 0
		}
		if mounted {
			return 1
		}
		return 0
	case diskOpBufferBase:
		return b.diskBufferPtr[id]
	default:
		return 0
	}
}

func (b *Bus) writeDisk(port uint32, value uint32) {
	op, id := diskOp(port)
	if id < 0 || id >= disk.Slots {
		return
	}
	switch op {
	case diskOpMountState:
		// Mounting requires a host file handle the guest cannot supply
		// through a port write; only unmount (below) and host-driven
		// Controller.Mount are meaningful here.
	case diskOpBufferBase:
		b.diskBufferPtr[id] = value
	case diskOpReadSector:
		b.doSector(id, value, false)
	case diskOpWriteSector:
		b.doSector(id, value, true)
	case diskOpUnmount:
		if err := b.Disk.Unmount(id); err != nil {
			slog.Warn("disk unmount failed", "disk", id, "error", err)
		}
	}
}

func (b *Bus) doSector(id int, sector uint32, write bool) {
	ptr := b.diskBufferPtr[id]
	ram := b.Mem.RAM()
	if int(ptr)+disk.SectorSize > len(ram) {
		b.fail(disk.ErrSeekPastEnd)
		return
	}
	buf := ram[ptr : int(ptr)+disk.SectorSize]

	if err := b.Disk.SeekSector(id, sector); err != nil {
		b.fail(err)
		return
	}
	var err error
	if write {
		err = b.Disk.WriteSector(id, buf)
	} else {
		err = b.Disk.ReadSector(id, buf)
	}
	if err != nil {
		b.fail(err)
	}
}

func (b *Bus) fail(err error) {
	if b.OnFatal != nil {
		b.OnFatal(err)
		return
	}
	slog.Error("disk controller error", "error", err)
}
