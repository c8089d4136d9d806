package iobus

import (
	"bytes"
	"io"
	"testing"

	"github.com/fox32vm/fox32/internal/audio"
	"github.com/fox32vm/fox32/internal/disk"
	"github.com/fox32vm/fox32/internal/hid"
	"github.com/fox32vm/fox32/internal/overlay"
)

type fakeRAM struct {
	buf []byte
}

func (f *fakeRAM) RAM() []byte { return f.buf }

type memDevice struct {
	data []byte
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) >= len(d.data) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	return copy(d.data[off:], p), nil
}

func newBus() (*Bus, *fakeRAM) {
	mem := &fakeRAM{buf: make([]byte, 0x20000)}
	b := New(overlay.NewTable(), hid.NewKeyboard(), hid.NewMouse(), audio.New(0, 0x1000), disk.New(), mem)
	return b, mem
}

func TestTerminalWriteByte(t *testing.T) {
	b, _ := newBus()
	var out bytes.Buffer
	b.Terminal = &out
	b.Write(portTerminal, 'H')
	b.Write(portTerminal, 'i')
	if out.String() != "Hi" {
		t.Errorf("terminal output = %q, want %q", out.String(), "Hi")
	}
}

func TestTerminalReadIsZero(t *testing.T) {
	b, _ := newBus()
	if got := b.Read(portTerminal); got != 0 {
		t.Errorf("Read(terminal) = %d, want 0", got)
	}
}

func TestOverlayPortRoundTrip(t *testing.T) {
	b, _ := newBus()
	const index = 3
	b.Write(overlayBase+index, 2<<16|1)    // position setting 0
	b.Write(overlayBase+0x100+index, 4<<16|3) // size setting 1
	b.Write(overlayBase+0x200+index, 0xABCD)  // frame pointer setting 2
	b.Write(overlayBase+0x300+index, 1)       // enable setting 3

	if got := b.Read(overlayBase + index); got != 2<<16|1 {
		t.Errorf("overlay position = %#x, want %#x", got, uint32(2<<16|1))
	}
	if got := b.Read(overlayBase + 0x100 + index); got != 4<<16|3 {
		t.Errorf("overlay size = %#x, want %#x", got, uint32(4<<16|3))
	}
	if got := b.Read(overlayBase + 0x200 + index); got != 0xABCD {
		t.Errorf("overlay frame pointer = %#x, want 0xabcd", got)
	}
	if got := b.Read(overlayBase + 0x300 + index); got != 1 {
		t.Errorf("overlay enabled = %d, want 1", got)
	}
}

func TestMouseButtonsAndPositionPorts(t *testing.T) {
	b, _ := newBus()
	b.Write(portMouseButtons, hid.MouseClicked)
	if got := b.Read(portMouseButtons); got != hid.MouseClicked {
		t.Errorf("mouse buttons = %#x, want %#x", got, hid.MouseClicked)
	}
	b.Write(portMousePos, 5<<16|7)
	if got := b.Read(portMousePos); got != 5<<16|7 {
		t.Errorf("mouse position = %#x, want %#x", got, uint32(5<<16|7))
	}
}

func TestKeyboardPortPopsRing(t *testing.T) {
	b, _ := newBus()
	b.Keyboard.Push(0x42)
	if got := b.Read(portKeyboard); got != 0x42 {
		t.Errorf("keyboard port = %#x, want 0x42", got)
	}
	if got := b.Read(portKeyboard); got != 0 {
		t.Errorf("keyboard port after drain = %#x, want 0", got)
	}
}

func TestKeyboardPortWriteIsIgnored(t *testing.T) {
	b, _ := newBus()
	b.Write(portKeyboard, 0x99) // should be a no-op, not pushed to the ring
	if got := b.Read(portKeyboard); got != 0 {
		t.Errorf("keyboard port after write = %#x, want 0 (writes ignored)", got)
	}
}

func TestAudioEnablePort(t *testing.T) {
	b, _ := newBus()
	if got := b.Read(portAudio); got != 0 {
		t.Errorf("audio port before enable = %d, want 0", got)
	}
	b.Write(portAudio, 1)
	if got := b.Read(portAudio); got != 1 {
		t.Errorf("audio port after enable = %d, want 1", got)
	}
	b.Write(portAudio, 0)
	if got := b.Read(portAudio); got != 0 {
		t.Errorf("audio port after disable = %d, want 0", got)
	}
}

func TestUnknownPortReadsZeroAndIgnoresWrites(t *testing.T) {
	b, _ := newBus()
	b.Write(0x12345678, 0xFF) // should not panic
	if got := b.Read(0x12345678); got != 0 {
		t.Errorf("Read(unknown port) = %d, want 0", got)
	}
}

func TestDiskMountStateAndBufferBasePorts(t *testing.T) {
	b, mem := newBus()
	_ = mem
	const diskID = 1
	if err := b.Disk.Mount(diskID, &memDevice{data: make([]byte, disk.SectorSize*4)}); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	mountPort := uint32(0x80000000 + diskOpMountState<<12 + diskID)
	if got := b.Read(mountPort); got != 1 {
		t.Errorf("disk mount state = %d, want 1 (mounted)", got)
	}

	bufPort := uint32(0x80000000 + diskOpBufferBase<<12 + diskID)
	b.Write(bufPort, 0x2000)
	if got := b.Read(bufPort); got != 0x2000 {
		t.Errorf("disk buffer base = %#x, want 0x2000", got)
	}
}

func TestDiskReadSectorDMARoundTrip(t *testing.T) {
	b, mem := newBus()
	const diskID = 2
	dev := &memDevice{data: make([]byte, disk.SectorSize*4)}
	for i := range dev.data[:disk.SectorSize] {
		dev.data[i] = 0xCD
	}
	if err := b.Disk.Mount(diskID, dev); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	const bufBase = 0x1000
	b.Write(uint32(0x80000000+diskOpBufferBase<<12+diskID), bufBase)
	b.Write(uint32(0x80000000+diskOpReadSector<<12+diskID), 0) // sector 0

	for i := 0; i < disk.SectorSize; i++ {
		if mem.buf[bufBase+i] != 0xCD {
			t.Fatalf("RAM byte %d = %#x, want 0xcd", i, mem.buf[bufBase+i])
		}
	}
}

func TestDiskWriteSectorDMARoundTrip(t *testing.T) {
	b, mem := newBus()
	const diskID = 3
	dev := &memDevice{data: make([]byte, disk.SectorSize*4)}
	if err := b.Disk.Mount(diskID, dev); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	const bufBase = 0x3000
	for i := 0; i < disk.SectorSize; i++ {
		mem.buf[bufBase+i] = 0xAB
	}
	b.Write(uint32(0x80000000+diskOpBufferBase<<12+diskID), bufBase)
	b.Write(uint32(0x80000000+diskOpWriteSector<<12+diskID), 1) // sector 1

	off := disk.SectorSize
	for i := 0; i < disk.SectorSize; i++ {
		if dev.data[off+i] != 0xAB {
			t.Fatalf("device byte %d = %#x, want 0xab", i, dev.data[off+i])
		}
	}
}

func TestDiskUnmountPort(t *testing.T) {
	b, _ := newBus()
	const diskID = 0
	if err := b.Disk.Mount(diskID, &memDevice{data: make([]byte, disk.SectorSize)}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	b.Write(uint32(0x80000000+diskOpUnmount<<12+diskID), 0)

	mountPort := uint32(0x80000000 + diskOpMountState<<12 + diskID)
	if got := b.Read(mountPort); got != 0 {
		t.Errorf("disk mount state after unmount = %d, want 0", got)
	}
}

func TestDiskSeekPastEndInvokesOnFatal(t *testing.T) {
	b, mem := newBus()
	const diskID = 0
	if err := b.Disk.Mount(diskID, &memDevice{data: make([]byte, disk.SectorSize)}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	var fatalErr error
	b.OnFatal = func(err error) { fatalErr = err }

	b.Write(uint32(0x80000000+diskOpBufferBase<<12+diskID), 0)
	b.Write(uint32(0x80000000+diskOpReadSector<<12+diskID), 99) // far past the 1-sector device

	if fatalErr != disk.ErrSeekPastEnd {
		t.Errorf("OnFatal err = %v, want %v", fatalErr, disk.ErrSeekPastEnd)
	}
	_ = mem
}
