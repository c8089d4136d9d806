/*
fox32 - Disk controller: up to four mountable block devices, DMA'd to RAM
512 bytes at a time.

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
package disk

import (
	"errors"
	"io"

	"github.com/fox32vm/fox32/internal/event"
)

const (
	// SectorSize is the fixed block size fox32 disks are addressed in.
	SectorSize = 512

	// Slots is the number of disk controller slots.
	Slots = 4

	// CompleteVector is the hardware interrupt raised when a sector
	// operation's modeled seek latency elapses. Only fires once seek
	// latency modeling is enabled via SetSeekLatency; ReadSector and
	// WriteSector are synchronous by default, matching spec.md §4.5.
	CompleteVector uint8 = 0xFD
)

var (
	// ErrNotMounted is returned by ReadSector/WriteSector against an empty slot.
	ErrNotMounted = errors.New("fox32: disk: slot not mounted")

	// ErrSlotRange is returned for an out-of-range slot id.
	ErrSlotRange = errors.New("fox32: disk: slot id out of range")

	// ErrSeekPastEnd is the fatal error raised when a sector lies beyond the
	// backing device's extent.
	ErrSeekPastEnd = errors.New("fox32: disk: seek past end of device")
)

// BlockDevice is the minimal handle a mounted disk image needs to support:
// sector-aligned random access. *os.File satisfies this.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
}

type slot struct {
	dev     BlockDevice
	mounted bool
	sector  uint32
}

// Controller is the four-slot disk DMA controller described in
// SPEC_FULL.md §4.5: it tracks a current-sector cursor per slot and moves
// whole 512-byte sectors to and from a caller-supplied RAM buffer.
//
// Sector data movement is always synchronous. Seek latency modeling is an
// optional layer on top: when enabled via SetSeekLatency, a completed
// ReadSector/WriteSector additionally schedules CompleteVector to fire
// after the configured number of Tick calls, the same "fire in N steps"
// shape internal/event exists for. Disabled (the zero value), Tick and
// the latency bookkeeping are no-ops.
type Controller struct {
	slots [Slots]slot

	events           event.List
	seekLatencyTicks int
	irq              chan<- uint8
}

// New returns an unmounted four-slot controller with seek latency modeling
// disabled.
func New() *Controller {
	return &Controller{}
}

// SetSeekLatency sets how many Tick calls a sector operation takes to
// raise CompleteVector after it finishes moving data. Zero (the default)
// disables latency modeling entirely: CompleteVector is never raised.
func (c *Controller) SetSeekLatency(ticks int) {
	c.seekLatencyTicks = ticks
}

// SetIRQ wires the hardware interrupt channel CompleteVector is posted to.
// Required for seek latency modeling to have any observable effect.
func (c *Controller) SetIRQ(irq chan<- uint8) {
	c.irq = irq
}

// Tick advances the seek-latency clock by one step, firing CompleteVector
// for any sector operation whose modeled latency has elapsed. A no-op
// while latency modeling is disabled.
func (c *Controller) Tick() {
	if c.seekLatencyTicks <= 0 {
		return
	}
	c.events.Advance(1)
}

// signalComplete schedules CompleteVector after seekLatencyTicks Tick
// calls, if latency modeling is enabled.
func (c *Controller) signalComplete(id int) {
	if c.seekLatencyTicks <= 0 || c.irq == nil {
		return
	}
	irq := c.irq
	c.events.Add(event.Device(id), func(int) {
		select {
		case irq <- CompleteVector:
		default:
			// Completion vector channel full: the CPU hasn't drained a
			// prior one yet. Drop rather than block the disk controller.
		}
	}, c.seekLatencyTicks, id)
}

func (c *Controller) slotAt(id int) (*slot, error) {
	if id < 0 || id >= Slots {
		return nil, ErrSlotRange
	}
	return &c.slots[id], nil
}

// Mount attaches dev to slot id, replacing any previously mounted device.
// The host owns dev's lifetime; Mount does not close a replaced handle.
func (c *Controller) Mount(id int, dev BlockDevice) error {
	s, err := c.slotAt(id)
	if err != nil {
		return err
	}
	s.dev = dev
	s.mounted = true
	s.sector = 0
	return nil
}

// Unmount detaches slot id. It is not an error to unmount an empty slot.
func (c *Controller) Unmount(id int) error {
	s, err := c.slotAt(id)
	if err != nil {
		return err
	}
	s.dev = nil
	s.mounted = false
	s.sector = 0
	return nil
}

// Mounted reports whether slot id currently holds a device.
func (c *Controller) Mounted(id int) (bool, error) {
	s, err := c.slotAt(id)
	if err != nil {
		return false, err
	}
	return s.mounted, nil
}

// SeekSector sets slot id's current-sector cursor for the next
// ReadSector/WriteSector call.
func (c *Controller) SeekSector(id int, sector uint32) error {
	s, err := c.slotAt(id)
	if err != nil {
		return err
	}
	s.sector = sector
	return nil
}

// ReadSector copies slot id's current sector into buf[:SectorSize].
// Seeking past the end of the backing device is fatal, per SPEC_FULL.md
// §7's error taxonomy; it surfaces here as ErrSeekPastEnd for the caller
// (cmd/fox32) to treat as VM-fatal.
func (c *Controller) ReadSector(id int, buf []byte) error {
	s, err := c.slotAt(id)
	if err != nil {
		return err
	}
	if !s.mounted {
		return ErrNotMounted
	}
	if len(buf) < SectorSize {
		return errors.New("fox32: disk: buffer shorter than a sector")
	}
	off := int64(s.sector) * SectorSize
	n, err := s.dev.ReadAt(buf[:SectorSize], off)
	if err == io.EOF && n == SectorSize {
		err = nil
	}
	if err != nil {
		return errSeek(err)
	}
	c.signalComplete(id)
	return nil
}

// WriteSector writes buf[:SectorSize] to slot id's current sector.
func (c *Controller) WriteSector(id int, buf []byte) error {
	s, err := c.slotAt(id)
	if err != nil {
		return err
	}
	if !s.mounted {
		return ErrNotMounted
	}
	if len(buf) < SectorSize {
		return errors.New("fox32: disk: buffer shorter than a sector")
	}
	off := int64(s.sector) * SectorSize
	if _, err := s.dev.WriteAt(buf[:SectorSize], off); err != nil {
		return errSeek(err)
	}
	c.signalComplete(id)
	return nil
}

func errSeek(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrSeekPastEnd
	}
	return err
}
