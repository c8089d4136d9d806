/*
fox32 - Double-buffered audio channel: a 500ms producer task drains one
RAM half-buffer into a host sink and raises the half-buffer IRQ.

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
package audio

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

const (
	// SampleRate is the fixed PCM rate, 16-bit signed mono.
	SampleRate = 22050

	// period is the producer's fixed cadence, per SPEC_FULL.md §4.6.
	period = 500 * time.Millisecond

	// HalfBufferVector is the hardware interrupt vector raised once per
	// half-buffer drained.
	HalfBufferVector uint8 = 0xFE

	// halfBufferSamples is 22050 Hz * 0.5s of 16-bit samples.
	halfBufferSamples = SampleRate / 2
	// HalfBufferBytes is the byte length of one half-buffer.
	HalfBufferBytes = halfBufferSamples * 2
)

// Sink is the host's audio output, fed one decoded half-buffer at a time.
// Supplying it is the host's responsibility (SPEC_FULL.md §1 keeps the
// actual sink out of core scope); Channel only owns the decode/toggle/IRQ
// shape around it.
type Sink interface {
	Write(samples []int16)
}

// Channel is the guest-visible audio state: enabled flag and which half is
// currently active. Run drains the active half, then toggles, so the half
// it just drained is the one firmware refills.
type Channel struct {
	mu           sync.Mutex
	enabled      bool
	bufferIsZero bool

	bufferA uint32 // RAM offset of half-buffer 0
	bufferB uint32 // RAM offset of half-buffer 1
}

// New returns a channel addressing the two fixed RAM half-buffer offsets.
func New(bufferA, bufferB uint32) *Channel {
	return &Channel{bufferA: bufferA, bufferB: bufferB, bufferIsZero: true}
}

// SetEnabled implements the `out 0x80000600, v` port: enabling resets the
// active-half toggle to 0, per SPEC_FULL.md §4.6.
func (c *Channel) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if enabled {
		c.bufferIsZero = true
	}
}

// Enabled reports the current enable state (the `in` side of the port).
func (c *Channel) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// memReader is the slice of Memory the producer needs: raw access to the
// backing RAM array. Kept narrow so audio doesn't import internal/memory's
// MMU-faulting accessors — the half-buffers are DMA'd physically, the same
// way the disk controller and overlay compositor reach into RAM.
type memReader interface {
	RAM() []byte
}

// Run drives the producer loop: every tick, if enabled, decode the
// currently-active half-buffer's bytes into signed samples, hand them to
// sink, toggle the active half, and post the IRQ. It returns when ctx is
// canceled. Grounded on the teacher's AddEvent/Advance callback shape
// (internal/event), adapted to a ticker-driven goroutine since fox32's
// audio cadence is wall-clock, not cycle-counted.
func (c *Channel) Run(ctx context.Context, mem memReader, sink Sink, irq chan<- uint8) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(mem, sink, irq)
		}
	}
}

func (c *Channel) tick(mem memReader, sink Sink, irq chan<- uint8) {
	c.mu.Lock()
	enabled := c.enabled
	activeOffset := c.bufferB
	if c.bufferIsZero {
		activeOffset = c.bufferA
	}
	c.mu.Unlock()

	if !enabled {
		return
	}

	ram := mem.RAM()
	end := int(activeOffset) + HalfBufferBytes
	if int(activeOffset) >= len(ram) {
		return
	}
	if end > len(ram) {
		end = len(ram)
	}
	raw := ram[activeOffset:end]
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	sink.Write(samples)

	c.mu.Lock()
	c.bufferIsZero = !c.bufferIsZero
	c.mu.Unlock()

	select {
	case irq <- HalfBufferVector:
	default:
		// Interrupt channel full: the CPU hasn't drained the previous
		// half-buffer IRQ yet. Drop rather than block the audio task.
	}
}
