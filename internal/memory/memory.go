/*
fox32 - Physical memory, ROM, and two-level paged MMU with TLB.

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
package memory

import "fmt"

const (
	// DefaultRAMSize is the default RAM size in bytes (64 MiB).
	DefaultRAMSize uint32 = 64 * 1024 * 1024
	// DefaultROMSize is the default ROM size in bytes (512 KiB).
	DefaultROMSize uint32 = 512 * 1024
	// ROMBase is the physical base address of the ROM window.
	ROMBase uint32 = 0xF0000000

	pageSize  uint32 = 0x1000
	pageMask  uint32 = pageSize - 1
	dirShift         = 22
	tabShift         = 12
	tabMask   uint32 = 0x3FF
)

// tlbEntry caches one virtual-page-to-physical-frame translation.
type tlbEntry struct {
	frame   uint32
	present bool
	rw      bool
}

// Memory backs RAM and ROM, and implements the two-level paged MMU
// described by the paging-directory-base/TLB contract. RAM is
// heap-allocated: a fixed array field would overflow the goroutine stack
// at construction time for anything beyond a few MiB.
type Memory struct {
	ram []byte
	rom []byte

	mmuEnabled bool
	dirBase    uint32
	tlb        map[uint32]tlbEntry
}

// New allocates RAM of ramSize bytes and a ROM window of romSize bytes.
func New(ramSize, romSize uint32) *Memory {
	return &Memory{
		ram: make([]byte, ramSize),
		rom: make([]byte, romSize),
		tlb: make(map[uint32]tlbEntry),
	}
}

// LoadROM copies data into the ROM window starting at offset 0,
// truncating or zero-padding to the ROM's configured size.
func (m *Memory) LoadROM(data []byte) {
	n := copy(m.rom, data)
	for i := n; i < len(m.rom); i++ {
		m.rom[i] = 0
	}
}

// RAMSize returns the configured RAM size in bytes.
func (m *Memory) RAMSize() uint32 { return uint32(len(m.ram)) }

// ROMSize returns the configured ROM size in bytes.
func (m *Memory) ROMSize() uint32 { return uint32(len(m.rom)) }

// RAM exposes the backing RAM slice for device DMA (disk, audio, overlay).
// Devices writing through this slice must stay inside their documented
// windows per the concurrency model in SPEC_FULL.md §5.
func (m *Memory) RAM() []byte { return m.ram }

// MMUEnabled reports whether virtual addressing is active.
func (m *Memory) MMUEnabled() bool { return m.mmuEnabled }

// SetMMUEnabled implements the mse/mcl opcodes.
func (m *Memory) SetMMUEnabled(enabled bool) { m.mmuEnabled = enabled }

// FlushTLB clears the TLB. If newDirBase is non-nil, the paging directory
// base is updated first (this is also what the tlb opcode does).
func (m *Memory) FlushTLB(newDirBase *uint32) {
	if newDirBase != nil {
		m.dirBase = *newDirBase
	}
	m.tlb = make(map[uint32]tlbEntry)
}

// FlushPage removes the single TLB entry covering virt, implementing flp.
func (m *Memory) FlushPage(virt uint32) {
	delete(m.tlb, virt&^pageMask)
}

// DirectoryBase returns the current paging-directory base physical address.
func (m *Memory) DirectoryBase() uint32 { return m.dirBase }

// readPhysByte reads one physical byte. ok is false for an address
// outside both RAM and ROM (unmapped physical memory).
func (m *Memory) readPhysByte(phys uint32) (value uint8, ok bool) {
	if phys < uint32(len(m.ram)) {
		return m.ram[phys], true
	}
	if phys >= ROMBase && phys < ROMBase+uint32(len(m.rom)) {
		return m.rom[phys-ROMBase], true
	}
	return 0, false
}

// writePhysByte writes one physical byte. It returns fatal non-nil when
// the target is in ROM (always a host-fatal condition per SPEC_FULL §7).
// ok is false with fatal nil for unmapped physical memory.
func (m *Memory) writePhysByte(phys uint32, value uint8) (ok bool, fatal error) {
	if phys < uint32(len(m.ram)) {
		m.ram[phys] = value
		return true, nil
	}
	if phys >= ROMBase && phys < ROMBase+uint32(len(m.rom)) {
		return false, fmt.Errorf("fox32: write to read-only ROM at physical address %#08x", phys)
	}
	return false, nil
}

// translate resolves a virtual address to a physical address and its
// read/write permission. ok is false when the page is not mapped (or the
// MMU walk hit an absent directory/table entry); the caller distinguishes
// a recoverable page fault (MMU enabled) from a fatal unmapped access
// (MMU disabled).
func (m *Memory) translate(virt uint32) (phys uint32, rw bool, ok bool) {
	if !m.mmuEnabled {
		return virt, true, true
	}

	page := virt &^ pageMask
	offset := virt & pageMask

	if e, found := m.tlb[page]; found && e.present {
		return e.frame | offset, e.rw, true
	}

	dirIndex := virt >> dirShift
	tabIndex := (virt >> tabShift) & tabMask

	dirEntry, dOk := m.readPhysWord(m.dirBase + dirIndex*4)
	if !dOk || dirEntry&1 == 0 {
		return 0, false, false
	}

	tableBase := dirEntry &^ pageMask
	tabEntry, tOk := m.readPhysWord(tableBase + tabIndex*4)
	if !tOk || tabEntry&1 == 0 {
		return 0, false, false
	}

	frame := tabEntry &^ pageMask
	rwBit := tabEntry&2 != 0
	m.tlb[page] = tlbEntry{frame: frame, present: true, rw: rwBit}

	return frame | offset, rwBit, true
}

// readPhysWord reads a little-endian 32-bit word at a physical address,
// bypassing the MMU, used for page-table walks and interrupt-vector reads.
func (m *Memory) readPhysWord(phys uint32) (uint32, bool) {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, ok := m.readPhysByte(phys + i)
		if !ok {
			return 0, false
		}
		v |= uint32(b) << (8 * i)
	}
	return v, true
}

// ReadPhysWord is the interrupt-vector-table read path: physical, no MMU.
func (m *Memory) ReadPhysWord(phys uint32) (uint32, bool) {
	return m.readPhysWord(phys)
}

// Read8 reads one byte at a virtual address.
//
// pageFault is true when translation failed while the MMU is enabled
// (recoverable). fatal is non-nil when translation failed with the MMU
// disabled, or the translated physical address lands nowhere (host-fatal).
func (m *Memory) Read8(virt uint32) (value uint8, pageFault bool, fatal error) {
	phys, _, ok := m.translate(virt)
	if !ok {
		if m.mmuEnabled {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("fox32: access to unmapped physical address %#08x with MMU disabled", virt)
	}
	b, rOk := m.readPhysByte(phys)
	if !rOk {
		return 0, false, fmt.Errorf("fox32: access to unmapped physical address %#08x", phys)
	}
	return b, false, nil
}

// Write8 writes one byte at a virtual address. See Read8 for the result
// contract; additionally pageFault is true on a write to a read-only page.
func (m *Memory) Write8(virt uint32, value uint8) (pageFault bool, fatal error) {
	phys, rw, ok := m.translate(virt)
	if !ok {
		if m.mmuEnabled {
			return true, nil
		}
		return false, fmt.Errorf("fox32: access to unmapped physical address %#08x with MMU disabled", virt)
	}
	if m.mmuEnabled && !rw {
		return true, nil
	}
	wOk, fatal := m.writePhysByte(phys, value)
	if fatal != nil {
		return false, fatal
	}
	if !wOk {
		return false, fmt.Errorf("fox32: access to unmapped physical address %#08x", phys)
	}
	return false, nil
}

// Read16 reads a little-endian half-word, byte-by-byte so each byte may
// independently fault across a page boundary.
func (m *Memory) Read16(virt uint32) (value uint16, pageFault bool, fatal error) {
	var v uint16
	for i := uint32(0); i < 2; i++ {
		b, pf, err := m.Read8(virt + i)
		if pf || err != nil {
			return 0, pf, err
		}
		v |= uint16(b) << (8 * i)
	}
	return v, false, nil
}

// Write16 writes a little-endian half-word, byte-by-byte. A fault partway
// through leaves the successfully-written bytes in place.
func (m *Memory) Write16(virt uint32, value uint16) (pageFault bool, fatal error) {
	for i := uint32(0); i < 2; i++ {
		b := uint8(value >> (8 * i))
		pf, err := m.Write8(virt+i, b)
		if pf || err != nil {
			return pf, err
		}
	}
	return false, nil
}

// Read32 reads a little-endian word, byte-by-byte.
func (m *Memory) Read32(virt uint32) (value uint32, pageFault bool, fatal error) {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, pf, err := m.Read8(virt + i)
		if pf || err != nil {
			return 0, pf, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, false, nil
}

// Write32 writes a little-endian word, byte-by-byte.
func (m *Memory) Write32(virt uint32, value uint32) (pageFault bool, fatal error) {
	for i := uint32(0); i < 4; i++ {
		b := uint8(value >> (8 * i))
		pf, err := m.Write8(virt+i, b)
		if pf || err != nil {
			return pf, err
		}
	}
	return false, nil
}

// ReadSized dispatches to Read8/16/32 by operand size in bits (8, 16, 32).
func (m *Memory) ReadSized(virt uint32, size int) (value uint32, pageFault bool, fatal error) {
	switch size {
	case 8:
		b, pf, err := m.Read8(virt)
		return uint32(b), pf, err
	case 16:
		h, pf, err := m.Read16(virt)
		return uint32(h), pf, err
	default:
		return m.Read32(virt)
	}
}

// WriteSized dispatches to Write8/16/32 by operand size in bits.
func (m *Memory) WriteSized(virt uint32, value uint32, size int) (pageFault bool, fatal error) {
	switch size {
	case 8:
		return m.Write8(virt, uint8(value))
	case 16:
		return m.Write16(virt, uint16(value))
	default:
		return m.Write32(virt, value)
	}
}
