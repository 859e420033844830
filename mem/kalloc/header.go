package kalloc

import (
	"fmt"

	"github.com/joshuapare/kheap/internal/format"
)

// Header is the one-word record preceding every chunk's data.
// Bits 0-11 hold the payload size, bit 12 is the used flag.
//
// A Header is a value copied out of memory; changes only land once WriteTo
// stores it back.
type Header struct {
	fields uint64
}

// NewHeader builds a free header for a chunk of size bytes.
func NewHeader(size int) Header {
	if size < 0 || size > format.MaxChunkSize {
		panic(fmt.Sprintf("kalloc: header size %d out of range", size))
	}
	return Header{fields: uint64(size)}
}

// HeaderFrom loads the header stored at addr.
func HeaderFrom(mem Memory, addr uintptr) Header {
	return Header{fields: mem.ReadWord(addr)}
}

// ChunkSize returns the payload size in bytes.
func (h Header) ChunkSize() int {
	return int(h.fields & format.SizeMask)
}

// IsFree reports whether the used bit is clear.
func (h Header) IsFree() bool {
	return h.fields&format.HeaderUsed == 0
}

// Word returns the raw encoded header.
func (h Header) Word() uint64 {
	return h.fields
}

// SetUsed sets the used bit.
func (h *Header) SetUsed() {
	h.fields |= format.HeaderUsed
}

// SetUnused clears the used bit.
func (h *Header) SetUnused() {
	h.fields &^= format.HeaderUsed
}

// SetSize replaces the size bits, keeping the used bit.
func (h *Header) SetSize(size int) {
	h.fields = (h.fields &^ format.SizeMask) | uint64(size)
}

// WriteTo stores the header at addr.
func (h Header) WriteTo(mem Memory, addr uintptr) {
	mem.WriteWord(addr, h.fields)
}

// Split shrinks the chunk at addr to newSize and writes a free header for the
// remainder right after it. The remainder gets old - newSize - HeaderSize
// bytes, so the caller must only split when old >= newSize + HeaderSize.
func (h *Header) Split(mem Memory, newSize int, addr uintptr) (Header, uintptr) {
	oldSize := h.ChunkSize()
	h.SetSize(newSize)
	h.WriteTo(mem, addr)

	nextAddr := addr + format.HeaderSize + uintptr(newSize)
	next := Header{fields: uint64(oldSize - newSize - format.HeaderSize)}
	next.WriteTo(mem, nextAddr)
	return next, nextAddr
}

// Merge absorbs the free chunk at nextAddr, which must immediately follow
// this one. Both chunks must be free. The absorbed header word is zeroed;
// the merged header itself is not written back.
func (h *Header) Merge(mem Memory, next Header, nextAddr uintptr) {
	if !h.IsFree() || !next.IsFree() {
		panic(fmt.Sprintf("kalloc: merge of used chunk at 0x%x", nextAddr))
	}
	h.SetSize(h.ChunkSize() + format.HeaderSize + next.ChunkSize())
	mem.WriteWord(nextAddr, 0)
}

func (h Header) String() string {
	state := "free"
	if !h.IsFree() {
		state = "used"
	}
	return fmt.Sprintf("%s(%d)", state, h.ChunkSize())
}
