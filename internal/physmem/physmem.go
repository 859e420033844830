// Package physmem models the machine's physical RAM as one contiguous arena
// addressed by physical address. The page pool, page tables and heap
// allocator keep all of their metadata inside the arena at the addresses the
// bare-metal kernel would use, so the on-memory layout is identical.
package physmem

import (
	"fmt"

	"github.com/joshuapare/kheap/internal/buf"
	"github.com/joshuapare/kheap/internal/format"
)

// Fault is the panic value raised on an access outside the region. It plays
// the role of a load/store access fault on real hardware.
type Fault struct {
	Addr uintptr
	Len  uintptr
	Op   string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("physmem: %s fault at 0x%x (+%d)", f.Op, f.Addr, f.Len)
}

// Region is a span of physical memory [Base, End).
//
// NOT thread-safe at the word level; callers that share a Region across
// goroutines synchronize the same way harts would.
type Region struct {
	base    uintptr
	data    []byte
	release func() error
}

// New maps size bytes of RAM starting at physical address base.
// Both must be page aligned.
func New(base uintptr, size int) (*Region, error) {
	if !format.IsPageAligned(base) || size <= 0 || size%format.PageSize != 0 {
		return nil, fmt.Errorf("physmem: base=0x%x size=%d: %w", base, size, format.ErrMisaligned)
	}
	if _, ok := buf.AddOverflowSafe(base, uintptr(size)); !ok {
		return nil, fmt.Errorf("physmem: base=0x%x size=%d: %w", base, size, format.ErrOutOfRange)
	}
	data, release, err := mapArena(size)
	if err != nil {
		return nil, fmt.Errorf("physmem: map %d bytes: %w", size, err)
	}
	return &Region{base: base, data: data, release: release}, nil
}

// Base returns the first physical address of the region.
func (r *Region) Base() uintptr { return r.base }

// End returns the first physical address past the region.
func (r *Region) End() uintptr { return r.base + uintptr(len(r.data)) }

// Size returns the region size in bytes.
func (r *Region) Size() int { return len(r.data) }

// Contains reports whether [addr, addr+n) lies inside the region.
func (r *Region) Contains(addr, n uintptr) bool {
	return buf.Within(r.base, r.End(), addr, n)
}

// ReadWord loads the 64-bit word at addr.
func (r *Region) ReadWord(addr uintptr) uint64 {
	return buf.U64LE(r.view(addr, format.WordSize, "load"))
}

// WriteWord stores v at addr.
func (r *Region) WriteWord(addr uintptr, v uint64) {
	buf.PutU64LE(r.view(addr, format.WordSize, "store"), v)
}

// Slice returns the n bytes at addr. The slice aliases the region.
func (r *Region) Slice(addr, n uintptr) []byte {
	return r.view(addr, n, "slice")
}

// Zero clears n bytes at addr.
func (r *Region) Zero(addr, n uintptr) {
	clear(r.view(addr, n, "store"))
}

// Close releases the arena. Further access faults.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	r.data = nil
	return r.release()
}

func (r *Region) view(addr, n uintptr, op string) []byte {
	if r.data == nil || !r.Contains(addr, n) {
		panic(&Fault{Addr: addr, Len: n, Op: op})
	}
	off := addr - r.base
	return r.data[off : off+n : off+n]
}
