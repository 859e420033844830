package kalloc

import (
	"fmt"

	"github.com/joshuapare/kheap/internal/format"
	"github.com/joshuapare/kheap/mem/palloc"
)

// Zone is a view over a heap page. The page's first word packs the address
// of the next zone (page aligned, 0 for none) with the number of used chunks
// in this page (low 12 bits).
//
// A Zone borrows the page; the Kalloc that linked it owns it.
type Zone struct {
	mem  Memory
	base uintptr
	next uint64 // cached copy of the zone word
}

// newZone formats a view for a fresh page with no successor and no refs.
// Nothing is written until the caller stores it.
func newZone(mem Memory, base uintptr) Zone {
	return Zone{mem: mem, base: base}
}

// zoneFrom loads the zone stored at the start of the page at base.
func zoneFrom(mem Memory, base uintptr) Zone {
	return Zone{mem: mem, base: base, next: mem.ReadWord(base)}
}

// Base returns the page address of the zone.
func (z Zone) Base() uintptr {
	return z.base
}

// Refs returns the number of used chunks in the page.
func (z Zone) Refs() int {
	return int(z.next & format.RefsMask)
}

// Next returns the address of the following zone, or ErrNullZone at the end
// of the list.
func (z Zone) Next() (uintptr, error) {
	addr := uintptr(z.next & format.NextMask)
	if addr == format.NullZone {
		return 0, ErrNullZone
	}
	return addr, nil
}

// NextZone follows the link to the next zone.
func (z Zone) NextZone() (Zone, error) {
	addr, err := z.Next()
	if err != nil {
		return Zone{}, err
	}
	return zoneFrom(z.mem, addr), nil
}

// writeRefs stores a new ref count, keeping the next address.
func (z *Zone) writeRefs(count int) {
	z.next = (z.next & format.NextMask) | uint64(count)
	z.mem.WriteWord(z.base, z.next)
}

// writeNext stores a new next address, keeping the ref count.
func (z *Zone) writeNext(next uintptr) {
	z.next = uint64(next) | (z.next & format.RefsMask)
	z.mem.WriteWord(z.base, z.next)
}

func (z *Zone) incrementRefs() error {
	count := z.Refs() + 1
	if count > format.MaxRefs {
		return ErrMaxRefs
	}
	z.writeRefs(count)
	return nil
}

// decrementRefs lowers the ref count and returns the new value.
func (z *Zone) decrementRefs() (int, error) {
	count := z.Refs() - 1
	if count < 0 {
		return 0, ErrMinRefs
	}
	z.writeRefs(count)
	return count, nil
}

// freeSelf unlinks the zone from the list and gives its page back to the
// pool. prev must be the zone directly before this one, and this zone must
// not be the head.
func (z *Zone) freeSelf(prev Zone, pool PagePool) error {
	if z.Refs() != 0 {
		panic(fmt.Sprintf("kalloc: releasing zone 0x%x with %d refs", z.base, z.Refs()))
	}
	if next, err := z.Next(); err == nil {
		prev.writeNext(next)
	} else {
		prev.writeNext(format.NullZone)
	}
	return pool.Pfree(palloc.PageFrom(z.base))
}

// scan looks for the first free chunk of at least size bytes in the page.
// Consecutive free chunks passed over on the way are merged in place. On a
// hit the chunk is claimed and the data address returned.
func (z *Zone) scan(size int, stats *Stats) (uintptr, bool) {
	size = format.Align8(size)

	curr := z.base + format.FirstChunkOffset
	end := z.base + format.PageSize
	head := HeaderFrom(z.mem, curr)

	for curr < end {
		chunkSize := head.ChunkSize()
		if chunkSize >= size && head.IsFree() {
			allocChunk(size, curr, z, &head, stats)
			return curr + format.HeaderSize, true
		}

		prev, trail := head, curr
		curr += format.HeaderSize + uintptr(chunkSize)
		if curr >= end {
			break
		}
		head = HeaderFrom(z.mem, curr)

		if prev.IsFree() && head.IsFree() {
			prev.Merge(z.mem, head, curr)
			prev.WriteTo(z.mem, trail)
			head, curr = prev, trail
			stats.ScanMerges++
		}
	}
	return 0, false
}

// allocChunk claims the free chunk at addr for size bytes, splitting off the
// excess.
func allocChunk(size int, addr uintptr, z *Zone, head *Header, stats *Stats) {
	if err := z.incrementRefs(); err != nil {
		panic(fmt.Sprintf("kalloc: zone 0x%x: %v", z.base, err))
	}
	head.SetUsed()
	head.WriteTo(z.mem, addr)

	if size != head.ChunkSize() {
		head.Split(z.mem, size, addr)
		stats.Splits++
	}
}

// writeZoneHeaderPair stores a zone word and the first chunk header of a page.
func writeZoneHeaderPair(z Zone, h Header) {
	z.mem.WriteWord(z.base, z.next)
	h.WriteTo(z.mem, z.base+format.FirstChunkOffset)
}
