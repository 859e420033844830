package kalloc

import (
	"fmt"

	"github.com/joshuapare/kheap/internal/format"
)

// ChunkInfo describes one chunk found while walking a zone.
type ChunkInfo struct {
	Header uintptr // address of the header word
	Data   uintptr // address of the payload
	Size   int
	Used   bool
}

// ZoneInfo describes one zone and the chunks tiling its page.
type ZoneInfo struct {
	Base   uintptr
	Refs   int
	Next   uintptr // 0 at the tail
	Chunks []ChunkInfo
}

// FreeBytes returns the payload bytes held by free chunks.
func (zi ZoneInfo) FreeBytes() int {
	n := 0
	for _, c := range zi.Chunks {
		if !c.Used {
			n += c.Size
		}
	}
	return n
}

// UsedCount returns the number of chunks marked used.
func (zi ZoneInfo) UsedCount() int {
	n := 0
	for _, c := range zi.Chunks {
		if c.Used {
			n++
		}
	}
	return n
}

// Zones walks the list from the head and returns every zone with its chunks.
// It does not modify the heap.
func (k *Kalloc) Zones() []ZoneInfo {
	var out []ZoneInfo
	k.walk(func(zi ZoneInfo) bool {
		out = append(out, zi)
		return true
	})
	return out
}

// walk visits every zone in list order until fn returns false. The walk
// stops early when a zone is visited twice.
func (k *Kalloc) walk(fn func(ZoneInfo) bool) {
	seen := make(map[uintptr]struct{})
	zone := zoneFrom(k.mem, k.head)
	for {
		if _, dup := seen[zone.base]; dup {
			return
		}
		seen[zone.base] = struct{}{}

		zi := ZoneInfo{Base: zone.base, Refs: zone.Refs()}
		if next, err := zone.Next(); err == nil {
			zi.Next = next
		}
		zi.Chunks = chunksOf(k.mem, zone.base)
		if !fn(zi) {
			return
		}

		next, err := zone.NextZone()
		if err != nil {
			return
		}
		zone = next
	}
}

// chunksOf decodes the headers tiling the page at base. Decoding stops at the
// page end, or early if a header claims to run past it.
func chunksOf(mem Memory, base uintptr) []ChunkInfo {
	var chunks []ChunkInfo
	end := base + format.PageSize
	for curr := base + format.FirstChunkOffset; curr < end; {
		h := HeaderFrom(mem, curr)
		chunks = append(chunks, ChunkInfo{
			Header: curr,
			Data:   curr + format.HeaderSize,
			Size:   h.ChunkSize(),
			Used:   !h.IsFree(),
		})
		curr += format.HeaderSize + uintptr(h.ChunkSize())
	}
	return chunks
}

// Verify checks the heap invariants on every zone:
//   - zones are page aligned and the list has no cycle
//   - chunk headers tile the page exactly from the first header to the end
//   - no chunk is larger than MaxChunkSize or has reserved bits set
//   - the zone's ref count equals the number of used chunks
//
// It is meant for tests and diagnostics and walks the whole heap.
func (k *Kalloc) Verify() error {
	seen := make(map[uintptr]struct{})
	zone := zoneFrom(k.mem, k.head)

	for {
		if err := verifyZone(k.mem, zone); err != nil {
			return err
		}
		seen[zone.base] = struct{}{}

		next, err := zone.NextZone()
		if err != nil {
			break
		}
		if !format.IsPageAligned(next.base) {
			return fmt.Errorf("%w: zone 0x%x links to misaligned 0x%x", ErrCorrupt, zone.base, next.base)
		}
		if _, dup := seen[next.base]; dup {
			return fmt.Errorf("%w: zone list cycles at 0x%x", ErrCorrupt, next.base)
		}
		zone = next
	}

	if len(seen) != k.stats.Zones {
		return fmt.Errorf("%w: %d zones reachable, %d accounted", ErrCorrupt, len(seen), k.stats.Zones)
	}
	return nil
}

func verifyZone(mem Memory, zone Zone) error {
	end := zone.base + format.PageSize
	used := 0
	curr := zone.base + format.FirstChunkOffset

	for curr < end {
		h := HeaderFrom(mem, curr)
		if h.Word()&^uint64(format.SizeMask|format.HeaderUsed) != 0 {
			return fmt.Errorf("%w: header 0x%x has reserved bits set (0x%x)", ErrCorrupt, curr, h.Word())
		}
		if h.ChunkSize() > format.MaxChunkSize || h.ChunkSize()%format.ChunkAlignment != 0 {
			return fmt.Errorf("%w: header 0x%x has bad size %d", ErrCorrupt, curr, h.ChunkSize())
		}
		if !h.IsFree() {
			used++
		}
		curr += format.HeaderSize + uintptr(h.ChunkSize())
	}
	if curr != end {
		return fmt.Errorf("%w: zone 0x%x chunks overrun page end by %d", ErrCorrupt, zone.base, curr-end)
	}
	if used != zone.Refs() {
		return fmt.Errorf("%w: zone 0x%x refs=%d but %d chunks used", ErrCorrupt, zone.base, zone.Refs(), used)
	}
	return nil
}
