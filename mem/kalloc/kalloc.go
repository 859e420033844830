package kalloc

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joshuapare/kheap/internal/format"
	"github.com/joshuapare/kheap/mem/palloc"
)

// Runtime debug flag for allocation logging - controlled by KHEAP_LOG_ALLOC env var.
var logAlloc = os.Getenv("KHEAP_LOG_ALLOC") != ""

// Memory is the word-level view of physical RAM the heap keeps its metadata in.
type Memory interface {
	ReadWord(addr uintptr) uint64
	WriteWord(addr uintptr, v uint64)
	Slice(addr, n uintptr) []byte
}

// PagePool supplies and reclaims whole pages.
type PagePool interface {
	Palloc() (palloc.Page, error)
	Pfree(palloc.Page) error
}

// Chunk is an owned handle to an allocation. Addr is the data address just
// past the chunk's header; Size is the rounded payload size.
type Chunk struct {
	Addr uintptr
	Size int
}

// IsNil reports whether the handle is empty.
func (c Chunk) IsNil() bool {
	return c.Addr == 0
}

// Stats holds allocator counters.
type Stats struct {
	AllocCalls  int // Total Alloc() calls
	FreeCalls   int // Total Free() calls
	GrowCalls   int // Pages taken from the pool
	ShrinkCalls int // Pages handed back to the pool
	OOMs        int // Alloc() calls that failed on an empty pool
	Splits      int // Chunks split on allocation
	ScanMerges  int // Pairwise merges performed while scanning
	FreeMerges  int // Forward merges performed by Free()
	LiveChunks  int // Chunks currently allocated
	LiveBytes   int // Payload bytes currently allocated
	Zones       int // Pages currently owned by the heap
}

// Kalloc is the heap allocator. It owns every page reachable from head.
type Kalloc struct {
	mem  Memory
	pool PagePool

	head uintptr // first zone; never released
	end  uintptr // end of the page the allocator was created with

	stats Stats
	log   *slog.Logger

	// Test hook: called after a page is linked into the list (nil in production)
	onGrow func(palloc.Page)
}

// Option configures a Kalloc.
type Option func(*Kalloc)

// WithLogger routes allocator diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kalloc) {
		if l != nil {
			k.log = l
		}
	}
}

// New formats first as the head zone holding a single free chunk of
// MaxChunkSize bytes. Ownership of the page moves to the allocator.
func New(mem Memory, pool PagePool, first palloc.Page, opts ...Option) (*Kalloc, error) {
	if !first.Valid() {
		return nil, fmt.Errorf("kalloc: first page 0x%x: %w", first.Addr, ErrMisaligned)
	}

	k := &Kalloc{
		mem:  mem,
		pool: pool,
		head: first.Addr,
		end:  first.End(),
		log:  defaultLogger(),
	}
	for _, opt := range opts {
		opt(k)
	}

	writeZoneHeaderPair(newZone(mem, first.Addr), NewHeader(format.MaxChunkSize))
	k.stats.Zones = 1

	k.log.Debug("kalloc ready", "head", fmt.Sprintf("0x%x", k.head))
	return k, nil
}

func defaultLogger() *slog.Logger {
	if logAlloc {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Head returns the address of the head zone.
func (k *Kalloc) Head() uintptr { return k.head }

// End returns the end of the page the allocator was created with.
func (k *Kalloc) End() uintptr { return k.end }

// Alloc returns a chunk of at least size bytes.
//
// Zones are scanned first-fit in list order. When none has room the heap
// grows by one page; if the pool is empty the result is ErrOOM. A request of
// zero bytes is served as the minimum 8-byte chunk.
func (k *Kalloc) Alloc(size int) (Chunk, error) {
	k.stats.AllocCalls++

	if size < 0 || size > format.MaxChunkSize {
		return Chunk{}, fmt.Errorf("kalloc: alloc(%d): %w", size, ErrTooLarge)
	}
	need := max(format.Align8(size), format.ChunkAlignment)

	zone := zoneFrom(k.mem, k.head)
	for {
		if addr, ok := zone.scan(need, &k.stats); ok {
			return k.handOut(addr, need), nil
		}
		next, err := zone.NextZone()
		if err != nil {
			break
		}
		zone = next
	}

	// zone is now the tail.
	grown, head, err := k.growPool(&zone)
	if err != nil {
		k.stats.OOMs++
		k.log.Warn("kalloc out of memory", "size", size, "zones", k.stats.Zones)
		return Chunk{}, fmt.Errorf("kalloc: alloc(%d): %w: %w", size, ErrOOM, err)
	}

	hdrAddr := grown.base + format.FirstChunkOffset
	allocChunk(need, hdrAddr, &grown, &head, &k.stats)
	return k.handOut(hdrAddr+format.HeaderSize, need), nil
}

func (k *Kalloc) handOut(addr uintptr, size int) Chunk {
	k.stats.LiveChunks++
	k.stats.LiveBytes += size
	if logAlloc {
		k.log.Debug("alloc", "addr", fmt.Sprintf("0x%x", addr), "size", size)
	}
	return Chunk{Addr: addr, Size: size}
}

// Free returns a chunk obtained from Alloc. Freeing a chunk twice panics.
func (k *Kalloc) Free(c Chunk) {
	k.FreeAddr(c.Addr)
}

// FreeAddr frees the chunk whose data starts at ptr.
func (k *Kalloc) FreeAddr(ptr uintptr) {
	k.stats.FreeCalls++

	if ptr%format.ChunkAlignment != 0 ||
		format.PageOffset(ptr) < format.FirstChunkOffset+format.HeaderSize {
		panic(fmt.Sprintf("kalloc: free of bad pointer 0x%x", ptr))
	}

	// The enclosing page is the zone.
	zone := zoneFrom(k.mem, format.PageBase(ptr))
	hdrAddr := ptr - format.HeaderSize
	head := HeaderFrom(k.mem, hdrAddr)
	if head.IsFree() {
		panic(fmt.Sprintf("kalloc: double free of 0x%x", ptr))
	}
	head.SetUnused()
	k.stats.LiveChunks--
	k.stats.LiveBytes -= head.ChunkSize()

	count, err := zone.decrementRefs()
	if err != nil {
		panic(fmt.Sprintf("kalloc: negative zone refs count at 0x%x: %v", zone.base, err))
	}
	if logAlloc {
		k.log.Debug("free", "addr", fmt.Sprintf("0x%x", ptr), "size", head.ChunkSize(), "refs", count)
	}

	if count == 0 && k.shrinkPool(zone) {
		// The page went back to the pool; nothing left to merge.
		return
	}

	nextAddr := ptr + uintptr(head.ChunkSize())
	if nextAddr < zone.base+format.PageSize {
		if next := HeaderFrom(k.mem, nextAddr); next.IsFree() {
			head.Merge(k.mem, next, nextAddr)
			k.stats.FreeMerges++
		}
	}
	head.WriteTo(k.mem, hdrAddr)
}

// Bytes returns the payload of c. The slice aliases heap memory and is only
// valid until c is freed.
func (k *Kalloc) Bytes(c Chunk) []byte {
	return k.mem.Slice(c.Addr, uintptr(c.Size))
}

// GetStats returns a snapshot of the allocator counters.
func (k *Kalloc) GetStats() Stats {
	return k.stats
}

// growPool takes one page from the pool, links it after tail and formats it
// with a single maximal free chunk.
func (k *Kalloc) growPool(tail *Zone) (Zone, Header, error) {
	page, err := k.pool.Palloc()
	if err != nil {
		return Zone{}, Header{}, err
	}
	if !page.Valid() {
		panic(fmt.Sprintf("kalloc: pool returned misaligned page 0x%x", page.Addr))
	}

	tail.writeNext(page.Addr)
	zone := newZone(k.mem, page.Addr)
	head := NewHeader(format.MaxChunkSize)
	writeZoneHeaderPair(zone, head)

	k.stats.GrowCalls++
	k.stats.Zones++
	k.log.Debug("kalloc grow", "page", fmt.Sprintf("0x%x", page.Addr), "zones", k.stats.Zones)

	if k.onGrow != nil {
		k.onGrow(page)
	}
	return zone, head, nil
}

// shrinkPool releases an empty zone. The head zone is kept; it reports
// whether the page was handed back.
func (k *Kalloc) shrinkPool(zone Zone) bool {
	if zone.base == k.head {
		return false
	}

	prev, err := k.findPredecessor(zone.base)
	if err != nil {
		panic(fmt.Sprintf("kalloc: tried to free zone 0x%x: %v", zone.base, err))
	}
	if err := zone.freeSelf(prev, k.pool); err != nil {
		panic(fmt.Sprintf("kalloc: pfree zone 0x%x: %v", zone.base, err))
	}

	k.stats.ShrinkCalls++
	k.stats.Zones--
	k.log.Debug("kalloc shrink", "page", fmt.Sprintf("0x%x", zone.base), "zones", k.stats.Zones)
	return true
}

// findPredecessor walks the list from the head to the zone whose next link
// is base.
func (k *Kalloc) findPredecessor(base uintptr) (Zone, error) {
	curr := zoneFrom(k.mem, k.head)
	for {
		next, err := curr.NextZone()
		if err != nil {
			return Zone{}, ErrZoneNotFound
		}
		if next.base == base {
			return curr, nil
		}
		curr = next
	}
}
