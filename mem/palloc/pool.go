package palloc

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joshuapare/kheap/internal/format"
)

// Memory is the word-level view of physical RAM the pool threads its free
// list through.
type Memory interface {
	ReadWord(addr uintptr) uint64
	WriteWord(addr uintptr, v uint64)
	Zero(addr, n uintptr)
}

// Stats holds pool counters.
type Stats struct {
	Total       int // Pages managed by the pool
	Free        int // Pages currently on the free list
	Pallocs     int // Successful Palloc calls (including pages of PallocN)
	Pfrees      int // Successful Pfree calls
	Exhaustions int // Palloc calls that found the pool empty
	Rejected    int // Pfree calls refused with ErrPfreeFail
}

// Pool hands out single physical pages from [Start, End).
type Pool struct {
	mu sync.Mutex

	mem        Memory
	start, end uintptr

	head  uintptr  // first free page, 0 when empty
	taken []uint64 // one bit per page, set while a caller owns it

	stats Stats
	log   *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger routes pool diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// New builds a pool over the whole pages inside [start, end). start is
// rounded up and end rounded down to page boundaries.
func New(mem Memory, start, end uintptr, opts ...Option) (*Pool, error) {
	start = format.AlignPage(start)
	end = format.PageBase(end)
	if start == 0 || end <= start {
		return nil, fmt.Errorf("palloc: [0x%x, 0x%x): %w", start, end, ErrBadRange)
	}

	p := &Pool{
		mem:   mem,
		start: start,
		end:   end,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}

	n := int((end - start) >> format.PageShift)
	p.taken = make([]uint64, (n+63)/64)
	p.stats.Total = n

	// Thread pages in descending order so the list hands out ascending addresses.
	for addr := end - format.PageSize; ; addr -= format.PageSize {
		p.push(addr)
		if addr == start {
			break
		}
	}
	p.stats.Free = n

	p.log.Debug("page pool ready",
		"start", fmt.Sprintf("0x%x", start),
		"end", fmt.Sprintf("0x%x", end),
		"pages", n)
	return p, nil
}

// Start returns the first page address managed by the pool.
func (p *Pool) Start() uintptr { return p.start }

// End returns the address past the last page managed by the pool.
func (p *Pool) End() uintptr { return p.end }

// Palloc hands out one zeroed page.
func (p *Pool) Palloc() (Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr, err := p.pop()
	if err != nil {
		return Page{}, err
	}
	return Page{Addr: addr}, nil
}

// PallocN hands out n pages or none at all. Pages are not guaranteed to be
// contiguous.
func (p *Pool) PallocN(n int) ([]Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n > p.stats.Free {
		p.stats.Exhaustions++
		return nil, fmt.Errorf("palloc: want %d pages, %d free: %w", n, p.stats.Free, ErrPartialPalloc)
	}

	pages := make([]Page, 0, n)
	for range n {
		addr, err := p.pop()
		if err != nil {
			for _, pg := range pages {
				p.release(pg.Addr)
			}
			return nil, fmt.Errorf("palloc: after %d of %d pages: %w", len(pages), n, ErrPartialPalloc)
		}
		pages = append(pages, Page{Addr: addr})
	}
	return pages, nil
}

// Pfree returns a page previously obtained from Palloc.
func (p *Pool) Pfree(pg Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !pg.Valid() || pg.Addr < p.start || pg.Addr >= p.end {
		p.stats.Rejected++
		return fmt.Errorf("palloc: page 0x%x outside pool: %w", pg.Addr, ErrPfreeFail)
	}
	if !p.isTaken(pg.Addr) {
		p.stats.Rejected++
		return fmt.Errorf("palloc: page 0x%x not allocated: %w", pg.Addr, ErrPfreeFail)
	}

	p.release(pg.Addr)
	p.stats.Pfrees++
	return nil
}

// Free returns the number of pages on the free list.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.Free
}

// Total returns the number of pages managed by the pool.
func (p *Pool) Total() int {
	return p.stats.Total
}

// Owned reports whether the page at addr is currently handed out.
func (p *Pool) Owned(addr uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if addr < p.start || addr >= p.end || !format.IsPageAligned(addr) {
		return false
	}
	return p.isTaken(addr)
}

// GetStats returns a snapshot of the pool counters.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// pop removes the head of the free list. Caller holds mu.
func (p *Pool) pop() (uintptr, error) {
	if p.head == 0 {
		p.stats.Exhaustions++
		p.log.Warn("page pool exhausted", "total", p.stats.Total)
		return 0, ErrOutOfPages
	}
	addr := p.head
	p.head = uintptr(p.mem.ReadWord(addr))
	p.mem.Zero(addr, format.PageSize)
	p.setTaken(addr, true)
	p.stats.Free--
	p.stats.Pallocs++
	return addr, nil
}

// release scrubs the page and pushes it back. Caller holds mu.
func (p *Pool) release(addr uintptr) {
	p.mem.Zero(addr, format.PageSize)
	p.push(addr)
	p.setTaken(addr, false)
	p.stats.Free++
}

func (p *Pool) push(addr uintptr) {
	p.mem.WriteWord(addr, uint64(p.head))
	p.head = addr
}

func (p *Pool) index(addr uintptr) (int, uint64) {
	i := int((addr - p.start) >> format.PageShift)
	return i / 64, 1 << (i % 64)
}

func (p *Pool) isTaken(addr uintptr) bool {
	w, bit := p.index(addr)
	return p.taken[w]&bit != 0
}

func (p *Pool) setTaken(addr uintptr, on bool) {
	w, bit := p.index(addr)
	if on {
		p.taken[w] |= bit
	} else {
		p.taken[w] &^= bit
	}
}
