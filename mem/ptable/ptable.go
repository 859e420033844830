package ptable

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/kheap/internal/format"
	"github.com/joshuapare/kheap/mem/palloc"
)

const (
	// Levels is the depth of an Sv39 table tree.
	Levels = 3

	// EntriesPerTable is the number of PTEs in one table page.
	EntriesPerTable = format.PageSize / format.WordSize

	levelBits = 9
	levelMask = EntriesPerTable - 1

	// MaxVA is the first virtual address past the lower half of Sv39.
	MaxVA = uintptr(1) << (format.PageShift + Levels*levelBits - 1)

	// SatpModeSv39 is the MODE field of satp selecting Sv39.
	SatpModeSv39 = uint64(8) << 60
)

// Memory is the word-level view of physical RAM the tables live in.
type Memory interface {
	ReadWord(addr uintptr) uint64
	WriteWord(addr uintptr, v uint64)
}

// PagePool supplies zeroed table pages.
type PagePool interface {
	Palloc() (palloc.Page, error)
	Pfree(palloc.Page) error
}

// Stats holds page table counters.
type Stats struct {
	Tables int // Table pages in use, root included
	Leaves int // 4 KiB mappings installed
}

// PageTable is an Sv39 translation tree rooted in one pool page.
//
// NOT thread-safe. The kernel builds it once during boot before other harts
// start.
type PageTable struct {
	mem  Memory
	pool PagePool
	root uintptr

	tables []palloc.Page
	stats  Stats
	log    *slog.Logger
}

// Option configures a PageTable.
type Option func(*PageTable)

// WithLogger routes page table diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(pt *PageTable) {
		if l != nil {
			pt.log = l
		}
	}
}

// New allocates an empty root table from pool.
func New(mem Memory, pool PagePool, opts ...Option) (*PageTable, error) {
	pt := &PageTable{
		mem:  mem,
		pool: pool,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(pt)
	}

	root, err := pt.newTable()
	if err != nil {
		return nil, fmt.Errorf("ptable: root table: %w", err)
	}
	pt.root = root
	return pt, nil
}

// Root returns the physical address of the root table.
func (pt *PageTable) Root() uintptr { return pt.root }

// Satp returns the satp CSR value that activates this table in Sv39 mode
// with ASID 0.
func (pt *PageTable) Satp() uint64 {
	return SatpModeSv39 | uint64(pt.root>>format.PageShift)
}

// GetStats returns a snapshot of the page table counters.
func (pt *PageTable) GetStats() Stats {
	return pt.stats
}

// Map installs leaves translating [va, va+size) to [pa, pa+size) with the
// given permissions. size is rounded up to whole pages. FlagValid is added
// to every leaf.
//
// Missing intermediate tables are taken from the pool. Pages mapped before
// an error stay mapped.
func (pt *PageTable) Map(va, pa, size uintptr, flags Flag) error {
	if !format.IsPageAligned(va) || !format.IsPageAligned(pa) {
		return fmt.Errorf("ptable: map va=0x%x pa=0x%x: %w", va, pa, ErrMisaligned)
	}
	if err := checkLeafFlags(flags); err != nil {
		return fmt.Errorf("ptable: map va=0x%x flags=0x%x: %w", va, uint64(flags), err)
	}
	size = format.AlignPage(size)
	if end := va + size; end < va || end > MaxVA {
		return fmt.Errorf("ptable: map [0x%x, 0x%x): %w", va, va+size, ErrOutOfRange)
	}

	for off := uintptr(0); off < size; off += format.PageSize {
		if err := pt.mapPage(va+off, pa+off, flags); err != nil {
			return err
		}
	}
	pt.log.Debug("ptable map",
		"va", fmt.Sprintf("0x%x", va),
		"pa", fmt.Sprintf("0x%x", pa),
		"pages", size>>format.PageShift,
		"flags", (flags | FlagValid).String())
	return nil
}

// Identity maps [pa, pa+size) onto itself.
func (pt *PageTable) Identity(pa, size uintptr, flags Flag) error {
	return pt.Map(pa, pa, size, flags)
}

func (pt *PageTable) mapPage(va, pa uintptr, flags Flag) error {
	slot, err := pt.walk(va, true)
	if err != nil {
		return fmt.Errorf("ptable: map va=0x%x: %w", va, err)
	}
	if pte := PTE(pt.mem.ReadWord(slot)); pte.HasFlags(FlagValid) {
		return fmt.Errorf("ptable: map va=0x%x (already -> 0x%x): %w", va, pte.Addr(), ErrRemap)
	}

	var pte PTE
	pte.SetAddr(pa)
	pte.SetFlags(flags | FlagValid)
	pt.mem.WriteWord(slot, uint64(pte))
	pt.stats.Leaves++
	return nil
}

// Unmap clears the leaves covering [va, va+size). Intermediate tables are
// kept. Every page in the range must be mapped.
func (pt *PageTable) Unmap(va, size uintptr) error {
	if !format.IsPageAligned(va) {
		return fmt.Errorf("ptable: unmap va=0x%x: %w", va, ErrMisaligned)
	}
	size = format.AlignPage(size)
	for off := uintptr(0); off < size; off += format.PageSize {
		slot, err := pt.walk(va+off, false)
		if err != nil {
			return fmt.Errorf("ptable: unmap va=0x%x: %w", va+off, err)
		}
		pte := PTE(pt.mem.ReadWord(slot))
		if !pte.HasFlags(FlagValid) {
			return fmt.Errorf("ptable: unmap va=0x%x: %w", va+off, ErrInvalidMapping)
		}
		pt.mem.WriteWord(slot, 0)
		pt.stats.Leaves--
	}
	return nil
}

// Lookup returns the leaf entry for va.
func (pt *PageTable) Lookup(va uintptr) (PTE, error) {
	if va >= MaxVA {
		return 0, ErrOutOfRange
	}
	slot, err := pt.walk(va, false)
	if err != nil {
		return 0, err
	}
	pte := PTE(pt.mem.ReadWord(slot))
	if !pte.HasFlags(FlagValid) {
		return 0, ErrInvalidMapping
	}
	return pte, nil
}

// Translate returns the physical address va maps to.
func (pt *PageTable) Translate(va uintptr) (uintptr, error) {
	pte, err := pt.Lookup(va)
	if err != nil {
		return 0, err
	}
	return pte.Addr() + format.PageOffset(va), nil
}

// Walk calls fn for every leaf in ascending virtual address order until fn
// returns false.
func (pt *PageTable) Walk(fn func(va uintptr, pte PTE) bool) {
	pt.walkTable(pt.root, Levels-1, 0, fn)
}

func (pt *PageTable) walkTable(table uintptr, level int, base uintptr, fn func(uintptr, PTE) bool) bool {
	for i := range uintptr(EntriesPerTable) {
		pte := PTE(pt.mem.ReadWord(table + i*format.WordSize))
		if !pte.HasFlags(FlagValid) {
			continue
		}
		va := base | i<<levelShift(level)
		if pte.IsLeaf() {
			if !fn(va, pte) {
				return false
			}
			continue
		}
		if level > 0 && !pt.walkTable(pte.Addr(), level-1, va, fn) {
			return false
		}
	}
	return true
}

// Free hands every table page back to the pool. The PageTable must not be
// used afterwards; mapped leaf pages are not touched.
func (pt *PageTable) Free() error {
	for i := len(pt.tables) - 1; i >= 0; i-- {
		if err := pt.pool.Pfree(pt.tables[i]); err != nil {
			return fmt.Errorf("ptable: free table 0x%x: %w", pt.tables[i].Addr, err)
		}
	}
	pt.tables = nil
	pt.stats = Stats{}
	pt.root = 0
	return nil
}

// walk descends from the root to the level-0 slot for va and returns the
// slot's address. With alloc set, missing tables are created on the way.
func (pt *PageTable) walk(va uintptr, alloc bool) (uintptr, error) {
	table := pt.root
	for level := Levels - 1; level > 0; level-- {
		slot := table + vpn(va, level)*format.WordSize
		pte := PTE(pt.mem.ReadWord(slot))

		switch {
		case pte.IsLeaf():
			return 0, ErrSuperpage
		case pte.HasFlags(FlagValid):
			table = pte.Addr()
		case !alloc:
			return 0, ErrInvalidMapping
		default:
			next, err := pt.newTable()
			if err != nil {
				return 0, err
			}
			var link PTE
			link.SetAddr(next)
			link.SetFlags(FlagValid)
			pt.mem.WriteWord(slot, uint64(link))
			table = next
		}
	}
	return table + vpn(va, 0)*format.WordSize, nil
}

// newTable takes a zeroed page from the pool for use as a table.
func (pt *PageTable) newTable() (uintptr, error) {
	page, err := pt.pool.Palloc()
	if err != nil {
		return 0, err
	}
	pt.tables = append(pt.tables, page)
	pt.stats.Tables++
	return page.Addr, nil
}

func levelShift(level int) uintptr {
	return uintptr(format.PageShift + level*levelBits)
}

func vpn(va uintptr, level int) uintptr {
	return (va >> levelShift(level)) & levelMask
}

// checkLeafFlags rejects leaves with no permission and the reserved
// write-without-read encoding.
func checkLeafFlags(flags Flag) error {
	if flags&FlagRWX == 0 {
		return ErrBadFlags
	}
	if flags&FlagWrite != 0 && flags&FlagRead == 0 {
		return ErrBadFlags
	}
	return nil
}
