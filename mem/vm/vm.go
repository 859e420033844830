// Package vm brings up kernel memory: it maps RAM, builds the page pool over
// the space past the kernel image, installs the kernel's identity page table
// and hands the heap allocator its first page.
package vm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/kheap/internal/format"
	"github.com/joshuapare/kheap/internal/physmem"
	"github.com/joshuapare/kheap/mem/kalloc"
	"github.com/joshuapare/kheap/mem/palloc"
	"github.com/joshuapare/kheap/mem/ptable"
)

// Config tunes Init.
type Config struct {
	// Logger receives boot diagnostics. nil discards them.
	Logger *slog.Logger

	// MapDevices adds identity mappings for the UART, CLINT and PLIC.
	MapDevices bool

	// SkipPageTable leaves the kernel without a page table, as when running
	// with paging disabled.
	SkipPageTable bool
}

// DefaultConfig is the configuration the kernel boots with.
var DefaultConfig = Config{
	MapDevices: true,
}

// Mapping is one identity-mapped region installed at boot.
type Mapping struct {
	Name  string
	Start uintptr
	End   uintptr
	Flags ptable.Flag
}

// Space is the kernel's memory after boot. There is one per machine; it is
// built once by Init and passed by reference.
type Space struct {
	Layout    Layout
	Mem       *physmem.Region
	Pool      *palloc.Pool
	PageTable *ptable.PageTable // nil with Config.SkipPageTable
	Heap      *kalloc.Locked
	Mappings  []Mapping

	log *slog.Logger
}

// Init maps the RAM described by layout and brings up the pool, the kernel
// page table and the heap, in that order.
func Init(layout Layout, cfg Config) (*Space, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mem, err := physmem.New(layout.TextStart, layout.RAMSize())
	if err != nil {
		return nil, fmt.Errorf("vm: map RAM: %w", err)
	}
	s := &Space{Layout: layout, Mem: mem, log: log}

	s.Pool, err = palloc.New(mem, layout.BSSEnd, layout.MemoryEnd, palloc.WithLogger(log))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("vm: page pool: %w", err), mem.Close())
	}
	log.Debug("Successfully initialized kernel page pool", "pages", s.Pool.Total())

	if !cfg.SkipPageTable {
		if err := s.kpageInit(cfg.MapDevices); err != nil {
			return nil, errors.Join(err, mem.Close())
		}
	}

	first, err := s.Pool.Palloc()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("vm: heap page: %w", err), mem.Close())
	}
	k, err := kalloc.New(mem, s.Pool, first, kalloc.WithLogger(log))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("vm: heap: %w", err), mem.Close())
	}
	s.Heap = kalloc.NewLocked(k)

	log.Info("kernel memory ready",
		"ram", layout.RAMSize(),
		"pool_pages", s.Pool.Total(),
		"free_pages", s.Pool.Free(),
		"heap", fmt.Sprintf("0x%x", first.Addr))
	return s, nil
}

// kpageInit builds the kernel page table: every kernel section and the pool
// identity mapped with its permissions, plus the devices when asked.
func (s *Space) kpageInit(devices bool) error {
	pt, err := ptable.New(s.Mem, s.Pool, ptable.WithLogger(s.log))
	if err != nil {
		return fmt.Errorf("vm: kernel page table: %w", err)
	}
	s.PageTable = pt

	l := s.Layout
	rw := ptable.FlagRead | ptable.FlagWrite
	maps := []Mapping{
		{"text", l.TextStart, l.TextEnd, ptable.FlagRead | ptable.FlagExec},
		{"rodata", l.TextEnd, l.RodataEnd, ptable.FlagRead},
		{"data", l.RodataEnd, l.DataEnd, rw},
		{"stacks", l.DataEnd, l.StacksEnd, rw},
		{"intstacks", l.StacksEnd, l.IntStackEnd, rw},
		{"bss", l.BSSStart, l.BSSEnd, rw},
		{"pool", l.BSSEnd, l.MemoryEnd, rw},
	}
	if devices {
		maps = append(maps,
			Mapping{"uart", format.UARTBase, format.UARTBase + format.UARTSize, rw},
			Mapping{"clint", format.CLINTBase, format.CLINTBase + format.CLINTSize, rw},
			Mapping{"plic", format.PLICBase, format.PLICBase + format.PLICSize, rw},
		)
	}

	for _, m := range maps {
		if m.End == m.Start {
			continue
		}
		if err := pt.Identity(m.Start, m.End-m.Start, m.Flags); err != nil {
			return fmt.Errorf("vm: map %s: %w", m.Name, err)
		}
		s.Mappings = append(s.Mappings, m)
	}
	s.log.Debug("kernel page table ready",
		"satp", fmt.Sprintf("0x%x", pt.Satp()),
		"tables", pt.GetStats().Tables,
		"leaves", pt.GetStats().Leaves)
	return nil
}

// Close releases the RAM arena. The Space and everything built on it must
// not be used afterwards.
func (s *Space) Close() error {
	return s.Mem.Close()
}
