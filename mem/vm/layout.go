package vm

import (
	"errors"
	"fmt"

	"github.com/joshuapare/kheap/internal/format"
)

// ErrBadLayout indicates section boundaries that are unordered, unaligned or
// outside RAM.
var ErrBadLayout = errors.New("vm: bad memory layout")

// Layout holds the section boundaries of the kernel image as the linker
// script places them. Every field is a physical address; sections follow one
// another in field order and every boundary is page aligned.
//
//	TextStart  .text                  (r-x)
//	TextEnd    .rodata                (r--)
//	RodataEnd  .data                  (rw-)
//	DataEnd    hart stacks            (rw-)
//	StacksEnd  interrupt stacks       (rw-)
//	BSSStart   .bss                   (rw-)
//	BSSEnd     page pool              (rw-)
//	MemoryEnd
type Layout struct {
	TextStart   uintptr `yaml:"text_start"`
	TextEnd     uintptr `yaml:"text_end"`
	RodataEnd   uintptr `yaml:"rodata_end"`
	DataEnd     uintptr `yaml:"data_end"`
	StacksEnd   uintptr `yaml:"stacks_end"`
	IntStackEnd uintptr `yaml:"intstacks_end"`
	BSSStart    uintptr `yaml:"bss_start"`
	BSSEnd      uintptr `yaml:"bss_end"`
	MemoryEnd   uintptr `yaml:"memory_end"`
}

// Default section sizes used by DefaultLayout, in pages.
const (
	DefaultTextPages     = 32
	DefaultRodataPages   = 8
	DefaultDataPages     = 4
	DefaultStackPages    = 4 // per hart
	DefaultIntStackPages = 1 // per hart
	DefaultBSSPages      = 4
)

// DefaultLayout lays a plausible kernel image out at the start of size bytes
// of RAM at base. The rest of RAM becomes the page pool.
func DefaultLayout(base uintptr, size int) Layout {
	page := uintptr(format.PageSize)
	var l Layout
	l.TextStart = base
	l.TextEnd = l.TextStart + DefaultTextPages*page
	l.RodataEnd = l.TextEnd + DefaultRodataPages*page
	l.DataEnd = l.RodataEnd + DefaultDataPages*page
	l.StacksEnd = l.DataEnd + DefaultStackPages*format.NHart*page
	l.IntStackEnd = l.StacksEnd + DefaultIntStackPages*format.NHart*page
	l.BSSStart = l.IntStackEnd
	l.BSSEnd = l.BSSStart + DefaultBSSPages*page
	l.MemoryEnd = base + uintptr(size)
	return l
}

// Validate checks that the boundaries are page aligned, in order, and leave
// at least two pages for the pool: one for the root page table and one for
// the heap.
func (l Layout) Validate() error {
	bounds := l.bounds()
	for i, b := range bounds {
		if !format.IsPageAligned(b.addr) {
			return fmt.Errorf("%w: %s=0x%x not page aligned", ErrBadLayout, b.name, b.addr)
		}
		if i > 0 && b.addr < bounds[i-1].addr {
			return fmt.Errorf("%w: %s=0x%x below %s=0x%x",
				ErrBadLayout, b.name, b.addr, bounds[i-1].name, bounds[i-1].addr)
		}
	}
	if l.TextStart == 0 {
		return fmt.Errorf("%w: text_start is 0", ErrBadLayout)
	}
	if l.MemoryEnd < l.BSSEnd+2*format.PageSize {
		return fmt.Errorf("%w: %d bytes left for the page pool", ErrBadLayout, l.MemoryEnd-l.BSSEnd)
	}
	return nil
}

// RAMSize returns the bytes from TextStart to MemoryEnd.
func (l Layout) RAMSize() int {
	return int(l.MemoryEnd - l.TextStart)
}

// PoolPages returns the number of pages between BSSEnd and MemoryEnd.
func (l Layout) PoolPages() int {
	return int((l.MemoryEnd - l.BSSEnd) >> format.PageShift)
}

type bound struct {
	name string
	addr uintptr
}

func (l Layout) bounds() []bound {
	return []bound{
		{"text_start", l.TextStart},
		{"text_end", l.TextEnd},
		{"rodata_end", l.RodataEnd},
		{"data_end", l.DataEnd},
		{"stacks_end", l.StacksEnd},
		{"intstacks_end", l.IntStackEnd},
		{"bss_start", l.BSSStart},
		{"bss_end", l.BSSEnd},
		{"memory_end", l.MemoryEnd},
	}
}
