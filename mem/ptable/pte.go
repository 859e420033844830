package ptable

import (
	"fmt"
	"strings"

	"github.com/joshuapare/kheap/internal/format"
)

// Flag is a permission or status bit in a page table entry.
type Flag uint64

const (
	FlagValid    Flag = 1 << 0
	FlagRead     Flag = 1 << 1
	FlagWrite    Flag = 1 << 2
	FlagExec     Flag = 1 << 3
	FlagUser     Flag = 1 << 4
	FlagGlobal   Flag = 1 << 5
	FlagAccessed Flag = 1 << 6
	FlagDirty    Flag = 1 << 7

	// FlagRWX covers the permission bits that make an entry a leaf.
	FlagRWX = FlagRead | FlagWrite | FlagExec

	flagMask = 0x3FF
	ppnShift = 10
	ppnMask  = (1<<44 - 1) << ppnShift
)

// PTE is one Sv39 page table entry.
//
//	63    54 53                                 10 9  8 7 6 5 4 3 2 1 0
//	┌───────┬─────────────────────────────────────┬────┬─┬─┬─┬─┬─┬─┬─┬─┐
//	│ rsvd  │                PPN                  │RSW │D│A│G│U│X│W│R│V│
//	└───────┴─────────────────────────────────────┴────┴─┴─┴─┴─┴─┴─┴─┴─┘
type PTE uint64

// HasFlags returns true if this entry has all the input flags set.
func (pte PTE) HasFlags(flags Flag) bool {
	return uint64(pte)&uint64(flags) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PTE) HasAnyFlag(flags Flag) bool {
	return uint64(pte)&uint64(flags) != 0
}

// SetFlags sets the input flags.
func (pte *PTE) SetFlags(flags Flag) {
	*pte |= PTE(flags)
}

// ClearFlags unsets the input flags.
func (pte *PTE) ClearFlags(flags Flag) {
	*pte &^= PTE(flags)
}

// Flags returns the low ten bits of the entry.
func (pte PTE) Flags() Flag {
	return Flag(uint64(pte) & flagMask)
}

// PPN returns the physical page number the entry points to.
func (pte PTE) PPN() uint64 {
	return (uint64(pte) & ppnMask) >> ppnShift
}

// Addr returns the physical address of the page or table the entry points to.
func (pte PTE) Addr() uintptr {
	return uintptr(pte.PPN() << format.PageShift)
}

// SetAddr points the entry at the page holding pa, keeping the flags.
func (pte *PTE) SetAddr(pa uintptr) {
	ppn := uint64(pa>>format.PageShift) << ppnShift
	*pte = PTE((uint64(*pte) &^ ppnMask) | (ppn & ppnMask))
}

// IsLeaf reports whether the entry is valid and maps a page rather than a
// next-level table.
func (pte PTE) IsLeaf() bool {
	return pte.HasFlags(FlagValid) && pte.HasAnyFlag(FlagRWX)
}

// String renders the flags as "rwxugvad" with '-' for clear bits.
func (f Flag) String() string {
	var sb strings.Builder
	for _, b := range []struct {
		flag Flag
		c    byte
	}{
		{FlagRead, 'r'}, {FlagWrite, 'w'}, {FlagExec, 'x'},
		{FlagUser, 'u'}, {FlagGlobal, 'g'},
		{FlagValid, 'v'}, {FlagAccessed, 'a'}, {FlagDirty, 'd'},
	} {
		if f&b.flag != 0 {
			sb.WriteByte(b.c)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// String renders the entry as "0x80001000 rw---v--".
func (pte PTE) String() string {
	return fmt.Sprintf("0x%x %s", pte.Addr(), pte.Flags())
}
