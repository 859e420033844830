package palloc

import "github.com/joshuapare/kheap/internal/format"

// Page is an owned handle to one physical page. Whoever holds a Page owns
// the 4096 bytes at Addr until it is handed back with Pfree.
type Page struct {
	Addr uintptr
}

// PageFrom builds a handle for the page starting at addr.
func PageFrom(addr uintptr) Page {
	return Page{Addr: addr}
}

// Valid reports whether the handle refers to a page-aligned, non-null address.
func (p Page) Valid() bool {
	return p.Addr != 0 && format.IsPageAligned(p.Addr)
}

// End returns the first address past the page.
func (p Page) End() uintptr {
	return p.Addr + format.PageSize
}
