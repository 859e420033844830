package kalloc

import "errors"

var (
	// ErrMaxRefs indicates a zone's ref count would overflow its 12-bit field.
	ErrMaxRefs = errors.New("kalloc: zone ref count at maximum")

	// ErrMinRefs indicates a zone's ref count would go negative.
	ErrMinRefs = errors.New("kalloc: zone ref count below zero")

	// ErrNullZone marks the end of the zone list.
	ErrNullZone = errors.New("kalloc: null zone")

	// ErrOOM indicates the page pool could not supply a page to grow the heap.
	ErrOOM = errors.New("kalloc: out of memory")

	// ErrTooLarge indicates a request larger than one page's chunk space.
	ErrTooLarge = errors.New("kalloc: request exceeds max chunk size")

	// ErrMisaligned indicates the first heap page is not page aligned.
	ErrMisaligned = errors.New("kalloc: page not aligned")

	// ErrZoneNotFound indicates a zone is not reachable from the head.
	ErrZoneNotFound = errors.New("kalloc: zone not in list")

	// ErrCorrupt indicates Verify found a broken heap invariant.
	ErrCorrupt = errors.New("kalloc: heap corrupt")
)
