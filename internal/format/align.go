package format

// Align8 returns n aligned up to the next 8-byte boundary.
// Used for chunk sizes handed to the heap allocator.
//
// Example:
//
//	Align8(0)  = 0
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n int) int {
	return (n + ChunkAlignmentMask) & ^ChunkAlignmentMask
}

// AlignPage returns addr aligned up to the next page boundary.
//
// Example:
//
//	AlignPage(0x8000_0001) = 0x8000_1000
//	AlignPage(0x8000_1000) = 0x8000_1000
func AlignPage(addr uintptr) uintptr {
	return (addr + PageMask) &^ PageMask
}

// PageBase rounds addr down to the start of its page.
func PageBase(addr uintptr) uintptr {
	return addr &^ PageMask
}

// PageOffset returns the offset of addr within its page.
func PageOffset(addr uintptr) uintptr {
	return addr & PageMask
}

// IsPageAligned reports whether addr sits on a page boundary.
func IsPageAligned(addr uintptr) bool {
	return addr&PageMask == 0
}
