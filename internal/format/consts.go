// Package format holds the fixed in-memory layout of the kernel heap: page
// geometry, the packed chunk Header and Zone words, and the physical memory
// map of the QEMU riscv "virt" board. Nothing here touches memory; the
// allocator packages build on these constants so every bit position is
// defined in exactly one place.
package format

const (
	// PageSize is the size of one physical page handed out by the page pool.
	PageSize = 4096

	// PageShift is log2(PageSize).
	PageShift = 12

	// PageMask is the bitmask used for aligning to page boundaries (PageSize - 1).
	PageMask = PageSize - 1

	// WordSize is the size of one machine word on RV64.
	WordSize = 8

	// HeaderSize is the size of the chunk header preceding every chunk's data.
	HeaderSize = WordSize

	// ZoneHeaderSize is the size of the zone word at the start of every heap page.
	ZoneHeaderSize = WordSize

	// MaxChunkSize is the largest payload a single chunk can carry:
	// PageSize - ZoneHeaderSize - HeaderSize = 4096 - 8 - 8 = 4080.
	MaxChunkSize = PageSize - ZoneHeaderSize - HeaderSize

	// ChunkAlignment is the allocation granularity. Requested sizes are
	// rounded up to a multiple of it.
	ChunkAlignment = 8

	// ChunkAlignmentMask is ChunkAlignment - 1.
	ChunkAlignmentMask = ChunkAlignment - 1

	// FirstChunkOffset is the page offset of the first chunk header.
	FirstChunkOffset = ZoneHeaderSize

	// MaxRefs is the largest ref count a zone may record. A page can hold at
	// most 510 zero-sized chunks (510 * 8 = 4080), and the 12-bit field must
	// never carry into the address bits.
	MaxRefs = 510
)

// Header word layout:
//
//	┌────────────────────────────────────┬─┬──────────────┐
//	│    Unused / Reserved               │U│ Chunk Size   │
//	└────────────────────────────────────┴─┴──────────────┘
//	63                                   12 11            0
const (
	// SizeMask extracts the chunk size from a Header word.
	SizeMask = 0xFFF

	// HeaderUsed is set when the chunk is allocated.
	HeaderUsed = 1 << 12
)

// Zone word layout:
//
//	┌──────────────────────────────────────┬──────────────┐
//	│  next zone address (page aligned)    │ refs count   │
//	└──────────────────────────────────────┴──────────────┘
//	63                                     12 11           0
const (
	// RefsMask extracts the ref count from a Zone word.
	RefsMask = PageMask

	// NextMask extracts the next zone address from a Zone word.
	NextMask = ^uint64(PageMask)

	// NullZone is the next-address sentinel marking the end of the zone list.
	NullZone = 0
)

// QEMU riscv virt memory map (hw/riscv/virt.c).
const (
	// CLINTBase is the core-local interruptor.
	CLINTBase = 0x0200_0000
	CLINTSize = 0x1_0000

	// PLICBase is the platform-level interrupt controller.
	PLICBase = 0x0c00_0000
	PLICSize = 0x40_0000

	// UARTBase is the ns16550a UART.
	UARTBase = 0x1000_0000
	UARTSize = 0x100

	// DRAMBase is where RAM starts and where the kernel's .text is loaded.
	DRAMBase = 0x8000_0000
)

// NHart is the number of harts brought up by the boot code.
const NHart = 2
