package kalloc

import (
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kheap/internal/format"
	"github.com/joshuapare/kheap/internal/physmem"
	"github.com/joshuapare/kheap/mem/palloc"
)

// testHeap bundles an allocator with the memory and pool behind it.
type testHeap struct {
	k    *Kalloc
	pool *palloc.Pool
	mem  *physmem.Region
}

// newTestHeap maps pages of RAM, builds a pool over all of them and hands
// the first page to a fresh allocator.
func newTestHeap(t testing.TB, pages int) *testHeap {
	t.Helper()
	mem, err := physmem.New(format.DRAMBase, pages*format.PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	pool, err := palloc.New(mem, mem.Base(), mem.End())
	require.NoError(t, err)

	first, err := pool.Palloc()
	require.NoError(t, err)

	k, err := New(mem, pool, first)
	require.NoError(t, err)
	return &testHeap{k: k, pool: pool, mem: mem}
}

// headerAt decodes the header preceding the chunk's data.
func (th *testHeap) headerAt(c Chunk) Header {
	return HeaderFrom(th.mem, c.Addr-format.HeaderSize)
}

// mustAlloc allocates size bytes or fails the test.
func (th *testHeap) mustAlloc(t testing.TB, size int) Chunk {
	t.Helper()
	c, err := th.k.Alloc(size)
	require.NoError(t, err)
	require.False(t, c.IsNil())
	return c
}

// requireHealthy runs Verify plus the cross-zone checks Verify cannot do on
// its own: live chunks are pairwise disjoint and each lies inside one page.
func requireHealthy(t testing.TB, k *Kalloc, live []Chunk) {
	t.Helper()
	require.NoError(t, k.Verify())

	sorted := append([]Chunk(nil), live...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })
	for i, c := range sorted {
		page := format.PageBase(c.Addr)
		require.LessOrEqual(t, c.Addr+uintptr(c.Size), page+format.PageSize,
			"chunk 0x%x+%d crosses its page", c.Addr, c.Size)
		if i > 0 {
			prev := sorted[i-1]
			require.LessOrEqual(t, prev.Addr+uintptr(prev.Size)+format.HeaderSize, c.Addr,
				"chunk 0x%x overlaps 0x%x", prev.Addr, c.Addr)
		}
	}

	s := k.GetStats()
	require.Equal(t, len(live), s.LiveChunks)
}

// pageSum returns the bytes covered by the zone word plus every header and
// chunk in the zone.
func pageSum(zi ZoneInfo) int {
	sum := format.ZoneHeaderSize
	for _, c := range zi.Chunks {
		sum += format.HeaderSize + c.Size
	}
	return sum
}

func hex(addr uintptr) string {
	return strconv.FormatUint(uint64(addr), 16)
}
