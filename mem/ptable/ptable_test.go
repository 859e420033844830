package ptable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kheap/internal/format"
	"github.com/joshuapare/kheap/internal/physmem"
	"github.com/joshuapare/kheap/mem/palloc"
)

func newTestTable(t *testing.T, pages int) (*PageTable, *palloc.Pool) {
	t.Helper()
	mem, err := physmem.New(format.DRAMBase, pages*format.PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	pool, err := palloc.New(mem, mem.Base(), mem.End())
	require.NoError(t, err)

	pt, err := New(mem, pool)
	require.NoError(t, err)
	return pt, pool
}

func TestNew_RootFromPool(t *testing.T) {
	pt, pool := newTestTable(t, 4)

	require.True(t, pool.Owned(pt.Root()))
	require.Equal(t, 1, pt.GetStats().Tables)
	require.Equal(t, SatpModeSv39|uint64(pt.Root()>>12), pt.Satp())
}

func TestNew_EmptyPool(t *testing.T) {
	mem, err := physmem.New(format.DRAMBase, format.PageSize)
	require.NoError(t, err)
	defer mem.Close()
	pool, err := palloc.New(mem, mem.Base(), mem.End())
	require.NoError(t, err)
	_, err = pool.Palloc()
	require.NoError(t, err)

	_, err = New(mem, pool)
	require.ErrorIs(t, err, palloc.ErrOutOfPages)
}

func TestMap_Translate(t *testing.T) {
	pt, _ := newTestTable(t, 8)

	require.NoError(t, pt.Map(0x4000_0000, 0x8000_5000, 2*format.PageSize, FlagRead|FlagWrite))

	pa, err := pt.Translate(0x4000_0123)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x8000_5123), pa)

	pa, err = pt.Translate(0x4000_1ff8)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x8000_6ff8), pa)

	pte, err := pt.Lookup(0x4000_0000)
	require.NoError(t, err)
	require.Equal(t, FlagValid|FlagRead|FlagWrite, pte.Flags())

	// root + one level-1 table + one level-0 table
	require.Equal(t, Stats{Tables: 3, Leaves: 2}, pt.GetStats())
}

func TestMap_RoundsSizeUp(t *testing.T) {
	pt, _ := newTestTable(t, 8)
	require.NoError(t, pt.Map(0x1000_0000, 0x1000_0000, 0x100, FlagRead|FlagWrite))
	require.Equal(t, 1, pt.GetStats().Leaves)
}

func TestMap_SharesTables(t *testing.T) {
	pt, _ := newTestTable(t, 8)

	require.NoError(t, pt.Identity(0x8000_0000, format.PageSize, FlagRead|FlagExec))
	require.NoError(t, pt.Identity(0x8000_1000, format.PageSize, FlagRead))
	require.Equal(t, 3, pt.GetStats().Tables)

	// A different 1 GiB region needs its own level-1 and level-0 tables.
	require.NoError(t, pt.Identity(0x0200_0000, format.PageSize, FlagRead|FlagWrite))
	require.Equal(t, 5, pt.GetStats().Tables)
}

func TestMap_Errors(t *testing.T) {
	pt, _ := newTestTable(t, 8)

	require.ErrorIs(t, pt.Map(0x1001, 0x8000_0000, 1, FlagRead), ErrMisaligned)
	require.ErrorIs(t, pt.Map(0x1000, 0x8000_0010, 1, FlagRead), ErrMisaligned)
	require.ErrorIs(t, pt.Map(0x1000, 0x8000_0000, 1, FlagValid), ErrBadFlags)
	require.ErrorIs(t, pt.Map(0x1000, 0x8000_0000, 1, FlagWrite), ErrBadFlags)
	require.ErrorIs(t, pt.Map(MaxVA, 0x8000_0000, 1, FlagRead), ErrOutOfRange)
	require.ErrorIs(t, pt.Map(MaxVA-format.PageSize, 0x8000_0000, 2*format.PageSize, FlagRead), ErrOutOfRange)

	require.NoError(t, pt.Map(0x1000, 0x8000_0000, 1, FlagRead))
	require.ErrorIs(t, pt.Map(0x1000, 0x8000_1000, 1, FlagRead), ErrRemap)
}

func TestMap_OutOfTablePages(t *testing.T) {
	// Root plus one spare page: the level-0 table cannot be allocated.
	pt, _ := newTestTable(t, 2)
	err := pt.Map(0x1000, 0x8000_0000, 1, FlagRead)
	require.ErrorIs(t, err, palloc.ErrOutOfPages)
}

func TestTranslate_Holes(t *testing.T) {
	pt, _ := newTestTable(t, 8)
	require.NoError(t, pt.Identity(0x8000_0000, format.PageSize, FlagRead))

	_, err := pt.Translate(0x8000_1000)
	require.ErrorIs(t, err, ErrInvalidMapping)
	_, err = pt.Translate(0x4000_0000)
	require.ErrorIs(t, err, ErrInvalidMapping)
	_, err = pt.Translate(MaxVA)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestUnmap(t *testing.T) {
	pt, _ := newTestTable(t, 8)
	require.NoError(t, pt.Identity(0x8000_0000, 2*format.PageSize, FlagRead|FlagWrite))

	require.NoError(t, pt.Unmap(0x8000_1000, format.PageSize))
	_, err := pt.Translate(0x8000_1000)
	require.ErrorIs(t, err, ErrInvalidMapping)
	_, err = pt.Translate(0x8000_0000)
	require.NoError(t, err)

	require.ErrorIs(t, pt.Unmap(0x8000_1000, format.PageSize), ErrInvalidMapping)
	require.Equal(t, 1, pt.GetStats().Leaves)

	// The slot can be mapped again once cleared.
	require.NoError(t, pt.Identity(0x8000_1000, format.PageSize, FlagRead))
}

func TestWalk_AscendingLeaves(t *testing.T) {
	pt, _ := newTestTable(t, 16)
	require.NoError(t, pt.Identity(0x8000_0000, 3*format.PageSize, FlagRead|FlagExec))
	require.NoError(t, pt.Identity(0x1000_0000, format.PageSize, FlagRead|FlagWrite))
	require.NoError(t, pt.Identity(0x0200_0000, format.PageSize, FlagRead|FlagWrite))

	var got []uintptr
	pt.Walk(func(va uintptr, pte PTE) bool {
		require.Equal(t, va, pte.Addr())
		got = append(got, va)
		return true
	})
	require.Equal(t, []uintptr{
		0x0200_0000,
		0x1000_0000,
		0x8000_0000, 0x8000_1000, 0x8000_2000,
	}, got)

	n := 0
	pt.Walk(func(uintptr, PTE) bool {
		n++
		return n < 2
	})
	require.Equal(t, 2, n)
}

func TestFree_ReturnsTables(t *testing.T) {
	pt, pool := newTestTable(t, 16)
	require.NoError(t, pt.Identity(0x8000_0000, format.PageSize, FlagRead))
	require.NoError(t, pt.Identity(0x0200_0000, format.PageSize, FlagRead))
	require.Equal(t, pool.Total()-5, pool.Free())

	require.NoError(t, pt.Free())
	require.Equal(t, pool.Total(), pool.Free())
	require.Zero(t, pt.GetStats().Tables)
}
