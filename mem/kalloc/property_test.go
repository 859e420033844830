package kalloc

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kheap/internal/format"
)

// fill stamps every payload byte with a value derived from the chunk address
// so later corruption by the allocator's own metadata writes shows up.
func fill(b []byte, c Chunk) {
	for i := range b {
		b[i] = byte(c.Addr>>3) ^ byte(i)
	}
}

func requireIntact(t testing.TB, k *Kalloc, c Chunk) {
	t.Helper()
	b := k.Bytes(c)
	for i := range b {
		if b[i] != byte(c.Addr>>3)^byte(i) {
			t.Fatalf("chunk 0x%x byte %d clobbered", c.Addr, i)
		}
	}
}

// TestRandomWorkload_Invariants drives seeded random alloc/free sequences
// and checks after every step that chunks stay disjoint, pages stay exactly
// tiled, ref counts match and live payloads are never touched.
func TestRandomWorkload_Invariants(t *testing.T) {
	for _, seed := range []uint64{1, 7, 42, 1337, 9001} {
		t.Run("seed="+strconv.FormatUint(seed, 10), func(t *testing.T) {
			th := newTestHeap(t, 8)
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

			var live []Chunk
			for step := range 2000 {
				if len(live) > 0 && rng.IntN(100) < 45 {
					i := rng.IntN(len(live))
					requireIntact(t, th.k, live[i])
					th.k.Free(live[i])
					live[i] = live[len(live)-1]
					live = live[:len(live)-1]
				} else {
					size := rng.IntN(512)
					if rng.IntN(20) == 0 {
						size = rng.IntN(format.MaxChunkSize + 1)
					}
					c, err := th.k.Alloc(size)
					if errors.Is(err, ErrOOM) {
						continue
					}
					require.NoError(t, err, "step %d", step)
					fill(th.k.Bytes(c), c)
					live = append(live, c)
				}

				if step%50 == 0 {
					requireHealthy(t, th.k, live)
					for _, zi := range th.k.Zones() {
						require.Equal(t, format.PageSize, pageSum(zi), "zone 0x%x", zi.Base)
						require.Equal(t, zi.UsedCount(), zi.Refs)
					}
				}
			}

			for _, c := range live {
				requireIntact(t, th.k, c)
				th.k.Free(c)
			}
			requireHealthy(t, th.k, nil)

			s := th.k.GetStats()
			require.Equal(t, 1, s.Zones, "every non-head zone is released once empty")
			require.Equal(t, s.GrowCalls, s.ShrinkCalls)
			require.Equal(t, th.pool.Total()-1, th.pool.Free())
		})
	}
}

// TestSmallestChunks_FillPage packs a page with minimum-size chunks and
// checks the ref count tracks every one of them.
func TestSmallestChunks_FillPage(t *testing.T) {
	th := newTestHeap(t, 1)

	var live []Chunk
	for {
		c, err := th.k.Alloc(8)
		if errors.Is(err, ErrOOM) {
			break
		}
		require.NoError(t, err)
		live = append(live, c)
	}

	// 4088 bytes of chunk space hold 255 header+8 byte chunks.
	require.Len(t, live, (format.PageSize-format.ZoneHeaderSize)/(format.HeaderSize+8))
	require.Equal(t, len(live), th.k.Zones()[0].Refs)
	requireHealthy(t, th.k, live)

	for _, c := range live {
		th.k.Free(c)
	}
	require.Zero(t, th.k.Zones()[0].Refs)
	require.NoError(t, th.k.Verify())
}
