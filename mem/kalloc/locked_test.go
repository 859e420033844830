package kalloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kheap/internal/format"
)

func TestLocked_ConcurrentHarts(t *testing.T) {
	th := newTestHeap(t, 64)
	l := NewLocked(th.k)

	var wg sync.WaitGroup
	for hart := range format.NHart * 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mine []Chunk
			for i := range 300 {
				c, err := l.Alloc(8 + (hart*37+i*13)%600)
				if err != nil {
					t.Errorf("hart %d alloc: %v", hart, err)
					return
				}
				b := l.Bytes(c)
				for j := range b {
					b[j] = byte(hart)
				}
				mine = append(mine, c)
				if len(mine) > 8 {
					l.Free(mine[0])
					mine = mine[1:]
				}
			}
			for _, c := range mine {
				for _, v := range l.Bytes(c) {
					if v != byte(hart) {
						t.Errorf("hart %d chunk 0x%x clobbered", hart, c.Addr)
						return
					}
				}
				l.Free(c)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, l.Verify())
	s := l.GetStats()
	require.Zero(t, s.LiveChunks)
	require.Equal(t, 1, s.Zones)
	require.Len(t, l.Zones(), 1)
}
