package kalloc

import "sync"

// Locked serializes every call into one Kalloc behind a single mutex. It is
// the handle shared across harts; the wrapped allocator must not be used
// directly once wrapped.
type Locked struct {
	mu sync.Mutex
	k  *Kalloc
}

// NewLocked wraps k.
func NewLocked(k *Kalloc) *Locked {
	return &Locked{k: k}
}

// Alloc is Kalloc.Alloc under the lock.
func (l *Locked) Alloc(size int) (Chunk, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Alloc(size)
}

// Free is Kalloc.Free under the lock.
func (l *Locked) Free(c Chunk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.k.Free(c)
}

// Bytes returns the payload of c. Only the chunk's owner may touch it, so no
// lock is taken.
func (l *Locked) Bytes(c Chunk) []byte {
	return l.k.Bytes(c)
}

// GetStats is Kalloc.GetStats under the lock.
func (l *Locked) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.GetStats()
}

// Zones is Kalloc.Zones under the lock.
func (l *Locked) Zones() []ZoneInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Zones()
}

// Verify is Kalloc.Verify under the lock.
func (l *Locked) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Verify()
}
