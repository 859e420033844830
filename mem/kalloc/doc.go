// Package kalloc provides the kernel's sub-page heap allocator.
//
// # Overview
//
// Kalloc carves fine-grained allocations out of whole pages obtained from
// the physical page pool. Every page owned by the heap is a zone; zones form
// a forward-only singly-linked list starting at the head page. All
// bookkeeping lives inside the pages themselves:
//
//	page + 0x000  zone word    next zone address | refs
//	page + 0x008  header       size | used
//	page + 0x010  data ...
//	              header       size | used
//	              data ...
//	page + 0x1000 (end)
//
// There is no separate free list; a chunk is free when its header says so.
//
// # Allocation
//
// Alloc rounds the request up to 8 bytes and walks the zones from the head,
// scanning each page first-fit. While scanning, two consecutive free chunks
// are merged in place. The chosen chunk is marked used, the zone's ref count
// is incremented and any excess is split off as a new free chunk. When no
// zone has room, one page is taken from the pool, linked at the tail and the
// request is placed at its start. An empty pool surfaces as ErrOOM.
//
// # Freeing
//
// Free masks the pointer down to its page to find the zone, marks the chunk
// free and decrements the zone's ref count. A zone whose count drops to zero
// is unlinked and its page handed back to the pool, except for the head
// zone which is kept for the lifetime of the allocator. Otherwise the chunk
// is merged with the chunk that follows it when that one is free too. A
// freed chunk never merges with its predecessor; the next scan over that
// zone picks the pair up instead.
//
// # Failure Tiers
//
// Contract violations (double free, ref count underflow or overflow, a zone
// missing from the list) panic with a diagnostic. Page pool exhaustion is an
// ordinary error returned from Alloc.
//
// # Thread Safety
//
// Kalloc instances are not thread-safe. Wrap the instance in a Locked
// before sharing it across goroutines.
package kalloc
