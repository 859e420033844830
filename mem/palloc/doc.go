// Package palloc implements the physical page pool: a single-page
// allocator over a range of RAM.
//
// # Overview
//
// Every free page is threaded onto an intrusive singly-linked list; the
// first word of a free page holds the physical address of the next free
// page, 0 terminating the list. Palloc pops the head and hands the caller a
// zeroed page, Pfree validates the page and pushes it back.
//
// Ownership of a page moves to the caller on a successful Palloc and moves
// back to the pool on Pfree. The pool records which pages are out so a page
// that was never handed out, or was already returned, is rejected instead
// of corrupting the free list.
//
// # Thread Safety
//
// Pool methods are safe for concurrent use. The pool is shared between the
// heap allocator, the page-table builder and any other early-boot consumer.
package palloc
