// Package ptable builds Sv39 page tables inside physical memory.
//
// A table is one page of 512 eight-byte entries. Three levels translate a
// 39-bit virtual address:
//
//	 38        30 29        21 20        12 11           0
//	┌────────────┬────────────┬────────────┬──────────────┐
//	│   VPN[2]   │   VPN[1]   │   VPN[0]   │ page offset  │
//	└────────────┴────────────┴────────────┴──────────────┘
//
// Intermediate tables are taken from the page pool on demand and given back
// by Free. Only 4 KiB leaves are created; a superpage leaf found during a
// walk is reported as ErrSuperpage.
package ptable
