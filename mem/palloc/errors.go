package palloc

import "errors"

var (
	// ErrOutOfPages indicates the pool has no free page left.
	ErrOutOfPages = errors.New("palloc: out of pages")

	// ErrPartialPalloc indicates a multi-page request could not be satisfied in full.
	ErrPartialPalloc = errors.New("palloc: partial allocation")

	// ErrPfreeFail indicates a page handed to Pfree is not owned by a caller.
	ErrPfreeFail = errors.New("palloc: pfree failed")

	// ErrBadRange indicates the pool range holds no whole page.
	ErrBadRange = errors.New("palloc: bad pool range")
)
