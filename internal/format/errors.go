package format

import "errors"

var (
	// ErrMisaligned indicates an address that must be page aligned was not.
	ErrMisaligned = errors.New("format: address not page aligned")
	// ErrOutOfRange indicates an address outside the memory it was meant to index.
	ErrOutOfRange = errors.New("format: address out of range")
)
