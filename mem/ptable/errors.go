package ptable

import "errors"

var (
	// ErrInvalidMapping is returned when looking up a virtual address with no leaf behind it.
	ErrInvalidMapping = errors.New("ptable: virtual address is not mapped")

	// ErrRemap is returned when mapping a page that already has a leaf.
	ErrRemap = errors.New("ptable: page already mapped")

	// ErrMisaligned is returned when a virtual or physical address is not page aligned.
	ErrMisaligned = errors.New("ptable: address not page aligned")

	// ErrOutOfRange is returned for virtual addresses outside the Sv39 lower half.
	ErrOutOfRange = errors.New("ptable: virtual address out of range")

	// ErrBadFlags is returned for leaf permissions the MMU treats as reserved.
	ErrBadFlags = errors.New("ptable: invalid leaf permissions")

	// ErrSuperpage is returned when a walk meets a leaf above level 0.
	ErrSuperpage = errors.New("ptable: superpages are not supported")
)
