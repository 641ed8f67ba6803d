package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter is returned when a build or search parameter is out
	// of range, for example ef < k or a non-positive M.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrEmptyIndex is returned when searching an index with no vectors.
	ErrEmptyIndex = errors.New("index is empty")

	// ErrOutOfRange is returned when looking up an unknown node id.
	ErrOutOfRange = errors.New("node id out of range")

	// ErrUnsupportedFormat is returned when loading a snapshot with an
	// unknown magic number or format version.
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")

	// ErrCorruptData is returned when a snapshot is truncated or fails its
	// checksum.
	ErrCorruptData = errors.New("corrupt snapshot data")
)

// DimensionMismatchError indicates a vector whose length does not match the
// index's configured dimensionality.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
