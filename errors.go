package rawdec

import (
	"errors"
	"fmt"

	"github.com/gogpu/rawdec/bytestream"
)

// Common errors for decompression.
var (
	// ErrOutOfBounds is returned when compressed data ends before all
	// samples were decoded, or a byte range lies outside its stream.
	ErrOutOfBounds = bytestream.ErrOutOfBounds

	// ErrUnsupported is returned when no decode routine is registered for a
	// bit depth, predictor or compression combination.
	ErrUnsupported = errors.New("rawdec: unsupported configuration")

	// ErrCorrupt is returned when compressed data is internally inconsistent.
	ErrCorrupt = errors.New("rawdec: corrupt data")

	// ErrInvalidDimensions is returned when image dimensions are non-positive
	// or too large.
	ErrInvalidDimensions = errors.New("rawdec: invalid dimensions")

	// ErrInvalidSlice is returned when a slice lies outside the image or
	// overlaps another slice.
	ErrInvalidSlice = errors.New("rawdec: invalid slice")
)

// ItemError reports the failure of a single work item.
type ItemError struct {
	// Kind names the work item type, "slice" or "block".
	Kind string

	// Index is the position of the item in its decompressor's item list.
	Index int

	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("rawdec: %s %d: %v", e.Kind, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
