package msf

import "errors"

// Structural errors surfaced while opening or writing an MSF container.
// Callers match them with errors.Is; the wrapped message carries the detail.
var (
	// ErrMalformedSuperblock indicates a bad magic signature or an invalid
	// block size / FPM slot in the superblock.
	ErrMalformedSuperblock = errors.New("malformed MSF superblock")

	// ErrMalformedDirectory indicates stream sizes or block lists that are
	// inconsistent with the declared block size or run past the directory.
	ErrMalformedDirectory = errors.New("malformed stream directory")

	// ErrNoSuchStream is returned for out-of-range or absent stream indices.
	ErrNoSuchStream = errors.New("no such stream")

	// ErrOutOfRange indicates a block index at or beyond the block count.
	ErrOutOfRange = errors.New("block index out of range")

	// ErrTooManyStreams is returned by the writer when the stream count no
	// longer fits the 16-bit stream indices used above the container layer.
	ErrTooManyStreams = errors.New("too many streams")

	// ErrFileTooLarge is returned by the writer when a block-address field
	// would overflow its fixed-width encoding, or the directory no longer
	// fits a single-level block map.
	ErrFileTooLarge = errors.New("file too large for MSF encoding")
)
