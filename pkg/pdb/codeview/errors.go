package codeview

import "errors"

var (
	// ErrMalformedRecord indicates a record whose length, padding, or
	// numeric leaf encoding is inconsistent with its declared size.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrTrailingGarbage indicates non-record bytes after the last complete
	// record in a stream.
	ErrTrailingGarbage = errors.New("trailing garbage after records")
)
