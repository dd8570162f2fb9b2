package ingest

import "errors"

var (
	// ErrUnsupportedFormat is returned for a file extension with no codec.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrBadNumber is returned for a numeric cell that is not a finite number.
	ErrBadNumber = errors.New("bad number")
)
