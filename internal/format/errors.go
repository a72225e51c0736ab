package format

import (
	"errors"
	"io/fs"
)

// Sentinel errors shared by every sqpack package. The root package re-exports them.
var (
	// ErrNotFound is returned when a path or hash is absent from both indices.
	ErrNotFound = notFoundError{}

	// ErrCorruptData is returned when a signature, SHA-1 or size invariant is violated.
	ErrCorruptData = errors.New("sqpack: corrupt data")

	// ErrInvalidArgument is returned for misaligned offsets, oversized payloads
	// and unknown enum values.
	ErrInvalidArgument = errors.New("sqpack: invalid argument")

	// ErrIO wraps failures of the underlying streams.
	ErrIO = errors.New("sqpack: i/o error")
)

type notFoundError struct{}

func (notFoundError) Error() string { return "sqpack: entry not found" }

// Is lets callers match ErrNotFound with fs.ErrNotExist.
func (notFoundError) Is(target error) bool { return target == fs.ErrNotExist }
