package sqpack

import (
	"errors"
	"fmt"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/index"
	"github.com/meigma/sqpack/internal/platform"
)

// Error categories. Every error returned by this module wraps one of them.
var (
	// ErrNotFound is returned when a path is absent from the archive.
	// It also matches fs.ErrNotExist.
	ErrNotFound = format.ErrNotFound

	// ErrCorruptData is returned when archive bytes violate the format.
	ErrCorruptData = format.ErrCorruptData

	// ErrInvalidArgument is returned for unusable inputs.
	ErrInvalidArgument = format.ErrInvalidArgument

	// ErrIO is returned when an underlying read or write fails.
	ErrIO = format.ErrIO
)

// Narrower errors, each wrapping one of the categories above.
var (
	// ErrReservationExceeded is returned when a payload does not fit a reservation.
	ErrReservationExceeded = entry.ErrReservationExceeded

	// ErrUnknownKind is returned for payload kinds a provider cannot build.
	ErrUnknownKind = entry.ErrUnknownKind

	// ErrEntryTooLarge is returned for entries that do not fit one data file.
	ErrEntryTooLarge = entry.ErrEntryTooLarge

	// ErrSynonymWithoutText is returned when a shared hash is looked up or
	// written without its path text.
	ErrSynonymWithoutText = index.ErrSynonymWithoutText

	// ErrTooManySegments is returned when the entries need more data files
	// than a locator can address.
	ErrTooManySegments = fmt.Errorf("%w: too many data files", format.ErrInvalidArgument)

	// ErrSymlink is returned when a symbolic link is opened as a source file.
	ErrSymlink = platform.ErrSymlink

	// ErrClosed is returned by a Creator after Close.
	ErrClosed = errors.New("sqpack: creator closed")
)
