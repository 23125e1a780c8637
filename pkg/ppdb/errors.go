package ppdb

import (
	"errors"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// Errors surfaced by the high-level reader. Structural errors from the
// metadata layer (metadata.ErrBadMagic, metadata.ErrTruncated, ...) pass
// through unchanged and stay matchable with errors.Is.
var (
	// ErrBadSequencePoints means a sequence-points blob violated a
	// decoding rule. The error message carries the record index.
	ErrBadSequencePoints = errors.New("bad sequence points")

	// ErrBadEmbeddedSource means an embedded-source payload failed to
	// inflate or is not valid UTF-8.
	ErrBadEmbeddedSource = errors.New("bad embedded source")

	// ErrBadSourceLink means a source-link payload is not the expected
	// JSON document.
	ErrBadSourceLink = errors.New("bad source link")
)

// Re-exported structural sentinels, so callers of this package alone can
// match the full error taxonomy.
var (
	ErrBadMagic           = metadata.ErrBadMagic
	ErrTruncated          = metadata.ErrTruncated
	ErrInvalidStream      = metadata.ErrInvalidStream
	ErrMissingStream      = metadata.ErrMissingStream
	ErrOutOfBounds        = metadata.ErrOutOfBounds
	ErrInvalidString      = metadata.ErrInvalidString
	ErrBadBlob            = metadata.ErrBadBlob
	ErrUnsupportedVersion = metadata.ErrUnsupportedVersion
)
