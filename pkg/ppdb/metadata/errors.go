package metadata

import "errors"

// Sentinel errors for metadata parsing. Callers match them with errors.Is;
// wrap sites attach the byte offset where the problem was detected.
var (
	// ErrBadMagic means the buffer does not start with the BSJB signature.
	ErrBadMagic = errors.New("bad metadata signature")

	// ErrTruncated means a read would extend past the end of the buffer.
	ErrTruncated = errors.New("truncated metadata")

	// ErrInvalidStream means a stream header's offset/size is inconsistent
	// with the buffer.
	ErrInvalidStream = errors.New("invalid stream bounds")

	// ErrMissingStream means a required stream (#~ or #Pdb) is absent.
	ErrMissingStream = errors.New("missing required stream")

	// ErrOutOfBounds means a heap or table index points past the end.
	ErrOutOfBounds = errors.New("index out of bounds")

	// ErrInvalidString means string heap data is not valid UTF-8.
	ErrInvalidString = errors.New("invalid string data")

	// ErrBadBlob means a malformed compressed length prefix or a blob
	// payload that runs past the heap.
	ErrBadBlob = errors.New("bad blob")

	// ErrUnsupportedVersion means the table stream carries a schema major
	// version this reader does not know.
	ErrUnsupportedVersion = errors.New("unsupported metadata version")
)
