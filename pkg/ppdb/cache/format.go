// Package cache implements the PPDBCache format: a self-contained,
// little-endian, memory-mappable index from (MethodDef token, IL offset) to
// source file, line and column, built from a parsed Portable PDB.
//
// Layout, in file order and each section 8-byte aligned:
//
//	header   32 bytes (see header fields below)
//	methods  num_methods × { token u32, sp_start u32, sp_count u32 }
//	points   num_points  × { il_offset u32, line u32, column u32, file u32 }
//	files    num_files   × { path_offset u32 }
//	strings  string_bytes of NUL-terminated UTF-8
//
// The methods section is sorted ascending by token; each method's slice of
// the points section is sorted ascending by IL offset. The header's checksum
// slot holds an Adler-32 over every byte after the header.
package cache

import "errors"

// Magic is the little-endian encoding of the "PDBc" preamble.
const Magic = 0x63424450

// Version is the current PPDBCache format version.
const Version = 2

const (
	headerSize      = 32
	methodEntrySize = 12
	pointEntrySize  = 16
	fileEntrySize   = 4
)

// Header field offsets. All fields are u32 little-endian.
const (
	posMagic       = 0
	posVersion     = 4
	posChecksum    = 8
	posNumMethods  = 12
	posNumPoints   = 16
	posNumFiles    = 20
	posStringBytes = 24
	posReserved    = 28
)

// hiddenLine is the line-number convention some external writers use for
// hidden sequence points. This writer never emits it; the reader flags it.
const hiddenLine = 0xFEEFEE

var (
	// ErrBadMagic means the buffer does not start with the PDBc preamble.
	ErrBadMagic = errors.New("bad cache magic")

	// ErrUnsupportedVersion means the cache was written by an unknown
	// format version.
	ErrUnsupportedVersion = errors.New("unsupported cache version")

	// ErrMalformed means the section framing is inconsistent with the
	// buffer.
	ErrMalformed = errors.New("malformed cache")

	// ErrChecksum means the content checksum does not match.
	ErrChecksum = errors.New("cache checksum mismatch")

	// ErrInternal means a writer invariant was violated; with a valid
	// parse this is unreachable.
	ErrInternal = errors.New("internal cache writer error")
)

// align8 rounds n up to a multiple of 8.
func align8(n int) int {
	return (n + 7) &^ 7
}
