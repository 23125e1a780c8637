// Package metadata implements the ECMA-335 physical metadata layout used by
// Portable PDB files: the tiled stream structure, the four heaps, the #Pdb
// stream and the #~ table stream with its data-dependent row layouts.
//
// All readers are zero-copy views over the caller's buffer. The caller keeps
// ownership of the bytes; a Root and everything derived from it stay valid
// exactly as long as the buffer does.
package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Signature at offset 0 of the metadata root ("BSJB").
const Signature = 0x424A5342

// Root is a parsed metadata root: the stream directory resolved into typed
// heap and table views.
type Root struct {
	data    []byte
	version string

	Strings     StringHeap
	UserStrings UserStringHeap
	GUIDs       GUIDHeap
	Blobs       BlobHeap

	Pdb    *PdbStream
	Tables *TableStream
}

// Parse reads the metadata root at the start of data and resolves its
// streams. A Portable PDB requires both the #Pdb and #~ streams; their
// absence is reported as ErrMissingStream.
func Parse(data []byte) (*Root, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("metadata root: %d bytes: %w", len(data), ErrTruncated)
	}
	if sig := binary.LittleEndian.Uint32(data); sig != Signature {
		return nil, fmt.Errorf("metadata root: signature %#08x: %w", sig, ErrBadMagic)
	}

	// signature u32, major u16, minor u16, reserved u32, then the version
	// string length (includes the NUL, rounded up to a multiple of 4).
	versionLen := int(binary.LittleEndian.Uint32(data[12:]))
	offset := 16 + versionLen
	if versionLen < 0 || offset+4 > len(data) {
		return nil, fmt.Errorf("metadata root: version string at offset 16 length %d: %w", versionLen, ErrTruncated)
	}
	version := cstring(data[16 : 16+versionLen])

	// flags u16, stream count u16.
	streamCount := int(binary.LittleEndian.Uint16(data[offset+2:]))
	offset += 4

	root := &Root{data: data, version: version}
	var sawTables, sawPdb bool
	var tablesBuf, pdbBuf []byte

	for i := 0; i < streamCount; i++ {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("stream header %d at offset %#x: %w", i, offset, ErrTruncated)
		}
		streamOffset := binary.LittleEndian.Uint32(data[offset:])
		streamSize := binary.LittleEndian.Uint32(data[offset+4:])
		offset += 8

		nameEnd := bytes.IndexByte(data[offset:], 0)
		if nameEnd < 0 || nameEnd >= 32 {
			return nil, fmt.Errorf("stream header %d name at offset %#x: %w", i, offset, ErrTruncated)
		}
		name := string(data[offset : offset+nameEnd])
		offset += pad4(nameEnd + 1)
		if offset > len(data) {
			return nil, fmt.Errorf("stream header %d name padding at offset %#x: %w", i, offset, ErrTruncated)
		}

		end := uint64(streamOffset) + uint64(streamSize)
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("stream %q offset %#x size %#x: %w", name, streamOffset, streamSize, ErrInvalidStream)
		}
		buf := data[streamOffset:end]

		switch name {
		case "#Pdb":
			pdbBuf, sawPdb = buf, true
		case "#~":
			tablesBuf, sawTables = buf, true
		case "#Strings":
			root.Strings = StringHeap(buf)
		case "#US":
			root.UserStrings = UserStringHeap(buf)
		case "#GUID":
			root.GUIDs = GUIDHeap(buf)
		case "#Blob":
			root.Blobs = BlobHeap(buf)
		default:
			// Unknown streams are skipped, not rejected.
		}
	}

	if !sawPdb {
		return nil, fmt.Errorf("no #Pdb stream: %w", ErrMissingStream)
	}
	if !sawTables {
		return nil, fmt.Errorf("no #~ stream: %w", ErrMissingStream)
	}

	pdb, err := parsePdbStream(pdbBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse #Pdb stream: %w", err)
	}
	root.Pdb = pdb

	tables, err := parseTableStream(tablesBuf, &pdb.ReferencedTableRows)
	if err != nil {
		return nil, fmt.Errorf("failed to parse #~ stream: %w", err)
	}
	root.Tables = tables

	return root, nil
}

// Version returns the metadata root's version string.
func (r *Root) Version() string {
	return r.version
}

// pad4 rounds n up to a multiple of 4.
func pad4(n int) int {
	return (n + 3) &^ 3
}

// cstring returns the prefix of data before the first NUL.
func cstring(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return string(data[:i])
	}
	return string(data)
}
