package ppdb

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// Kind GUID of embedded-source CustomDebugInformation rows, in on-disk byte
// order ({0E8A571B-6926-466E-B4AD-8AB04611F5FE}).
var guidEmbeddedSource = [16]byte{0x1b, 0x57, 0x8a, 0x0e, 0x26, 0x69, 0x6e, 0x46, 0xb4, 0xad, 0x8a, 0xb0, 0x46, 0x11, 0xf5, 0xfe}

// EmbeddedSource returns the source text embedded for the given 1-based
// Document row, or nil when the document has no embedded source.
//
// The payload opens with a little-endian format word: zero means the raw
// text follows, a positive value is the uncompressed size of a deflate
// stream.
func (f *File) EmbeddedSource(docRow uint32) ([]byte, error) {
	if docRow == 0 || docRow > f.DocumentCount() {
		return nil, fmt.Errorf("document row %d of %d: %w", docRow, f.DocumentCount(), metadata.ErrOutOfBounds)
	}

	value, err := f.customDebugInformation(metadata.TableDocument, docRow, guidEmbeddedSource)
	if err != nil || value == nil {
		return nil, err
	}

	if len(value) < 4 {
		return nil, fmt.Errorf("embedded source payload of %d bytes: %w", len(value), ErrBadEmbeddedSource)
	}
	format := int32(binary.LittleEndian.Uint32(value))
	payload := value[4:]

	var text []byte
	switch {
	case format == 0:
		text = payload
	case format > 0:
		text, err = inflate(payload, int(format))
		if err != nil {
			return nil, fmt.Errorf("embedded source: %w: %v", ErrBadEmbeddedSource, err)
		}
	default:
		return nil, fmt.Errorf("embedded source format %d: %w", format, ErrBadEmbeddedSource)
	}

	if !utf8.Valid(text) {
		return nil, fmt.Errorf("embedded source is not UTF-8: %w", ErrBadEmbeddedSource)
	}
	return text, nil
}

// customDebugInformation scans the CustomDebugInformation table for a row
// attached to (parent table, parent row) with the given kind GUID and
// returns its value blob, or nil when no such row exists.
func (f *File) customDebugInformation(parent metadata.TableType, parentRow uint32, kind [16]byte) ([]byte, error) {
	want := metadata.EncodeHasCustomDebugInformation(parent, parentRow)
	count := f.meta.Tables.RowCount(metadata.TableCustomDebugInformation)
	for row := uint32(1); row <= count; row++ {
		cdi, err := f.meta.Tables.CustomDebugInformationRow(row)
		if err != nil {
			return nil, err
		}
		if cdi.Parent != want || cdi.Kind == 0 {
			continue
		}
		guid, err := f.meta.GUIDs.Get(cdi.Kind)
		if err != nil {
			return nil, err
		}
		if guid != kind {
			continue
		}
		return f.meta.Blobs.Get(cdi.Value)
	}
	return nil, nil
}

// inflate decompresses a raw deflate stream that must expand to exactly
// size bytes.
func inflate(data []byte, size int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	// A well-formed payload is fully consumed by size bytes.
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("deflate stream longer than declared size %d", size)
	}
	return out, nil
}
