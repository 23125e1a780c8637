package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// StringHeap is the #Strings stream: NUL-terminated UTF-8 strings addressed
// by byte offset.
type StringHeap []byte

// Get returns the string starting at the given offset, up to the next NUL.
func (h StringHeap) Get(offset uint32) (string, error) {
	if uint64(offset) >= uint64(len(h)) {
		return "", fmt.Errorf("string heap offset %#x of %#x: %w", offset, len(h), ErrOutOfBounds)
	}
	end := bytes.IndexByte(h[offset:], 0)
	if end < 0 {
		return "", fmt.Errorf("string heap offset %#x: unterminated: %w", offset, ErrOutOfBounds)
	}
	s := h[offset : int(offset)+end]
	if !utf8.Valid(s) {
		return "", fmt.Errorf("string heap offset %#x: %w", offset, ErrInvalidString)
	}
	return string(s), nil
}

// BlobHeap is the #Blob stream: binary blobs prefixed by a compressed
// unsigned length, addressed by byte offset.
type BlobHeap []byte

// Get returns the blob starting at the given offset, without its length
// prefix. The returned slice aliases the heap.
func (h BlobHeap) Get(offset uint32) ([]byte, error) {
	if uint64(offset) >= uint64(len(h)) {
		return nil, fmt.Errorf("blob heap offset %#x of %#x: %w", offset, len(h), ErrOutOfBounds)
	}
	length, n, err := DecodeUint(h[offset:])
	if err != nil {
		return nil, fmt.Errorf("blob heap offset %#x: %w", offset, err)
	}
	start := uint64(offset) + uint64(n)
	end := start + uint64(length)
	if end > uint64(len(h)) {
		return nil, fmt.Errorf("blob heap offset %#x: %d byte payload past end: %w", offset, length, ErrBadBlob)
	}
	return h[start:end], nil
}

// GUIDHeap is the #GUID stream, viewed as consecutive 16-byte slots.
// Indices are 1-based; index 0 means "no GUID".
type GUIDHeap []byte

// Get returns the GUID in the given 1-based slot.
func (h GUIDHeap) Get(index uint32) ([16]byte, error) {
	var guid [16]byte
	if index == 0 || uint64(index)*16 > uint64(len(h)) {
		return guid, fmt.Errorf("guid heap index %d of %d slots: %w", index, len(h)/16, ErrOutOfBounds)
	}
	copy(guid[:], h[(index-1)*16:])
	return guid, nil
}

// UserStringHeap is the #US stream: blob-prefixed UTF-16LE strings with a
// trailing terminator byte.
type UserStringHeap []byte

// Get decodes the user string at the given offset.
func (h UserStringHeap) Get(offset uint32) (string, error) {
	blob, err := BlobHeap(h).Get(offset)
	if err != nil {
		return "", err
	}
	if len(blob) == 0 {
		return "", nil
	}
	// The final byte is a flag, not character data.
	blob = blob[:len(blob)-1]
	if len(blob)%2 != 0 {
		return "", fmt.Errorf("user string at offset %#x has odd payload length %d: %w", offset, len(blob), ErrBadBlob)
	}
	units := make([]uint16, len(blob)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(blob[i*2:])
	}
	return string(utf16.Decode(units)), nil
}
