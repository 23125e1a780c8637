package metadata

import "fmt"

// ECMA-335 II.23.2 variable-length integer encoding. The width is selected
// by the top bits of the first byte:
//
//	0xxxxxxx                    1 byte,  7-bit value
//	10xxxxxx xxxxxxxx           2 bytes, 14-bit value, big-endian
//	110xxxxx xxxxxxxx ×3        4 bytes, 29-bit value, big-endian
//
// Any other prefix is malformed.

// MaxCompressedUint is the largest value representable by the compressed
// unsigned encoding.
const MaxCompressedUint = 1<<29 - 1

// DecodeUint decodes a compressed unsigned integer from the start of data.
// It returns the value and the number of bytes consumed.
func DecodeUint(data []byte) (uint32, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("compressed integer: empty input: %w", ErrBadBlob)
	}

	b0 := data[0]
	switch {
	case b0&0x80 == 0:
		return uint32(b0), 1, nil
	case b0&0x40 == 0:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("compressed integer: need 2 bytes, have %d: %w", len(data), ErrBadBlob)
		}
		return uint32(b0&0x3F)<<8 | uint32(data[1]), 2, nil
	case b0&0x20 == 0:
		if len(data) < 4 {
			return 0, 0, fmt.Errorf("compressed integer: need 4 bytes, have %d: %w", len(data), ErrBadBlob)
		}
		return uint32(b0&0x1F)<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]), 4, nil
	default:
		return 0, 0, fmt.Errorf("compressed integer: bad prefix byte %#02x: %w", b0, ErrBadBlob)
	}
}

// DecodeInt decodes a compressed signed integer: the compressed unsigned
// encoding carrying a zig-zag mapped value.
func DecodeInt(data []byte) (int32, int, error) {
	raw, n, err := DecodeUint(data)
	if err != nil {
		return 0, 0, err
	}
	return ZigzagDecode(raw), n, nil
}

// AppendUint appends the compressed encoding of v to dst.
// v must not exceed MaxCompressedUint.
func AppendUint(dst []byte, v uint32) []byte {
	switch {
	case v < 1<<7:
		return append(dst, byte(v))
	case v < 1<<14:
		return append(dst, byte(v>>8)|0x80, byte(v))
	default:
		if v > MaxCompressedUint {
			panic(fmt.Sprintf("value %#x exceeds compressed integer range", v))
		}
		return append(dst, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v))
	}
}

// AppendInt appends the compressed zig-zag encoding of v to dst.
func AppendInt(dst []byte, v int32) []byte {
	return AppendUint(dst, ZigzagEncode(v))
}

// ZigzagEncode maps a signed value onto an unsigned one with small
// magnitudes staying small: 0, -1, 1, -2, ... → 0, 1, 2, 3, ...
func ZigzagEncode(v int32) uint32 {
	return uint32(v<<1) ^ uint32(v>>31)
}

// ZigzagDecode inverts ZigzagEncode.
func ZigzagDecode(raw uint32) int32 {
	return int32(raw>>1) ^ -int32(raw&1)
}
