package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUint(t *testing.T) {
	cases := []struct {
		data []byte
		want uint32
		size int
	}{
		{[]byte{0x00}, 0x00, 1},
		{[]byte{0x03}, 0x03, 1},
		{[]byte{0x7F}, 0x7F, 1},
		{[]byte{0x80, 0x80}, 0x80, 2},
		{[]byte{0xAE, 0x57}, 0x2E57, 2},
		{[]byte{0xBF, 0xFF}, 0x3FFF, 2},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 0x4000, 4},
		{[]byte{0xDF, 0xFF, 0xFF, 0xFF}, 0x1FFFFFFF, 4},
	}
	for _, c := range cases {
		v, n, err := DecodeUint(c.data)
		require.NoError(t, err)
		assert.Equal(t, c.want, v, "decoding % x", c.data)
		assert.Equal(t, c.size, n, "decoding % x", c.data)
	}
}

func TestDecodeUintMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0xE0},             // bad prefix
		{0xFF},             // bad prefix
		{0x80},             // 2-byte form, 1 byte present
		{0xC0, 0x00},       // 4-byte form, 2 bytes present
		{0xC0, 0x00, 0x00}, // 4-byte form, 3 bytes present
	}
	for _, c := range cases {
		_, _, err := DecodeUint(c)
		assert.ErrorIs(t, err, ErrBadBlob, "decoding % x", c)
	}
}

func TestUintRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0x12345, 0x1FFFFFFE, MaxCompressedUint}
	// A denser sweep across the whole range.
	for v := uint32(0); v < MaxCompressedUint; v += 0x10101 {
		values = append(values, v)
	}
	for _, v := range values {
		data := AppendUint(nil, v)
		got, n, err := DecodeUint(data)
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, len(data), n)
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	known := []struct {
		signed int32
		raw    uint32
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{2, 4},
		{1 << 30, 1 << 31},
		{-1 << 31, 0xFFFFFFFF},
		{1<<31 - 1, 0xFFFFFFFE},
	}
	for _, c := range known {
		assert.Equal(t, c.raw, ZigzagEncode(c.signed))
		assert.Equal(t, c.signed, ZigzagDecode(c.raw))
	}

	for v := int32(-1 << 20); v < 1<<20; v += 997 {
		require.Equal(t, v, ZigzagDecode(ZigzagEncode(v)))
	}
}

func TestIntRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, -64, 8191, -8192, 1 << 27, -(1 << 27)} {
		data := AppendInt(nil, v)
		got, n, err := DecodeInt(data)
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, len(data), n)
	}
}
