package cache_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/goppdb/pkg/ppdb"
	"github.com/jtang613/goppdb/pkg/ppdb/cache"
	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
	"github.com/jtang613/goppdb/pkg/ppdb/ppdbtest"
)

// buildCache builds a PPDB from the description and converts it to cache
// bytes.
func buildCache(t *testing.T, pdb *ppdbtest.PDB) []byte {
	t.Helper()
	f, err := ppdb.Parse(pdb.Build())
	require.NoError(t, err)
	buf, err := cache.Build(f)
	require.NoError(t, err)
	return buf
}

// fooPDB is the fixture from the lookup scenarios: one document, one method
// with two sequence points.
func fooPDB() *ppdbtest.PDB {
	return &ppdbtest.PDB{
		Documents: []ppdbtest.Document{{Name: "/x/Foo.cs", Language: ppdbtest.GUIDCSharp}},
		Methods: []ppdbtest.Method{{Points: []ppdbtest.Point{
			{IL: 0, Line: 10, Col: 9, EndLine: 10, EndCol: 30},
			{IL: 7, Line: 11, Col: 9, EndLine: 11, EndCol: 30},
		}}},
	}
}

func TestLookupScenarios(t *testing.T) {
	c, err := cache.Parse(buildCache(t, fooPDB()))
	require.NoError(t, err)

	cases := []struct {
		token, il uint32
		wantLine  uint32
		wantOK    bool
	}{
		{0x06000001, 0, 10, true},   // exact first point
		{0x06000001, 5, 10, true},   // between points resolves backwards
		{0x06000001, 7, 11, true},   // exact second point
		{0x06000001, 999, 11, true}, // past the last point keeps its span
		{0x06000002, 0, 0, false},   // unknown method
	}
	for _, tc := range cases {
		loc, ok := c.Lookup(tc.token, tc.il)
		require.Equal(t, tc.wantOK, ok, "lookup(%#x, %d)", tc.token, tc.il)
		if !ok {
			continue
		}
		assert.Equal(t, "/x/Foo.cs", loc.File, "lookup(%#x, %d)", tc.token, tc.il)
		assert.Equal(t, tc.wantLine, loc.Line, "lookup(%#x, %d)", tc.token, tc.il)
		assert.EqualValues(t, 9, loc.Column, "lookup(%#x, %d)", tc.token, tc.il)
		assert.False(t, loc.Hidden)
	}
}

func TestLookupBeforeFirstPoint(t *testing.T) {
	pdb := fooPDB()
	pdb.Methods[0].Points[0].IL = 4
	pdb.Methods[0].Points[1].IL = 9
	c, err := cache.Parse(buildCache(t, pdb))
	require.NoError(t, err)

	_, ok := c.Lookup(0x06000001, 3)
	assert.False(t, ok)
}

func TestLookupDocumentChange(t *testing.T) {
	pdb := &ppdbtest.PDB{
		Documents: []ppdbtest.Document{
			{Name: "/a.cs", Language: ppdbtest.GUIDCSharp},
			{Name: "/b.cs", Language: ppdbtest.GUIDCSharp},
		},
		Methods: []ppdbtest.Method{{Points: []ppdbtest.Point{
			{IL: 0, Line: 1, Col: 1, EndLine: 1, EndCol: 5, Document: 1},
			{IL: 10, Line: 50, Col: 1, EndLine: 50, EndCol: 5, Document: 2},
		}}},
	}
	c, err := cache.Parse(buildCache(t, pdb))
	require.NoError(t, err)

	loc, ok := c.Lookup(0x06000001, 9)
	require.True(t, ok)
	assert.Equal(t, "/a.cs", loc.File)

	loc, ok = c.Lookup(0x06000001, 10)
	require.True(t, ok)
	assert.Equal(t, "/b.cs", loc.File)
	assert.EqualValues(t, 50, loc.Line)
}

func TestHiddenPointsNotWritten(t *testing.T) {
	pdb := &ppdbtest.PDB{
		Documents: []ppdbtest.Document{{Name: "/a.cs", Language: ppdbtest.GUIDCSharp}},
		Methods: []ppdbtest.Method{{Points: []ppdbtest.Point{
			{IL: 0, Line: 5, Col: 1, EndLine: 5, EndCol: 9},
			{IL: 6, Hidden: true},
			{IL: 12, Line: 6, Col: 1, EndLine: 6, EndCol: 9},
		}}},
	}
	c, err := cache.Parse(buildCache(t, pdb))
	require.NoError(t, err)

	// The hidden point leaves no entry: IL 6..11 still resolves to the
	// previous line.
	loc, ok := c.Lookup(0x06000001, 8)
	require.True(t, ok)
	assert.EqualValues(t, 5, loc.Line)

	loc, ok = c.Lookup(0x06000001, 12)
	require.True(t, ok)
	assert.EqualValues(t, 6, loc.Line)
}

func TestBuildAbortsOnBadSequencePoints(t *testing.T) {
	bad := metadata.AppendUint(nil, 0)
	bad = metadata.AppendUint(bad, 0)
	bad = metadata.AppendUint(bad, 1) // record cut short

	pdb := &ppdbtest.PDB{
		Documents: []ppdbtest.Document{{Name: "/a.cs", Language: ppdbtest.GUIDCSharp}},
		Methods:   []ppdbtest.Method{{Document: 1, Raw: bad}},
	}
	f, err := ppdb.Parse(pdb.Build())
	require.NoError(t, err)

	_, err = cache.Build(f)
	assert.ErrorIs(t, err, ppdb.ErrBadBlob)
}

func TestRoundTrip(t *testing.T) {
	// Every non-hidden decoded point must be recoverable through the
	// cache at its exact IL offset.
	pdb := &ppdbtest.PDB{
		Documents: []ppdbtest.Document{
			{Name: "/x/one.cs", Language: ppdbtest.GUIDCSharp},
			{Name: "/x/two.cs", Language: ppdbtest.GUIDCSharp},
		},
		Methods: []ppdbtest.Method{
			{Points: []ppdbtest.Point{
				{IL: 0, Line: 10, Col: 9, EndLine: 10, EndCol: 20},
				{IL: 3, Hidden: true},
				{IL: 9, Line: 12, Col: 13, EndLine: 12, EndCol: 40},
			}},
			{},
			{Points: []ppdbtest.Point{
				{IL: 0, Line: 100, Col: 1, EndLine: 101, EndCol: 2, Document: 2},
				{IL: 50, Line: 90, Col: 5, EndLine: 90, EndCol: 6, Document: 2},
			}},
		},
	}

	data := pdb.Build()
	f, err := ppdb.Parse(data)
	require.NoError(t, err)
	buf, err := cache.Build(f)
	require.NoError(t, err)
	c, err := cache.Parse(buf)
	require.NoError(t, err)

	for row := uint32(1); row <= f.MethodCount(); row++ {
		md, err := f.MethodDebug(row)
		require.NoError(t, err)
		it := md.SequencePoints()
		for it.Next() {
			sp := it.Point()
			if sp.Hidden {
				continue
			}
			loc, ok := c.Lookup(ppdb.MethodDefToken(row), sp.ILOffset)
			require.True(t, ok, "method %d il %d", row, sp.ILOffset)
			assert.Equal(t, sp.StartLine, loc.Line)
			assert.EqualValues(t, sp.StartColumn, loc.Column)

			doc, err := f.Document(sp.Document)
			require.NoError(t, err)
			assert.Equal(t, doc.Name, loc.File)
		}
		require.NoError(t, it.Err())
	}
}

func TestCacheOrderingInvariants(t *testing.T) {
	buf := buildCache(t, &ppdbtest.PDB{
		Documents: []ppdbtest.Document{{Name: "/a.cs", Language: ppdbtest.GUIDCSharp}},
		Methods: []ppdbtest.Method{
			{Points: []ppdbtest.Point{
				{IL: 0, Line: 1, Col: 1, EndLine: 1, EndCol: 2},
				{IL: 2, Line: 2, Col: 1, EndLine: 2, EndCol: 2},
			}},
			{Points: []ppdbtest.Point{
				{IL: 0, Line: 9, Col: 1, EndLine: 9, EndCol: 2},
			}},
			{Points: []ppdbtest.Point{
				{IL: 0, Line: 20, Col: 1, EndLine: 20, EndCol: 2},
				{IL: 8, Line: 21, Col: 1, EndLine: 21, EndCol: 2},
			}},
		},
	})

	le := binary.LittleEndian
	numMethods := int(le.Uint32(buf[12:]))
	require.Equal(t, 3, numMethods)

	// Header is 32 bytes; the methods section follows 8-byte aligned.
	var prevToken uint32
	for i := 0; i < numMethods; i++ {
		entry := buf[32+i*12:]
		token := le.Uint32(entry)
		spStart := le.Uint32(entry[4:])
		spCount := le.Uint32(entry[8:])
		if i > 0 {
			assert.Greater(t, token, prevToken, "method tokens must strictly ascend")
		}
		prevToken = token

		pointsBase := (32 + numMethods*12 + 7) &^ 7
		var prevIL uint32
		for j := 0; j < int(spCount); j++ {
			il := le.Uint32(buf[pointsBase+int(spStart+uint32(j))*16:])
			if j > 0 {
				assert.Greater(t, il, prevIL, "IL offsets must strictly ascend within a method")
			}
			prevIL = il
		}
	}
}

func TestParseRejectsCorruptHeaders(t *testing.T) {
	buf := buildCache(t, fooPDB())

	bad := append([]byte(nil), buf...)
	copy(bad, "XXXX")
	_, err := cache.Parse(bad)
	assert.ErrorIs(t, err, cache.ErrBadMagic)

	bad = append([]byte(nil), buf...)
	binary.LittleEndian.PutUint32(bad[4:], 1)
	_, err = cache.Parse(bad)
	assert.ErrorIs(t, err, cache.ErrUnsupportedVersion)

	bad = append([]byte(nil), buf...)
	bad[len(bad)-1] ^= 0xFF
	_, err = cache.Parse(bad)
	assert.ErrorIs(t, err, cache.ErrChecksum)

	_, err = cache.Parse(buf[:16])
	assert.ErrorIs(t, err, cache.ErrMalformed)

	_, err = cache.Parse(buf[:40])
	assert.ErrorIs(t, err, cache.ErrMalformed)
}

func TestLookupAllocationFree(t *testing.T) {
	c, err := cache.Parse(buildCache(t, fooPDB()))
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(100, func() {
		if _, ok := c.Lookup(0x06000001, 5); !ok {
			t.Fatal("lookup failed")
		}
	})
	assert.Zero(t, allocs)
}

func BenchmarkLookup(b *testing.B) {
	pdb := fooPDB()
	f, err := ppdb.Parse(pdb.Build())
	if err != nil {
		b.Fatal(err)
	}
	buf, err := cache.Build(f)
	if err != nil {
		b.Fatal(err)
	}
	c, err := cache.Parse(buf)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c.Lookup(0x06000001, uint32(i)%16)
	}
}
