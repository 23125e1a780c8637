package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"sort"
)

// Cache is a parsed PPDBCache, ready for token/IL lookups. It borrows the
// buffer it was parsed from and is immutable; concurrent lookups are safe.
type Cache struct {
	methods []byte // raw methods section
	points  []byte // raw points section

	numMethods int
	// paths is the files array resolved against the string section, so
	// lookups index it without touching the string bytes again.
	paths []string
}

// SourceLocation is the result of a lookup.
type SourceLocation struct {
	// File is the document path. It is copied out of the cache's string
	// section once, at Parse, and shared by every lookup; it does not
	// alias the parsed buffer.
	File string
	// Line and Column are the span start. Line 0 marks a present but
	// anonymous location (e.g. a compiler-generated prologue).
	Line   uint32
	Column uint32
	// Hidden is set for the external 0xFEEFEE hidden-line convention.
	Hidden bool
}

// Parse validates a PPDBCache buffer and indexes its sections.
func Parse(data []byte) (*Cache, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("cache of %d bytes: %w", len(data), ErrMalformed)
	}
	le := binary.LittleEndian

	if magic := le.Uint32(data[posMagic:]); magic != Magic {
		return nil, fmt.Errorf("cache magic %#08x: %w", magic, ErrBadMagic)
	}
	if version := le.Uint32(data[posVersion:]); version != Version {
		return nil, fmt.Errorf("cache version %d: %w", version, ErrUnsupportedVersion)
	}

	numMethods := int(le.Uint32(data[posNumMethods:]))
	numPoints := int(le.Uint32(data[posNumPoints:]))
	numFiles := int(le.Uint32(data[posNumFiles:]))
	stringBytes := int(le.Uint32(data[posStringBytes:]))

	methodsEnd := align8(headerSize + numMethods*methodEntrySize)
	pointsEnd := align8(methodsEnd + numPoints*pointEntrySize)
	filesEnd := align8(pointsEnd + numFiles*fileEntrySize)
	total := filesEnd + stringBytes
	if numMethods < 0 || numPoints < 0 || numFiles < 0 || stringBytes < 0 || total > len(data) {
		return nil, fmt.Errorf("cache sections need %d bytes, have %d: %w", total, len(data), ErrMalformed)
	}

	if sum := adler32.Checksum(data[headerSize:total]); sum != le.Uint32(data[posChecksum:]) {
		return nil, fmt.Errorf("checksum %#08x does not match header: %w", sum, ErrChecksum)
	}

	c := &Cache{
		methods:    data[headerSize : headerSize+numMethods*methodEntrySize],
		points:     data[methodsEnd : methodsEnd+numPoints*pointEntrySize],
		numMethods: numMethods,
	}

	strings := data[filesEnd : filesEnd+stringBytes]
	c.paths = make([]string, numFiles)
	for i := 0; i < numFiles; i++ {
		offset := le.Uint32(data[pointsEnd+i*fileEntrySize:])
		if int(offset) >= len(strings) && !(offset == 0 && len(strings) == 0) {
			return nil, fmt.Errorf("file %d path offset %#x of %#x: %w", i, offset, len(strings), ErrMalformed)
		}
		end := bytes.IndexByte(strings[offset:], 0)
		if end < 0 {
			return nil, fmt.Errorf("file %d path unterminated: %w", i, ErrMalformed)
		}
		c.paths[i] = string(strings[offset : int(offset)+end])
	}

	// Method slices and point file indices are validated once here so
	// Lookup can trust them.
	for i := 0; i < numMethods; i++ {
		spStart := le.Uint32(c.methods[i*methodEntrySize+4:])
		spCount := le.Uint32(c.methods[i*methodEntrySize+8:])
		if uint64(spStart)+uint64(spCount) > uint64(numPoints) {
			return nil, fmt.Errorf("method %d points [%d, %d) of %d: %w", i, spStart, spStart+spCount, numPoints, ErrMalformed)
		}
	}
	for i := 0; i < numPoints; i++ {
		if file := le.Uint32(c.points[i*pointEntrySize+12:]); int(file) >= numFiles {
			return nil, fmt.Errorf("point %d file index %d of %d: %w", i, file, numFiles, ErrMalformed)
		}
	}

	return c, nil
}

// MethodCount returns the number of indexed methods.
func (c *Cache) MethodCount() int {
	return c.numMethods
}

// Files returns the interned document paths, indexed by file index.
func (c *Cache) Files() []string {
	return c.paths
}

// Lookup resolves a MethodDef token and IL offset to a source location: the
// sequence point with the greatest IL offset not exceeding il. It reports
// false when the token is unknown or il precedes the method's first point.
func (c *Cache) Lookup(token, il uint32) (SourceLocation, bool) {
	le := binary.LittleEndian

	i := sort.Search(c.numMethods, func(i int) bool {
		return le.Uint32(c.methods[i*methodEntrySize:]) >= token
	})
	if i == c.numMethods || le.Uint32(c.methods[i*methodEntrySize:]) != token {
		return SourceLocation{}, false
	}
	spStart := int(le.Uint32(c.methods[i*methodEntrySize+4:]))
	spCount := int(le.Uint32(c.methods[i*methodEntrySize+8:]))

	group := c.points[spStart*pointEntrySize : (spStart+spCount)*pointEntrySize]
	// First point past il, then step back one.
	j := sort.Search(spCount, func(j int) bool {
		return le.Uint32(group[j*pointEntrySize:]) > il
	})
	if j == 0 {
		return SourceLocation{}, false
	}
	entry := group[(j-1)*pointEntrySize:]

	line := le.Uint32(entry[4:])
	return SourceLocation{
		File:   c.paths[le.Uint32(entry[12:])],
		Line:   line,
		Column: le.Uint32(entry[8:]),
		Hidden: line == hiddenLine,
	}, true
}
