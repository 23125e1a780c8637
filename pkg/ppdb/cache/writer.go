package cache

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"

	"github.com/jtang613/goppdb/pkg/ppdb"
)

// methodEntry and pointEntry mirror the on-disk records during assembly.
type methodEntry struct {
	token   uint32
	spStart uint32
	spCount uint32
}

type pointEntry struct {
	ilOffset uint32
	line     uint32
	column   uint32
	file     uint32
}

// Build converts a parsed Portable PDB into PPDBCache bytes. Hidden sequence
// points are dropped; methods without sequence points contribute nothing.
// Any parse error from the PPDB aborts the build.
func Build(f *ppdb.File) ([]byte, error) {
	var (
		methods []methodEntry
		points  []pointEntry
		strings stringTable
		// Document rows resolve to file indices once; most methods
		// share documents.
		fileIndex = make(map[uint32]uint32)
	)

	methodCount := f.MethodCount()
	for row := uint32(1); row <= methodCount; row++ {
		method, err := f.MethodDebug(row)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", row, err)
		}

		start := uint32(len(points))
		it := method.SequencePoints()
		for it.Next() {
			sp := it.Point()
			if sp.Hidden {
				continue
			}
			idx, ok := fileIndex[sp.Document]
			if !ok {
				doc, err := f.Document(sp.Document)
				if err != nil {
					return nil, fmt.Errorf("method %d document %d: %w", row, sp.Document, err)
				}
				idx = strings.internFile(doc.Name)
				fileIndex[sp.Document] = idx
			}
			points = append(points, pointEntry{
				ilOffset: sp.ILOffset,
				line:     sp.StartLine,
				column:   uint32(sp.StartColumn),
				file:     idx,
			})
		}
		if err := it.Err(); err != nil {
			return nil, fmt.Errorf("method %d: %w", row, err)
		}

		if count := uint32(len(points)) - start; count > 0 {
			methods = append(methods, methodEntry{
				token:   ppdb.MethodDefToken(row),
				spStart: start,
				spCount: count,
			})
		}
	}

	if err := assertSorted(methods, points); err != nil {
		return nil, err
	}

	return assemble(methods, points, &strings), nil
}

// assertSorted re-checks the ordering invariants the construction above
// guarantees: tokens strictly ascending, IL offsets strictly ascending
// within each method.
func assertSorted(methods []methodEntry, points []pointEntry) error {
	for i := 1; i < len(methods); i++ {
		if methods[i].token <= methods[i-1].token {
			return fmt.Errorf("method tokens %#x, %#x out of order: %w", methods[i-1].token, methods[i].token, ErrInternal)
		}
	}
	for _, m := range methods {
		group := points[m.spStart : m.spStart+m.spCount]
		for i := 1; i < len(group); i++ {
			if group[i].ilOffset <= group[i-1].ilOffset {
				return fmt.Errorf("method %#x IL offsets %d, %d out of order: %w", m.token, group[i-1].ilOffset, group[i].ilOffset, ErrInternal)
			}
		}
	}
	return nil
}

func assemble(methods []methodEntry, points []pointEntry, strings *stringTable) []byte {
	methodsEnd := align8(headerSize + len(methods)*methodEntrySize)
	pointsEnd := align8(methodsEnd + len(points)*pointEntrySize)
	filesEnd := align8(pointsEnd + len(strings.files)*fileEntrySize)
	total := filesEnd + len(strings.bytes)

	buf := make([]byte, total)
	le := binary.LittleEndian

	le.PutUint32(buf[posMagic:], Magic)
	le.PutUint32(buf[posVersion:], Version)
	le.PutUint32(buf[posNumMethods:], uint32(len(methods)))
	le.PutUint32(buf[posNumPoints:], uint32(len(points)))
	le.PutUint32(buf[posNumFiles:], uint32(len(strings.files)))
	le.PutUint32(buf[posStringBytes:], uint32(len(strings.bytes)))

	off := headerSize
	for _, m := range methods {
		le.PutUint32(buf[off:], m.token)
		le.PutUint32(buf[off+4:], m.spStart)
		le.PutUint32(buf[off+8:], m.spCount)
		off += methodEntrySize
	}

	off = methodsEnd
	for _, p := range points {
		le.PutUint32(buf[off:], p.ilOffset)
		le.PutUint32(buf[off+4:], p.line)
		le.PutUint32(buf[off+8:], p.column)
		le.PutUint32(buf[off+12:], p.file)
		off += pointEntrySize
	}

	off = pointsEnd
	for _, pathOffset := range strings.files {
		le.PutUint32(buf[off:], pathOffset)
		off += fileEntrySize
	}

	copy(buf[filesEnd:], strings.bytes)

	le.PutUint32(buf[posChecksum:], adler32.Checksum(buf[headerSize:]))
	return buf
}

// stringTable interns file paths into a NUL-terminated string section and a
// files array of path offsets.
type stringTable struct {
	bytes   []byte
	files   []uint32
	indexOf map[string]uint32
}

// internFile returns the file index for path, adding it on first sight.
func (t *stringTable) internFile(path string) uint32 {
	if idx, ok := t.indexOf[path]; ok {
		return idx
	}
	if t.indexOf == nil {
		t.indexOf = make(map[string]uint32)
	}
	offset := uint32(len(t.bytes))
	t.bytes = append(t.bytes, path...)
	t.bytes = append(t.bytes, 0)

	idx := uint32(len(t.files))
	t.files = append(t.files, offset)
	t.indexOf[path] = idx
	return idx
}
