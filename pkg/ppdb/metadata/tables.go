package metadata

import (
	"encoding/binary"
	"fmt"
)

// TableType identifies one of the 64 metadata table slots. The values are
// the table numbers from ECMA-335 II.22 and the Portable PDB spec; the high
// byte of a metadata token is a TableType.
type TableType int

const (
	TableModule                 TableType = 0x00
	TableTypeRef                TableType = 0x01
	TableTypeDef                TableType = 0x02
	TableField                  TableType = 0x04
	TableMethodDef              TableType = 0x06
	TableParam                  TableType = 0x08
	TableInterfaceImpl          TableType = 0x09
	TableMemberRef              TableType = 0x0A
	TableConstant               TableType = 0x0B
	TableCustomAttribute        TableType = 0x0C
	TableFieldMarshal           TableType = 0x0D
	TableDeclSecurity           TableType = 0x0E
	TableClassLayout            TableType = 0x0F
	TableFieldLayout            TableType = 0x10
	TableStandAloneSig          TableType = 0x11
	TableEventMap               TableType = 0x12
	TableEvent                  TableType = 0x14
	TablePropertyMap            TableType = 0x15
	TableProperty               TableType = 0x17
	TableMethodSemantics        TableType = 0x18
	TableMethodImpl             TableType = 0x19
	TableModuleRef              TableType = 0x1A
	TableTypeSpec               TableType = 0x1B
	TableImplMap                TableType = 0x1C
	TableFieldRVA               TableType = 0x1D
	TableAssembly               TableType = 0x20
	TableAssemblyProcessor      TableType = 0x21
	TableAssemblyOS             TableType = 0x22
	TableAssemblyRef            TableType = 0x23
	TableAssemblyRefProcessor   TableType = 0x24
	TableAssemblyRefOS          TableType = 0x25
	TableFile                   TableType = 0x26
	TableExportedType           TableType = 0x27
	TableManifestResource       TableType = 0x28
	TableNestedClass            TableType = 0x29
	TableGenericParam           TableType = 0x2A
	TableMethodSpec             TableType = 0x2B
	TableGenericParamConstraint TableType = 0x2C

	// Portable PDB extension tables.
	TableDocument               TableType = 0x30
	TableMethodDebugInformation TableType = 0x31
	TableLocalScope             TableType = 0x32
	TableLocalVariable          TableType = 0x33
	TableLocalConstant          TableType = 0x34
	TableImportScope            TableType = 0x35
	TableStateMachineMethod     TableType = 0x36
	TableCustomDebugInformation TableType = 0x37

	// tableNone is an always-empty slot used to pad coded-index target
	// lists whose tags are unassigned.
	tableNone TableType = 0x3F
)

const tableCount = 64

// maxRowCount bounds the row count of any single table (tokens only carry a
// 24-bit row index).
const maxRowCount = 1 << 24

// column is a resolved column: its byte offset within a row and its width.
type column struct {
	offset int
	width  int
}

// Table is one metadata table: a rectangular rows × columns byte region with
// a resolved per-column layout.
type Table struct {
	Type    TableType
	Rows    uint32
	rowSize int
	columns [6]column
	data    []byte
}

// RowSize returns the resolved width of one row in bytes.
func (t *Table) RowSize() int {
	return t.rowSize
}

// Row returns the raw bytes of the given 1-based row.
func (t *Table) Row(index uint32) ([]byte, error) {
	if index == 0 || index > t.Rows {
		return nil, fmt.Errorf("table %#02x row %d of %d: %w", int(t.Type), index, t.Rows, ErrOutOfBounds)
	}
	start := int(index-1) * t.rowSize
	return t.data[start : start+t.rowSize], nil
}

// Cell reads the 0-based col of the given 1-based row as a uint32,
// whatever the column's resolved width.
func (t *Table) Cell(index uint32, col int) (uint32, error) {
	row, err := t.Row(index)
	if err != nil {
		return 0, err
	}
	if col < 0 || col >= len(t.columns) || t.columns[col].width == 0 {
		return 0, fmt.Errorf("table %#02x column %d: %w", int(t.Type), col, ErrOutOfBounds)
	}
	c := t.columns[col]
	switch c.width {
	case 1:
		return uint32(row[c.offset]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(row[c.offset:])), nil
	case 4:
		return binary.LittleEndian.Uint32(row[c.offset:]), nil
	default:
		return 0, fmt.Errorf("table %#02x column %d is %d bytes wide: %w", int(t.Type), col, c.width, ErrOutOfBounds)
	}
}

// setColumns fixes the column widths of t and derives offsets and the row
// size. Zero-width trailing columns mark the end of the schema.
func (t *Table) setColumns(widths ...int) {
	offset := 0
	for i, w := range widths {
		t.columns[i] = column{offset: offset, width: w}
		offset += w
	}
	t.rowSize = offset
}

// TableStream is the parsed #~ stream: the 64 table slots with resolved
// layouts and contents.
type TableStream struct {
	// HeapSizes is the heap-size bitvector from the stream header: bit 0
	// widens string-heap indices to 4 bytes, bit 1 GUID indices, bit 2
	// blob indices.
	HeapSizes byte
	// Valid and Sorted are the presence and sortedness bitvectors, lowest
	// bit corresponding to table 0.
	Valid  uint64
	Sorted uint64

	tables [tableCount]Table
}

// Table returns the slot for the given table type. Absent tables have zero
// rows.
func (s *TableStream) Table(tt TableType) *Table {
	return &s.tables[tt]
}

// RowCount returns the number of rows in the given table.
func (s *TableStream) RowCount(tt TableType) uint32 {
	return s.tables[tt].Rows
}

func parseTableStream(data []byte, referencedRows *[tableCount]uint32) (*TableStream, error) {
	// reserved u32, major u8, minor u8, heapSizes u8, reserved u8,
	// valid u64, sorted u64.
	const headerSize = 24
	if len(data) < headerSize {
		return nil, fmt.Errorf("#~ stream: %d bytes: %w", len(data), ErrTruncated)
	}
	if major := data[4]; major != 2 {
		return nil, fmt.Errorf("#~ stream: schema version %d.%d: %w", data[4], data[5], ErrUnsupportedVersion)
	}

	stream := &TableStream{
		HeapSizes: data[6],
		Valid:     binary.LittleEndian.Uint64(data[8:]),
		Sorted:    binary.LittleEndian.Uint64(data[16:]),
	}

	offset := headerSize
	for i := range stream.tables {
		stream.tables[i].Type = TableType(i)
		if stream.Valid>>i&1 == 0 {
			continue
		}
		if offset+4 > len(data) {
			return nil, fmt.Errorf("#~ stream: row count for table %#02x at offset %#x: %w", i, offset, ErrTruncated)
		}
		rows := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if rows > maxRowCount {
			return nil, fmt.Errorf("#~ stream: table %#02x claims %d rows: %w", i, rows, ErrInvalidStream)
		}
		stream.tables[i].Rows = rows
	}

	stream.resolveLayouts(referencedRows)

	// Structural framing is validated eagerly: every declared row must fit.
	need := 0
	for i := range stream.tables {
		need += int(stream.tables[i].Rows) * stream.tables[i].rowSize
	}
	if need > len(data)-offset {
		return nil, fmt.Errorf("#~ stream: tables need %d bytes, %d remain: %w", need, len(data)-offset, ErrTruncated)
	}

	for i := range stream.tables {
		t := &stream.tables[i]
		size := int(t.Rows) * t.rowSize
		t.data = data[offset : offset+size]
		offset += size
	}

	return stream, nil
}

// stringIndexSize returns the byte width of #Strings heap indices.
func (s *TableStream) stringIndexSize() int {
	if s.HeapSizes&0x1 != 0 {
		return 4
	}
	return 2
}

// guidIndexSize returns the byte width of #GUID heap indices.
func (s *TableStream) guidIndexSize() int {
	if s.HeapSizes&0x2 != 0 {
		return 4
	}
	return 2
}

// blobIndexSize returns the byte width of #Blob heap indices.
func (s *TableStream) blobIndexSize() int {
	if s.HeapSizes&0x4 != 0 {
		return 4
	}
	return 2
}

// effectiveRows returns the row count that sizes indices into tt: the larger
// of this stream's table and the referenced type system's.
func (s *TableStream) effectiveRows(tt TableType, referencedRows *[tableCount]uint32) uint32 {
	rows := s.tables[tt].Rows
	if ref := referencedRows[tt]; ref > rows {
		return ref
	}
	return rows
}

// tableIndexSize returns the byte width of a simple index into tt: 2 bytes
// while the table fits in 16 bits, 4 otherwise.
func (s *TableStream) tableIndexSize(tt TableType, referencedRows *[tableCount]uint32) int {
	if s.effectiveRows(tt, referencedRows) > 0xFFFF {
		return 4
	}
	return 2
}

// codedIndexSize returns the byte width of a coded index able to reference
// any table in targets. The low tag bits select the table, so the row range
// of a 2-byte coded index shrinks by the tag width.
func (s *TableStream) codedIndexSize(referencedRows *[tableCount]uint32, targets ...TableType) int {
	limit := uint32(0xFFFF) >> tagBits(len(targets))
	for _, tt := range targets {
		if s.effectiveRows(tt, referencedRows) > limit {
			return 4
		}
	}
	return 2
}

// tagBits returns the number of bits needed to distinguish n targets.
func tagBits(n int) uint {
	bits := uint(1)
	for n-1 >= 1<<bits {
		bits++
	}
	return bits
}
