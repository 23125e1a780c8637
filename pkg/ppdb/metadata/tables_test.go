package metadata_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// tablesStream assembles a #~ stream with the given heap-size bits, row
// counts and row payload.
func tablesStream(heapSizes byte, rows map[metadata.TableType]uint32, payload []byte) []byte {
	data := make([]byte, 24)
	data[4] = 2
	data[6] = heapSizes
	var valid uint64
	for tt := range rows {
		valid |= 1 << uint(tt)
	}
	binary.LittleEndian.PutUint64(data[8:], valid)
	// Row counts appear in table-number order.
	for tt := metadata.TableType(0); tt < 64; tt++ {
		if n, ok := rows[tt]; ok {
			data = binary.LittleEndian.AppendUint32(data, n)
		}
	}
	return append(data, payload...)
}

// pdbStreamWith assembles a #Pdb stream declaring the given referenced
// type-system row counts.
func pdbStreamWith(referenced map[metadata.TableType]uint32) []byte {
	data := make([]byte, 32)
	var mask uint64
	for tt := range referenced {
		mask |= 1 << uint(tt)
	}
	binary.LittleEndian.PutUint64(data[24:], mask)
	for tt := metadata.TableType(0); tt < 64; tt++ {
		if n, ok := referenced[tt]; ok {
			data = binary.LittleEndian.AppendUint32(data, n)
		}
	}
	return data
}

func TestRowSizesNarrowIndices(t *testing.T) {
	// One Document row: Blob(2) + Guid(2) + Blob(2) + Guid(2).
	payload := make([]byte, 8)
	data := buildRoot(
		rawStream{"#Pdb", emptyPdb()},
		rawStream{"#~", tablesStream(0, map[metadata.TableType]uint32{metadata.TableDocument: 1}, payload)},
	)
	root, err := metadata.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 8, root.Tables.Table(metadata.TableDocument).RowSize())
	// MethodDebugInformation: Document index (2) + Blob (2).
	assert.Equal(t, 4, root.Tables.Table(metadata.TableMethodDebugInformation).RowSize())
	// LocalScope: four narrow indices + two u32s.
	assert.Equal(t, 16, root.Tables.Table(metadata.TableLocalScope).RowSize())
	// CustomDebugInformation: coded (2) + Guid (2) + Blob (2).
	assert.Equal(t, 6, root.Tables.Table(metadata.TableCustomDebugInformation).RowSize())
}

func TestRowSizesWideHeaps(t *testing.T) {
	// heap_sizes 0x7 widens string, GUID and blob indices to 4 bytes.
	payload := make([]byte, 16)
	data := buildRoot(
		rawStream{"#Pdb", emptyPdb()},
		rawStream{"#~", tablesStream(0x7, map[metadata.TableType]uint32{metadata.TableDocument: 1}, payload)},
	)
	root, err := metadata.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 16, root.Tables.Table(metadata.TableDocument).RowSize())
	// LocalVariable: u16 + u16 + String(4).
	assert.Equal(t, 8, root.Tables.Table(metadata.TableLocalVariable).RowSize())
	// LocalConstant: String(4) + Blob(4).
	assert.Equal(t, 8, root.Tables.Table(metadata.TableLocalConstant).RowSize())
}

func TestRowSizesWideTableIndex(t *testing.T) {
	// A referenced MethodDef table of 2^16 rows, one past the 2-byte limit,
	// widens MethodDef indices (LocalScope's Method column) from 2 to 4
	// bytes.
	data := buildRoot(
		rawStream{"#Pdb", pdbStreamWith(map[metadata.TableType]uint32{metadata.TableMethodDef: 0x10000})},
		rawStream{"#~", tablesStream(0, nil, nil)},
	)
	root, err := metadata.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 18, root.Tables.Table(metadata.TableLocalScope).RowSize())
	// The HasCustomDebugInformation coded index widens much earlier:
	// 2^16 rows far exceeds 0xFFFF >> 5.
	assert.Equal(t, 8, root.Tables.Table(metadata.TableCustomDebugInformation).RowSize())
}

func TestRowSizesCodedIndexThreshold(t *testing.T) {
	// 0xFFFF >> 5 = 2047 is the largest row count a 2-byte
	// HasCustomDebugInformation index can address.
	small := buildRoot(
		rawStream{"#Pdb", pdbStreamWith(map[metadata.TableType]uint32{metadata.TableMethodDef: 2047})},
		rawStream{"#~", tablesStream(0, nil, nil)},
	)
	root, err := metadata.Parse(small)
	require.NoError(t, err)
	assert.Equal(t, 6, root.Tables.Table(metadata.TableCustomDebugInformation).RowSize())

	wide := buildRoot(
		rawStream{"#Pdb", pdbStreamWith(map[metadata.TableType]uint32{metadata.TableMethodDef: 2048})},
		rawStream{"#~", tablesStream(0, nil, nil)},
	)
	root, err = metadata.Parse(wide)
	require.NoError(t, err)
	assert.Equal(t, 8, root.Tables.Table(metadata.TableCustomDebugInformation).RowSize())
}

func TestRowAccess(t *testing.T) {
	// Two MethodDebugInformation rows with known cell values.
	payload := []byte{
		0x01, 0x00, 0x10, 0x00, // row 1: document 1, blob 0x10
		0x02, 0x00, 0x20, 0x00, // row 2: document 2, blob 0x20
	}
	data := buildRoot(
		rawStream{"#Pdb", emptyPdb()},
		rawStream{"#~", tablesStream(0, map[metadata.TableType]uint32{metadata.TableMethodDebugInformation: 2}, payload)},
	)
	root, err := metadata.Parse(data)
	require.NoError(t, err)

	row, err := root.Tables.MethodDebugInformationRow(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, row.Document)
	assert.EqualValues(t, 0x10, row.SequencePoints)

	row, err = root.Tables.MethodDebugInformationRow(2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, row.Document)
	assert.EqualValues(t, 0x20, row.SequencePoints)

	// Rows are 1-based; 0 and past-the-end are out of bounds.
	_, err = root.Tables.MethodDebugInformationRow(0)
	assert.ErrorIs(t, err, metadata.ErrOutOfBounds)
	_, err = root.Tables.MethodDebugInformationRow(3)
	assert.ErrorIs(t, err, metadata.ErrOutOfBounds)
}

func TestLocalTableRows(t *testing.T) {
	// One row each of the local-scope family, in table order:
	// LocalScope (2+2+2+2+4+4), LocalVariable (2+2+2),
	// LocalConstant (2+2), ImportScope (2+2).
	le := binary.LittleEndian
	var payload []byte
	payload = le.AppendUint16(payload, 1)      // LocalScope.Method
	payload = le.AppendUint16(payload, 1)      // LocalScope.ImportScope
	payload = le.AppendUint16(payload, 1)      // LocalScope.VariableList
	payload = le.AppendUint16(payload, 1)      // LocalScope.ConstantList
	payload = le.AppendUint32(payload, 8)      // LocalScope.StartOffset
	payload = le.AppendUint32(payload, 40)     // LocalScope.Length
	payload = le.AppendUint16(payload, 0x11)   // LocalVariable.Attributes
	payload = le.AppendUint16(payload, 2)      // LocalVariable.Index
	payload = le.AppendUint16(payload, 0x30)   // LocalVariable.Name
	payload = le.AppendUint16(payload, 0x40)   // LocalConstant.Name
	payload = le.AppendUint16(payload, 0x50)   // LocalConstant.Signature
	payload = le.AppendUint16(payload, 0)      // ImportScope.Parent
	payload = le.AppendUint16(payload, 0x60)   // ImportScope.Imports

	data := buildRoot(
		rawStream{"#Pdb", emptyPdb()},
		rawStream{"#~", tablesStream(0, map[metadata.TableType]uint32{
			metadata.TableLocalScope:    1,
			metadata.TableLocalVariable: 1,
			metadata.TableLocalConstant: 1,
			metadata.TableImportScope:   1,
		}, payload)},
	)
	root, err := metadata.Parse(data)
	require.NoError(t, err)

	scope, err := root.Tables.LocalScopeRow(1)
	require.NoError(t, err)
	assert.Equal(t, metadata.LocalScopeRow{
		Method: 1, ImportScope: 1, VariableList: 1, ConstantList: 1,
		StartOffset: 8, Length: 40,
	}, scope)

	variable, err := root.Tables.LocalVariableRow(1)
	require.NoError(t, err)
	assert.Equal(t, metadata.LocalVariableRow{Attributes: 0x11, Index: 2, Name: 0x30}, variable)

	constant, err := root.Tables.LocalConstantRow(1)
	require.NoError(t, err)
	assert.Equal(t, metadata.LocalConstantRow{Name: 0x40, Signature: 0x50}, constant)

	scopeImports, err := root.Tables.ImportScopeRow(1)
	require.NoError(t, err)
	assert.Equal(t, metadata.ImportScopeRow{Parent: 0, Imports: 0x60}, scopeImports)
}

func TestTableDataTruncated(t *testing.T) {
	// Declares one Document row (8 bytes) but supplies none.
	data := buildRoot(
		rawStream{"#Pdb", emptyPdb()},
		rawStream{"#~", tablesStream(0, map[metadata.TableType]uint32{metadata.TableDocument: 1}, nil)},
	)
	_, err := metadata.Parse(data)
	assert.ErrorIs(t, err, metadata.ErrTruncated)
}

func TestTableRowCountLimit(t *testing.T) {
	data := buildRoot(
		rawStream{"#Pdb", emptyPdb()},
		rawStream{"#~", tablesStream(0, map[metadata.TableType]uint32{metadata.TableDocument: 1 << 25}, nil)},
	)
	_, err := metadata.Parse(data)
	assert.ErrorIs(t, err, metadata.ErrInvalidStream)
}

func TestHasCustomDebugInformationCoding(t *testing.T) {
	coded := metadata.EncodeHasCustomDebugInformation(metadata.TableDocument, 3)
	tt, row := metadata.DecodeHasCustomDebugInformation(coded)
	assert.Equal(t, metadata.TableDocument, tt)
	assert.EqualValues(t, 3, row)

	assert.Equal(t, 0, metadata.HasCustomDebugInformationTag(metadata.TableMethodDef))
	assert.Equal(t, 22, metadata.HasCustomDebugInformationTag(metadata.TableDocument))
}
