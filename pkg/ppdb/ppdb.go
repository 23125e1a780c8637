// Package ppdb reads Microsoft Portable PDB files: the cross-platform .NET
// debug-information format layered on ECMA-335 metadata. It resolves method
// debug information, per-statement sequence points, document tables,
// embedded source and Source Link mappings.
//
// A File is an immutable view over the caller's byte buffer; it performs no
// I/O and is safe for concurrent use as long as the buffer outlives it.
package ppdb

import (
	"encoding/binary"
	"fmt"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// File is a parsed Portable PDB.
type File struct {
	meta *metadata.Root
}

// Parse parses a Portable PDB from the given buffer. The File borrows the
// buffer and remains valid only as long as data does.
func Parse(data []byte) (*File, error) {
	meta, err := metadata.Parse(data)
	if err != nil {
		return nil, err
	}
	return &File{meta: meta}, nil
}

// Metadata exposes the underlying metadata root for callers that need raw
// heap or table access.
func (f *File) Metadata() *metadata.Root {
	return f.meta
}

// Version returns the metadata version string, e.g. "PDB v1.0".
func (f *File) Version() string {
	return f.meta.Version()
}

// PdbID returns the 20-byte PDB identifier from the #Pdb stream.
func (f *File) PdbID() [20]byte {
	return f.meta.Pdb.ID
}

// DebugID renders the PDB identifier in the conventional GUID-age form,
// e.g. "1d6929b4-468b-4db8-9389-9a12bd257e1b-ab8cf31e".
func (f *File) DebugID() string {
	id := f.meta.Pdb.ID
	var guid [16]byte
	copy(guid[:], id[:16])
	age := binary.LittleEndian.Uint32(id[16:])
	return fmt.Sprintf("%s-%08x", GUIDString(guid), age)
}

// EntryPoint returns the MethodDef token of the module entry point, or 0
// when the module has none.
func (f *File) EntryPoint() uint32 {
	return f.meta.Pdb.EntryPoint
}

// MVID returns the module version id: the GUID of the Module table's single
// row. It reports false for PPDBs that carry no Module table (the usual case
// for standalone debug files).
func (f *File) MVID() ([16]byte, bool) {
	if f.meta.Tables.RowCount(metadata.TableModule) == 0 {
		return [16]byte{}, false
	}
	idx, err := f.meta.Tables.Table(metadata.TableModule).Cell(1, 2)
	if err != nil {
		return [16]byte{}, false
	}
	guid, err := f.meta.GUIDs.Get(idx)
	if err != nil {
		return [16]byte{}, false
	}
	return guid, true
}

// MethodCount returns the number of MethodDebugInformation rows. Row indices
// run from 1 to MethodCount and coincide with MethodDef row indices.
func (f *File) MethodCount() uint32 {
	return f.meta.Tables.RowCount(metadata.TableMethodDebugInformation)
}

// MethodDebug returns the debug information for the given 1-based
// MethodDef/MethodDebugInformation row.
func (f *File) MethodDebug(row uint32) (*MethodDebug, error) {
	info, err := f.meta.Tables.MethodDebugInformationRow(row)
	if err != nil {
		return nil, err
	}
	return &MethodDebug{file: f, row: row, info: info}, nil
}

// MethodDebug is the debug information of one method.
type MethodDebug struct {
	file *File
	row  uint32
	info metadata.MethodDebugInformationRow
}

// Row returns the 1-based MethodDebugInformation row index.
func (m *MethodDebug) Row() uint32 {
	return m.row
}

// Token returns the MethodDef metadata token for this method.
func (m *MethodDebug) Token() uint32 {
	return MethodDefToken(m.row)
}

// HasSequencePoints reports whether the method carries a sequence-points
// blob.
func (m *MethodDebug) HasSequencePoints() bool {
	return m.info.SequencePoints != 0
}

// MethodDefToken builds a MethodDef metadata token from a 1-based row index.
func MethodDefToken(row uint32) uint32 {
	return uint32(metadata.TableMethodDef)<<24 | row&0xFFFFFF
}

// GUIDString renders an on-disk GUID (Data1/2/3 little-endian, Data4 raw) in
// the canonical dashed form.
func GUIDString(g [16]byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15])
}
