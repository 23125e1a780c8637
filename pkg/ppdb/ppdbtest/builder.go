// Package ppdbtest builds minimal synthetic Portable PDB files for tests.
// It emits the same physical layout real compilers produce (BSJB root, #Pdb,
// #~, heap streams) at the smallest sizes, so parser and cache tests can run
// without binary fixtures.
package ppdbtest

import (
	"encoding/binary"
	"strings"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// GUIDCSharp is the C# language GUID in on-disk byte order.
var GUIDCSharp = [16]byte{0xf8, 0x62, 0x51, 0x3f, 0xc6, 0x07, 0xd3, 0x11, 0x90, 0x53, 0x00, 0xc0, 0x4f, 0xa3, 0x02, 0xa1}

// Document describes one Document table row.
type Document struct {
	// Name is the document path; it is split on '/' into a document-name
	// blob.
	Name string
	// Language GUID; zero means no language.
	Language [16]byte
}

// Point is one sequence point to encode.
type Point struct {
	IL        uint32
	Line      uint32
	Col       uint16
	EndLine   uint32
	EndCol    uint16
	Hidden    bool
	// Document switches the effective document before this point when
	// nonzero and different from the current one.
	Document uint32
}

// Method describes one MethodDebugInformation row.
type Method struct {
	// Document is the initial Document row. When zero and the method has
	// points, it becomes 1 if the first point names document 0 or 1;
	// otherwise it stays 0 and the blob opens with a document record.
	Document uint32
	Points   []Point
	// Raw overrides the encoded sequence-points blob (local-signature
	// header included) for malformed-input tests.
	Raw []byte
}

// CustomDebug describes one CustomDebugInformation row.
type CustomDebug struct {
	ParentTable metadata.TableType
	ParentRow   uint32
	Kind        [16]byte
	Value       []byte
}

// PDB accumulates the logical content of a synthetic Portable PDB.
type PDB struct {
	ID          [20]byte
	EntryPoint  uint32
	Documents   []Document
	Methods     []Method
	CustomDebug []CustomDebug
}

// EncodeSequencePoints encodes points into a sequence-points blob body,
// including the leading local-signature header. initialDoc is the document
// the enclosing MethodDebugInformation row names; 0 means the blob opens
// with a document record naming the first point's document.
func EncodeSequencePoints(initialDoc uint32, points []Point) []byte {
	var blob []byte
	blob = metadata.AppendUint(blob, 0) // local signature

	doc := initialDoc
	if doc == 0 && len(points) > 0 {
		doc = points[0].Document
		if doc == 0 {
			doc = 1
		}
		blob = metadata.AppendUint(blob, doc)
	}

	var (
		first    = true
		prevIL   uint32
		haveBase bool
		baseLine uint32
		baseCol  uint16
	)
	for _, p := range points {
		if p.Document != 0 && p.Document != doc {
			blob = append(blob, 0)
			blob = metadata.AppendUint(blob, p.Document)
			doc = p.Document
		}

		if first {
			blob = metadata.AppendUint(blob, p.IL)
		} else {
			blob = metadata.AppendUint(blob, p.IL-prevIL)
		}
		first = false
		prevIL = p.IL

		if p.Hidden {
			blob = metadata.AppendUint(blob, 0)
			blob = metadata.AppendInt(blob, 0)
			continue
		}

		deltaLines := p.EndLine - p.Line
		blob = metadata.AppendUint(blob, deltaLines)
		if deltaLines != 0 {
			blob = metadata.AppendUint(blob, uint32(p.EndCol)-uint32(p.Col))
		} else {
			blob = metadata.AppendInt(blob, int32(p.EndCol)-int32(p.Col))
		}

		if haveBase {
			blob = metadata.AppendInt(blob, int32(p.Line)-int32(baseLine))
			blob = metadata.AppendInt(blob, int32(p.Col)-int32(baseCol))
		} else {
			blob = metadata.AppendUint(blob, p.Line)
			blob = metadata.AppendUint(blob, uint32(p.Col))
		}
		haveBase = true
		baseLine = p.Line
		baseCol = p.Col
	}
	return blob
}

// Build assembles the Portable PDB bytes.
func (p *PDB) Build() []byte {
	guids := &guidHeap{}
	blobs := &blobHeap{data: []byte{0}}

	type docRow struct{ name, hashAlg, hash, lang uint32 }
	docRows := make([]docRow, len(p.Documents))
	for i, d := range p.Documents {
		docRows[i] = docRow{
			name: blobs.addDocumentName(d.Name),
			lang: guids.add(d.Language),
		}
	}

	type mdiRow struct{ doc, seq uint32 }
	mdiRows := make([]mdiRow, len(p.Methods))
	for i, m := range p.Methods {
		raw := m.Raw
		doc := m.Document
		if raw == nil {
			if doc == 0 && len(m.Points) > 0 && (m.Points[0].Document == 0 || m.Points[0].Document == 1) {
				doc = 1
			}
			if len(m.Points) > 0 {
				raw = EncodeSequencePoints(doc, m.Points)
			}
		}
		row := mdiRow{doc: doc}
		if raw != nil {
			row.seq = blobs.add(raw)
		}
		mdiRows[i] = row
	}

	type cdiRow struct{ parent, kind, value uint32 }
	cdiRows := make([]cdiRow, len(p.CustomDebug))
	for i, c := range p.CustomDebug {
		cdiRows[i] = cdiRow{
			parent: metadata.EncodeHasCustomDebugInformation(c.ParentTable, c.ParentRow),
			kind:   guids.add(c.Kind),
			value:  blobs.add(c.Value),
		}
	}

	// #Pdb stream: id, entry point, no referenced tables.
	pdbStream := make([]byte, 32)
	copy(pdbStream, p.ID[:])
	binary.LittleEndian.PutUint32(pdbStream[20:], p.EntryPoint)

	// #~ stream. All heaps stay small, so every index is 2 bytes.
	tables := make([]byte, 24)
	tables[4] = 2 // schema major version
	tables[7] = 1
	var valid uint64
	counts := []struct {
		table metadata.TableType
		rows  int
	}{
		{metadata.TableDocument, len(docRows)},
		{metadata.TableMethodDebugInformation, len(mdiRows)},
		{metadata.TableCustomDebugInformation, len(cdiRows)},
	}
	for _, c := range counts {
		if c.rows > 0 {
			valid |= 1 << uint(c.table)
		}
	}
	binary.LittleEndian.PutUint64(tables[8:], valid)
	for _, c := range counts {
		if c.rows > 0 {
			tables = appendU32(tables, uint32(c.rows))
		}
	}
	for _, r := range docRows {
		tables = appendU16(tables, uint16(r.name), uint16(r.hashAlg), uint16(r.hash), uint16(r.lang))
	}
	for _, r := range mdiRows {
		tables = appendU16(tables, uint16(r.doc), uint16(r.seq))
	}
	for _, r := range cdiRows {
		tables = appendU16(tables, uint16(r.parent), uint16(r.kind), uint16(r.value))
	}

	stringsStream := []byte{0}
	usStream := []byte{0}

	return assembleRoot([]stream{
		{"#Pdb", pdbStream},
		{"#~", tables},
		{"#Strings", stringsStream},
		{"#US", usStream},
		{"#GUID", guids.data},
		{"#Blob", blobs.data},
	})
}

type stream struct {
	name string
	data []byte
}

func assembleRoot(streams []stream) []byte {
	version := "PDB v1.0\x00\x00\x00\x00" // NUL-padded to a multiple of 4

	headerSize := 16 + len(version) + 4
	for _, s := range streams {
		headerSize += 8 + pad4(len(s.name)+1)
	}

	buf := make([]byte, 0, headerSize)
	buf = appendU32(buf, 0x424A5342)
	buf = appendU16(buf, 1, 1) // major, minor
	buf = appendU32(buf, 0)    // reserved
	buf = appendU32(buf, uint32(len(version)))
	buf = append(buf, version...)
	buf = appendU16(buf, 0, uint16(len(streams)))

	offset := headerSize
	for _, s := range streams {
		buf = appendU32(buf, uint32(offset), uint32(len(s.data)))
		buf = append(buf, s.name...)
		for n := pad4(len(s.name)+1) - len(s.name); n > 0; n-- {
			buf = append(buf, 0)
		}
		offset += len(s.data)
	}
	for _, s := range streams {
		buf = append(buf, s.data...)
	}
	return buf
}

type guidHeap struct {
	data []byte
}

// add interns a GUID and returns its 1-based index; the zero GUID maps to
// index 0.
func (h *guidHeap) add(guid [16]byte) uint32 {
	if guid == ([16]byte{}) {
		return 0
	}
	for i := 0; i+16 <= len(h.data); i += 16 {
		if [16]byte(h.data[i:i+16]) == guid {
			return uint32(i/16) + 1
		}
	}
	h.data = append(h.data, guid[:]...)
	return uint32(len(h.data) / 16)
}

type blobHeap struct {
	data []byte
}

// add appends a length-prefixed blob and returns its offset.
func (h *blobHeap) add(blob []byte) uint32 {
	offset := uint32(len(h.data))
	h.data = metadata.AppendUint(h.data, uint32(len(blob)))
	h.data = append(h.data, blob...)
	return offset
}

// addDocumentName encodes name as a document-name blob: '/' separator and
// '/'-split parts stored as nested blobs.
func (h *blobHeap) addDocumentName(name string) uint32 {
	var body []byte
	body = append(body, '/')
	for _, part := range strings.Split(name, "/") {
		if part == "" {
			body = metadata.AppendUint(body, 0)
			continue
		}
		body = metadata.AppendUint(body, h.add([]byte(part)))
	}
	return h.add(body)
}

func pad4(n int) int {
	return (n + 3) &^ 3
}

func appendU32(dst []byte, values ...uint32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	return dst
}

func appendU16(dst []byte, values ...uint16) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}
