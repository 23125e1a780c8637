package ppdb

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// Language identifies the source language of a document.
type Language int

const (
	LangUnknown Language = iota
	LangCSharp
	LangVisualBasic
	LangFSharp
)

func (l Language) String() string {
	switch l {
	case LangCSharp:
		return "csharp"
	case LangVisualBasic:
		return "vb"
	case LangFSharp:
		return "fsharp"
	default:
		return "unknown"
	}
}

// Document language GUIDs in their on-disk byte order.
var (
	guidCSharp      = [16]byte{0xf8, 0x62, 0x51, 0x3f, 0xc6, 0x07, 0xd3, 0x11, 0x90, 0x53, 0x00, 0xc0, 0x4f, 0xa3, 0x02, 0xa1}
	guidVisualBasic = [16]byte{0xb8, 0xd0, 0x12, 0x3a, 0x6c, 0xc2, 0xd0, 0x11, 0xb4, 0x42, 0x00, 0xa0, 0x24, 0x4a, 0x1d, 0xd2}
	guidFSharp      = [16]byte{0xc9, 0x38, 0x4f, 0xab, 0xe6, 0xb6, 0xba, 0x43, 0xbe, 0x3b, 0x58, 0x08, 0x0b, 0x2c, 0xcc, 0xe3}
)

// Document is a source file referenced by the PPDB.
type Document struct {
	// Row is the 1-based Document table row.
	Row uint32
	// Name is the document path assembled from the document-name blob.
	Name string
	// Language is derived from the document's language GUID.
	Language Language
	// HashAlgorithm is the raw hash-algorithm GUID, zero when absent.
	HashAlgorithm [16]byte
	// Hash is the document's content hash, nil when absent.
	Hash []byte
}

// DocumentCount returns the number of Document rows.
func (f *File) DocumentCount() uint32 {
	return f.meta.Tables.RowCount(metadata.TableDocument)
}

// Document decodes the given 1-based Document row.
func (f *File) Document(row uint32) (Document, error) {
	raw, err := f.meta.Tables.DocumentRow(row)
	if err != nil {
		return Document{}, err
	}

	doc := Document{Row: row}
	doc.Name, err = f.documentName(raw.Name)
	if err != nil {
		return Document{}, fmt.Errorf("document %d: %w", row, err)
	}

	if raw.Language != 0 {
		guid, err := f.meta.GUIDs.Get(raw.Language)
		if err != nil {
			return Document{}, fmt.Errorf("document %d language: %w", row, err)
		}
		switch guid {
		case guidCSharp:
			doc.Language = LangCSharp
		case guidVisualBasic:
			doc.Language = LangVisualBasic
		case guidFSharp:
			doc.Language = LangFSharp
		}
	}

	if raw.HashAlgorithm != 0 {
		doc.HashAlgorithm, err = f.meta.GUIDs.Get(raw.HashAlgorithm)
		if err != nil {
			return Document{}, fmt.Errorf("document %d hash algorithm: %w", row, err)
		}
	}
	if raw.Hash != 0 {
		doc.Hash, err = f.meta.Blobs.Get(raw.Hash)
		if err != nil {
			return Document{}, fmt.Errorf("document %d hash: %w", row, err)
		}
	}

	return doc, nil
}

// Documents decodes every Document row in order.
func (f *File) Documents() ([]Document, error) {
	count := f.DocumentCount()
	docs := make([]Document, 0, count)
	for row := uint32(1); row <= count; row++ {
		doc, err := f.Document(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// documentName assembles a document path from a document-name blob: one
// separator byte, then blob indices of the path parts, joined with the
// separator.
func (f *File) documentName(offset uint32) (string, error) {
	data, err := f.meta.Blobs.Get(offset)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	sep := ""
	if data[0] != 0 {
		if data[0] >= utf8.RuneSelf {
			return "", fmt.Errorf("document name separator %#02x: %w", data[0], metadata.ErrInvalidString)
		}
		sep = string(data[:1])
	}
	data = data[1:]

	var parts []string
	for len(data) > 0 {
		idx, n, err := metadata.DecodeUint(data)
		if err != nil {
			return "", err
		}
		data = data[n:]

		if idx == 0 {
			parts = append(parts, "")
			continue
		}
		seg, err := f.meta.Blobs.Get(idx)
		if err != nil {
			return "", err
		}
		if !utf8.Valid(seg) {
			return "", fmt.Errorf("document name part at blob %#x: %w", idx, metadata.ErrInvalidString)
		}
		parts = append(parts, string(seg))
	}

	return strings.Join(parts, sep), nil
}
