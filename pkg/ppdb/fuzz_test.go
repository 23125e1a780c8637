package ppdb_test

import (
	"testing"

	"github.com/jtang613/goppdb/pkg/ppdb"
	"github.com/jtang613/goppdb/pkg/ppdb/cache"
	"github.com/jtang613/goppdb/pkg/ppdb/ppdbtest"
)

// FuzzParse feeds arbitrary bytes through the full pipeline: parsing must
// terminate with an error or a usable file, never panic or read out of
// bounds.
func FuzzParse(f *testing.F) {
	seed := &ppdbtest.PDB{
		Documents: []ppdbtest.Document{{Name: "/x/Foo.cs", Language: ppdbtest.GUIDCSharp}},
		Methods: []ppdbtest.Method{{Points: []ppdbtest.Point{
			{IL: 0, Line: 10, Col: 9, EndLine: 10, EndCol: 30},
			{IL: 7, Line: 11, Col: 9, EndLine: 11, EndCol: 30},
		}}},
	}
	f.Add(seed.Build())
	f.Add([]byte{})
	f.Add([]byte{0x42, 0x53, 0x4A, 0x42})

	f.Fuzz(func(t *testing.T, data []byte) {
		file, err := ppdb.Parse(data)
		if err != nil {
			return
		}

		_, _ = file.Documents()
		_, _ = file.SourceLinks()
		for row := uint32(1); row <= file.MethodCount(); row++ {
			md, err := file.MethodDebug(row)
			if err != nil {
				continue
			}
			it := md.SequencePoints()
			for it.Next() {
			}
		}
		for row := uint32(1); row <= file.DocumentCount(); row++ {
			_, _ = file.EmbeddedSource(row)
		}
		_, _ = cache.Build(file)
	})
}
