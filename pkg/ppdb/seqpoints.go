package ppdb

import (
	"fmt"
	"math"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// SequencePoint maps an IL offset to a source span. Hidden points mark IL
// ranges with no meaningful source mapping; their line and column fields are
// all zero.
type SequencePoint struct {
	ILOffset uint32
	// Document is the 1-based Document row in effect at this point.
	Document    uint32
	StartLine   uint32
	StartColumn uint16
	EndLine     uint32
	EndColumn   uint16
	Hidden      bool
}

// SequencePoints returns a lazy iterator over the method's sequence points.
// The iterator borrows the File. A method without a sequence-points blob
// yields an empty iteration with a nil Err.
func (m *MethodDebug) SequencePoints() *SequencePointIter {
	it := &SequencePointIter{}
	if m.info.SequencePoints == 0 {
		it.done = true
		return it
	}

	data, err := m.file.meta.Blobs.Get(m.info.SequencePoints)
	if err != nil {
		it.err = err
		it.done = true
		return it
	}
	if len(data) == 0 {
		it.done = true
		return it
	}

	// The blob opens with the standalone-signature row of the method's
	// local variables, which sequence-point decoding does not need.
	_, n, err := metadata.DecodeUint(data)
	if err != nil {
		it.fail(err)
		return it
	}
	data = data[n:]

	doc := m.info.Document
	if doc == 0 {
		// Method spans documents: the blob opens with the initial
		// document record.
		doc, n, err = metadata.DecodeUint(data)
		if err != nil {
			it.fail(err)
			return it
		}
		data = data[n:]
	}

	it.data = data
	it.doc = doc
	return it
}

// SequencePointIter decodes a sequence-points blob record by record.
//
//	for it.Next() {
//		sp := it.Point()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type SequencePointIter struct {
	data []byte
	doc  uint32

	record  int
	started bool
	prevIL  uint32

	haveBase bool
	baseLine uint32
	baseCol  uint16

	cur  SequencePoint
	err  error
	done bool
}

// Next advances to the next sequence point. It returns false at the end of
// the blob or on the first malformed record; Err distinguishes the two.
func (it *SequencePointIter) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	for len(it.data) > 0 {
		// A zero IL delta cannot occur between points, so a leading
		// zero byte on any non-first record switches the document.
		if it.started && it.data[0] == 0 {
			doc, n, err := metadata.DecodeUint(it.data[1:])
			if err != nil {
				it.fail(err)
				return false
			}
			it.data = it.data[1+n:]
			it.doc = doc
			it.record++
			continue
		}

		ok := it.parseRecord()
		if ok {
			it.record++
		}
		return ok
	}

	it.done = true
	return false
}

// Point returns the current sequence point. Valid after Next reports true.
func (it *SequencePointIter) Point() SequencePoint {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *SequencePointIter) Err() error {
	return it.err
}

func (it *SequencePointIter) parseRecord() bool {
	ilOffset, ok := it.readUint()
	if !ok {
		return false
	}
	if it.started {
		next := uint64(it.prevIL) + uint64(ilOffset)
		if next > math.MaxUint32 {
			return it.invalid("IL offset overflows")
		}
		ilOffset = uint32(next)
		if ilOffset <= it.prevIL {
			return it.invalid("IL offset does not increase")
		}
	}

	deltaLines, ok := it.readUint()
	if !ok {
		return false
	}
	var deltaCols int64
	if deltaLines != 0 {
		cols, ok := it.readUint()
		if !ok {
			return false
		}
		deltaCols = int64(cols)
	} else {
		cols, ok := it.readInt()
		if !ok {
			return false
		}
		deltaCols = int64(cols)
	}

	if deltaLines == 0 && deltaCols == 0 {
		it.cur = SequencePoint{ILOffset: ilOffset, Document: it.doc, Hidden: true}
		it.started = true
		it.prevIL = ilOffset
		return true
	}

	var startLine, startCol int64
	if it.haveBase {
		lineDelta, ok := it.readInt()
		if !ok {
			return false
		}
		colDelta, ok := it.readInt()
		if !ok {
			return false
		}
		startLine = int64(it.baseLine) + int64(lineDelta)
		startCol = int64(it.baseCol) + int64(colDelta)
	} else {
		line, ok := it.readUint()
		if !ok {
			return false
		}
		col, ok := it.readUint()
		if !ok {
			return false
		}
		startLine, startCol = int64(line), int64(col)
	}

	endLine := startLine + int64(deltaLines)
	endCol := startCol + deltaCols

	switch {
	case startLine < 1:
		return it.invalid("start line below 1")
	case endLine > math.MaxUint32:
		return it.invalid("end line overflows")
	case startCol < 0 || startCol > math.MaxUint16:
		return it.invalid("start column out of range")
	case endCol < 0 || endCol > math.MaxUint16:
		return it.invalid("end column out of range")
	case endLine == startLine && endCol < startCol:
		return it.invalid("span ends before it starts")
	}

	it.cur = SequencePoint{
		ILOffset:    ilOffset,
		Document:    it.doc,
		StartLine:   uint32(startLine),
		StartColumn: uint16(startCol),
		EndLine:     uint32(endLine),
		EndColumn:   uint16(endCol),
	}
	it.started = true
	it.prevIL = ilOffset
	it.haveBase = true
	it.baseLine = uint32(startLine)
	it.baseCol = uint16(startCol)
	return true
}

func (it *SequencePointIter) readUint() (uint32, bool) {
	v, n, err := metadata.DecodeUint(it.data)
	if err != nil {
		it.fail(err)
		return 0, false
	}
	it.data = it.data[n:]
	return v, true
}

func (it *SequencePointIter) readInt() (int32, bool) {
	v, n, err := metadata.DecodeInt(it.data)
	if err != nil {
		it.fail(err)
		return 0, false
	}
	it.data = it.data[n:]
	return v, true
}

func (it *SequencePointIter) invalid(reason string) bool {
	it.err = fmt.Errorf("record %d: %s: %w", it.record, reason, ErrBadSequencePoints)
	it.done = true
	return false
}

func (it *SequencePointIter) fail(err error) {
	it.err = fmt.Errorf("record %d: %w", it.record, err)
	it.done = true
}
