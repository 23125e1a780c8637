package metadata

import (
	"encoding/binary"
	"fmt"
)

// PdbStream is the parsed #Pdb stream: the debug header Portable PDB adds on
// top of plain ECMA-335 metadata.
type PdbStream struct {
	// ID is the 20-byte PDB identifier (16-byte GUID followed by a 4-byte
	// age/timestamp).
	ID [20]byte
	// EntryPoint is the MethodDef token of the module entry point, or 0.
	EntryPoint uint32
	// ReferencedTableRows holds, per table, the row count of the
	// corresponding table in the referenced type system (the assembly the
	// PDB describes). Coded indices into those tables size themselves from
	// these counts.
	ReferencedTableRows [tableCount]uint32
}

func parsePdbStream(data []byte) (*PdbStream, error) {
	// id [20]byte, entry point u32, referenced-tables bitmask u64.
	const headerSize = 20 + 4 + 8
	if len(data) < headerSize {
		return nil, fmt.Errorf("#Pdb stream: %d bytes: %w", len(data), ErrTruncated)
	}

	stream := &PdbStream{}
	copy(stream.ID[:], data)
	stream.EntryPoint = binary.LittleEndian.Uint32(data[20:])
	mask := binary.LittleEndian.Uint64(data[24:])

	offset := headerSize
	for i := 0; i < tableCount; i++ {
		if mask>>i&1 == 0 {
			continue
		}
		if offset+4 > len(data) {
			return nil, fmt.Errorf("#Pdb stream: row count for table %#02x at offset %#x: %w", i, offset, ErrTruncated)
		}
		stream.ReferencedTableRows[i] = binary.LittleEndian.Uint32(data[offset:])
		offset += 4
	}
	return stream, nil
}
