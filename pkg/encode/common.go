package encode

import (
	"encoding/binary"
	"fmt"

	. "github.com/weberc2/ext2img/pkg/types"
)

// field names one little-endian value inside an on-disk record.
type field struct {
	name  string
	start Byte
	size  Byte
}

func (f field) end() Byte { return f.start + f.size }

func (f field) bytes(p []byte) []byte { return p[f.start:f.end()] }

func (f field) getU8(p []byte) uint8 { return p[f.start] }

func (f field) putU8(p []byte, v uint8) { p[f.start] = v }

func (f field) getU16(p []byte) uint16 {
	return binary.LittleEndian.Uint16(f.bytes(p))
}

func (f field) putU16(p []byte, v uint16) {
	binary.LittleEndian.PutUint16(f.bytes(p), v)
}

func (f field) getU32(p []byte) uint32 {
	return binary.LittleEndian.Uint32(f.bytes(p))
}

func (f field) putU32(p []byte, v uint32) {
	binary.LittleEndian.PutUint32(f.bytes(p), v)
}

func (f field) getBlock(p []byte) Block { return Block(f.getU32(p)) }

func (f field) putBlock(p []byte, b Block) { f.putU32(p, uint32(b)) }

// at returns a copy of f shifted by offset, for repeated records such as
// block pointers.
func (f field) at(offset Byte) field {
	return field{name: f.name, start: f.start + offset, size: f.size}
}

type ErrShortRecord struct {
	Record string
	Wanted Byte
	Found  Byte
}

func (err ErrShortRecord) Error() string {
	return fmt.Sprintf(
		"%s record too short: wanted at least `%d` bytes; found `%d`",
		err.Record,
		err.Wanted,
		err.Found,
	)
}

func checkLen(record string, p []byte, wanted Byte) error {
	if Byte(len(p)) < wanted {
		return ErrShortRecord{Record: record, Wanted: wanted, Found: Byte(len(p))}
	}
	return nil
}
