package encode

import (
	"github.com/weberc2/ext2img/pkg/math"
	. "github.com/weberc2/ext2img/pkg/types"
)

var (
	direntIno      = field{"inode", 0x0, 4}
	direntRecLen   = field{"rec_len", 0x4, 2}
	direntNameLen  = field{"name_len", 0x6, 1}
	direntFileType = field{"file_type", 0x7, 1}
	direntName     = field{"name", DirEntryHeaderSize, 0}
)

const direntAlign Byte = 4

// DirEntrySize is the minimum record length of an entry with a name of
// nameLen bytes: header plus name, rounded up to four bytes.
func DirEntrySize(nameLen int) Byte {
	return math.AlignUp(DirEntryHeaderSize+Byte(nameLen), direntAlign)
}

// DecodeDirEntryHeader decodes the fixed header at the start of p. The
// file type isn't validated; a zeroed entry is legitimate on disk.
func DecodeDirEntryHeader(entry *DirEntry, p []byte) error {
	if err := checkLen("directory entry", p, DirEntryHeaderSize); err != nil {
		return err
	}
	entry.Ino = Ino(direntIno.getU32(p))
	entry.RecLen = direntRecLen.getU16(p)
	entry.NameLen = direntNameLen.getU8(p)
	entry.FileType = FileType(direntFileType.getU8(p))
	return nil
}

// DecodeDirEntry decodes the header and the name that follows it.
func DecodeDirEntry(entry *DirEntry, p []byte) error {
	if err := DecodeDirEntryHeader(entry, p); err != nil {
		return err
	}
	end := direntName.start + Byte(entry.NameLen)
	if err := checkLen("directory entry", p, end); err != nil {
		return err
	}
	entry.Name = string(p[direntName.start:end])
	return nil
}

// EncodeDirEntry writes entry (header and name) at the start of p. NameLen
// is taken from the name.
func EncodeDirEntry(entry *DirEntry, p []byte) error {
	size := DirEntryHeaderSize + Byte(len(entry.Name))
	if err := checkLen("directory entry", p, size); err != nil {
		return err
	}
	direntIno.putU32(p, uint32(entry.Ino))
	direntRecLen.putU16(p, entry.RecLen)
	direntNameLen.putU8(p, uint8(len(entry.Name)))
	direntFileType.putU8(p, uint8(entry.FileType))
	copy(p[direntName.start:size], entry.Name)
	return nil
}

// EncodeDirEntryRecLen rewrites only the record length of the entry at the
// start of p.
func EncodeDirEntryRecLen(recLen uint16, p []byte) error {
	if err := checkLen("directory entry", p, direntRecLen.end()); err != nil {
		return err
	}
	direntRecLen.putU16(p, recLen)
	return nil
}

// EncodeDirEntryIno rewrites only the inode number of the entry at the
// start of p.
func EncodeDirEntryIno(ino Ino, p []byte) error {
	if err := checkLen("directory entry", p, direntIno.end()); err != nil {
		return err
	}
	direntIno.putU32(p, uint32(ino))
	return nil
}
