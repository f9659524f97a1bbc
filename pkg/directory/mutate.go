package directory

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/encode"
	. "github.com/weberc2/ext2img/pkg/types"
)

// Append adds an entry to block by splitting the slack off the final
// record. An unused final record is overwritten in place. The block is
// left untouched on error.
func Append(block []byte, ino Ino, name string, fileType FileType) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if ino == InoNil {
		return fmt.Errorf("appending entry `%s`: %w", name, InvalidInoErr)
	}

	entries, err := tiled(block)
	if err != nil {
		return fmt.Errorf("appending entry `%s`: %w", name, err)
	}
	for i := range entries {
		if entries[i].Ino != InoNil && entries[i].Name == name {
			return fmt.Errorf("appending entry `%s`: %w", name, EntryExistsErr)
		}
	}

	last := entries[len(entries)-1]
	var footprint Byte
	if last.Ino != InoNil {
		footprint = encode.DirEntrySize(int(last.NameLen))
	}
	slack := Byte(last.RecLen) - footprint
	if needed := encode.DirEntrySize(len(name)); slack < needed {
		return fmt.Errorf(
			"appending entry `%s`: need `%d` bytes; `%d` available: %w",
			name,
			needed,
			slack,
			DirectoryFullErr,
		)
	}

	offset := last.Offset + footprint
	if err := encode.EncodeDirEntry(
		&DirEntry{
			Ino:      ino,
			RecLen:   uint16(slack),
			FileType: fileType,
			Name:     name,
		},
		block[offset:],
	); err != nil {
		return fmt.Errorf("appending entry `%s`: %w", name, err)
	}
	if footprint > 0 {
		if err := encode.EncodeDirEntryRecLen(
			uint16(footprint),
			block[last.Offset:],
		); err != nil {
			return fmt.Errorf("appending entry `%s`: %w", name, err)
		}
	}
	return nil
}

// Remove deletes the live entry named name and returns it. The records
// still tile the block afterwards: a final entry is absorbed by its
// predecessor, an interior entry is closed up by shifting the rest of the
// block left and growing the final record, and a sole entry is marked
// unused.
func Remove(block []byte, name string) (DirEntry, error) {
	if IsDot(name) {
		return DirEntry{}, fmt.Errorf("removing entry `%s`: %w", name, InvalidNameErr)
	}
	entries, err := tiled(block)
	if err != nil {
		return DirEntry{}, fmt.Errorf("removing entry `%s`: %w", name, err)
	}

	index := -1
	for i := range entries {
		if entries[i].Ino != InoNil && entries[i].Name == name {
			index = i
			break
		}
	}
	if index < 0 {
		return DirEntry{}, fmt.Errorf("removing entry `%s`: %w", name, EntryNotFoundErr)
	}

	removed := entries[index]
	last := entries[len(entries)-1]
	switch {
	case index == len(entries)-1 && index > 0:
		prev := entries[index-1]
		if err := encode.EncodeDirEntryRecLen(
			prev.RecLen+removed.RecLen,
			block[prev.Offset:],
		); err != nil {
			return DirEntry{}, fmt.Errorf("removing entry `%s`: %w", name, err)
		}
	case index == len(entries)-1:
		if err := encode.EncodeDirEntryIno(InoNil, block[removed.Offset:]); err != nil {
			return DirEntry{}, fmt.Errorf("removing entry `%s`: %w", name, err)
		}
	default:
		span := Byte(removed.RecLen)
		size := Byte(len(block))
		copy(block[removed.Offset:], block[removed.end():])
		clear(block[size-span:])
		lastOffset := last.Offset - span
		if err := encode.EncodeDirEntryRecLen(
			last.RecLen+removed.RecLen,
			block[lastOffset:],
		); err != nil {
			return DirEntry{}, fmt.Errorf("removing entry `%s`: %w", name, err)
		}
	}
	return removed.DirEntry, nil
}

// Bootstrap initializes block as a directory holding only "." (pointing at
// self) and ".." (pointing at parent).
func Bootstrap(block []byte, self, parent Ino) error {
	clear(block)
	dotLen := encode.DirEntrySize(1)
	if err := encode.EncodeDirEntry(
		&DirEntry{
			Ino:      self,
			RecLen:   uint16(dotLen),
			FileType: FileTypeDir,
			Name:     ".",
		},
		block,
	); err != nil {
		return fmt.Errorf("writing `.` entry: %w", err)
	}
	if err := encode.EncodeDirEntry(
		&DirEntry{
			Ino:      parent,
			RecLen:   uint16(Byte(len(block)) - dotLen),
			FileType: FileTypeDir,
			Name:     "..",
		},
		block[dotLen:],
	); err != nil {
		return fmt.Errorf("writing `..` entry: %w", err)
	}
	return nil
}
