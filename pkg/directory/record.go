// Package directory encodes and decodes the variable-length entries of a
// single directory block. It operates on a block held in memory; callers
// read and persist the block.
package directory

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/encode"
	. "github.com/weberc2/ext2img/pkg/types"
)

// Entry is a decoded directory entry along with its offset in the block.
type Entry struct {
	DirEntry
	Offset Byte
}

func (entry *Entry) end() Byte { return entry.Offset + Byte(entry.RecLen) }

// records walks every record in block, live or not. It stops without error
// at a zero record length. The returned bool reports whether the walk
// reached the end of the block.
func records(block []byte) ([]Entry, bool, error) {
	var entries []Entry
	size := Byte(len(block))
	for offset := Byte(0); offset < size; {
		var entry Entry
		if err := encode.DecodeDirEntryHeader(
			&entry.DirEntry,
			block[offset:],
		); err != nil {
			return entries, false, fmt.Errorf(
				"%w: entry at offset `%d`: %v",
				MalformedDirErr,
				offset,
				err,
			)
		}
		if entry.RecLen == 0 {
			return entries, false, nil
		}

		entry.Offset = offset
		if err := checkRecord(&entry, size); err != nil {
			return entries, false, err
		}
		if entry.Ino != InoNil {
			if err := encode.DecodeDirEntry(
				&entry.DirEntry,
				block[offset:entry.end()],
			); err != nil {
				return entries, false, fmt.Errorf(
					"%w: entry at offset `%d`: %v",
					MalformedDirErr,
					offset,
					err,
				)
			}
		}
		entries = append(entries, entry)
		offset = entry.end()
	}
	return entries, true, nil
}

func checkRecord(entry *Entry, blockSize Byte) error {
	recLen := Byte(entry.RecLen)
	switch {
	case recLen < DirEntryHeaderSize || recLen%4 != 0:
		return fmt.Errorf(
			"%w: entry at offset `%d` has record length `%d`",
			MalformedDirErr,
			entry.Offset,
			recLen,
		)
	case entry.end() > blockSize:
		return fmt.Errorf(
			"%w: entry at offset `%d` with record length `%d` overruns "+
				"block of `%d` bytes",
			MalformedDirErr,
			entry.Offset,
			recLen,
			blockSize,
		)
	case entry.Ino != InoNil &&
		DirEntryHeaderSize+Byte(entry.NameLen) > recLen:
		return fmt.Errorf(
			"%w: entry at offset `%d` has name length `%d` exceeding "+
				"record length `%d`",
			MalformedDirErr,
			entry.Offset,
			entry.NameLen,
			recLen,
		)
	case entry.Ino != InoNil && !entry.FileType.Valid():
		return fmt.Errorf(
			"%w: entry at offset `%d` has file type `%d`",
			MalformedDirErr,
			entry.Offset,
			uint8(entry.FileType),
		)
	}
	return nil
}

// tiled walks block and fails unless the records cover it exactly.
func tiled(block []byte) ([]Entry, error) {
	entries, complete, err := records(block)
	if err != nil {
		return nil, err
	}
	if !complete || len(entries) < 1 {
		return nil, fmt.Errorf(
			"%w: records don't cover the block",
			MalformedDirErr,
		)
	}
	return entries, nil
}

// Parse returns the live entries of block in on-disk order. A zero record
// length ends the walk.
func Parse(block []byte) ([]Entry, error) {
	all, _, err := records(block)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(all))
	for i := range all {
		if all[i].Ino != InoNil {
			entries = append(entries, all[i])
		}
	}
	return entries, nil
}

// Lookup finds the live entry named name.
func Lookup(block []byte, name string) (Entry, error) {
	entries, err := Parse(block)
	if err != nil {
		return Entry{}, err
	}
	for i := range entries {
		if entries[i].Name == name {
			return entries[i], nil
		}
	}
	return Entry{}, fmt.Errorf("looking up `%s`: %w", name, EntryNotFoundErr)
}

// Children returns the live entries other than "." and "..".
func Children(block []byte) ([]Entry, error) {
	entries, err := Parse(block)
	if err != nil {
		return nil, err
	}
	children := entries[:0]
	for _, entry := range entries {
		if !IsDot(entry.Name) {
			children = append(children, entry)
		}
	}
	return children, nil
}

func IsDot(name string) bool { return name == "." || name == ".." }

func ValidateName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf(
			"name `%s` has `%d` bytes: %w",
			name,
			len(name),
			NameTooLongErr,
		)
	}
	if name == "" || IsDot(name) {
		return fmt.Errorf("name `%s`: %w", name, InvalidNameErr)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return fmt.Errorf(
				"name `%s` contains byte `%#x`: %w",
				name,
				name[i],
				InvalidNameErr,
			)
		}
	}
	return nil
}
