package filesystem

import (
	"fmt"
	stdmath "math"

	"github.com/weberc2/ext2img/pkg/math"
	. "github.com/weberc2/ext2img/pkg/types"
)

// WriteFile replaces the content of regular file ino with data. Blocks are
// mapped (allocating as needed) and written in logical order, blocks past
// the new end are released, and the inode is persisted last. If mapping
// fails part way the blocks linked so far stay linked.
func (fs *FileSystem) WriteFile(ino Ino, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	const op = "writing file"
	if err := fs.checkWritable(op); err != nil {
		return err
	}
	file, err := fs.inodes.Read(ino)
	if err != nil {
		return err
	}
	if file.IsDir() {
		return &Error{Kind: KindValidation, Op: op, Ino: ino, Err: IsADirErr}
	}

	size := Byte(len(data))
	bs := fs.geometry.BlockSize
	count := Block(math.DivRoundUp(size, bs))
	if size > stdmath.MaxUint32 || count > fs.mapper.MaxBlocks() {
		return &Error{
			Kind: KindValidation,
			Op:   op,
			Ino:  ino,
			Err: fmt.Errorf(
				"`%d` bytes: %w",
				size,
				BlockOutOfRangeErr,
			),
		}
	}

	chunk := make([]byte, bs)
	for logical := Block(0); logical < count; logical++ {
		physical, allocated, err := fs.mapper.Ensure(&file, logical)
		if err != nil {
			return fs.persistPartial(&file, err)
		}
		if allocated {
			fs.logger.Debug(
				"allocated block",
				"ino", ino,
				"logical", logical,
				"block", physical,
			)
		}

		start := Byte(logical) * bs
		n := copy(chunk, data[start:math.Min(start+bs, size)])
		clear(chunk[n:])
		if err := fs.geometry.WriteBlock(fs.volume, physical, chunk); err != nil {
			return fs.persistPartial(&file, &Error{
				Kind:  KindIO,
				Op:    op,
				Ino:   ino,
				Block: physical,
				Err:   err,
			})
		}
	}

	if err := fs.mapper.Truncate(&file, count); err != nil {
		return fs.persistPartial(&file, err)
	}

	file.Size = size
	file.Touch(fs.timestamp())
	if err := fs.inodes.Write(&file); err != nil {
		return err
	}
	fs.logger.Debug("wrote file", "ino", ino, "size", size, "blocks", count)
	return nil
}

// persistPartial records the pointers linked before cause so that blocks
// already taken from the bitmaps remain reachable.
func (fs *FileSystem) persistPartial(file *Inode, cause error) error {
	if err := fs.inodes.Write(file); err != nil {
		fs.logger.Warn(
			"persisting partially written inode",
			"ino", file.Ino,
			"err", err,
		)
	}
	return cause
}

// ReadFile returns the content of inode ino. Holes read as zeros.
func (fs *FileSystem) ReadFile(ino Ino) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := fs.inodes.Read(ino)
	if err != nil {
		return nil, err
	}

	bs := fs.geometry.BlockSize
	data := make([]byte, file.Size)
	for start := Byte(0); start < file.Size; start += bs {
		logical := Block(start / bs)
		physical, err := fs.mapper.Map(&file, logical)
		if err != nil {
			return nil, err
		}
		if physical == BlockNil {
			continue
		}
		block, err := fs.geometry.ReadBlock(fs.volume, physical)
		if err != nil {
			return nil, &Error{
				Kind:  kindOr(err, KindIO),
				Op:    "reading file",
				Ino:   ino,
				Block: physical,
				Err:   err,
			}
		}
		copy(data[start:], block)
	}
	return data, nil
}
