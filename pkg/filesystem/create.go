package filesystem

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/directory"
	. "github.com/weberc2/ext2img/pkg/types"
)

// CreateFile creates an empty regular file named name in directory parent
// and returns its inode number.
func (fs *FileSystem) CreateFile(parent Ino, name string) (Ino, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.create(parent, name, DefaultFileMode)
}

// CreateDirectory creates a directory named name in directory parent,
// holding "." and "..", and returns its inode number.
func (fs *FileSystem) CreateDirectory(parent Ino, name string) (Ino, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.create(parent, name, DefaultDirMode)
}

func (fs *FileSystem) create(parentIno Ino, name string, mode Mode) (Ino, error) {
	op := fmt.Sprintf("creating `%s`", name)
	if err := fs.checkWritable(op); err != nil {
		return InoNil, err
	}

	parent, block, err := fs.readDir(parentIno)
	if err != nil {
		return InoNil, err
	}

	// try the insertion on a scratch copy first so that a bad name, a
	// duplicate or a full directory is reported before anything is
	// allocated
	scratch := append([]byte(nil), block...)
	if err := directory.Append(
		scratch,
		InoBadBlocks,
		name,
		mode.FileType(),
	); err != nil {
		return InoNil, dirError(op, parentIno, err)
	}

	ino, err := fs.allocateInode()
	if err != nil {
		return InoNil, err
	}

	now := fs.timestamp()
	child := Inode{Ino: ino, Mode: mode, LinksCount: 1}
	child.Touch(now)
	isDir := mode.FileType() == FileTypeDir
	if isDir {
		if err := fs.bootstrapDir(&child, parentIno); err != nil {
			return InoNil, err
		}
	}
	if err := fs.inodes.Write(&child); err != nil {
		return InoNil, err
	}

	if err := directory.Append(block, ino, name, mode.FileType()); err != nil {
		return InoNil, dirError(op, parentIno, err)
	}
	if err := fs.writeDirBlock(&parent, block); err != nil {
		return InoNil, err
	}

	if isDir {
		parent.LinksCount++
	}
	parent.MTime = now
	parent.CTime = now
	if err := fs.inodes.Write(&parent); err != nil {
		return InoNil, err
	}

	fs.logger.Debug(
		"created entry",
		"op", "create",
		"parent", parentIno,
		"name", name,
		"ino", ino,
		"type", mode.FileType().String(),
	)
	return ino, nil
}

// bootstrapDir gives a new directory inode its data block, holding "." and
// "..". The inode itself isn't persisted. If no block is free the inode is
// released again.
func (fs *FileSystem) bootstrapDir(dir *Inode, parent Ino) error {
	b, err := fs.allocateBlock()
	if err != nil {
		if freeErr := fs.alloc.FreeInode(dir.Ino); freeErr != nil {
			fs.logger.Warn(
				"releasing inode after failed directory creation",
				"ino", dir.Ino,
				"err", freeErr,
			)
		}
		return err
	}

	block := make([]byte, fs.geometry.BlockSize)
	if err := directory.Bootstrap(block, dir.Ino, parent); err != nil {
		return &Error{
			Kind:  KindValidation,
			Op:    "bootstrapping directory",
			Ino:   dir.Ino,
			Block: b,
			Err:   err,
		}
	}
	dir.Blocks[0] = b
	if err := fs.writeDirBlock(dir, block); err != nil {
		return err
	}
	dir.Size = fs.geometry.BlockSize
	dir.LinksCount = 2
	dir.Sectors = uint32(fs.geometry.BlockSize / SectorSize)
	return nil
}
