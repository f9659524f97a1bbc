package inode

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/encode"
	"github.com/weberc2/ext2img/pkg/geometry"
	"github.com/weberc2/ext2img/pkg/io"
	. "github.com/weberc2/ext2img/pkg/types"
)

// Location is where an inode record lives. Offset is absolute within the
// disk image.
type Location struct {
	Group  GroupID
	Index  uint64
	Offset Byte
}

// Locator reads and writes inode records straight from the volume; nothing
// is cached between calls.
type Locator struct {
	Volume   io.Volume
	Geometry *geometry.Geometry
}

func (l *Locator) Locate(ino Ino) (Location, error) {
	if !l.Geometry.ValidIno(ino) {
		return Location{}, &Error{
			Kind: KindValidation,
			Op:   "locating inode",
			Ino:  ino,
			Err: fmt.Errorf(
				"%w: outside `[1, %d]`",
				InvalidInoErr,
				l.Geometry.InodesCount,
			),
		}
	}

	group := GroupID(uint64(ino-1) / l.Geometry.InodesPerGroup)
	index := uint64(ino-1) % l.Geometry.InodesPerGroup
	if uint64(group) >= uint64(len(l.Geometry.Groups)) {
		return Location{}, &Error{
			Kind: KindValidation,
			Op:   "locating inode",
			Ino:  ino,
			Err:  fmt.Errorf("%w: group `%d` doesn't exist", InvalidInoErr, group),
		}
	}

	table := l.Geometry.Groups[group].InodeTable
	return Location{
		Group:  group,
		Index:  index,
		Offset: l.Geometry.BlockOffset(table) + Byte(index)*l.Geometry.InodeSize,
	}, nil
}

func (l *Locator) Read(ino Ino) (Inode, error) {
	loc, err := l.Locate(ino)
	if err != nil {
		return Inode{}, err
	}

	b := make([]byte, l.Geometry.InodeSize)
	if err := l.Volume.ReadAt(loc.Offset, b); err != nil {
		return Inode{}, &Error{
			Kind: KindIO,
			Op:   "reading inode",
			Ino:  ino,
			Err:  err,
		}
	}

	var inode Inode
	if err := encode.DecodeInode(&inode, ino, b); err != nil {
		return Inode{}, &Error{
			Kind: KindCorrupt,
			Op:   "decoding inode",
			Ino:  ino,
			Err:  err,
		}
	}
	return inode, nil
}

// Write persists inode at the location of inode.Ino.
func (l *Locator) Write(inode *Inode) error {
	loc, err := l.Locate(inode.Ino)
	if err != nil {
		return err
	}

	b := make([]byte, l.Geometry.InodeSize)
	if err := encode.EncodeInode(inode, b); err != nil {
		return &Error{
			Kind: KindValidation,
			Op:   "encoding inode",
			Ino:  inode.Ino,
			Err:  err,
		}
	}
	if err := l.Volume.WriteAt(loc.Offset, b); err != nil {
		return &Error{
			Kind: KindIO,
			Op:   "writing inode",
			Ino:  inode.Ino,
			Err:  err,
		}
	}
	inode.Raw = b
	return nil
}
