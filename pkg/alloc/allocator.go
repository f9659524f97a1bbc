// Package alloc allocates and frees blocks and inodes through the on-disk
// group bitmaps. Every change is written back before returning.
package alloc

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/geometry"
	"github.com/weberc2/ext2img/pkg/io"
	. "github.com/weberc2/ext2img/pkg/types"
)

type Resource int

const (
	ResourceBlock Resource = iota
	ResourceInode
)

func (r Resource) String() string {
	switch r {
	case ResourceBlock:
		return "block"
	case ResourceInode:
		return "inode"
	default:
		panic(fmt.Sprintf("invalid resource: %d", r))
	}
}

type Allocator struct {
	Volume   io.Volume
	Geometry *geometry.Geometry
}

func (a *Allocator) AllocateBlock() (Block, error) {
	n, err := a.Allocate(ResourceBlock)
	return Block(n), err
}

func (a *Allocator) AllocateInode() (Ino, error) {
	n, err := a.Allocate(ResourceInode)
	return Ino(n), err
}

func (a *Allocator) FreeBlock(b Block) error {
	return a.Free(ResourceBlock, uint64(b))
}

func (a *Allocator) FreeInode(ino Ino) error {
	return a.Free(ResourceInode, uint64(ino))
}

// Allocate claims the first free resource of kind r, scanning groups in
// ascending order, and returns its number. Block numbers are absolute;
// inode numbers start at 1.
func (a *Allocator) Allocate(r Resource) (uint64, error) {
	op := fmt.Sprintf("allocating %s", r)
	for group := GroupID(0); uint64(group) < a.Geometry.GroupCount; group++ {
		bitmapBlock, limit := a.bitmap(r, group)
		bitmap, err := a.readBitmap(bitmapBlock)
		if err != nil {
			return 0, &Error{Kind: KindIO, Op: op, Block: bitmapBlock, Err: err}
		}

		pos, ok := firstZero(bitmap, limit)
		if !ok {
			continue
		}
		setHigh(bitmap, pos)
		if err := a.writeBitmap(bitmapBlock, bitmap); err != nil {
			return 0, &Error{Kind: KindIO, Op: op, Block: bitmapBlock, Err: err}
		}
		return a.number(r, group, pos), nil
	}

	exhausted := error(OutOfBlocksErr)
	if r == ResourceInode {
		exhausted = OutOfInodesErr
	}
	return 0, &Error{Kind: KindExhausted, Op: op, Err: exhausted}
}

// Free clears the bit of resource n. Freeing a free resource is a no-op.
func (a *Allocator) Free(r Resource, n uint64) error {
	op := fmt.Sprintf("freeing %s `%d`", r, n)
	group, pos, err := a.position(r, n)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}

	bitmapBlock, _ := a.bitmap(r, group)
	bitmap, err := a.readBitmap(bitmapBlock)
	if err != nil {
		return &Error{Kind: KindIO, Op: op, Block: bitmapBlock, Err: err}
	}
	setLow(bitmap, pos)
	if err := a.writeBitmap(bitmapBlock, bitmap); err != nil {
		return &Error{Kind: KindIO, Op: op, Block: bitmapBlock, Err: err}
	}
	return nil
}

// IsAllocated reports whether the bit of resource n is set on disk.
func (a *Allocator) IsAllocated(r Resource, n uint64) (bool, error) {
	op := fmt.Sprintf("checking %s `%d`", r, n)
	group, pos, err := a.position(r, n)
	if err != nil {
		return false, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	bitmapBlock, _ := a.bitmap(r, group)
	bitmap, err := a.readBitmap(bitmapBlock)
	if err != nil {
		return false, &Error{Kind: KindIO, Op: op, Block: bitmapBlock, Err: err}
	}
	return isSet(bitmap, pos), nil
}

// bitmap returns the bitmap block of kind r for group and the number of
// bits in it that map to real resources.
func (a *Allocator) bitmap(r Resource, group GroupID) (Block, uint64) {
	gd := &a.Geometry.Groups[group]
	if r == ResourceInode {
		return gd.InodeBitmap, a.Geometry.InodesInGroup(group)
	}
	return gd.BlockBitmap, a.Geometry.BlocksInGroup(group)
}

func (a *Allocator) number(r Resource, group GroupID, pos uint64) uint64 {
	if r == ResourceInode {
		return uint64(group)*a.Geometry.InodesPerGroup + pos + 1
	}
	return uint64(a.Geometry.GroupFirstBlock(group)) + pos
}

func (a *Allocator) position(r Resource, n uint64) (GroupID, uint64, error) {
	if r == ResourceInode {
		if !a.Geometry.ValidIno(Ino(n)) {
			return 0, 0, InvalidInoErr
		}
		rel := n - 1
		return GroupID(rel / a.Geometry.InodesPerGroup),
			rel % a.Geometry.InodesPerGroup,
			nil
	}
	if !a.Geometry.ValidBlock(Block(n)) {
		return 0, 0, InvalidBlockErr
	}
	rel := n - uint64(a.Geometry.FirstDataBlock)
	return GroupID(rel / a.Geometry.BlocksPerGroup),
		rel % a.Geometry.BlocksPerGroup,
		nil
}

func (a *Allocator) readBitmap(b Block) ([]byte, error) {
	bitmap := make([]byte, a.Geometry.BlockSize)
	if err := a.Volume.ReadAt(a.Geometry.BlockOffset(b), bitmap); err != nil {
		return nil, fmt.Errorf("reading bitmap block: %w", err)
	}
	return bitmap, nil
}

func (a *Allocator) writeBitmap(b Block, bitmap []byte) error {
	if err := a.Volume.WriteAt(a.Geometry.BlockOffset(b), bitmap); err != nil {
		return fmt.Errorf("writing bitmap block: %w", err)
	}
	return nil
}

// CountFree counts the clear bits of kind r across all groups. The
// superblock and descriptor counters aren't maintained, so this is the
// authoritative figure.
func (a *Allocator) CountFree(r Resource) (uint64, error) {
	var free uint64
	for group := GroupID(0); uint64(group) < a.Geometry.GroupCount; group++ {
		bitmapBlock, limit := a.bitmap(r, group)
		bitmap, err := a.readBitmap(bitmapBlock)
		if err != nil {
			return 0, &Error{
				Kind:  KindIO,
				Op:    fmt.Sprintf("counting free %ss", r),
				Block: bitmapBlock,
				Err:   err,
			}
		}
		for pos := uint64(0); pos < limit; pos++ {
			if !isSet(bitmap, pos) {
				free++
			}
		}
	}
	return free, nil
}
