// Package blockmap translates logical block indexes of an inode to physical
// blocks through the direct pointers and the singly, doubly and triply
// indirect pointer tables.
package blockmap

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/alloc"
	"github.com/weberc2/ext2img/pkg/encode"
	"github.com/weberc2/ext2img/pkg/geometry"
	"github.com/weberc2/ext2img/pkg/io"
	. "github.com/weberc2/ext2img/pkg/types"
)

// Mapper changes the pointer tables on disk immediately but only updates
// the pointers and sector count held in the Inode it is given; persisting
// the inode is the caller's job.
type Mapper struct {
	Volume    io.Volume
	Geometry  *geometry.Geometry
	Allocator *alloc.Allocator
}

func (m *Mapper) capacities() capacities {
	return newCapacities(m.Geometry.PointersPerBlock())
}

// MaxBlocks is the number of logical blocks an inode can address.
func (m *Mapper) MaxBlocks() Block { return m.capacities().max() }

// Map returns the physical block holding logical block index logical, or
// BlockNil if it is a hole.
func (m *Mapper) Map(inode *Inode, logical Block) (Block, error) {
	var ind indirection
	if err := ind.fromLogical(logical, m.capacities()); err != nil {
		return BlockNil, &Error{
			Kind: KindValidation,
			Op:   "mapping block",
			Ino:  inode.Ino,
			Err:  err,
		}
	}

	ptr := inode.Blocks[ind.slot]
	for _, index := range ind.indices() {
		if ptr == BlockNil {
			return BlockNil, nil
		}
		table, err := m.readTable(inode, ptr)
		if err != nil {
			return BlockNil, err
		}
		if ptr, err = encode.GetPointer(table, index); err != nil {
			return BlockNil, m.corrupt(inode, ptr, err)
		}
	}
	if ptr != BlockNil && !m.Geometry.ValidBlock(ptr) {
		return BlockNil, m.corrupt(inode, ptr, InvalidBlockErr)
	}
	return ptr, nil
}

// Ensure returns the physical block for logical block index logical,
// allocating it and any missing pointer tables on the way. New pointer
// tables are zeroed before they are linked. The returned bool reports
// whether the data block itself was allocated by this call.
func (m *Mapper) Ensure(inode *Inode, logical Block) (Block, bool, error) {
	var ind indirection
	if err := ind.fromLogical(logical, m.capacities()); err != nil {
		return BlockNil, false, &Error{
			Kind: KindValidation,
			Op:   "ensuring block",
			Ino:  inode.Ino,
			Err:  err,
		}
	}

	indices := ind.indices()
	slot := &inode.Blocks[ind.slot]
	allocated := false
	if *slot == BlockNil {
		b, err := m.allocate(inode, len(indices) > 0)
		if err != nil {
			return BlockNil, false, err
		}
		*slot = b
		allocated = len(indices) == 0
	}

	ptr := *slot
	for depth, index := range indices {
		table, err := m.readTable(inode, ptr)
		if err != nil {
			return BlockNil, false, err
		}
		next, err := encode.GetPointer(table, index)
		if err != nil {
			return BlockNil, false, m.corrupt(inode, ptr, err)
		}
		if next == BlockNil {
			leaf := depth == len(indices)-1
			if next, err = m.allocate(inode, !leaf); err != nil {
				return BlockNil, false, err
			}
			if err := encode.PutPointer(table, index, next); err != nil {
				return BlockNil, false, m.corrupt(inode, ptr, err)
			}
			if err := m.writeTable(inode, ptr, table); err != nil {
				return BlockNil, false, err
			}
			allocated = leaf
		}
		ptr = next
	}
	return ptr, allocated, nil
}

// allocate claims a block for inode and accounts for it in the inode's
// sector count. Pointer tables are zeroed on disk.
func (m *Mapper) allocate(inode *Inode, table bool) (Block, error) {
	b, err := m.Allocator.AllocateBlock()
	if err != nil {
		return BlockNil, err
	}
	if table {
		if err := m.writeTable(inode, b, make([]byte, m.Geometry.BlockSize)); err != nil {
			return BlockNil, err
		}
	}
	inode.Sectors += m.sectorsPerBlock()
	return b, nil
}

func (m *Mapper) free(inode *Inode, b Block) error {
	if err := m.Allocator.FreeBlock(b); err != nil {
		return err
	}
	if spb := m.sectorsPerBlock(); inode.Sectors >= spb {
		inode.Sectors -= spb
	} else {
		inode.Sectors = 0
	}
	return nil
}

func (m *Mapper) sectorsPerBlock() uint32 {
	return uint32(m.Geometry.BlockSize / SectorSize)
}

func (m *Mapper) readTable(inode *Inode, b Block) ([]byte, error) {
	if !m.Geometry.ValidBlock(b) {
		return nil, m.corrupt(inode, b, InvalidBlockErr)
	}
	table, err := m.Geometry.ReadBlock(m.Volume, b)
	if err != nil {
		return nil, &Error{
			Kind:  KindIO,
			Op:    "reading pointer table",
			Ino:   inode.Ino,
			Block: b,
			Err:   err,
		}
	}
	return table, nil
}

func (m *Mapper) writeTable(inode *Inode, b Block, table []byte) error {
	if err := m.Geometry.WriteBlock(m.Volume, b, table); err != nil {
		return &Error{
			Kind:  KindIO,
			Op:    "writing pointer table",
			Ino:   inode.Ino,
			Block: b,
			Err:   err,
		}
	}
	return nil
}

func (m *Mapper) corrupt(inode *Inode, b Block, err error) error {
	return &Error{
		Kind:  KindCorrupt,
		Op:    "following block pointer",
		Ino:   inode.Ino,
		Block: b,
		Err:   fmt.Errorf("pointer `%d`: %w", b, err),
	}
}
