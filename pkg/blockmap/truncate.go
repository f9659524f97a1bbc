package blockmap

import (
	"github.com/weberc2/ext2img/pkg/encode"
	. "github.com/weberc2/ext2img/pkg/types"
)

// Truncate frees every data block at logical index from or later, along
// with pointer tables left empty, and clears the inode's pointers to them.
// Truncate(inode, 0) releases everything the inode owns.
func (m *Mapper) Truncate(inode *Inode, from Block) error {
	c := m.capacities()
	for slot := range inode.Blocks {
		ptr := inode.Blocks[slot]
		if ptr == BlockNil {
			continue
		}

		lvl, base := slotLevel(slot), c.slotBase(slot)
		if lvl == levelDirect {
			if base >= from {
				if err := m.free(inode, ptr); err != nil {
					return err
				}
				inode.Blocks[slot] = BlockNil
			}
			continue
		}

		empty, err := m.truncateTable(inode, ptr, lvl, 0, base, from)
		if err != nil {
			return err
		}
		if empty {
			if err := m.free(inode, ptr); err != nil {
				return err
			}
			inode.Blocks[slot] = BlockNil
		}
	}
	return nil
}

// truncateTable truncates the pointer table b, found at depth within a tree
// of level lvl and whose first pointer maps logical block base. It reports
// whether the table no longer points anywhere, in which case the caller
// frees it rather than the table being rewritten.
func (m *Mapper) truncateTable(
	inode *Inode,
	b Block,
	lvl level,
	depth int,
	base Block,
	from Block,
) (bool, error) {
	table, err := m.readTable(inode, b)
	if err != nil {
		return false, err
	}

	c := m.capacities()
	span := c.span(lvl, depth)
	dirty, empty := false, true
	for i := Block(0); i < c.singly; i++ {
		ptr, err := encode.GetPointer(table, i)
		if err != nil {
			return false, m.corrupt(inode, b, err)
		}
		if ptr == BlockNil {
			continue
		}

		start := base + i*span
		if start+span <= from {
			empty = false
			continue
		}

		if depth < int(lvl) {
			childEmpty, err := m.truncateTable(
				inode,
				ptr,
				lvl,
				depth+1,
				start,
				from,
			)
			if err != nil {
				return false, err
			}
			if !childEmpty {
				empty = false
				continue
			}
		}

		if err := m.free(inode, ptr); err != nil {
			return false, err
		}
		if err := encode.PutPointer(table, i, BlockNil); err != nil {
			return false, m.corrupt(inode, b, err)
		}
		dirty = true
	}

	if dirty && !empty {
		if err := m.writeTable(inode, b, table); err != nil {
			return false, err
		}
	}
	return empty, nil
}
