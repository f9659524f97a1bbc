package blockmap

import (
	"github.com/weberc2/ext2img/pkg/encode"
	. "github.com/weberc2/ext2img/pkg/types"
)

type Mapping struct {
	Logical  Block `json:"logical" yaml:"logical"`
	Physical Block `json:"physical" yaml:"physical"`
}

// Layout lists the blocks an inode owns: its data blocks in logical order,
// skipping holes, and its pointer tables in the order they are reached.
type Layout struct {
	Data     []Mapping `json:"data" yaml:"data"`
	Indirect []Block   `json:"indirect" yaml:"indirect"`
}

// Owned is every block in the layout.
func (layout *Layout) Owned() []Block {
	owned := make([]Block, 0, len(layout.Data)+len(layout.Indirect))
	for _, mapping := range layout.Data {
		owned = append(owned, mapping.Physical)
	}
	return append(owned, layout.Indirect...)
}

func (m *Mapper) Layout(inode *Inode) (Layout, error) {
	var layout Layout
	c := m.capacities()
	for slot, ptr := range inode.Blocks {
		if ptr == BlockNil {
			continue
		}
		lvl, base := slotLevel(slot), c.slotBase(slot)
		if lvl == levelDirect {
			layout.Data = append(layout.Data, Mapping{base, ptr})
			continue
		}
		if err := m.layoutTable(inode, &layout, ptr, lvl, 0, base); err != nil {
			return Layout{}, err
		}
	}
	return layout, nil
}

func (m *Mapper) layoutTable(
	inode *Inode,
	layout *Layout,
	b Block,
	lvl level,
	depth int,
	base Block,
) error {
	table, err := m.readTable(inode, b)
	if err != nil {
		return err
	}
	layout.Indirect = append(layout.Indirect, b)

	c := m.capacities()
	span := c.span(lvl, depth)
	for i := Block(0); i < c.singly; i++ {
		ptr, err := encode.GetPointer(table, i)
		if err != nil {
			return m.corrupt(inode, b, err)
		}
		if ptr == BlockNil {
			continue
		}
		start := base + i*span
		if depth == int(lvl) {
			layout.Data = append(layout.Data, Mapping{start, ptr})
			continue
		}
		if err := m.layoutTable(inode, layout, ptr, lvl, depth+1, start); err != nil {
			return err
		}
	}
	return nil
}
