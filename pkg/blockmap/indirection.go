package blockmap

import (
	"fmt"

	. "github.com/weberc2/ext2img/pkg/types"
)

type level int

const (
	levelDirect level = iota - 1
	levelSingly
	levelDoubly
	levelTriply
	levelOutOfRange
)

func (level level) String() string {
	switch level {
	case levelDirect:
		return "direct"
	case levelSingly:
		return "singly indirect"
	case levelDoubly:
		return "doubly indirect"
	case levelTriply:
		return "triply indirect"
	case levelOutOfRange:
		return "out of range"
	default:
		panic(fmt.Sprintf("invalid level: %d", level))
	}
}

// indirection is the path from an inode to one logical block: the inode
// slot to start from and, for indirect levels, the index to follow in each
// pointer table, outermost first.
type indirection struct {
	level level
	slot  int
	path  [levelOutOfRange]Block
}

func (ind *indirection) indices() []Block {
	return ind.path[:ind.level+1]
}

// singly
// |____
// | | |

// doubly
// |______________
// |____  |____  |____
// | | |  | | |  | | |

// triply
// |____________________________________________
// |______________       |______________       |______________
// |____  |____  |____   |____  |____  |____   |____  |____  |____
// | | |  | | |  | | |   | | |  | | |  | | |   | | |  | | |  | | |
type capacities struct {
	singly Block
	doubly Block
	triply Block
}

func newCapacities(pointersPerBlock Block) capacities {
	return capacities{
		singly: pointersPerBlock,
		doubly: pointersPerBlock * pointersPerBlock,
		triply: pointersPerBlock * pointersPerBlock * pointersPerBlock,
	}
}

// max is one past the largest addressable logical block.
func (c capacities) max() Block {
	return DirectBlocksCount + c.singly + c.doubly + c.triply
}

// span is the number of logical blocks reachable through one pointer in a
// table at depth within an indirect tree of the given level.
func (c capacities) span(level level, depth int) Block {
	span := Block(1)
	for i := depth; i < int(level); i++ {
		span *= c.singly
	}
	return span
}

func (ind *indirection) fromLogical(logical Block, c capacities) error {
	ppb := c.singly
	if logical < DirectBlocksCount {
		*ind = indirection{level: levelDirect, slot: int(logical)}
		return nil
	}

	base := logical - DirectBlocksCount
	if base < c.singly {
		*ind = indirection{
			level: levelSingly,
			slot:  SinglyIndirectSlot,
			path:  [levelOutOfRange]Block{base},
		}
		return nil
	}

	base -= c.singly
	if base < c.doubly {
		*ind = indirection{
			level: levelDoubly,
			slot:  DoublyIndirectSlot,
			path:  [levelOutOfRange]Block{base / ppb, base % ppb},
		}
		return nil
	}

	base -= c.doubly
	if base < c.triply {
		*ind = indirection{
			level: levelTriply,
			slot:  TriplyIndirectSlot,
			path: [levelOutOfRange]Block{
				base / c.doubly,
				(base / ppb) % ppb,
				base % ppb,
			},
		}
		return nil
	}

	*ind = indirection{level: levelOutOfRange}
	return fmt.Errorf(
		"logical block `%d` (max `%d`): %w",
		logical,
		c.max()-1,
		BlockOutOfRangeErr,
	)
}

// slotLevel is the indirection level of the tree hanging off inode slot.
func slotLevel(slot int) level {
	switch {
	case slot < DirectBlocksCount:
		return levelDirect
	case slot == SinglyIndirectSlot:
		return levelSingly
	case slot == DoublyIndirectSlot:
		return levelDoubly
	default:
		return levelTriply
	}
}

// slotBase is the first logical block reachable through inode slot.
func (c capacities) slotBase(slot int) Block {
	switch slotLevel(slot) {
	case levelDirect:
		return Block(slot)
	case levelSingly:
		return DirectBlocksCount
	case levelDoubly:
		return DirectBlocksCount + c.singly
	default:
		return DirectBlocksCount + c.singly + c.doubly
	}
}
