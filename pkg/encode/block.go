package encode

import (
	"fmt"

	. "github.com/weberc2/ext2img/pkg/types"
)

var blockPointer = field{"block_pointer", 0, BlockPointerSize}

// PointersPerBlock is the number of block pointers an indirect block of
// blockSize bytes holds.
func PointersPerBlock(blockSize Byte) Block {
	return Block(blockSize / BlockPointerSize)
}

func pointerField(p []byte, index Block) (field, error) {
	f := blockPointer.at(Byte(index) * BlockPointerSize)
	if f.end() > Byte(len(p)) {
		return field{}, fmt.Errorf(
			"block pointer index `%d` outside indirect block of `%d` bytes",
			index,
			len(p),
		)
	}
	return f, nil
}

// GetPointer reads the index-th block pointer of an indirect block.
func GetPointer(p []byte, index Block) (Block, error) {
	f, err := pointerField(p, index)
	if err != nil {
		return BlockNil, err
	}
	return f.getBlock(p), nil
}

// PutPointer writes the index-th block pointer of an indirect block.
func PutPointer(p []byte, index Block, b Block) error {
	f, err := pointerField(p, index)
	if err != nil {
		return err
	}
	f.putBlock(p, b)
	return nil
}
