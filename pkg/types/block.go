package types

type Block uint64

const (
	BlockNil         Block = 0
	BlockPointerSize Byte  = 4

	DirectBlocksCount   = 12
	SinglyIndirectSlot  = DirectBlocksCount
	DoublyIndirectSlot  = SinglyIndirectSlot + 1
	TriplyIndirectSlot  = DoublyIndirectSlot + 1
	BlockPointersCount  = TriplyIndirectSlot + 1
)
