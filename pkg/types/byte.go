package types

type Byte uint64

const (
	SectorSize    Byte = 512
	BaseBlockSize Byte = 1024
)
