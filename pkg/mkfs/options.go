package mkfs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/weberc2/ext2img/pkg/math"
	. "github.com/weberc2/ext2img/pkg/types"
)

const (
	DefaultStartSector uint32 = 2048
	defaultInodeRatio  Byte   = 4096
)

// Options describes the filesystem Format lays down. Zero values select
// defaults.
type Options struct {
	// Partition is the partition table slot to describe the filesystem in.
	Partition int

	// StartSector is the first sector of the partition.
	StartSector uint32

	BlockSize   Byte
	BlocksCount uint64

	// BlocksPerGroup defaults to the number of bits in one block.
	BlocksPerGroup uint64

	// InodesPerGroup defaults to one inode per 4KiB of the first group,
	// rounded up to fill whole inode table blocks.
	InodesPerGroup uint64

	InodeSize Byte

	// FirstIno is the first inode not reserved for the filesystem. Inodes
	// below it, the root directory included, are marked in use.
	FirstIno Ino

	VolumeName string
	UUID       uuid.UUID

	// Now stamps the superblock and the root directory.
	Now uint32
}

// ImageSize is the number of bytes a disk image needs to hold the partition
// described by opts.
func ImageSize(opts Options) (Byte, error) {
	if err := opts.defaults(); err != nil {
		return 0, err
	}
	return Byte(opts.StartSector)*SectorSize + Byte(opts.BlocksCount)*opts.BlockSize, nil
}

func (opts *Options) defaults() error {
	if opts.StartSector == 0 {
		opts.StartSector = DefaultStartSector
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = BaseBlockSize
	}
	if opts.BlockSize < BaseBlockSize ||
		opts.BlockSize > BaseBlockSize<<6 ||
		opts.BlockSize&(opts.BlockSize-1) != 0 {
		return fmt.Errorf(
			"block size `%d` is not a power of two in `[1024, 65536]`",
			opts.BlockSize,
		)
	}
	if opts.BlocksPerGroup == 0 {
		opts.BlocksPerGroup = uint64(opts.BlockSize) * 8
	}
	if opts.BlocksPerGroup > uint64(opts.BlockSize)*8 {
		return fmt.Errorf(
			"blocks per group `%d` exceeds the `%d` bits of a bitmap block",
			opts.BlocksPerGroup,
			uint64(opts.BlockSize)*8,
		)
	}
	if opts.InodeSize == 0 {
		opts.InodeSize = DefaultInodeSize
	}
	if opts.InodeSize < DefaultInodeSize ||
		opts.InodeSize > opts.BlockSize ||
		opts.InodeSize&(opts.InodeSize-1) != 0 {
		return fmt.Errorf("inode size `%d` is invalid", opts.InodeSize)
	}
	if opts.BlocksCount == 0 {
		return fmt.Errorf("blocks count is required")
	}
	if opts.InodesPerGroup == 0 {
		perBlock := uint64(opts.BlockSize / opts.InodeSize)
		groupBlocks := math.Min(opts.BlocksPerGroup, opts.BlocksCount)
		wanted := uint64(Byte(groupBlocks) * opts.BlockSize / defaultInodeRatio)
		opts.InodesPerGroup = math.AlignUp(math.Max(wanted, 16), perBlock)
	}
	if opts.InodesPerGroup > uint64(opts.BlockSize)*8 {
		return fmt.Errorf(
			"inodes per group `%d` exceeds the `%d` bits of a bitmap block",
			opts.InodesPerGroup,
			uint64(opts.BlockSize)*8,
		)
	}
	if opts.FirstIno == 0 {
		opts.FirstIno = DefaultFirstIno
	}
	if opts.FirstIno <= InoRoot || uint64(opts.FirstIno-1) > opts.InodesPerGroup {
		return fmt.Errorf(
			"first inode `%d` must be above the root inode and leave the "+
				"reserved inodes within the first group of `%d`",
			opts.FirstIno,
			opts.InodesPerGroup,
		)
	}
	if opts.UUID == uuid.Nil {
		opts.UUID = uuid.New()
	}
	if len(opts.VolumeName) > 16 {
		return fmt.Errorf("volume name `%s` exceeds 16 bytes", opts.VolumeName)
	}
	return nil
}

func (opts *Options) firstDataBlock() Block {
	if opts.BlockSize == BaseBlockSize {
		return 1
	}
	return 0
}
