// Package geometry locates an ext2 filesystem inside a partitioned disk
// image and derives the layout every other component addresses it by.
package geometry

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/encode"
	"github.com/weberc2/ext2img/pkg/io"
	"github.com/weberc2/ext2img/pkg/math"
	. "github.com/weberc2/ext2img/pkg/types"
)

const maxLogBlockSize = 6

type Geometry struct {
	Partition      PartitionEntry
	Superblock     Superblock
	BlockSize      Byte
	InodeSize      Byte
	GroupCount     uint64
	InodesCount    uint64
	BlocksCount    uint64
	BlocksPerGroup uint64
	InodesPerGroup uint64
	FirstDataBlock Block
	FirstIno       Ino

	// ReadOnly is set when the superblock advertises read-only-compatible
	// features this package doesn't understand.
	ReadOnly bool

	Groups []GroupDesc
}

type ErrBadMagic struct {
	Found uint16
}

func (err ErrBadMagic) Error() string {
	return fmt.Sprintf(
		"bad magic: wanted `%#04x`; found `%#04x`",
		SuperblockMagic,
		err.Found,
	)
}

type ErrIncompatibleFeatures struct {
	Found uint32
}

func (err ErrIncompatibleFeatures) Error() string {
	return fmt.Sprintf(
		"volume uses incompatible features: `%#04x`",
		err.Found,
	)
}

type ErrBadGeometry struct {
	Field  string
	Reason string
}

func (err ErrBadGeometry) Error() string {
	return fmt.Sprintf("bad superblock `%s`: %s", err.Field, err.Reason)
}

// Resolve reads the boot sector of disk, the superblock of the partition at
// index partition and the group descriptor table that follows it.
func Resolve(disk io.Volume, partition int) (*Geometry, error) {
	var g Geometry
	if err := g.resolve(disk, partition); err != nil {
		return nil, &Error{
			Kind: KindGeometry,
			Op:   fmt.Sprintf("resolving geometry of partition `%d`", partition),
			Err:  err,
		}
	}
	return &g, nil
}

func (g *Geometry) resolve(disk io.Volume, partition int) error {
	bootSector := make([]byte, SectorSize)
	if err := disk.ReadAt(0, bootSector); err != nil {
		return fmt.Errorf("reading boot sector: %w", err)
	}
	if err := encode.DecodePartitionEntry(
		&g.Partition,
		bootSector,
		partition,
	); err != nil {
		return fmt.Errorf("decoding partition table: %w", err)
	}
	if g.Partition.SectorCount == 0 {
		return fmt.Errorf("partition `%d` is empty", partition)
	}

	volume := io.NewOffsetVolume(disk, g.Partition.Offset())
	sbBytes := make([]byte, SuperblockSize)
	if err := volume.ReadAt(SuperblockOffset, sbBytes); err != nil {
		return fmt.Errorf("reading superblock: %w", err)
	}
	if err := encode.DecodeSuperblock(&g.Superblock, sbBytes); err != nil {
		return fmt.Errorf("decoding superblock: %w", err)
	}
	if err := g.derive(); err != nil {
		return fmt.Errorf("validating superblock: %w", err)
	}

	table := make([]byte, Byte(g.GroupCount)*GroupDescSize)
	if err := volume.ReadAt(g.GroupTableOffset(), table); err != nil {
		return fmt.Errorf("reading group descriptor table: %w", err)
	}
	groups, err := encode.DecodeGroupDescTable(table, g.GroupCount)
	if err != nil {
		return fmt.Errorf("decoding group descriptor table: %w", err)
	}
	g.Groups = groups
	for i := range g.Groups {
		if err := g.checkGroup(GroupID(i)); err != nil {
			return err
		}
	}
	return nil
}

func (g *Geometry) derive() error {
	sb := &g.Superblock
	if sb.Magic != SuperblockMagic {
		return ErrBadMagic{sb.Magic}
	}
	if sb.RevLevel >= RevLevelDynamic {
		if unsupported := sb.FeatureIncompat & ^SupportedIncompatFeatures; unsupported != 0 {
			return ErrIncompatibleFeatures{unsupported}
		}
		g.ReadOnly = sb.FeatureROCompat & ^SupportedROCompatFeatures != 0
	}
	if sb.LogBlockSize > maxLogBlockSize {
		return ErrBadGeometry{
			"s_log_block_size",
			fmt.Sprintf("`%d` exceeds `%d`", sb.LogBlockSize, maxLogBlockSize),
		}
	}

	g.BlockSize = sb.BlockSize()
	g.InodeSize = sb.RecordSize()
	g.BlocksCount = uint64(sb.BlocksCount)
	g.InodesCount = uint64(sb.InodesCount)
	g.BlocksPerGroup = uint64(sb.BlocksPerGroup)
	g.InodesPerGroup = uint64(sb.InodesPerGroup)
	g.FirstDataBlock = Block(sb.FirstDataBlock)
	g.FirstIno = sb.FirstInode()

	bitsPerBitmap := uint64(g.BlockSize) * 8
	switch {
	case g.BlocksPerGroup == 0 || g.BlocksPerGroup > bitsPerBitmap:
		return ErrBadGeometry{
			"s_blocks_per_group",
			fmt.Sprintf("`%d` not in `[1, %d]`", g.BlocksPerGroup, bitsPerBitmap),
		}
	case g.InodesPerGroup == 0 || g.InodesPerGroup > bitsPerBitmap:
		return ErrBadGeometry{
			"s_inodes_per_group",
			fmt.Sprintf("`%d` not in `[1, %d]`", g.InodesPerGroup, bitsPerBitmap),
		}
	case g.InodeSize < encode.InodeMinSize ||
		g.InodeSize > g.BlockSize ||
		g.InodeSize&(g.InodeSize-1) != 0:
		return ErrBadGeometry{
			"s_inode_size",
			fmt.Sprintf("`%d` is not a power of two in `[128, %d]`", g.InodeSize, g.BlockSize),
		}
	case g.BlocksCount <= uint64(g.FirstDataBlock):
		return ErrBadGeometry{
			"s_blocks_count",
			fmt.Sprintf("`%d` leaves no data blocks", g.BlocksCount),
		}
	case Byte(g.BlocksCount)*g.BlockSize > g.Partition.Size():
		return ErrBadGeometry{
			"s_blocks_count",
			fmt.Sprintf(
				"`%d` blocks of `%d` bytes exceed partition of `%d` bytes",
				g.BlocksCount,
				g.BlockSize,
				g.Partition.Size(),
			),
		}
	}

	g.GroupCount = math.DivRoundUp(
		g.BlocksCount-uint64(g.FirstDataBlock),
		g.BlocksPerGroup,
	)
	// every group, the last included, has to hold at least one inode
	minInodes := (g.GroupCount-1)*g.InodesPerGroup + 1
	maxInodes := g.GroupCount * g.InodesPerGroup
	if g.InodesCount < minInodes || g.InodesCount > maxInodes {
		return ErrBadGeometry{
			"s_inodes_count",
			fmt.Sprintf(
				"`%d` not in `[%d, %d]`",
				g.InodesCount,
				minInodes,
				maxInodes,
			),
		}
	}
	return nil
}

func (g *Geometry) checkGroup(group GroupID) error {
	gd := &g.Groups[group]
	tableBlocks := Block(math.DivRoundUp(
		Byte(g.InodesPerGroup)*g.InodeSize,
		g.BlockSize,
	))
	for _, check := range [...]struct {
		name  string
		block Block
		count Block
	}{
		{"block bitmap", gd.BlockBitmap, 1},
		{"inode bitmap", gd.InodeBitmap, 1},
		{"inode table", gd.InodeTable, tableBlocks},
	} {
		if !g.ValidBlock(check.block) ||
			!g.ValidBlock(check.block+check.count-1) {
			return &Error{
				Kind:  KindCorrupt,
				Op:    fmt.Sprintf("checking group `%d` %s", group, check.name),
				Block: check.block,
				Err:   InvalidBlockErr,
			}
		}
	}
	return nil
}

// GroupTableOffset is the partition-relative offset of the group descriptor
// table: the first block boundary at or after the end of the superblock.
func (g *Geometry) GroupTableOffset() Byte {
	return math.AlignUp(SuperblockOffset+SuperblockSize, g.BlockSize)
}

// Offset is the absolute offset in the disk image of a partition-relative
// offset.
func (g *Geometry) Offset(local Byte) Byte {
	return g.Partition.Offset() + local
}

// BlockOffset is the absolute offset in the disk image of block b.
func (g *Geometry) BlockOffset(b Block) Byte {
	return g.Offset(Byte(b) * g.BlockSize)
}

func (g *Geometry) ValidBlock(b Block) bool {
	return b >= g.FirstDataBlock && uint64(b) < g.BlocksCount
}

func (g *Geometry) ValidIno(ino Ino) bool {
	return ino != InoNil && uint64(ino) <= g.InodesCount
}

// BlocksInGroup is the number of blocks group manages; the last group may
// be short.
func (g *Geometry) BlocksInGroup(group GroupID) uint64 {
	start := uint64(group) * g.BlocksPerGroup
	return math.Min(g.BlocksPerGroup, g.BlocksCount-uint64(g.FirstDataBlock)-start)
}

// InodesInGroup is the number of inodes group manages; the last group may
// be short when the inode count isn't a multiple of inodes per group.
func (g *Geometry) InodesInGroup(group GroupID) uint64 {
	start := uint64(group) * g.InodesPerGroup
	if start >= g.InodesCount {
		return 0
	}
	return math.Min(g.InodesPerGroup, g.InodesCount-start)
}

// GroupFirstBlock is the first block number managed by group.
func (g *Geometry) GroupFirstBlock(group GroupID) Block {
	return g.FirstDataBlock + Block(uint64(group)*g.BlocksPerGroup)
}

// PointersPerBlock is the number of entries in an indirect block.
func (g *Geometry) PointersPerBlock() Block {
	return encode.PointersPerBlock(g.BlockSize)
}
