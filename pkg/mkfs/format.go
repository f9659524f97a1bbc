// Package mkfs writes a partition table entry and an empty ext2 filesystem
// into a disk image.
package mkfs

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/directory"
	"github.com/weberc2/ext2img/pkg/encode"
	"github.com/weberc2/ext2img/pkg/io"
	"github.com/weberc2/ext2img/pkg/math"
	. "github.com/weberc2/ext2img/pkg/types"
)

// group is the block layout of one block group. Every group carries a
// copy of the superblock and the descriptor table.
type group struct {
	first       Block
	blocks      uint64
	desc        GroupDesc
	tableBlocks uint64
}

func (g *group) overhead(gdtBlocks uint64) uint64 {
	return 1 + gdtBlocks + 2 + g.tableBlocks
}

type layout struct {
	opts      Options
	sb        Superblock
	groups    []group
	gdtBlocks uint64
	rootBlock Block
}

// Format writes the partition table entry and a fresh filesystem to disk.
// The rest of the boot sector is preserved.
func Format(disk io.Volume, opts Options) (Superblock, error) {
	if err := opts.defaults(); err != nil {
		return Superblock{}, fmt.Errorf("formatting: %w", err)
	}
	l, err := plan(opts)
	if err != nil {
		return Superblock{}, fmt.Errorf("formatting: %w", err)
	}
	if err := l.write(disk); err != nil {
		return Superblock{}, fmt.Errorf("formatting: %w", err)
	}
	return l.sb, nil
}

func plan(opts Options) (*layout, error) {
	fdb := opts.firstDataBlock()
	tableBlocks := math.DivRoundUp(
		opts.InodesPerGroup*uint64(opts.InodeSize),
		uint64(opts.BlockSize),
	)
	if opts.BlocksCount <= uint64(fdb) {
		return nil, fmt.Errorf("blocks count `%d` is too small", opts.BlocksCount)
	}

	l := layout{opts: opts}
	blocks := opts.BlocksCount
	for {
		count := math.DivRoundUp(blocks-uint64(fdb), opts.BlocksPerGroup)
		l.gdtBlocks = math.DivRoundUp(
			count*uint64(GroupDescSize),
			uint64(opts.BlockSize),
		)
		last := (blocks - uint64(fdb)) - (count-1)*opts.BlocksPerGroup
		// a trailing group too small for its own metadata and one data
		// block is dropped
		if last > 1+l.gdtBlocks+2+tableBlocks || count == 1 {
			l.groups = make([]group, count)
			break
		}
		blocks -= last
	}

	for i := range l.groups {
		g := &l.groups[i]
		g.first = fdb + Block(uint64(i)*opts.BlocksPerGroup)
		g.blocks = math.Min(opts.BlocksPerGroup, blocks-uint64(g.first))
		g.tableBlocks = tableBlocks
		g.desc.BlockBitmap = g.first + 1 + Block(l.gdtBlocks)
		g.desc.InodeBitmap = g.desc.BlockBitmap + 1
		g.desc.InodeTable = g.desc.InodeBitmap + 1
		if g.overhead(l.gdtBlocks) >= g.blocks {
			return nil, fmt.Errorf(
				"group `%d` of `%d` blocks can't hold its `%d` metadata blocks",
				i,
				g.blocks,
				g.overhead(l.gdtBlocks),
			)
		}
	}
	l.rootBlock = l.groups[0].first + Block(l.groups[0].overhead(l.gdtBlocks))

	inodesCount := uint64(len(l.groups)) * opts.InodesPerGroup
	l.sb = Superblock{
		InodesCount:     uint32(inodesCount),
		BlocksCount:     uint32(blocks),
		FirstDataBlock:  uint32(fdb),
		LogBlockSize:    logBlockSize(opts.BlockSize),
		BlocksPerGroup:  uint32(opts.BlocksPerGroup),
		InodesPerGroup:  uint32(opts.InodesPerGroup),
		MTime:           0,
		WTime:           opts.Now,
		Magic:           SuperblockMagic,
		State:           StateClean,
		RevLevel:        RevLevelDynamic,
		FirstIno:        uint32(opts.FirstIno),
		InodeSize:       uint16(opts.InodeSize),
		FeatureIncompat: FeatureIncompatFileType,
		UUID:            opts.UUID,
		VolumeName:      opts.VolumeName,
	}

	var freeBlocks, freeInodes uint64
	for i := range l.groups {
		g := &l.groups[i]
		usedBlocks := g.overhead(l.gdtBlocks)
		usedInodes := uint64(0)
		if i == 0 {
			usedBlocks++
			usedInodes = uint64(opts.FirstIno - 1)
			g.desc.UsedDirsCount = 1
		}
		g.desc.FreeBlocksCount = uint16(g.blocks - usedBlocks)
		g.desc.FreeInodesCount = uint16(opts.InodesPerGroup - usedInodes)
		freeBlocks += g.blocks - usedBlocks
		freeInodes += opts.InodesPerGroup - usedInodes
	}
	l.sb.FreeBlocksCount = uint32(freeBlocks)
	l.sb.FreeInodesCount = uint32(freeInodes)
	return &l, nil
}

func logBlockSize(blockSize Byte) uint32 {
	var log uint32
	for BaseBlockSize<<log < blockSize {
		log++
	}
	return log
}

func (l *layout) write(disk io.Volume) error {
	if err := l.writePartitionEntry(disk); err != nil {
		return err
	}

	volume := io.NewOffsetVolume(
		disk,
		Byte(l.opts.StartSector)*SectorSize,
	)
	sbBytes := make([]byte, SuperblockSize)
	if err := encode.EncodeSuperblock(&l.sb, sbBytes); err != nil {
		return fmt.Errorf("encoding superblock: %w", err)
	}
	descs := make([]GroupDesc, len(l.groups))
	for i := range l.groups {
		descs[i] = l.groups[i].desc
	}
	gdt := make([]byte, Byte(l.gdtBlocks)*l.opts.BlockSize)
	if err := encode.EncodeGroupDescTable(descs, gdt); err != nil {
		return fmt.Errorf("encoding group descriptor table: %w", err)
	}

	for i := range l.groups {
		if err := l.writeGroup(volume, GroupID(i), sbBytes, gdt); err != nil {
			return fmt.Errorf("writing group `%d`: %w", i, err)
		}
	}
	return l.writeRoot(volume)
}

func (l *layout) writePartitionEntry(disk io.Volume) error {
	bootSector := make([]byte, SectorSize)
	if err := disk.ReadAt(0, bootSector); err != nil {
		return fmt.Errorf("reading boot sector: %w", err)
	}
	sectors := Byte(l.sb.BlocksCount) * l.opts.BlockSize / SectorSize
	if err := encode.EncodePartitionEntry(
		&PartitionEntry{
			Type:        PartitionTypeLinux,
			StartSector: l.opts.StartSector,
			SectorCount: uint32(sectors),
		},
		bootSector,
		l.opts.Partition,
	); err != nil {
		return fmt.Errorf("encoding partition entry: %w", err)
	}
	if err := disk.WriteAt(0, bootSector); err != nil {
		return fmt.Errorf("writing boot sector: %w", err)
	}
	return nil
}

func (l *layout) blockOffset(b Block) Byte { return Byte(b) * l.opts.BlockSize }

func (l *layout) writeGroup(
	volume io.Volume,
	id GroupID,
	sbBytes []byte,
	gdt []byte,
) error {
	g := &l.groups[id]
	bs := l.opts.BlockSize

	sbOffset := l.blockOffset(g.first)
	if id == 0 {
		sbOffset = SuperblockOffset
	}
	if err := volume.WriteAt(sbOffset, sbBytes); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	if err := volume.WriteAt(l.blockOffset(g.first+1), gdt); err != nil {
		return fmt.Errorf("writing group descriptor table: %w", err)
	}

	blockBitmap := make([]byte, bs)
	used := g.overhead(l.gdtBlocks)
	if id == 0 {
		used++
	}
	setBits(blockBitmap, 0, used)
	setBits(blockBitmap, g.blocks, uint64(bs)*8)
	if err := volume.WriteAt(
		l.blockOffset(g.desc.BlockBitmap),
		blockBitmap,
	); err != nil {
		return fmt.Errorf("writing block bitmap: %w", err)
	}

	inodeBitmap := make([]byte, bs)
	if id == 0 {
		setBits(inodeBitmap, 0, uint64(l.opts.FirstIno-1))
	}
	setBits(inodeBitmap, l.opts.InodesPerGroup, uint64(bs)*8)
	if err := volume.WriteAt(
		l.blockOffset(g.desc.InodeBitmap),
		inodeBitmap,
	); err != nil {
		return fmt.Errorf("writing inode bitmap: %w", err)
	}

	table := make([]byte, Byte(g.tableBlocks)*bs)
	if err := volume.WriteAt(l.blockOffset(g.desc.InodeTable), table); err != nil {
		return fmt.Errorf("writing inode table: %w", err)
	}
	return nil
}

func (l *layout) writeRoot(volume io.Volume) error {
	bs := l.opts.BlockSize
	block := make([]byte, bs)
	if err := directory.Bootstrap(block, InoRoot, InoRoot); err != nil {
		return fmt.Errorf("writing root directory: %w", err)
	}
	if err := volume.WriteAt(l.blockOffset(l.rootBlock), block); err != nil {
		return fmt.Errorf("writing root directory: %w", err)
	}

	root := Inode{
		Ino:        InoRoot,
		Mode:       DefaultDirMode,
		Size:       bs,
		LinksCount: 2,
		Sectors:    uint32(bs / SectorSize),
	}
	root.Touch(l.opts.Now)
	root.Blocks[0] = l.rootBlock

	record := make([]byte, l.opts.InodeSize)
	if err := encode.EncodeInode(&root, record); err != nil {
		return fmt.Errorf("encoding root inode: %w", err)
	}
	offset := l.blockOffset(l.groups[0].desc.InodeTable) +
		Byte(InoRoot-1)*l.opts.InodeSize
	if err := volume.WriteAt(offset, record); err != nil {
		return fmt.Errorf("writing root inode: %w", err)
	}
	return nil
}

// setBits sets bits [from, to) of bitmap, least significant bit first.
func setBits(bitmap []byte, from, to uint64) {
	for bit := from; bit < to; bit++ {
		bitmap[bit/8] |= 1 << (bit % 8)
	}
}
