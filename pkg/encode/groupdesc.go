package encode

import (
	. "github.com/weberc2/ext2img/pkg/types"
)

var (
	gdBlockBitmap     = field{"bg_block_bitmap", 0x00, 4}
	gdInodeBitmap     = field{"bg_inode_bitmap", 0x04, 4}
	gdInodeTable      = field{"bg_inode_table", 0x08, 4}
	gdFreeBlocksCount = field{"bg_free_blocks_count", 0x0C, 2}
	gdFreeInodesCount = field{"bg_free_inodes_count", 0x0E, 2}
	gdUsedDirsCount   = field{"bg_used_dirs_count", 0x10, 2}
)

func DecodeGroupDesc(gd *GroupDesc, p []byte) error {
	if err := checkLen("group descriptor", p, GroupDescSize); err != nil {
		return err
	}
	*gd = GroupDesc{
		BlockBitmap:     gdBlockBitmap.getBlock(p),
		InodeBitmap:     gdInodeBitmap.getBlock(p),
		InodeTable:      gdInodeTable.getBlock(p),
		FreeBlocksCount: gdFreeBlocksCount.getU16(p),
		FreeInodesCount: gdFreeInodesCount.getU16(p),
		UsedDirsCount:   gdUsedDirsCount.getU16(p),
	}
	return nil
}

func EncodeGroupDesc(gd *GroupDesc, p []byte) error {
	if err := checkLen("group descriptor", p, GroupDescSize); err != nil {
		return err
	}
	gdBlockBitmap.putBlock(p, gd.BlockBitmap)
	gdInodeBitmap.putBlock(p, gd.InodeBitmap)
	gdInodeTable.putBlock(p, gd.InodeTable)
	gdFreeBlocksCount.putU16(p, gd.FreeBlocksCount)
	gdFreeInodesCount.putU16(p, gd.FreeInodesCount)
	gdUsedDirsCount.putU16(p, gd.UsedDirsCount)
	return nil
}

// DecodeGroupDescTable decodes count consecutive descriptors.
func DecodeGroupDescTable(p []byte, count uint64) ([]GroupDesc, error) {
	if err := checkLen(
		"group descriptor table",
		p,
		Byte(count)*GroupDescSize,
	); err != nil {
		return nil, err
	}
	groups := make([]GroupDesc, count)
	for i := range groups {
		start := Byte(i) * GroupDescSize
		if err := DecodeGroupDesc(&groups[i], p[start:]); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func EncodeGroupDescTable(groups []GroupDesc, p []byte) error {
	if err := checkLen(
		"group descriptor table",
		p,
		Byte(len(groups))*GroupDescSize,
	); err != nil {
		return err
	}
	for i := range groups {
		start := Byte(i) * GroupDescSize
		if err := EncodeGroupDesc(&groups[i], p[start:]); err != nil {
			return err
		}
	}
	return nil
}
