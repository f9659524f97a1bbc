package filesystem

import (
	"github.com/weberc2/ext2img/pkg/alloc"
	. "github.com/weberc2/ext2img/pkg/types"
)

type GroupInfo struct {
	Group       GroupID `json:"group" yaml:"group"`
	FirstBlock  Block   `json:"firstBlock" yaml:"firstBlock"`
	BlockBitmap Block   `json:"blockBitmap" yaml:"blockBitmap"`
	InodeBitmap Block   `json:"inodeBitmap" yaml:"inodeBitmap"`
	InodeTable  Block   `json:"inodeTable" yaml:"inodeTable"`
}

type Info struct {
	PartitionStart Byte        `json:"partitionStart" yaml:"partitionStart"`
	PartitionSize  Byte        `json:"partitionSize" yaml:"partitionSize"`
	UUID           string      `json:"uuid" yaml:"uuid"`
	VolumeName     string      `json:"volumeName" yaml:"volumeName"`
	RevLevel       uint32      `json:"revLevel" yaml:"revLevel"`
	State          uint16      `json:"state" yaml:"state"`
	BlockSize      Byte        `json:"blockSize" yaml:"blockSize"`
	InodeSize      Byte        `json:"inodeSize" yaml:"inodeSize"`
	BlocksCount    uint64      `json:"blocksCount" yaml:"blocksCount"`
	InodesCount    uint64      `json:"inodesCount" yaml:"inodesCount"`
	BlocksPerGroup uint64      `json:"blocksPerGroup" yaml:"blocksPerGroup"`
	InodesPerGroup uint64      `json:"inodesPerGroup" yaml:"inodesPerGroup"`
	FirstDataBlock Block       `json:"firstDataBlock" yaml:"firstDataBlock"`
	FirstIno       Ino         `json:"firstIno" yaml:"firstIno"`
	FreeBlocks     uint64      `json:"freeBlocks" yaml:"freeBlocks"`
	FreeInodes     uint64      `json:"freeInodes" yaml:"freeInodes"`
	ReadOnly       bool        `json:"readOnly" yaml:"readOnly"`
	Groups         []GroupInfo `json:"groups" yaml:"groups"`
}

// Info summarizes the filesystem. Free counts come from the bitmaps rather
// than the superblock, which isn't kept up to date.
func (fs *FileSystem) Info() (Info, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	g := fs.geometry
	freeBlocks, err := fs.alloc.CountFree(alloc.ResourceBlock)
	if err != nil {
		return Info{}, err
	}
	freeInodes, err := fs.alloc.CountFree(alloc.ResourceInode)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		PartitionStart: g.Partition.Offset(),
		PartitionSize:  g.Partition.Size(),
		UUID:           g.Superblock.UUID.String(),
		VolumeName:     g.Superblock.VolumeName,
		RevLevel:       g.Superblock.RevLevel,
		State:          g.Superblock.State,
		BlockSize:      g.BlockSize,
		InodeSize:      g.InodeSize,
		BlocksCount:    g.BlocksCount,
		InodesCount:    g.InodesCount,
		BlocksPerGroup: g.BlocksPerGroup,
		InodesPerGroup: g.InodesPerGroup,
		FirstDataBlock: g.FirstDataBlock,
		FirstIno:       g.FirstIno,
		FreeBlocks:     freeBlocks,
		FreeInodes:     freeInodes,
		ReadOnly:       fs.readOnly,
		Groups:         make([]GroupInfo, len(g.Groups)),
	}
	for i, gd := range g.Groups {
		info.Groups[i] = GroupInfo{
			Group:       GroupID(i),
			FirstBlock:  g.GroupFirstBlock(GroupID(i)),
			BlockBitmap: gd.BlockBitmap,
			InodeBitmap: gd.InodeBitmap,
			InodeTable:  gd.InodeTable,
		}
	}
	return info, nil
}
