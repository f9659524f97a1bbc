package types

import "github.com/google/uuid"

const (
	SuperblockMagic  uint16 = 0xEF53
	SuperblockOffset Byte   = 1024
	SuperblockSize   Byte   = 1024

	StateClean uint16 = 1
	StateError uint16 = 2

	RevLevelStatic  uint32 = 0
	RevLevelDynamic uint32 = 1

	FeatureIncompatFileType   uint32 = 0x0002
	FeatureROCompatSparse     uint32 = 0x0001
	FeatureROCompatLargeFile  uint32 = 0x0002
	SupportedIncompatFeatures        = FeatureIncompatFileType
	SupportedROCompatFeatures        = FeatureROCompatSparse |
		FeatureROCompatLargeFile
)

type Superblock struct {
	InodesCount         uint32
	BlocksCount         uint32
	ReservedBlocksCount uint32
	FreeBlocksCount     uint32
	FreeInodesCount     uint32
	FirstDataBlock      uint32
	LogBlockSize        uint32
	BlocksPerGroup      uint32
	InodesPerGroup      uint32
	MTime               uint32
	WTime               uint32
	Magic               uint16
	State               uint16
	RevLevel            uint32
	FirstIno            uint32
	InodeSize           uint16
	FeatureCompat       uint32
	FeatureIncompat     uint32
	FeatureROCompat     uint32
	UUID                uuid.UUID
	VolumeName          string
}

func (sb *Superblock) BlockSize() Byte { return BaseBlockSize << sb.LogBlockSize }

// RecordSize is the on-disk inode record size. Revision 0 filesystems don't
// store it.
func (sb *Superblock) RecordSize() Byte {
	if sb.RevLevel < RevLevelDynamic {
		return DefaultInodeSize
	}
	return Byte(sb.InodeSize)
}

func (sb *Superblock) FirstInode() Ino {
	if sb.RevLevel < RevLevelDynamic {
		return DefaultFirstIno
	}
	return Ino(sb.FirstIno)
}

const GroupDescSize Byte = 32

type GroupDesc struct {
	BlockBitmap     Block
	InodeBitmap     Block
	InodeTable      Block
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
}

const (
	PartitionTableOffset Byte = 0x1BE
	PartitionEntrySize   Byte = 16
	PartitionEntries          = 4
	BootSignatureOffset  Byte = 0x1FE
	BootSignature        uint16 = 0xAA55
	PartitionTypeLinux   uint8  = 0x83
)

type PartitionEntry struct {
	Status      uint8
	Type        uint8
	StartSector uint32
	SectorCount uint32
}

func (entry *PartitionEntry) Offset() Byte { return Byte(entry.StartSector) * SectorSize }

func (entry *PartitionEntry) Size() Byte { return Byte(entry.SectorCount) * SectorSize }
