package encode

import (
	"bytes"

	"github.com/google/uuid"

	. "github.com/weberc2/ext2img/pkg/types"
)

var (
	sbInodesCount         = field{"s_inodes_count", 0x00, 4}
	sbBlocksCount         = field{"s_blocks_count", 0x04, 4}
	sbReservedBlocksCount = field{"s_r_blocks_count", 0x08, 4}
	sbFreeBlocksCount     = field{"s_free_blocks_count", 0x0C, 4}
	sbFreeInodesCount     = field{"s_free_inodes_count", 0x10, 4}
	sbFirstDataBlock      = field{"s_first_data_block", 0x14, 4}
	sbLogBlockSize        = field{"s_log_block_size", 0x18, 4}
	sbLogFragSize         = field{"s_log_frag_size", 0x1C, 4}
	sbBlocksPerGroup      = field{"s_blocks_per_group", 0x20, 4}
	sbFragsPerGroup       = field{"s_frags_per_group", 0x24, 4}
	sbInodesPerGroup      = field{"s_inodes_per_group", 0x28, 4}
	sbMTime               = field{"s_mtime", 0x2C, 4}
	sbWTime               = field{"s_wtime", 0x30, 4}
	sbMaxMountCount       = field{"s_max_mnt_count", 0x36, 2}
	sbMagic               = field{"s_magic", 0x38, 2}
	sbState               = field{"s_state", 0x3A, 2}
	sbErrors              = field{"s_errors", 0x3C, 2}
	sbRevLevel            = field{"s_rev_level", 0x4C, 4}
	sbFirstIno            = field{"s_first_ino", 0x54, 4}
	sbInodeSize           = field{"s_inode_size", 0x58, 2}
	sbFeatureCompat       = field{"s_feature_compat", 0x5C, 4}
	sbFeatureIncompat     = field{"s_feature_incompat", 0x60, 4}
	sbFeatureROCompat     = field{"s_feature_ro_compat", 0x64, 4}
	sbUUID                = field{"s_uuid", 0x68, 16}
	sbVolumeName          = field{"s_volume_name", 0x78, 16}
)

// DecodeSuperblock decodes the fields of the 1024-byte superblock record.
// It doesn't validate them.
func DecodeSuperblock(sb *Superblock, p []byte) error {
	if err := checkLen("superblock", p, SuperblockSize); err != nil {
		return err
	}

	id, err := uuid.FromBytes(sbUUID.bytes(p))
	if err != nil {
		return err
	}

	*sb = Superblock{
		InodesCount:         sbInodesCount.getU32(p),
		BlocksCount:         sbBlocksCount.getU32(p),
		ReservedBlocksCount: sbReservedBlocksCount.getU32(p),
		FreeBlocksCount:     sbFreeBlocksCount.getU32(p),
		FreeInodesCount:     sbFreeInodesCount.getU32(p),
		FirstDataBlock:      sbFirstDataBlock.getU32(p),
		LogBlockSize:        sbLogBlockSize.getU32(p),
		BlocksPerGroup:      sbBlocksPerGroup.getU32(p),
		InodesPerGroup:      sbInodesPerGroup.getU32(p),
		MTime:               sbMTime.getU32(p),
		WTime:               sbWTime.getU32(p),
		Magic:               sbMagic.getU16(p),
		State:               sbState.getU16(p),
		RevLevel:            sbRevLevel.getU32(p),
		FirstIno:            sbFirstIno.getU32(p),
		InodeSize:           sbInodeSize.getU16(p),
		FeatureCompat:       sbFeatureCompat.getU32(p),
		FeatureIncompat:     sbFeatureIncompat.getU32(p),
		FeatureROCompat:     sbFeatureROCompat.getU32(p),
		UUID:                id,
		VolumeName: string(
			bytes.TrimRight(sbVolumeName.bytes(p), "\x00"),
		),
	}
	return nil
}

// EncodeSuperblock writes the decoded fields into p, leaving every other
// byte untouched. Fragment geometry mirrors block geometry, as ext2 requires.
func EncodeSuperblock(sb *Superblock, p []byte) error {
	if err := checkLen("superblock", p, SuperblockSize); err != nil {
		return err
	}

	sbInodesCount.putU32(p, sb.InodesCount)
	sbBlocksCount.putU32(p, sb.BlocksCount)
	sbReservedBlocksCount.putU32(p, sb.ReservedBlocksCount)
	sbFreeBlocksCount.putU32(p, sb.FreeBlocksCount)
	sbFreeInodesCount.putU32(p, sb.FreeInodesCount)
	sbFirstDataBlock.putU32(p, sb.FirstDataBlock)
	sbLogBlockSize.putU32(p, sb.LogBlockSize)
	sbLogFragSize.putU32(p, sb.LogBlockSize)
	sbBlocksPerGroup.putU32(p, sb.BlocksPerGroup)
	sbFragsPerGroup.putU32(p, sb.BlocksPerGroup)
	sbInodesPerGroup.putU32(p, sb.InodesPerGroup)
	sbMTime.putU32(p, sb.MTime)
	sbWTime.putU32(p, sb.WTime)
	sbMaxMountCount.putU16(p, 0xFFFF)
	sbMagic.putU16(p, sb.Magic)
	sbState.putU16(p, sb.State)
	sbErrors.putU16(p, 1)
	sbRevLevel.putU32(p, sb.RevLevel)
	sbFirstIno.putU32(p, sb.FirstIno)
	sbInodeSize.putU16(p, sb.InodeSize)
	sbFeatureCompat.putU32(p, sb.FeatureCompat)
	sbFeatureIncompat.putU32(p, sb.FeatureIncompat)
	sbFeatureROCompat.putU32(p, sb.FeatureROCompat)
	copy(sbUUID.bytes(p), sb.UUID[:])

	name := sbVolumeName.bytes(p)
	for i := range name {
		name[i] = 0
	}
	copy(name, sb.VolumeName)
	return nil
}
