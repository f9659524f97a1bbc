package encode

import (
	"fmt"

	. "github.com/weberc2/ext2img/pkg/types"
)

var (
	partitionStatus      = field{"status", 0x0, 1}
	partitionType        = field{"type", 0x4, 1}
	partitionStartSector = field{"start_sector", 0x8, 4}
	partitionSectorCount = field{"sector_count", 0xC, 4}
	bootSignature        = field{"boot_signature", BootSignatureOffset, 2}
)

func partitionEntryOffset(index int) (Byte, error) {
	if index < 0 || index >= PartitionEntries {
		return 0, fmt.Errorf(
			"partition index `%d` outside `[0, %d)`",
			index,
			PartitionEntries,
		)
	}
	return PartitionTableOffset + Byte(index)*PartitionEntrySize, nil
}

// DecodePartitionEntry decodes the index-th entry of the partition table in
// the boot sector bootSector.
func DecodePartitionEntry(
	entry *PartitionEntry,
	bootSector []byte,
	index int,
) error {
	if err := checkLen("boot sector", bootSector, SectorSize); err != nil {
		return err
	}
	offset, err := partitionEntryOffset(index)
	if err != nil {
		return err
	}
	p := bootSector[offset : offset+PartitionEntrySize]
	entry.Status = partitionStatus.getU8(p)
	entry.Type = partitionType.getU8(p)
	entry.StartSector = partitionStartSector.getU32(p)
	entry.SectorCount = partitionSectorCount.getU32(p)
	return nil
}

// EncodePartitionEntry writes entry into the index-th slot of the partition
// table and stamps the boot signature.
func EncodePartitionEntry(
	entry *PartitionEntry,
	bootSector []byte,
	index int,
) error {
	if err := checkLen("boot sector", bootSector, SectorSize); err != nil {
		return err
	}
	offset, err := partitionEntryOffset(index)
	if err != nil {
		return err
	}
	p := bootSector[offset : offset+PartitionEntrySize]
	partitionStatus.putU8(p, entry.Status)
	partitionType.putU8(p, entry.Type)
	partitionStartSector.putU32(p, entry.StartSector)
	partitionSectorCount.putU32(p, entry.SectorCount)
	bootSignature.putU16(bootSector, BootSignature)
	return nil
}
