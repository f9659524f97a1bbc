package encode

import (
	. "github.com/weberc2/ext2img/pkg/types"
)

var (
	inodeMode       = field{"i_mode", 0x00, 2}
	inodeUID        = field{"i_uid", 0x02, 2}
	inodeSize       = field{"i_size", 0x04, 4}
	inodeATime      = field{"i_atime", 0x08, 4}
	inodeCTime      = field{"i_ctime", 0x0C, 4}
	inodeMTime      = field{"i_mtime", 0x10, 4}
	inodeDTime      = field{"i_dtime", 0x14, 4}
	inodeGID        = field{"i_gid", 0x18, 2}
	inodeLinksCount = field{"i_links_count", 0x1A, 2}
	inodeSectors    = field{"i_blocks", 0x1C, 4}
	inodeFlags      = field{"i_flags", 0x20, 4}
	inodeBlock      = field{"i_block", 0x28, BlockPointerSize}
)

// InodeMinSize is the smallest record this package can decode: the
// revision 0 inode.
const InodeMinSize = DefaultInodeSize

// DecodeInode decodes an inode record. The record is copied into
// inode.Raw.
func DecodeInode(inode *Inode, ino Ino, p []byte) error {
	if err := checkLen("inode", p, InodeMinSize); err != nil {
		return err
	}

	*inode = Inode{
		Ino:        ino,
		Mode:       Mode(inodeMode.getU16(p)),
		UID:        inodeUID.getU16(p),
		Size:       Byte(inodeSize.getU32(p)),
		ATime:      inodeATime.getU32(p),
		CTime:      inodeCTime.getU32(p),
		MTime:      inodeMTime.getU32(p),
		DTime:      inodeDTime.getU32(p),
		GID:        inodeGID.getU16(p),
		LinksCount: inodeLinksCount.getU16(p),
		Sectors:    inodeSectors.getU32(p),
		Flags:      inodeFlags.getU32(p),
		Raw:        append([]byte(nil), p...),
	}
	for i := range inode.Blocks {
		inode.Blocks[i] = inodeBlock.at(Byte(i) * BlockPointerSize).getBlock(p)
	}
	return nil
}

// EncodeInode writes the decoded fields into p. Bytes outside the decoded
// fields are taken from inode.Raw when it is the same size as p, and are
// otherwise left as they are in p.
func EncodeInode(inode *Inode, p []byte) error {
	if err := checkLen("inode", p, InodeMinSize); err != nil {
		return err
	}
	if len(inode.Raw) == len(p) {
		copy(p, inode.Raw)
	}

	inodeMode.putU16(p, uint16(inode.Mode))
	inodeUID.putU16(p, inode.UID)
	inodeSize.putU32(p, uint32(inode.Size))
	inodeATime.putU32(p, inode.ATime)
	inodeCTime.putU32(p, inode.CTime)
	inodeMTime.putU32(p, inode.MTime)
	inodeDTime.putU32(p, inode.DTime)
	inodeGID.putU16(p, inode.GID)
	inodeLinksCount.putU16(p, inode.LinksCount)
	inodeSectors.putU32(p, inode.Sectors)
	inodeFlags.putU32(p, inode.Flags)
	for i := range inode.Blocks {
		inodeBlock.at(Byte(i)*BlockPointerSize).putBlock(p, inode.Blocks[i])
	}
	return nil
}
