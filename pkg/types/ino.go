package types

type Ino uint64

type GroupID uint64

const (
	InoNil       Ino = 0
	InoBadBlocks Ino = 1
	InoRoot      Ino = 2

	DefaultFirstIno  Ino  = 11
	DefaultInodeSize Byte = 128
)

// Inode holds the decoded fields of an on-disk inode record. Raw retains the
// record as it was read so that fields this package doesn't decode survive a
// read-modify-write cycle.
type Inode struct {
	Ino        Ino
	Mode       Mode
	UID        uint16
	Size       Byte
	ATime      uint32
	CTime      uint32
	MTime      uint32
	DTime      uint32
	GID        uint16
	LinksCount uint16
	Sectors    uint32
	Flags      uint32
	Blocks     [BlockPointersCount]Block
	Raw        []byte
}

// Touch sets the access, change and modification times.
func (inode *Inode) Touch(now uint32) {
	inode.ATime = now
	inode.CTime = now
	inode.MTime = now
}

func (inode *Inode) IsDir() bool { return inode.Mode.FileType() == FileTypeDir }
