package types

import "fmt"

// FileType is the type tag stored in a directory entry.
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDir
	FileTypeCharDev
	FileTypeBlockDev
	FileTypeFIFO
	FileTypeSocket
	FileTypeSymlink
	fileTypeMax
)

// Valid reports whether ft is one of the tags ext2 defines.
func (ft FileType) Valid() bool { return ft < fileTypeMax }

func (ft FileType) String() string {
	switch ft {
	case FileTypeUnknown:
		return "unknown"
	case FileTypeRegular:
		return "regular"
	case FileTypeDir:
		return "directory"
	case FileTypeCharDev:
		return "character device"
	case FileTypeBlockDev:
		return "block device"
	case FileTypeFIFO:
		return "fifo"
	case FileTypeSocket:
		return "socket"
	case FileTypeSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("FileType(%d)", uint8(ft))
	}
}

func (ft FileType) MarshalText() ([]byte, error) { return []byte(ft.String()), nil }

func (ft *FileType) UnmarshalText(text []byte) error {
	for candidate := FileTypeUnknown; candidate.Valid(); candidate++ {
		if candidate.String() == string(text) {
			*ft = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown file type `%s`", text)
}

// Mode is an inode's i_mode: the type nibble in the high four bits and the
// permission bits below.
type Mode uint16

const (
	ModeTypeMask Mode = 0xF000
	ModePermMask Mode = 0x0FFF

	ModeFIFO     Mode = 0x1000
	ModeCharDev  Mode = 0x2000
	ModeDir      Mode = 0x4000
	ModeBlockDev Mode = 0x6000
	ModeRegular  Mode = 0x8000
	ModeSymlink  Mode = 0xA000
	ModeSocket   Mode = 0xC000

	DefaultDirMode  Mode = ModeDir | 0o755
	DefaultFileMode Mode = ModeRegular | 0o644
)

func (mode Mode) FileType() FileType {
	switch mode & ModeTypeMask {
	case ModeFIFO:
		return FileTypeFIFO
	case ModeCharDev:
		return FileTypeCharDev
	case ModeDir:
		return FileTypeDir
	case ModeBlockDev:
		return FileTypeBlockDev
	case ModeRegular:
		return FileTypeRegular
	case ModeSymlink:
		return FileTypeSymlink
	case ModeSocket:
		return FileTypeSocket
	default:
		return FileTypeUnknown
	}
}

func (mode Mode) Perm() Mode { return mode & ModePermMask }
