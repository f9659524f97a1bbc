package types

const (
	DirEntryHeaderSize Byte = 8
	MaxNameLen              = 255
)

type DirEntry struct {
	Ino      Ino
	RecLen   uint16
	NameLen  uint8
	FileType FileType
	Name     string
}
