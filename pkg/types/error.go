package types

import (
	"errors"
	"fmt"
	"strings"
)

type ConstError string

func (err ConstError) Error() string { return string(err) }

const (
	OutOfInodesErr     ConstError = "out of free inodes"
	OutOfBlocksErr     ConstError = "out of free blocks"
	EntryNotFoundErr   ConstError = "directory entry not found"
	EntryExistsErr     ConstError = "directory entry already exists"
	DirectoryFullErr   ConstError = "directory block has no room for entry"
	NotADirErr         ConstError = "not a directory"
	IsADirErr          ConstError = "is a directory"
	InvalidInoErr      ConstError = "invalid inode number"
	InvalidBlockErr    ConstError = "invalid block number"
	InvalidNameErr     ConstError = "invalid directory entry name"
	NameTooLongErr     ConstError = "directory entry name too long"
	MalformedDirErr    ConstError = "malformed directory block"
	BlockOutOfRangeErr ConstError = "logical block index out of range"
	ShortIOErr         ConstError = "short read or write"
	NotAbsolutePathErr ConstError = "path is not absolute"
	ReadOnlyErr        ConstError = "filesystem is read-only"
)

// Kind classifies a failure so callers can react without matching on
// message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindGeometry
	KindValidation
	KindIO
	KindExhausted
	KindNotFound
	KindCapacity
	KindCorrupt
	KindExists
)

func (kind Kind) String() string {
	switch kind {
	case KindUnknown:
		return "unknown"
	case KindGeometry:
		return "geometry"
	case KindValidation:
		return "validation"
	case KindIO:
		return "io"
	case KindExhausted:
		return "exhausted"
	case KindNotFound:
		return "not found"
	case KindCapacity:
		return "capacity"
	case KindCorrupt:
		return "corrupt"
	case KindExists:
		return "exists"
	default:
		panic(fmt.Sprintf("invalid error kind: %d", kind))
	}
}

// Error is the error type surfaced by every public filesystem operation. Ino
// and Block are zero when they don't apply.
type Error struct {
	Kind  Kind
	Op    string
	Ino   Ino
	Block Block
	Err   error
}

func (err *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(err.Op)
	if err.Ino != InoNil {
		fmt.Fprintf(&sb, " (inode `%d`)", err.Ino)
	}
	if err.Block != BlockNil {
		fmt.Fprintf(&sb, " (block `%d`)", err.Block)
	}
	sb.WriteString(": ")
	sb.WriteString(err.Kind.String())
	if err.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(err.Err.Error())
	}
	return sb.String()
}

func (err *Error) Unwrap() error { return err.Err }

// KindOf reports the kind of the outermost *Error in err's chain. Bare
// sentinels are classified too, which lets lower layers return plain wrapped
// errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnknown {
		return e.Kind
	}
	for _, sentinel := range sentinelKinds {
		if errors.Is(err, sentinel.err) {
			return sentinel.kind
		}
	}
	return KindUnknown
}

var sentinelKinds = [...]struct {
	err  error
	kind Kind
}{
	{OutOfInodesErr, KindExhausted},
	{OutOfBlocksErr, KindExhausted},
	{EntryNotFoundErr, KindNotFound},
	{EntryExistsErr, KindExists},
	{DirectoryFullErr, KindCapacity},
	{NotADirErr, KindValidation},
	{IsADirErr, KindValidation},
	{InvalidInoErr, KindValidation},
	{InvalidBlockErr, KindValidation},
	{InvalidNameErr, KindValidation},
	{NameTooLongErr, KindValidation},
	{NotAbsolutePathErr, KindValidation},
	{ReadOnlyErr, KindValidation},
	{BlockOutOfRangeErr, KindValidation},
	{MalformedDirErr, KindCorrupt},
	{ShortIOErr, KindIO},
}
