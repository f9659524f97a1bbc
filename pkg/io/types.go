package io

import (
	. "github.com/weberc2/ext2img/pkg/types"
)

// ReadAt fills all of b from offset or fails; there are no partial reads.
type ReadAt interface {
	ReadAt(offset Byte, b []byte) error
}

// WriteAt writes all of p at offset or fails.
type WriteAt interface {
	WriteAt(offset Byte, p []byte) error
}

type Volume interface {
	ReadAt
	WriteAt
}
