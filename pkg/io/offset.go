package io

import (
	"fmt"

	. "github.com/weberc2/ext2img/pkg/types"
)

// OffsetVolume is a view of inner starting at a fixed base offset, used to
// address a partition with partition-relative offsets.
type OffsetVolume struct {
	inner  Volume
	offset Byte
}

func NewOffsetVolume(inner Volume, offset Byte) *OffsetVolume {
	return &OffsetVolume{inner: inner, offset: offset}
}

func (v *OffsetVolume) ReadAt(offset Byte, b []byte) error {
	if err := v.inner.ReadAt(offset+v.offset, b); err != nil {
		return fmt.Errorf(
			"reading additional offset `%d` from base offset `%d` (total "+
				"offset `%d` bytes): %w",
			offset,
			v.offset,
			offset+v.offset,
			err,
		)
	}
	return nil
}

func (v *OffsetVolume) WriteAt(offset Byte, b []byte) error {
	if err := v.inner.WriteAt(offset+v.offset, b); err != nil {
		return fmt.Errorf(
			"writing additional offset `%d` from base offset `%d` (total "+
				"offset `%d` bytes): %w",
			offset,
			v.offset,
			offset+v.offset,
			err,
		)
	}
	return nil
}
