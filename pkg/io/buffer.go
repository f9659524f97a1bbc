package io

import (
	"fmt"

	. "github.com/weberc2/ext2img/pkg/types"
)

// Buffer is an in-memory Volume of fixed size.
type Buffer struct {
	data []byte
}

func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Size() Byte { return Byte(len(b.data)) }

func (b *Buffer) ReadAt(offset Byte, p []byte) error {
	if !b.fits(offset, p) {
		return fmt.Errorf(
			"reading `%d` bytes from buffer of size `%d` at offset `%d`: %w",
			len(p),
			len(b.data),
			offset,
			ShortIOErr,
		)
	}
	copy(p, b.data[offset:])
	return nil
}

func (b *Buffer) WriteAt(offset Byte, p []byte) error {
	if !b.fits(offset, p) {
		return fmt.Errorf(
			"writing `%d` bytes to buffer of size `%d` at offset `%d`: %w",
			len(p),
			len(b.data),
			offset,
			ShortIOErr,
		)
	}
	copy(b.data[offset:], p)
	return nil
}

func (b *Buffer) fits(offset Byte, p []byte) bool {
	size := Byte(len(b.data))
	return offset <= size && Byte(len(p)) <= size-offset
}
