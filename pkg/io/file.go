package io

import (
	"errors"
	"fmt"
	"io"

	. "github.com/weberc2/ext2img/pkg/types"
)

type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// File adapts an *os.File (or anything with ReadAt/WriteAt) to Volume,
// turning short transfers into errors.
type File struct {
	inner ReaderWriterAt
}

func NewFile(inner ReaderWriterAt) *File {
	return &File{inner: inner}
}

func (f *File) ReadAt(offset Byte, b []byte) error {
	n, err := f.inner.ReadAt(b, int64(offset))
	if n == len(b) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = ShortIOErr
	}
	return fmt.Errorf(
		"reading `%d` bytes at offset `%d` (read `%d`): %w",
		len(b),
		offset,
		n,
		err,
	)
}

func (f *File) WriteAt(offset Byte, p []byte) error {
	n, err := f.inner.WriteAt(p, int64(offset))
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = ShortIOErr
	}
	return fmt.Errorf(
		"writing `%d` bytes at offset `%d` (wrote `%d`): %w",
		len(p),
		offset,
		n,
		err,
	)
}
