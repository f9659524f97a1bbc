package testsupport

import (
	"testing"

	"github.com/weberc2/ext2img/pkg/io"
	"github.com/weberc2/ext2img/pkg/mkfs"
)

// Image formats a fresh in-memory disk image sized for opts.
func Image(t testing.TB, opts mkfs.Options) *io.Buffer {
	t.Helper()
	size, err := mkfs.ImageSize(opts)
	if err != nil {
		t.Fatalf("sizing image: %v", err)
	}
	buf := io.NewBuffer(make([]byte, size))
	if _, err := mkfs.Format(buf, opts); err != nil {
		t.Fatalf("formatting image: %v", err)
	}
	return buf
}
