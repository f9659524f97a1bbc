package testsupport

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/io"
	. "github.com/weberc2/ext2img/pkg/types"
)

// VolumeFake passes I/O through to Inner until its write budget runs out,
// after which every write fails with ShortIOErr. A negative budget never
// runs out.
type VolumeFake struct {
	Inner      io.Volume
	WriteQuota int
	Writes     int
}

func (vf *VolumeFake) ReadAt(offset Byte, p []byte) error {
	return vf.Inner.ReadAt(offset, p)
}

func (vf *VolumeFake) WriteAt(offset Byte, p []byte) error {
	if vf.WriteQuota >= 0 && vf.Writes >= vf.WriteQuota {
		return fmt.Errorf(
			"writing `%d` bytes at `%d`: %w",
			len(p),
			offset,
			ShortIOErr,
		)
	}
	vf.Writes++
	return vf.Inner.WriteAt(offset, p)
}
