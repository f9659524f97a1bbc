package geometry

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/io"
	. "github.com/weberc2/ext2img/pkg/types"
)

type ErrBlockOutOfRange struct {
	Block Block
	Min   Block
	Max   uint64
}

func (err ErrBlockOutOfRange) Error() string {
	return fmt.Sprintf(
		"%v: `%d` outside `[%d, %d)`",
		InvalidBlockErr,
		err.Block,
		err.Min,
		err.Max,
	)
}

func (err ErrBlockOutOfRange) Unwrap() error { return InvalidBlockErr }

func (g *Geometry) checkBlock(b Block) error {
	if !g.ValidBlock(b) {
		return ErrBlockOutOfRange{Block: b, Min: g.FirstDataBlock, Max: g.BlocksCount}
	}
	return nil
}

// ReadBlock reads block b in full.
func (g *Geometry) ReadBlock(v io.Volume, b Block) ([]byte, error) {
	if err := g.checkBlock(b); err != nil {
		return nil, fmt.Errorf("reading block: %w", err)
	}
	p := make([]byte, g.BlockSize)
	if err := v.ReadAt(g.BlockOffset(b), p); err != nil {
		return nil, fmt.Errorf("reading block `%d`: %w", b, err)
	}
	return p, nil
}

// WriteBlock writes p, which must be exactly one block, to block b.
func (g *Geometry) WriteBlock(v io.Volume, b Block, p []byte) error {
	if err := g.checkBlock(b); err != nil {
		return fmt.Errorf("writing block: %w", err)
	}
	if Byte(len(p)) != g.BlockSize {
		return fmt.Errorf(
			"writing block `%d`: wanted `%d` bytes; found `%d`",
			b,
			g.BlockSize,
			len(p),
		)
	}
	if err := v.WriteAt(g.BlockOffset(b), p); err != nil {
		return fmt.Errorf("writing block `%d`: %w", b, err)
	}
	return nil
}
