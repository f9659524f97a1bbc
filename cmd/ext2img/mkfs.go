package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/weberc2/ext2img/pkg/filesystem"
	"github.com/weberc2/ext2img/pkg/io"
	"github.com/weberc2/ext2img/pkg/log"
	"github.com/weberc2/ext2img/pkg/mkfs"
	. "github.com/weberc2/ext2img/pkg/types"
)

func mkfsCommand(config func() *Config) *cli.Command {
	return &cli.Command{
		Name:    "mkfs",
		Aliases: []string{"format"},
		Description: "write a partition table entry and an empty ext2 " +
			"filesystem into the image, creating or growing the image file " +
			"as needed",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:     "blocks",
				Usage:    "the number of filesystem blocks",
				Required: true,
			},
			&cli.IntFlag{Name: "block-size", Usage: "bytes per block", Value: 1024},
			&cli.Uint64Flag{Name: "blocks-per-group"},
			&cli.Uint64Flag{Name: "inodes-per-group"},
			&cli.IntFlag{Name: "inode-size", Value: int(DefaultInodeSize)},
			&cli.Uint64Flag{Name: "first-ino", Value: uint64(DefaultFirstIno)},
			&cli.UintFlag{
				Name:  "start-sector",
				Value: uint(mkfs.DefaultStartSector),
			},
			&cli.StringFlag{Name: "volume-name"},
			&cli.StringFlag{Name: "uuid", Usage: "defaults to a random UUID"},
		},
		Action: func(ctx *cli.Context) error {
			c := config()
			opts := mkfs.Options{
				Partition:      c.Partition,
				StartSector:    uint32(ctx.Uint("start-sector")),
				BlockSize:      Byte(ctx.Int("block-size")),
				BlocksCount:    ctx.Uint64("blocks"),
				BlocksPerGroup: ctx.Uint64("blocks-per-group"),
				InodesPerGroup: ctx.Uint64("inodes-per-group"),
				InodeSize:      Byte(ctx.Int("inode-size")),
				FirstIno:       Ino(ctx.Uint64("first-ino")),
				VolumeName:     ctx.String("volume-name"),
				Now:            uint32(time.Now().Unix()),
			}
			if s := ctx.String("uuid"); s != "" {
				id, err := uuid.Parse(s)
				if err != nil {
					return fmt.Errorf("parsing uuid `%s`: %w", s, err)
				}
				opts.UUID = id
			}
			return format(ctx, c, opts)
		},
	}
}

func format(ctx *cli.Context, c *Config, opts mkfs.Options) error {
	if c.ReadOnly {
		return &Error{Kind: KindValidation, Op: "formatting", Err: ReadOnlyErr}
	}
	logger := log.FromContext(ctx.Context)

	size, err := mkfs.ImageSize(opts)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(c.Image, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	unlock, err := lockImage(c, false)
	if err != nil {
		return err
	}
	defer unlock()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	if Byte(stat.Size()) < size {
		if err := file.Truncate(int64(size)); err != nil {
			return fmt.Errorf("growing image to `%d` bytes: %w", size, err)
		}
	}

	disk := io.NewFile(file)
	sb, err := mkfs.Format(disk, opts)
	if err != nil {
		return err
	}
	logger.Info(
		"formatted filesystem",
		"image", c.Image,
		"partition", c.Partition,
		"blocks", sb.BlocksCount,
		"inodes", sb.InodesCount,
		"uuid", sb.UUID.String(),
	)

	fs, err := filesystem.Open(disk, filesystem.Options{
		Partition: c.Partition,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("reopening formatted filesystem: %w", err)
	}
	info, err := fs.Info()
	if err != nil {
		return err
	}
	return output(ctx, c, info)
}
