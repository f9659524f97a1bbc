package main

import (
	"encoding/json"
	"fmt"
	stdio "io"
	stdlog "log"
	"os"
	"path"

	"github.com/gofrs/flock"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"

	"github.com/weberc2/ext2img/pkg/directory"
	"github.com/weberc2/ext2img/pkg/filesystem"
	"github.com/weberc2/ext2img/pkg/io"
	"github.com/weberc2/ext2img/pkg/log"
	. "github.com/weberc2/ext2img/pkg/types"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		stdlog.Fatal(err)
	}
}

func newApp() *cli.App {
	var config *Config
	return &cli.App{
		Name:        appName,
		Usage:       "inspect and edit ext2 filesystems inside disk images",
		Description: "a command line interface over an ext2 partition in an MBR disk image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML or TOML config file",
				EnvVars: []string{envVarPrefix + "_CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path to the disk image",
			},
			&cli.IntFlag{
				Name:    "partition",
				Aliases: []string{"p"},
				Usage:   "the partition table entry holding the filesystem",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "`json` or `yaml`",
			},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "`text` or `json`"},
			&cli.BoolFlag{Name: "read-only", Usage: "refuse every change"},
			&cli.BoolFlag{Name: "no-lock", Usage: "don't lock the image file"},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Args().First() == "help" {
				return nil
			}
			c, err := LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if ctx.IsSet("image") {
				c.Image = ctx.String("image")
			}
			if ctx.IsSet("partition") {
				c.Partition = ctx.Int("partition")
			}
			if ctx.IsSet("output") {
				c.Output = ctx.String("output")
			}
			if ctx.IsSet("log-level") {
				c.LogLevel = ctx.String("log-level")
			}
			if ctx.IsSet("log-format") {
				c.LogFormat = ctx.String("log-format")
			}
			if ctx.Bool("read-only") {
				c.ReadOnly = true
			}
			if ctx.Bool("no-lock") {
				lock := false
				c.Lock = &lock
			}
			if err := c.Validate(); err != nil {
				return err
			}

			logger, err := log.New(ctx.App.ErrWriter, c.LogLevel, c.LogFormat)
			if err != nil {
				return err
			}
			ctx.Context = log.Context(ctx.Context, logger)
			config = c
			return nil
		},
		Commands: commands(func() *Config { return config }),
	}
}

func commands(config func() *Config) []*cli.Command {
	readOnly := func(f fsAction) cli.ActionFunc { return withFS(config, true, f) }
	readWrite := func(f fsAction) cli.ActionFunc { return withFS(config, false, f) }

	return []*cli.Command{{
		Name:        "info",
		Description: "summarize the superblock, the block groups and free counts",
		Action: readOnly(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			info, err := fs.Info()
			if err != nil {
				return err
			}
			return output(ctx, config(), info)
		}),
	}, {
		Name:        "ls",
		Aliases:     []string{"list"},
		Usage:       "ls [PATH]",
		Description: "list a directory's entries in on-disk order, or with " +
			"--recursive every entry beneath it by path",
		Flags: []cli.Flag{&cli.BoolFlag{
			Name:    "recursive",
			Aliases: []string{"r"},
			Usage:   "walk subdirectories, sorted by name",
		}},
		Action: readOnly(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			root := pathArg(ctx)
			ino, err := fs.Resolve(root)
			if err != nil {
				return err
			}
			if ctx.Bool("recursive") {
				listing := []entryView{}
				if err := fs.Walk(ino, func(p string, entry directory.Entry) error {
					listing = append(listing, entryView{
						Path:     path.Join(root, p),
						Name:     entry.Name,
						Ino:      entry.Ino,
						FileType: entry.FileType,
						RecLen:   entry.RecLen,
						Offset:   entry.Offset,
					})
					return nil
				}); err != nil {
					return err
				}
				return output(ctx, config(), listing)
			}
			entries, err := fs.List(ino)
			if err != nil {
				return err
			}
			listing := make([]entryView, len(entries))
			for i, entry := range entries {
				listing[i] = entryView{
					Name:     entry.Name,
					Ino:      entry.Ino,
					FileType: entry.FileType,
					RecLen:   entry.RecLen,
					Offset:   entry.Offset,
				}
			}
			return output(ctx, config(), listing)
		}),
	}, {
		Name:        "tree",
		Usage:       "tree [PATH]",
		Description: "print the directory tree, sorted by name",
		Action: readOnly(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			ino, err := fs.Resolve(pathArg(ctx))
			if err != nil {
				return err
			}
			tree, err := fs.Tree(ino)
			if err != nil {
				return err
			}
			return output(ctx, config(), tree)
		}),
	}, {
		Name:        "stat",
		Usage:       "stat PATH",
		Description: "print the inode record of a path",
		Action: readOnly(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			ino, err := fs.Resolve(pathArg(ctx))
			if err != nil {
				return err
			}
			inode, err := fs.Stat(ino)
			if err != nil {
				return err
			}
			location, err := fs.Locate(ino)
			if err != nil {
				return err
			}
			return output(ctx, config(), newStatView(&inode, location.Group))
		}),
	}, {
		Name:        "blocks",
		Usage:       "blocks PATH",
		Description: "list the data and pointer-table blocks owned by a path",
		Action: readOnly(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			ino, err := fs.Resolve(pathArg(ctx))
			if err != nil {
				return err
			}
			layout, err := fs.FileBlocks(ino)
			if err != nil {
				return err
			}
			return output(ctx, config(), layout)
		}),
	}, {
		Name:        "cat",
		Usage:       "cat PATH",
		Description: "write a file's content to stdout",
		Action: readOnly(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			ino, err := fs.Resolve(pathArg(ctx))
			if err != nil {
				return err
			}
			data, err := fs.ReadFile(ino)
			if err != nil {
				return err
			}
			if _, err := ctx.App.Writer.Write(data); err != nil {
				return fmt.Errorf("writing file content: %w", err)
			}
			return nil
		}),
	}, {
		Name:        "write",
		Aliases:     []string{"put"},
		Usage:       "write PATH",
		Description: "replace a file's content, creating the file if needed",
		Flags: []cli.Flag{&cli.StringFlag{
			Name:  "from",
			Usage: "read the content from this host file instead of stdin",
		}},
		Action: readWrite(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			data, err := readSource(ctx)
			if err != nil {
				return err
			}
			ino, err := ensureFile(fs, pathArg(ctx))
			if err != nil {
				return err
			}
			return fs.WriteFile(ino, data)
		}),
	}, {
		Name:        "touch",
		Usage:       "touch PATH",
		Description: "create an empty file if it doesn't exist",
		Action: readWrite(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			_, err := ensureFile(fs, pathArg(ctx))
			return err
		}),
	}, {
		Name:        "mkdir",
		Usage:       "mkdir PATH",
		Description: "create a directory",
		Action: readWrite(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			parent, name, err := fs.ResolveParent(pathArg(ctx))
			if err != nil {
				return err
			}
			_, err = fs.CreateDirectory(parent, name)
			return err
		}),
	}, {
		Name:        "rm",
		Aliases:     []string{"delete"},
		Usage:       "rm PATH",
		Description: "remove a file",
		Action: readWrite(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			parent, name, err := fs.ResolveParent(pathArg(ctx))
			if err != nil {
				return err
			}
			return fs.DeleteFile(parent, name)
		}),
	}, {
		Name:        "rmdir",
		Usage:       "rmdir PATH",
		Description: "remove a directory and everything beneath it",
		Action: readWrite(func(fs *filesystem.FileSystem, ctx *cli.Context) error {
			parent, name, err := fs.ResolveParent(pathArg(ctx))
			if err != nil {
				return err
			}
			return fs.DeleteDirectory(parent, name)
		}),
	}, mkfsCommand(config)}
}

type fsAction func(*filesystem.FileSystem, *cli.Context) error

// withFS opens the configured image, locks it (shared for reads, exclusive
// for writes) and hands the filesystem to f.
func withFS(config func() *Config, readOnly bool, f fsAction) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c := config()
		readOnly := readOnly || c.ReadOnly
		logger := log.FromContext(ctx.Context)

		flag := os.O_RDWR
		if readOnly {
			flag = os.O_RDONLY
		}
		// The lock opens its path with O_CREATE, so the image has to exist
		// before it is locked.
		file, err := os.OpenFile(c.Image, flag, 0)
		if err != nil {
			return fmt.Errorf("opening image: %w", err)
		}
		defer file.Close()

		unlock, err := lockImage(c, readOnly)
		if err != nil {
			return err
		}
		defer unlock()

		fs, err := filesystem.Open(io.NewFile(file), filesystem.Options{
			Partition: c.Partition,
			ReadOnly:  readOnly,
			Logger:    logger.With("image", c.Image),
		})
		if err != nil {
			return fmt.Errorf("opening filesystem: %w", err)
		}
		if err := f(fs, ctx); err != nil {
			logger.Debug(
				"command failed",
				"command", ctx.Command.Name,
				"kind", KindOf(err).String(),
				"err", err,
			)
			return err
		}
		return nil
	}
}

func lockImage(c *Config, shared bool) (func(), error) {
	if c.Lock != nil && !*c.Lock {
		return func() {}, nil
	}
	lock := flock.New(c.Image)
	tryLock := lock.TryLock
	if shared {
		tryLock = lock.TryRLock
	}
	locked, err := tryLock()
	if err != nil {
		return nil, fmt.Errorf("locking image `%s`: %w", c.Image, err)
	}
	if !locked {
		return nil, fmt.Errorf("image `%s` is locked by another process", c.Image)
	}
	return func() { _ = lock.Unlock() }, nil
}

func pathArg(ctx *cli.Context) string {
	if p := ctx.Args().First(); p != "" {
		return p
	}
	return "/"
}

// ensureFile resolves p, creating an empty regular file there if nothing
// exists yet.
func ensureFile(fs *filesystem.FileSystem, p string) (Ino, error) {
	parent, name, err := fs.ResolveParent(p)
	if err != nil {
		return InoNil, err
	}
	entry, err := fs.Lookup(parent, name)
	if err == nil {
		return entry.Ino, nil
	}
	if KindOf(err) != KindNotFound {
		return InoNil, err
	}
	return fs.CreateFile(parent, name)
}

func readSource(ctx *cli.Context) ([]byte, error) {
	if from := ctx.String("from"); from != "" {
		data, err := os.ReadFile(from)
		if err != nil {
			return nil, fmt.Errorf("reading `%s`: %w", from, err)
		}
		return data, nil
	}
	reader := ctx.App.Reader
	if reader == nil {
		reader = os.Stdin
	}
	data, err := stdio.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return data, nil
}

func output(ctx *cli.Context, c *Config, v interface{}) error {
	var data []byte
	var err error
	switch c.Output {
	case "yaml":
		if data, err = yaml.Marshal(v); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
	default:
		if data, err = json.MarshalIndent(v, "", "  "); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		data = append(data, '\n')
	}
	if _, err := ctx.App.Writer.Write(data); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

type entryView struct {
	Path     string   `json:"path,omitempty" yaml:"path,omitempty"`
	Name     string   `json:"name" yaml:"name"`
	Ino      Ino      `json:"ino" yaml:"ino"`
	FileType FileType `json:"type" yaml:"type"`
	RecLen   uint16   `json:"recLen" yaml:"recLen"`
	Offset   Byte     `json:"offset" yaml:"offset"`
}

type statView struct {
	Ino        Ino      `json:"ino" yaml:"ino"`
	Group      GroupID  `json:"group" yaml:"group"`
	FileType   FileType `json:"type" yaml:"type"`
	Mode       string   `json:"mode" yaml:"mode"`
	UID        uint16   `json:"uid" yaml:"uid"`
	GID        uint16   `json:"gid" yaml:"gid"`
	Size       Byte     `json:"size" yaml:"size"`
	LinksCount uint16   `json:"links" yaml:"links"`
	Sectors    uint32   `json:"sectors" yaml:"sectors"`
	ATime      uint32   `json:"atime" yaml:"atime"`
	CTime      uint32   `json:"ctime" yaml:"ctime"`
	MTime      uint32   `json:"mtime" yaml:"mtime"`
	DTime      uint32   `json:"dtime" yaml:"dtime"`
	Flags      uint32   `json:"flags" yaml:"flags"`
	Blocks     []Block  `json:"blocks" yaml:"blocks"`
}

func newStatView(inode *Inode, group GroupID) statView {
	return statView{
		Ino:        inode.Ino,
		Group:      group,
		FileType:   inode.Mode.FileType(),
		Mode:       fmt.Sprintf("%#o", inode.Mode.Perm()),
		UID:        inode.UID,
		GID:        inode.GID,
		Size:       inode.Size,
		LinksCount: inode.LinksCount,
		Sectors:    inode.Sectors,
		ATime:      inode.ATime,
		CTime:      inode.CTime,
		MTime:      inode.MTime,
		DTime:      inode.DTime,
		Flags:      inode.Flags,
		Blocks:     inode.Blocks[:],
	}
}
