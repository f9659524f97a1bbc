// Package filesystem is an editing session over an ext2 filesystem inside a
// disk image. Every public method takes the session lock, re-reads the
// records it needs and writes back what it changed before returning.
package filesystem

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/weberc2/ext2img/pkg/alloc"
	"github.com/weberc2/ext2img/pkg/blockmap"
	"github.com/weberc2/ext2img/pkg/geometry"
	"github.com/weberc2/ext2img/pkg/inode"
	"github.com/weberc2/ext2img/pkg/io"
	. "github.com/weberc2/ext2img/pkg/types"
)

type Options struct {
	// Partition is the index of the partition table entry holding the
	// filesystem.
	Partition int

	// ReadOnly rejects every mutating operation.
	ReadOnly bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type FileSystem struct {
	mu       sync.Mutex
	volume   io.Volume
	geometry *geometry.Geometry
	inodes   *inode.Locator
	alloc    *alloc.Allocator
	mapper   *blockmap.Mapper
	logger   *slog.Logger
	now      func() time.Time
	readOnly bool
}

// Open resolves the geometry of the filesystem in disk. It fails if the
// partition, superblock or group descriptor table can't be read or don't
// describe a supported filesystem.
func Open(disk io.Volume, opts Options) (*FileSystem, error) {
	g, err := geometry.Resolve(disk, opts.Partition)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	allocator := &alloc.Allocator{Volume: disk, Geometry: g}
	fs := &FileSystem{
		volume:   disk,
		geometry: g,
		inodes:   &inode.Locator{Volume: disk, Geometry: g},
		alloc:    allocator,
		mapper: &blockmap.Mapper{
			Volume:    disk,
			Geometry:  g,
			Allocator: allocator,
		},
		logger:   logger,
		now:      now,
		readOnly: opts.ReadOnly || g.ReadOnly,
	}
	logger.Debug(
		"opened filesystem",
		"partition", opts.Partition,
		"blockSize", g.BlockSize,
		"groups", g.GroupCount,
		"readOnly", fs.readOnly,
	)
	return fs, nil
}

func (fs *FileSystem) Geometry() *geometry.Geometry { return fs.geometry }

func (fs *FileSystem) timestamp() uint32 { return uint32(fs.now().Unix()) }

func (fs *FileSystem) checkWritable(op string) error {
	if fs.readOnly {
		return &Error{Kind: KindValidation, Op: op, Err: ReadOnlyErr}
	}
	return nil
}

// Locate returns where the record of inode ino lives.
func (fs *FileSystem) Locate(ino Ino) (inode.Location, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.inodes.Locate(ino)
}

func (fs *FileSystem) ReadInode(ino Ino) (Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.inodes.Read(ino)
}

func (fs *FileSystem) WriteInode(in *Inode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable("writing inode"); err != nil {
		return err
	}
	return fs.inodes.Write(in)
}

// Allocate claims the first free resource of kind r.
func (fs *FileSystem) Allocate(r alloc.Resource) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable("allocating " + r.String()); err != nil {
		return 0, err
	}
	n, err := fs.alloc.Allocate(r)
	if err != nil {
		return 0, err
	}
	fs.logger.Debug("allocated", "resource", r.String(), "number", n)
	return n, nil
}

func (fs *FileSystem) Free(r alloc.Resource, n uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable("freeing " + r.String()); err != nil {
		return err
	}
	if err := fs.alloc.Free(r, n); err != nil {
		return err
	}
	fs.logger.Debug("freed", "resource", r.String(), "number", n)
	return nil
}

func (fs *FileSystem) IsAllocated(r alloc.Resource, n uint64) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.alloc.IsAllocated(r, n)
}

func (fs *FileSystem) allocateInode() (Ino, error) {
	ino, err := fs.alloc.AllocateInode()
	if err != nil {
		return InoNil, err
	}
	fs.logger.Debug(
		"allocated inode",
		"ino", ino,
		"group", uint64(ino-1)/fs.geometry.InodesPerGroup,
	)
	return ino, nil
}

func (fs *FileSystem) allocateBlock() (Block, error) {
	b, err := fs.alloc.AllocateBlock()
	if err != nil {
		return BlockNil, err
	}
	fs.logger.Debug("allocated block", "block", b)
	return b, nil
}

// readDir reads a directory inode and its single data block.
func (fs *FileSystem) readDir(ino Ino) (Inode, []byte, error) {
	dir, err := fs.inodes.Read(ino)
	if err != nil {
		return Inode{}, nil, err
	}
	if !dir.IsDir() {
		return Inode{}, nil, &Error{
			Kind: KindValidation,
			Op:   "reading directory",
			Ino:  ino,
			Err:  NotADirErr,
		}
	}
	b := dir.Blocks[0]
	if b == BlockNil {
		return Inode{}, nil, &Error{
			Kind: KindCorrupt,
			Op:   "reading directory",
			Ino:  ino,
			Err:  fmt.Errorf("directory has no data block: %w", MalformedDirErr),
		}
	}
	block, err := fs.geometry.ReadBlock(fs.volume, b)
	if err != nil {
		return Inode{}, nil, &Error{
			Kind:  kindOr(err, KindIO),
			Op:    "reading directory block",
			Ino:   ino,
			Block: b,
			Err:   err,
		}
	}
	return dir, block, nil
}

func (fs *FileSystem) writeDirBlock(dir *Inode, block []byte) error {
	if err := fs.geometry.WriteBlock(
		fs.volume,
		dir.Blocks[0],
		block,
	); err != nil {
		return &Error{
			Kind:  KindIO,
			Op:    "writing directory block",
			Ino:   dir.Ino,
			Block: dir.Blocks[0],
			Err:   err,
		}
	}
	return nil
}

func kindOr(err error, fallback Kind) Kind {
	if kind := KindOf(err); kind != KindUnknown {
		return kind
	}
	return fallback
}

func dirError(op string, dir Ino, err error) error {
	return &Error{Kind: kindOr(err, KindCorrupt), Op: op, Ino: dir, Err: err}
}
