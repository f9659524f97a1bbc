package filesystem

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/weberc2/ext2img/pkg/alloc"
	"github.com/weberc2/ext2img/pkg/directory"
	"github.com/weberc2/ext2img/pkg/io"
	"github.com/weberc2/ext2img/pkg/mkfs"
	"github.com/weberc2/ext2img/pkg/testsupport"
	. "github.com/weberc2/ext2img/pkg/types"
)

var epoch = time.Unix(1700000000, 0)

// one group of 4095 1KiB blocks with 128 inodes
var defaultOpts = mkfs.Options{
	StartSector:    8,
	BlocksCount:    4096,
	InodesPerGroup: 128,
}

func newFS(t *testing.T, opts mkfs.Options, readOnly bool) *FileSystem {
	t.Helper()
	return openFS(t, testsupport.Image(t, opts), opts.Partition, readOnly)
}

func openFS(t *testing.T, disk io.Volume, partition int, readOnly bool) *FileSystem {
	t.Helper()
	fs, err := Open(disk, Options{
		Partition: partition,
		ReadOnly:  readOnly,
		Now:       func() time.Time { return epoch },
	})
	if err != nil {
		t.Fatalf("opening filesystem: %v", err)
	}
	return fs
}

func freeCounts(t *testing.T, fs *FileSystem) (uint64, uint64) {
	t.Helper()
	info, err := fs.Info()
	if err != nil {
		t.Fatalf("reading info: %v", err)
	}
	return info.FreeBlocks, info.FreeInodes
}

func wantKind(t *testing.T, err error, kind Kind, sentinel error) {
	t.Helper()
	if err == nil {
		t.Fatalf("wanted `%v` error; found `nil`", kind)
	}
	if found := KindOf(err); found != kind {
		t.Fatalf("kind: wanted `%v`; found `%v` (err: %v)", kind, found, err)
	}
	if sentinel != nil && !errors.Is(err, sentinel) {
		t.Fatalf("wanted `%v`; found `%v`", sentinel, err)
	}
}

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/1024)
	}
	return data
}

func TestWriteReadFile(t *testing.T) {
	type testCase struct {
		name           string
		size           int
		wantedData     int
		wantedIndirect int
	}

	for _, testCase := range []testCase{
		{name: "empty", size: 0},
		{name: "one-short-block", size: 1023, wantedData: 1},
		{name: "exactly-direct", size: 12 * 1024, wantedData: 12},
		{
			name:           "first-singly",
			size:           12*1024 + 1,
			wantedData:     13,
			wantedIndirect: 1,
		},
		{
			name:           "first-doubly",
			size:           (12+256)*1024 + 1,
			wantedData:     12 + 256 + 1,
			wantedIndirect: 3,
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			fs := newFS(t, defaultOpts, false)
			blocksBefore, _ := freeCounts(t, fs)

			ino, err := fs.CreateFile(InoRoot, "file")
			if err != nil {
				t.Fatalf("CreateFile(): unexpected err: %v", err)
			}
			data := pattern(testCase.size)
			if err := fs.WriteFile(ino, data); err != nil {
				t.Fatalf("WriteFile(): unexpected err: %v", err)
			}

			found, err := fs.ReadFile(ino)
			if err != nil {
				t.Fatalf("ReadFile(): unexpected err: %v", err)
			}
			if !bytes.Equal(data, found) {
				t.Fatalf("ReadFile(): content mismatch (`%d` bytes)", len(found))
			}

			stat, err := fs.Stat(ino)
			if err != nil {
				t.Fatalf("Stat(): unexpected err: %v", err)
			}
			owned := testCase.wantedData + testCase.wantedIndirect
			if stat.Size != Byte(testCase.size) {
				t.Fatalf("size: wanted `%d`; found `%d`", testCase.size, stat.Size)
			}
			if stat.Sectors != uint32(owned*2) {
				t.Fatalf("sectors: wanted `%d`; found `%d`", owned*2, stat.Sectors)
			}
			if stat.MTime != uint32(epoch.Unix()) {
				t.Fatalf("mtime: wanted `%d`; found `%d`", epoch.Unix(), stat.MTime)
			}

			layout, err := fs.FileBlocks(ino)
			if err != nil {
				t.Fatalf("FileBlocks(): unexpected err: %v", err)
			}
			if len(layout.Data) != testCase.wantedData ||
				len(layout.Indirect) != testCase.wantedIndirect {
				t.Fatalf(
					"FileBlocks(): wanted `%d` data and `%d` indirect blocks; "+
						"found `%d` and `%d`",
					testCase.wantedData,
					testCase.wantedIndirect,
					len(layout.Data),
					len(layout.Indirect),
				)
			}

			blocksAfter, _ := freeCounts(t, fs)
			if used := blocksBefore - blocksAfter; used != uint64(owned) {
				t.Fatalf("blocks used: wanted `%d`; found `%d`", owned, used)
			}
		})
	}
}

func TestRewriteShorterFreesBlocks(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	ino, err := fs.CreateFile(InoRoot, "file")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	before, _ := freeCounts(t, fs)

	if err := fs.WriteFile(ino, pattern(20*1024)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	short := []byte("hello, world")
	if err := fs.WriteFile(ino, short); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	after, _ := freeCounts(t, fs)
	if before-after != 1 {
		t.Fatalf("blocks used: wanted `1`; found `%d`", before-after)
	}
	found, err := fs.ReadFile(ino)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !bytes.Equal(short, found) {
		t.Fatalf("wanted `%s`; found `%s`", short, found)
	}
}

func TestWriteFileRejectsDirectory(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	wantKind(t, fs.WriteFile(InoRoot, []byte("x")), KindValidation, IsADirErr)
}

func TestCreateDirectory(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	ino, err := fs.CreateDirectory(InoRoot, "dir")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries, err := fs.List(ino)
	if err != nil {
		t.Fatalf("List(): unexpected err: %v", err)
	}
	type pair struct {
		Name string
		Ino  Ino
	}
	var found []pair
	for _, entry := range entries {
		found = append(found, pair{entry.Name, entry.Ino})
	}
	if diff := cmp.Diff([]pair{{".", ino}, {"..", InoRoot}}, found); diff != "" {
		t.Fatalf("entries mismatch (-wanted +found):\n%s", diff)
	}

	entry, err := fs.Lookup(InoRoot, "dir")
	if err != nil {
		t.Fatalf("Lookup(): unexpected err: %v", err)
	}
	if entry.Ino != ino || entry.FileType != FileTypeDir {
		t.Fatalf("Lookup(): unexpected entry: %+v", entry)
	}

	for _, testCase := range []struct {
		ino   Ino
		links uint16
	}{
		{InoRoot, 3},
		{ino, 2},
	} {
		stat, err := fs.Stat(testCase.ino)
		if err != nil {
			t.Fatalf("Stat(%d): unexpected err: %v", testCase.ino, err)
		}
		if stat.LinksCount != testCase.links {
			t.Fatalf(
				"inode `%d` links: wanted `%d`; found `%d`",
				testCase.ino,
				testCase.links,
				stat.LinksCount,
			)
		}
	}
}

func TestCreateFailures(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	file, err := fs.CreateFile(InoRoot, "file")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	_, inodesBefore := freeCounts(t, fs)

	for _, testCase := range []struct {
		name     string
		parent   Ino
		child    string
		kind     Kind
		sentinel error
	}{
		{"duplicate", InoRoot, "file", KindExists, EntryExistsErr},
		{"empty-name", InoRoot, "", KindValidation, InvalidNameErr},
		{"dot", InoRoot, ".", KindValidation, InvalidNameErr},
		{"slash", InoRoot, "a/b", KindValidation, InvalidNameErr},
		{"parent-not-dir", file, "child", KindValidation, NotADirErr},
		{"parent-out-of-range", 4096, "child", KindValidation, InvalidInoErr},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := fs.CreateFile(testCase.parent, testCase.child)
			wantKind(t, err, testCase.kind, testCase.sentinel)
		})
	}

	if _, inodesAfter := freeCounts(t, fs); inodesAfter != inodesBefore {
		t.Fatalf(
			"free inodes: wanted `%d`; found `%d`",
			inodesBefore,
			inodesAfter,
		)
	}
}

func TestDirectoryFull(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	var err error
	created := 0
	for ; created < 200; created++ {
		if _, err = fs.CreateFile(
			InoRoot,
			fmt.Sprintf("file-%03d", created),
		); err != nil {
			break
		}
	}

	// 16 byte records after the 24 bytes of "." and ".."
	if created != (1024-24)/16 {
		t.Fatalf("created: wanted `%d`; found `%d`", (1024-24)/16, created)
	}
	wantKind(t, err, KindCapacity, DirectoryFullErr)

	_, freeInodes := freeCounts(t, fs)
	if wanted := uint64(128 - 10 - created); freeInodes != wanted {
		t.Fatalf("free inodes: wanted `%d`; found `%d`", wanted, freeInodes)
	}
}

func TestInodeRolloverAcrossGroups(t *testing.T) {
	fs := newFS(t, mkfs.Options{
		StartSector:    8,
		BlocksCount:    2049,
		BlocksPerGroup: 1024,
		InodesPerGroup: 8,
		FirstIno:       3,
	}, false)

	var groups []GroupID
	for i := 0; i < 9; i++ {
		ino, err := fs.CreateFile(InoRoot, fmt.Sprintf("f%d", i))
		if err != nil {
			t.Fatalf("creating file `%d`: %v", i, err)
		}
		if wanted := Ino(3 + i); ino != wanted {
			t.Fatalf("file `%d`: wanted ino `%d`; found `%d`", i, wanted, ino)
		}
		location, err := fs.Locate(ino)
		if err != nil {
			t.Fatalf("locating `%d`: %v", ino, err)
		}
		groups = append(groups, location.Group)
	}

	wanted := []GroupID{0, 0, 0, 0, 0, 0, 1, 1, 1}
	if diff := cmp.Diff(wanted, groups); diff != "" {
		t.Fatalf("groups mismatch (-wanted +found):\n%s", diff)
	}

	ok, err := fs.IsAllocated(alloc.ResourceInode, 9)
	if err != nil || !ok {
		t.Fatalf("inode `9` (first of group 1) not allocated (err: %v)", err)
	}
}

func TestDeleteFile(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	blocksBefore, inodesBefore := freeCounts(t, fs)

	ino, err := fs.CreateFile(InoRoot, "file")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := fs.WriteFile(ino, pattern(300*1024)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := fs.DeleteFile(InoRoot, "file"); err != nil {
		t.Fatalf("DeleteFile(): unexpected err: %v", err)
	}

	blocksAfter, inodesAfter := freeCounts(t, fs)
	if blocksAfter != blocksBefore || inodesAfter != inodesBefore {
		t.Fatalf(
			"free (blocks, inodes): wanted `(%d, %d)`; found `(%d, %d)`",
			blocksBefore,
			inodesBefore,
			blocksAfter,
			inodesAfter,
		)
	}

	stat, err := fs.Stat(ino)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if stat.LinksCount != 0 || stat.DTime != uint32(epoch.Unix()) {
		t.Fatalf("unexpected released inode: %+v", stat)
	}

	_, err = fs.Lookup(InoRoot, "file")
	wantKind(t, err, KindNotFound, EntryNotFoundErr)
	wantKind(t, fs.DeleteFile(InoRoot, "file"), KindNotFound, EntryNotFoundErr)
}

func TestDeleteFileWithLinks(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	ino, err := fs.CreateFile(InoRoot, "file")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	inode, err := fs.ReadInode(ino)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	inode.LinksCount = 2
	if err := fs.WriteInode(&inode); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if err := fs.DeleteFile(InoRoot, "file"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if inode, err = fs.ReadInode(ino); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if inode.LinksCount != 1 {
		t.Fatalf("links: wanted `1`; found `%d`", inode.LinksCount)
	}
	if ok, err := fs.IsAllocated(alloc.ResourceInode, uint64(ino)); err != nil || !ok {
		t.Fatalf("inode `%d` should remain allocated (err: %v)", ino, err)
	}
}

func TestDeleteFileRefusals(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	if _, err := fs.CreateDirectory(InoRoot, "dir"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	wantKind(t, fs.DeleteFile(InoRoot, "dir"), KindValidation, IsADirErr)
	wantKind(t, fs.DeleteFile(InoRoot, ".."), KindValidation, InvalidNameErr)
	if _, err := fs.CreateFile(InoRoot, "file"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	wantKind(t, fs.DeleteDirectory(InoRoot, "file"), KindValidation, NotADirErr)
	wantKind(t, fs.RecursiveDeleteDirectory(InoRoot), KindValidation, InvalidInoErr)
}

func TestDeleteDirectoryRecursive(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	blocksBefore, inodesBefore := freeCounts(t, fs)

	mustDir := func(parent Ino, name string) Ino {
		ino, err := fs.CreateDirectory(parent, name)
		if err != nil {
			t.Fatalf("creating directory `%s`: %v", name, err)
		}
		return ino
	}
	mustFile := func(parent Ino, name string, size int) {
		ino, err := fs.CreateFile(parent, name)
		if err != nil {
			t.Fatalf("creating file `%s`: %v", name, err)
		}
		if err := fs.WriteFile(ino, pattern(size)); err != nil {
			t.Fatalf("writing file `%s`: %v", name, err)
		}
	}

	a := mustDir(InoRoot, "a")
	b := mustDir(a, "b")
	c := mustDir(b, "c")
	mustFile(a, "small", 10)
	mustFile(b, "medium", 20*1024)
	mustFile(c, "large", 280*1024)
	mustDir(c, "empty")
	if _, err := fs.CreateFile(InoRoot, "keep"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	keepBlocks, keepInodes := freeCounts(t, fs)

	if err := fs.DeleteDirectory(InoRoot, "a"); err != nil {
		t.Fatalf("DeleteDirectory(): unexpected err: %v", err)
	}

	blocksAfter, inodesAfter := freeCounts(t, fs)
	if blocksAfter != blocksBefore || inodesAfter != inodesBefore-1 {
		t.Fatalf(
			"free (blocks, inodes): wanted `(%d, %d)`; found `(%d, %d)` "+
				"(before delete: `(%d, %d)`)",
			blocksBefore,
			inodesBefore-1,
			blocksAfter,
			inodesAfter,
			keepBlocks,
			keepInodes,
		)
	}

	root, err := fs.Stat(InoRoot)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if root.LinksCount != 2 {
		t.Fatalf("root links: wanted `2`; found `%d`", root.LinksCount)
	}

	entries, err := fs.List(InoRoot)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	if diff := cmp.Diff([]string{".", "..", "keep"}, names); diff != "" {
		t.Fatalf("root entries mismatch (-wanted +found):\n%s", diff)
	}

	for _, ino := range []Ino{a, b, c} {
		if ok, err := fs.IsAllocated(alloc.ResourceInode, uint64(ino)); err != nil || ok {
			t.Fatalf("inode `%d` still allocated (err: %v)", ino, err)
		}
	}
}

func TestReadOnly(t *testing.T) {
	fs := newFS(t, defaultOpts, true)

	_, err := fs.CreateFile(InoRoot, "file")
	wantKind(t, err, KindValidation, ReadOnlyErr)
	_, err = fs.CreateDirectory(InoRoot, "dir")
	wantKind(t, err, KindValidation, ReadOnlyErr)
	wantKind(t, fs.WriteFile(InoRoot, nil), KindValidation, ReadOnlyErr)
	wantKind(t, fs.DeleteFile(InoRoot, "file"), KindValidation, ReadOnlyErr)
	wantKind(t, fs.DeleteDirectory(InoRoot, "dir"), KindValidation, ReadOnlyErr)
	_, err = fs.Allocate(alloc.ResourceBlock)
	wantKind(t, err, KindValidation, ReadOnlyErr)

	if _, err := fs.List(InoRoot); err != nil {
		t.Fatalf("List(): unexpected err: %v", err)
	}
	if info, err := fs.Info(); err != nil || !info.ReadOnly {
		t.Fatalf("Info(): wanted read-only; found `%+v` (err: %v)", info, err)
	}
}

func TestAllocateFree(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	n, err := fs.Allocate(alloc.ResourceInode)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 11 {
		t.Fatalf("wanted `11`; found `%d`", n)
	}
	if err := fs.Free(alloc.ResourceInode, n); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok, err := fs.IsAllocated(alloc.ResourceInode, n); err != nil || ok {
		t.Fatalf("inode `%d` still allocated (err: %v)", n, err)
	}
}

func buildTree(t *testing.T, fs *FileSystem) map[string]Ino {
	t.Helper()
	inos := map[string]Ino{"/": InoRoot}
	for _, p := range []struct {
		parent string
		name   string
		dir    bool
	}{
		{"/", "usr", true},
		{"/", "etc", true},
		{"/", "README", false},
		{"/usr", "lib", true},
		{"/usr", "bin", true},
		{"/usr/bin", "sh", false},
		{"/etc", "hosts", false},
	} {
		var ino Ino
		var err error
		if p.dir {
			ino, err = fs.CreateDirectory(inos[p.parent], p.name)
		} else {
			ino, err = fs.CreateFile(inos[p.parent], p.name)
		}
		if err != nil {
			t.Fatalf("creating `%s/%s`: %v", p.parent, p.name, err)
		}
		key := "/" + p.name
		if p.parent != "/" {
			key = p.parent + key
		}
		inos[key] = ino
	}
	return inos
}

func TestTree(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	inos := buildTree(t, fs)

	tree, err := fs.Tree(InoRoot)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	wanted := &Node{
		Name:     "/",
		Ino:      InoRoot,
		FileType: FileTypeDir,
		Children: []*Node{
			{Name: "README", Ino: inos["/README"], FileType: FileTypeRegular},
			{
				Name:     "etc",
				Ino:      inos["/etc"],
				FileType: FileTypeDir,
				Children: []*Node{{
					Name:     "hosts",
					Ino:      inos["/etc/hosts"],
					FileType: FileTypeRegular,
				}},
			},
			{
				Name:     "usr",
				Ino:      inos["/usr"],
				FileType: FileTypeDir,
				Children: []*Node{
					{
						Name:     "bin",
						Ino:      inos["/usr/bin"],
						FileType: FileTypeDir,
						Children: []*Node{{
							Name:     "sh",
							Ino:      inos["/usr/bin/sh"],
							FileType: FileTypeRegular,
						}},
					},
					{Name: "lib", Ino: inos["/usr/lib"], FileType: FileTypeDir},
				},
			},
		},
	}
	if diff := cmp.Diff(wanted, tree); diff != "" {
		t.Fatalf("tree mismatch (-wanted +found):\n%s", diff)
	}
}

func TestWalk(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	inos := buildTree(t, fs)

	var paths []string
	if err := fs.Walk(InoRoot, func(p string, entry directory.Entry) error {
		if inos[p] != entry.Ino {
			return fmt.Errorf("`%s`: wanted ino `%d`; found `%d`", p, inos[p], entry.Ino)
		}
		paths = append(paths, p)
		return nil
	}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	wanted := []string{
		"/README",
		"/etc",
		"/etc/hosts",
		"/usr",
		"/usr/bin",
		"/usr/bin/sh",
		"/usr/lib",
	}
	if diff := cmp.Diff(wanted, paths); diff != "" {
		t.Fatalf("paths mismatch (-wanted +found):\n%s", diff)
	}

	// The callback may use the session while the walk is in progress.
	var sizes Byte
	if err := fs.Walk(InoRoot, func(_ string, entry directory.Entry) error {
		inode, err := fs.Stat(entry.Ino)
		if err != nil {
			return err
		}
		sizes += inode.Size
		return nil
	}); err != nil {
		t.Fatalf("walking with Stat: unexpected err: %v", err)
	}
	if sizes == 0 {
		t.Fatalf("wanted non-zero total size; found `%d`", sizes)
	}

	stop := errors.New("stop")
	if err := fs.Walk(InoRoot, func(string, directory.Entry) error {
		return stop
	}); !errors.Is(err, stop) {
		t.Fatalf("wanted `%v`; found `%v`", stop, err)
	}
}

func TestResolve(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	inos := buildTree(t, fs)

	for _, p := range []string{"/", "/usr/bin/sh", "/usr//bin/", "/etc/hosts"} {
		found, err := fs.Resolve(p)
		if err != nil {
			t.Fatalf("Resolve(`%s`): unexpected err: %v", p, err)
		}
		wanted := inos[p]
		if p == "/usr//bin/" {
			wanted = inos["/usr/bin"]
		}
		if found != wanted {
			t.Fatalf("Resolve(`%s`): wanted `%d`; found `%d`", p, wanted, found)
		}
	}

	_, err := fs.Resolve("usr")
	wantKind(t, err, KindValidation, NotAbsolutePathErr)
	_, err = fs.Resolve("/usr/missing")
	wantKind(t, err, KindNotFound, EntryNotFoundErr)
	_, err = fs.Resolve("/README/x")
	wantKind(t, err, KindValidation, NotADirErr)

	parent, name, err := fs.ResolveParent("/usr/bin/new")
	if err != nil {
		t.Fatalf("ResolveParent(): unexpected err: %v", err)
	}
	if parent != inos["/usr/bin"] || name != "new" {
		t.Fatalf(
			"ResolveParent(): wanted `(%d, new)`; found `(%d, %s)`",
			inos["/usr/bin"],
			parent,
			name,
		)
	}
	_, _, err = fs.ResolveParent("/")
	wantKind(t, err, KindValidation, InvalidNameErr)
}

func TestInfo(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	info, err := fs.Info()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	wanted := Info{
		PartitionStart: 8 * 512,
		PartitionSize:  4096 * 1024,
		BlockSize:      1024,
		InodeSize:      128,
		BlocksCount:    4096,
		InodesCount:    128,
		BlocksPerGroup: 8192,
		InodesPerGroup: 128,
		FirstDataBlock: 1,
		FirstIno:       11,
		RevLevel:       RevLevelDynamic,
		State:          StateClean,
		// superblock, descriptor table, two bitmaps, 16 inode table blocks
		// and the root directory
		FreeBlocks: 4095 - 21,
		FreeInodes: 118,
		Groups: []GroupInfo{{
			Group:       0,
			FirstBlock:  1,
			BlockBitmap: 3,
			InodeBitmap: 4,
			InodeTable:  5,
		}},
	}
	info.UUID = ""
	if diff := cmp.Diff(wanted, info); diff != "" {
		t.Fatalf("info mismatch (-wanted +found):\n%s", diff)
	}
}

func TestWriteFileExhaustionKeepsLinkedPrefix(t *testing.T) {
	fs := newFS(t, defaultOpts, false)
	ino, err := fs.CreateFile(InoRoot, "file")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	info, err := fs.Info()
	if err != nil {
		t.Fatalf("reading info: %v", err)
	}

	size := int(info.FreeBlocks+1) * int(info.BlockSize)
	err = fs.WriteFile(ino, pattern(size))
	wantKind(t, err, KindExhausted, OutOfBlocksErr)

	free, _ := freeCounts(t, fs)
	if free != 0 {
		t.Fatalf("free blocks: wanted `0`; found `%d`", free)
	}
	taken := info.FreeBlocks

	layout, err := fs.FileBlocks(ino)
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if owned := uint64(len(layout.Owned())); owned != taken {
		t.Fatalf("owned blocks: wanted `%d`; found `%d`", taken, owned)
	}
	for i, mapping := range layout.Data {
		if mapping.Logical != Block(i) {
			t.Fatalf("data block `%d`: wanted logical `%d`; found `%d`", i, i, mapping.Logical)
		}
	}

	inode, err := fs.Stat(ino)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	wantedSectors := uint32(taken * uint64(info.BlockSize/SectorSize))
	if inode.Sectors != wantedSectors {
		t.Fatalf("sectors: wanted `%d`; found `%d`", wantedSectors, inode.Sectors)
	}

	if err := fs.DeleteFile(InoRoot, "file"); err != nil {
		t.Fatalf("deleting file: %v", err)
	}
	if free, _ := freeCounts(t, fs); free != taken {
		t.Fatalf("free blocks after delete: wanted `%d`; found `%d`", taken, free)
	}
}

func TestWriteFileIOFailureLeaksTakenBlocks(t *testing.T) {
	disk := &testsupport.VolumeFake{
		Inner:      testsupport.Image(t, defaultOpts),
		WriteQuota: -1,
	}
	fs := openFS(t, disk, 0, false)
	ino, err := fs.CreateFile(InoRoot, "file")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	blocksBefore, _ := freeCounts(t, fs)

	// each data block costs a bitmap write and a data write; let the first
	// three blocks through and fail on the fourth block's data
	disk.Writes, disk.WriteQuota = 0, 7
	err = fs.WriteFile(ino, pattern(10*1024))
	wantKind(t, err, KindIO, ShortIOErr)

	// the inode write fails too, so nothing references the four blocks the
	// bitmap shows as taken
	disk.WriteQuota = -1
	blocksAfter, _ := freeCounts(t, fs)
	if used := blocksBefore - blocksAfter; used != 4 {
		t.Fatalf("blocks taken: wanted `4`; found `%d`", used)
	}
	layout, err := fs.FileBlocks(ino)
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if owned := len(layout.Owned()); owned != 0 {
		t.Fatalf("owned blocks: wanted `0`; found `%d`", owned)
	}
}
