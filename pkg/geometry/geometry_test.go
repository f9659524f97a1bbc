package geometry

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/weberc2/ext2img/pkg/io"
	"github.com/weberc2/ext2img/pkg/mkfs"
	"github.com/weberc2/ext2img/pkg/testsupport"
	. "github.com/weberc2/ext2img/pkg/types"
)

func TestResolve(t *testing.T) {
	type testCase struct {
		name                string
		opts                mkfs.Options
		partition           int
		wantedBlockSize     Byte
		wantedGroupCount    uint64
		wantedFirstData     Block
		wantedInodes        uint64
		wantedTableOffset   Byte
		wantedFirstBitmap   Block
		wantedPartitionBase Byte
	}

	for _, testCase := range []testCase{
		{
			name: "1k-blocks",
			opts: mkfs.Options{
				StartSector:    8,
				BlocksCount:    4096,
				BlocksPerGroup: 1024,
				InodesPerGroup: 64,
			},
			wantedBlockSize:     1024,
			wantedGroupCount:    4,
			wantedFirstData:     1,
			wantedInodes:        256,
			wantedTableOffset:   2048,
			wantedFirstBitmap:   3,
			wantedPartitionBase: 8 * 512,
		},
		{
			name: "4k-blocks",
			opts: mkfs.Options{
				StartSector: 16,
				BlockSize:   4096,
				BlocksCount: 512,
			},
			wantedBlockSize:     4096,
			wantedGroupCount:    1,
			wantedFirstData:     0,
			wantedInodes:        512,
			wantedTableOffset:   4096,
			wantedFirstBitmap:   2,
			wantedPartitionBase: 16 * 512,
		},
		{
			name: "second-partition",
			opts: mkfs.Options{
				Partition:   1,
				StartSector: 4,
				BlocksCount: 1024,
			},
			partition:           1,
			wantedBlockSize:     1024,
			wantedGroupCount:    1,
			wantedFirstData:     1,
			wantedInodes:        256,
			wantedTableOffset:   2048,
			wantedFirstBitmap:   3,
			wantedPartitionBase: 4 * 512,
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			g, err := Resolve(testsupport.Image(t, testCase.opts), testCase.partition)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if g.BlockSize != testCase.wantedBlockSize {
				t.Fatalf(
					"BlockSize: wanted `%d`; found `%d`",
					testCase.wantedBlockSize,
					g.BlockSize,
				)
			}
			if g.GroupCount != testCase.wantedGroupCount {
				t.Fatalf(
					"GroupCount: wanted `%d`; found `%d`",
					testCase.wantedGroupCount,
					g.GroupCount,
				)
			}
			if len(g.Groups) != int(g.GroupCount) {
				t.Fatalf(
					"Groups: wanted `%d`; found `%d`",
					g.GroupCount,
					len(g.Groups),
				)
			}
			if g.FirstDataBlock != testCase.wantedFirstData {
				t.Fatalf(
					"FirstDataBlock: wanted `%d`; found `%d`",
					testCase.wantedFirstData,
					g.FirstDataBlock,
				)
			}
			if g.InodesCount != testCase.wantedInodes {
				t.Fatalf(
					"InodesCount: wanted `%d`; found `%d`",
					testCase.wantedInodes,
					g.InodesCount,
				)
			}
			if found := g.GroupTableOffset(); found != testCase.wantedTableOffset {
				t.Fatalf(
					"GroupTableOffset(): wanted `%d`; found `%d`",
					testCase.wantedTableOffset,
					found,
				)
			}
			if g.Groups[0].BlockBitmap != testCase.wantedFirstBitmap {
				t.Fatalf(
					"Groups[0].BlockBitmap: wanted `%d`; found `%d`",
					testCase.wantedFirstBitmap,
					g.Groups[0].BlockBitmap,
				)
			}
			if found := g.Partition.Offset(); found != testCase.wantedPartitionBase {
				t.Fatalf(
					"partition offset: wanted `%d`; found `%d`",
					testCase.wantedPartitionBase,
					found,
				)
			}
			if found, wanted := g.BlockOffset(3), testCase.wantedPartitionBase+
				3*testCase.wantedBlockSize; found != wanted {
				t.Fatalf("BlockOffset(3): wanted `%d`; found `%d`", wanted, found)
			}
			if g.ReadOnly {
				t.Fatal("ReadOnly: wanted `false`; found `true`")
			}
		})
	}
}

func TestResolveFailures(t *testing.T) {
	opts := mkfs.Options{StartSector: 8, BlocksCount: 1024}
	sbAt := func(offset int) int { return 8*512 + 1024 + offset }

	for _, testCase := range []struct {
		name    string
		mutate  func(b []byte) []byte
		check   func(t *testing.T, err error)
		wantRO  bool
		partIdx int
	}{
		{
			name: "bad-magic",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint16(b[sbAt(0x38):], 0x1234)
				return b
			},
			check: func(t *testing.T, err error) {
				var bad ErrBadMagic
				if !errors.As(err, &bad) || bad.Found != 0x1234 {
					t.Fatalf("wanted `ErrBadMagic{0x1234}`; found `%v`", err)
				}
			},
		},
		{
			name: "incompatible-features",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[sbAt(0x60):], 0x0042)
				return b
			},
			check: func(t *testing.T, err error) {
				var incompat ErrIncompatibleFeatures
				if !errors.As(err, &incompat) || incompat.Found != 0x40 {
					t.Fatalf(
						"wanted `ErrIncompatibleFeatures{0x40}`; found `%v`",
						err,
					)
				}
			},
		},
		{
			name: "huge-block-size",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[sbAt(0x18):], 9)
				return b
			},
			check: func(t *testing.T, err error) {
				var bad ErrBadGeometry
				if !errors.As(err, &bad) || bad.Field != "s_log_block_size" {
					t.Fatalf("wanted `ErrBadGeometry`; found `%v`", err)
				}
			},
		},
		{
			name:    "empty-partition",
			mutate:  func(b []byte) []byte { return b },
			partIdx: 2,
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Fatal("wanted error; found `nil`")
				}
			},
		},
		{
			name: "truncated-image",
			mutate: func(b []byte) []byte {
				return b[:sbAt(1024)]
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ShortIOErr) {
					t.Fatalf("wanted `%v`; found `%v`", ShortIOErr, err)
				}
			},
		},
		{
			name: "unknown-ro-compat",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[sbAt(0x64):], 0x0010)
				return b
			},
			wantRO: true,
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			image := testCase.mutate(testsupport.Image(t, opts).Bytes())
			g, err := Resolve(io.NewBuffer(image), testCase.partIdx)
			if testCase.check == nil {
				if err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				if g.ReadOnly != testCase.wantRO {
					t.Fatalf(
						"ReadOnly: wanted `%t`; found `%t`",
						testCase.wantRO,
						g.ReadOnly,
					)
				}
				return
			}
			testCase.check(t, err)
			if err != nil && KindOf(err) != KindGeometry {
				t.Fatalf("kind: wanted `%v`; found `%v`", KindGeometry, KindOf(err))
			}
		})
	}
}

func TestBlocksInGroup(t *testing.T) {
	g, err := Resolve(
		testsupport.Image(t, mkfs.Options{
			StartSector:    8,
			BlocksCount:    2500,
			BlocksPerGroup: 1024,
			InodesPerGroup: 32,
		}),
		0,
	)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// blocks 1..2499 split into 1024, 1024 and 451
	for group, wanted := range []uint64{1024, 1024, 451} {
		if found := g.BlocksInGroup(GroupID(group)); found != wanted {
			t.Fatalf(
				"BlocksInGroup(%d): wanted `%d`; found `%d`",
				group,
				wanted,
				found,
			)
		}
	}
	if !g.ValidBlock(2499) || g.ValidBlock(2500) || g.ValidBlock(0) {
		t.Fatal("ValidBlock(): wrong bounds")
	}
	if !g.ValidIno(96) || g.ValidIno(97) || g.ValidIno(0) {
		t.Fatal("ValidIno(): wrong bounds")
	}
}

func TestInodesInGroup(t *testing.T) {
	opts := mkfs.Options{
		StartSector:    8,
		BlocksCount:    2500,
		BlocksPerGroup: 1024,
		InodesPerGroup: 32,
	}
	inodesCountAt := 8*512 + 1024

	type testCase struct {
		name        string
		inodesCount uint32
		wanted      []uint64
		wantedErr   bool
	}

	for _, testCase := range []testCase{
		{name: "full", inodesCount: 96, wanted: []uint64{32, 32, 32}},
		{name: "short-last-group", inodesCount: 70, wanted: []uint64{32, 32, 6}},
		{name: "empty-last-group", inodesCount: 64, wantedErr: true},
		{name: "too-many", inodesCount: 97, wantedErr: true},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			image := testsupport.Image(t, opts).Bytes()
			binary.LittleEndian.PutUint32(image[inodesCountAt:], testCase.inodesCount)
			g, err := Resolve(io.NewBuffer(image), 0)
			if testCase.wantedErr {
				var bad ErrBadGeometry
				if !errors.As(err, &bad) || bad.Field != "s_inodes_count" {
					t.Fatalf("wanted `ErrBadGeometry{s_inodes_count}`; found `%v`", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			for group, wanted := range testCase.wanted {
				if found := g.InodesInGroup(GroupID(group)); found != wanted {
					t.Fatalf(
						"InodesInGroup(%d): wanted `%d`; found `%d`",
						group,
						wanted,
						found,
					)
				}
			}
		})
	}

	// a group past the inode count holds none
	g := Geometry{InodesPerGroup: 32, InodesCount: 40}
	if found := g.InodesInGroup(2); found != 0 {
		t.Fatalf("InodesInGroup(2): wanted `0`; found `%d`", found)
	}
}
