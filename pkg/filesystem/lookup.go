package filesystem

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/weberc2/ext2img/pkg/blockmap"
	"github.com/weberc2/ext2img/pkg/directory"
	. "github.com/weberc2/ext2img/pkg/types"
)

// Lookup finds the entry name in directory dir.
func (fs *FileSystem) Lookup(dir Ino, name string) (directory.Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lookup(dir, name)
}

func (fs *FileSystem) lookup(dir Ino, name string) (directory.Entry, error) {
	_, block, err := fs.readDir(dir)
	if err != nil {
		return directory.Entry{}, err
	}
	entry, err := directory.Lookup(block, name)
	if err != nil {
		return directory.Entry{}, dirError(
			fmt.Sprintf("looking up `%s`", name),
			dir,
			err,
		)
	}
	return entry, nil
}

// Resolve walks an absolute path from the root directory and returns the
// inode it names.
func (fs *FileSystem) Resolve(p string) (Ino, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !strings.HasPrefix(p, "/") {
		return InoNil, &Error{
			Kind: KindValidation,
			Op:   fmt.Sprintf("resolving path `%s`", p),
			Err:  NotAbsolutePathErr,
		}
	}
	ino := InoRoot
	for _, chunk := range strings.Split(p, "/") {
		if chunk == "" {
			continue
		}
		entry, err := fs.lookup(ino, chunk)
		if err != nil {
			return InoNil, fmt.Errorf("resolving path `%s`: %w", p, err)
		}
		ino = entry.Ino
	}
	return ino, nil
}

// ResolveParent resolves every component of p but the last and returns
// the containing directory along with the final name.
func (fs *FileSystem) ResolveParent(p string) (Ino, string, error) {
	p = path.Clean(p)
	dir, name := path.Split(p)
	if name == "" || name == "/" {
		return InoNil, "", &Error{
			Kind: KindValidation,
			Op:   fmt.Sprintf("resolving parent of `%s`", p),
			Err:  InvalidNameErr,
		}
	}
	parent, err := fs.Resolve(dir)
	if err != nil {
		return InoNil, "", err
	}
	return parent, name, nil
}

// List returns the live entries of directory dir in on-disk order.
func (fs *FileSystem) List(dir Ino) ([]directory.Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, block, err := fs.readDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := directory.Parse(block)
	if err != nil {
		return nil, dirError("listing directory", dir, err)
	}
	return entries, nil
}

type Node struct {
	Name     string   `json:"name" yaml:"name"`
	Ino      Ino      `json:"ino" yaml:"ino"`
	FileType FileType `json:"type" yaml:"type"`
	Children []*Node  `json:"children,omitempty" yaml:"children,omitempty"`
}

// Tree returns the directory tree under dir with every level sorted by
// name. "." and ".." are omitted.
func (fs *FileSystem) Tree(dir Ino) (*Node, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	root := &Node{Name: "/", Ino: dir, FileType: FileTypeDir}
	stack := []*Node{root}
	seen := map[Ino]struct{}{dir: {}}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := fs.children(node.Ino)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			childNode := &Node{
				Name:     child.Name,
				Ino:      child.Ino,
				FileType: child.FileType,
			}
			node.Children = append(node.Children, childNode)
			if child.FileType != FileTypeDir {
				continue
			}
			if _, ok := seen[child.Ino]; ok {
				continue
			}
			seen[child.Ino] = struct{}{}
			stack = append(stack, childNode)
		}
	}
	return root, nil
}

// Walk calls fn for every entry beneath dir, depth first with each level
// sorted by name, passing the entry's path relative to dir. The entries are
// collected before fn runs, so fn may call back into fs.
func (fs *FileSystem) Walk(
	dir Ino,
	fn func(p string, entry directory.Entry) error,
) error {
	entries, err := fs.walk(dir)
	if err != nil {
		return err
	}
	for _, next := range entries {
		if err := fn(next.path, next.entry); err != nil {
			return err
		}
	}
	return nil
}

type walkEntry struct {
	path  string
	entry directory.Entry
}

func (fs *FileSystem) walk(dir Ino) ([]walkEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var stack, entries []walkEntry
	push := func(prefix string, ino Ino) error {
		children, err := fs.children(ino)
		if err != nil {
			return err
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, walkEntry{
				path:  path.Join(prefix, children[i].Name),
				entry: children[i],
			})
		}
		return nil
	}

	if err := push("/", dir); err != nil {
		return nil, err
	}
	seen := map[Ino]struct{}{dir: {}}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries = append(entries, next)
		if next.entry.FileType != FileTypeDir {
			continue
		}
		if _, ok := seen[next.entry.Ino]; ok {
			continue
		}
		seen[next.entry.Ino] = struct{}{}
		if err := push(next.path, next.entry.Ino); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// children returns the entries of dir other than "." and "..", sorted by
// name.
func (fs *FileSystem) children(dir Ino) ([]directory.Entry, error) {
	_, block, err := fs.readDir(dir)
	if err != nil {
		return nil, err
	}
	children, err := directory.Children(block)
	if err != nil {
		return nil, dirError("listing directory", dir, err)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Name < children[j].Name
	})
	return children, nil
}

// Stat returns the inode record of ino.
func (fs *FileSystem) Stat(ino Ino) (Inode, error) {
	return fs.ReadInode(ino)
}

// FileBlocks lists the data and pointer-table blocks owned by ino.
func (fs *FileSystem) FileBlocks(ino Ino) (blockmap.Layout, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := fs.inodes.Read(ino)
	if err != nil {
		return blockmap.Layout{}, err
	}
	return fs.mapper.Layout(&file)
}
