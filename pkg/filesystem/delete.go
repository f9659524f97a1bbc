package filesystem

import (
	"fmt"

	"github.com/weberc2/ext2img/pkg/directory"
	. "github.com/weberc2/ext2img/pkg/types"
)

// DeleteFile removes the entry name from directory parent and drops a link
// from its inode. When no links remain the inode's blocks and the inode
// are freed. Directories are refused.
func (fs *FileSystem) DeleteFile(parentIno Ino, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	op := fmt.Sprintf("deleting file `%s`", name)
	if err := fs.checkWritable(op); err != nil {
		return err
	}
	if directory.IsDot(name) {
		return dirError(op, parentIno, InvalidNameErr)
	}
	parent, block, err := fs.readDir(parentIno)
	if err != nil {
		return err
	}
	entry, err := directory.Lookup(block, name)
	if err != nil {
		return dirError(op, parentIno, err)
	}

	target, err := fs.inodes.Read(entry.Ino)
	if err != nil {
		return err
	}
	if target.IsDir() {
		return &Error{Kind: KindValidation, Op: op, Ino: target.Ino, Err: IsADirErr}
	}

	if err := fs.unlink(&target); err != nil {
		return err
	}
	if _, err := directory.Remove(block, name); err != nil {
		return dirError(op, parentIno, err)
	}
	if err := fs.writeDirBlock(&parent, block); err != nil {
		return err
	}

	now := fs.timestamp()
	parent.MTime = now
	parent.CTime = now
	if err := fs.inodes.Write(&parent); err != nil {
		return err
	}
	fs.logger.Debug(
		"deleted entry",
		"op", "delete-file",
		"parent", parentIno,
		"name", name,
		"ino", target.Ino,
	)
	return nil
}

// DeleteDirectory deletes the directory name inside parent along with
// everything beneath it, then removes its entry and the link its ".." held
// on parent.
func (fs *FileSystem) DeleteDirectory(parentIno Ino, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	op := fmt.Sprintf("deleting directory `%s`", name)
	if err := fs.checkWritable(op); err != nil {
		return err
	}
	if directory.IsDot(name) {
		return dirError(op, parentIno, InvalidNameErr)
	}
	parent, block, err := fs.readDir(parentIno)
	if err != nil {
		return err
	}
	entry, err := directory.Lookup(block, name)
	if err != nil {
		return dirError(op, parentIno, err)
	}
	target, err := fs.inodes.Read(entry.Ino)
	if err != nil {
		return err
	}
	if !target.IsDir() {
		return &Error{Kind: KindValidation, Op: op, Ino: target.Ino, Err: NotADirErr}
	}

	if err := fs.recursiveDelete(target.Ino); err != nil {
		return err
	}

	// the subtree may have written nothing to parent's block, but re-read
	// it anyway since it is the source of truth
	parent, block, err = fs.readDir(parentIno)
	if err != nil {
		return err
	}
	if _, err := directory.Remove(block, name); err != nil {
		return dirError(op, parentIno, err)
	}
	if err := fs.writeDirBlock(&parent, block); err != nil {
		return err
	}

	if parent.LinksCount > 0 {
		parent.LinksCount--
	}
	now := fs.timestamp()
	parent.MTime = now
	parent.CTime = now
	if err := fs.inodes.Write(&parent); err != nil {
		return err
	}
	fs.logger.Debug(
		"deleted entry",
		"op", "delete-directory",
		"parent", parentIno,
		"name", name,
		"ino", target.Ino,
	)
	return nil
}

// RecursiveDeleteDirectory frees everything beneath directory dir and then
// dir itself. It doesn't touch the entry pointing at dir.
func (fs *FileSystem) RecursiveDeleteDirectory(dir Ino) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable("deleting directory"); err != nil {
		return err
	}
	return fs.recursiveDelete(dir)
}

type pendingDir struct {
	ino      Ino
	expanded bool
}

// recursiveDelete walks the tree under root with an explicit stack and
// frees it in post-order: a directory is released only once every entry
// in it has been. Regular files lose the link their entry held and are
// freed, blocks included, once they have none left.
func (fs *FileSystem) recursiveDelete(root Ino) error {
	if root == InoRoot {
		return &Error{
			Kind: KindValidation,
			Op:   "deleting directory",
			Ino:  root,
			Err:  fmt.Errorf("refusing to delete the root directory: %w", InvalidInoErr),
		}
	}

	stack := []pendingDir{{ino: root}}
	seen := map[Ino]struct{}{root: {}}
	for len(stack) > 0 {
		top := len(stack) - 1
		if stack[top].expanded {
			dir, err := fs.inodes.Read(stack[top].ino)
			if err != nil {
				return err
			}
			if err := fs.release(&dir); err != nil {
				return err
			}
			stack = stack[:top]
			continue
		}

		stack[top].expanded = true
		dirIno := stack[top].ino
		_, block, err := fs.readDir(dirIno)
		if err != nil {
			return err
		}
		children, err := directory.Children(block)
		if err != nil {
			return dirError("deleting directory", dirIno, err)
		}

		for _, child := range children {
			if _, ok := seen[child.Ino]; ok {
				return &Error{
					Kind: KindCorrupt,
					Op:   fmt.Sprintf("deleting directory entry `%s`", child.Name),
					Ino:  child.Ino,
					Err:  fmt.Errorf("inode reached twice: %w", MalformedDirErr),
				}
			}

			target, err := fs.inodes.Read(child.Ino)
			if err != nil {
				return err
			}
			if target.IsDir() {
				seen[child.Ino] = struct{}{}
				stack = append(stack, pendingDir{ino: child.Ino})
				continue
			}
			if err := fs.unlink(&target); err != nil {
				return err
			}
		}
	}
	return nil
}

// unlink drops one link from a non-directory inode and frees it when none
// remain.
func (fs *FileSystem) unlink(target *Inode) error {
	if target.LinksCount > 1 {
		target.LinksCount--
		target.CTime = fs.timestamp()
		return fs.inodes.Write(target)
	}
	return fs.release(target)
}

// release frees every block owned by target and then target itself,
// stamping its deletion time.
func (fs *FileSystem) release(target *Inode) error {
	if err := fs.mapper.Truncate(target, 0); err != nil {
		return fs.persistPartial(target, err)
	}
	now := fs.timestamp()
	target.LinksCount = 0
	target.Size = 0
	target.DTime = now
	target.CTime = now
	if err := fs.inodes.Write(target); err != nil {
		return err
	}
	if err := fs.alloc.FreeInode(target.Ino); err != nil {
		return err
	}
	fs.logger.Debug("freed inode", "ino", target.Ino)
	return nil
}
