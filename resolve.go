package sqfl

import (
	"strings"
)

// Resolve walks path from the image root, expanding symlinks as it
// encounters them, and returns the terminal item. Absolute paths ("/a/b")
// and relative paths ("a/b") behave identically here since the walk starts
// at the root either way; use Directory.Resolve to walk from somewhere
// else. "." and ".." are handled as ordinary path components; ".." at the
// root resolves to the root itself.
func (img *Image) Resolve(path string) (FSItem, error) {
	root, err := img.Root()
	if err != nil {
		return FSItem{}, err
	}
	return img.resolveFrom(root, root, path, 0)
}

// Resolve walks path starting at this directory. A leading "/" restarts
// the walk at the image root, so "/a/b" names the same item no matter
// which directory Resolve is called on.
func (d *Directory) Resolve(path string) (FSItem, error) {
	root, err := d.img.Root()
	if err != nil {
		return FSItem{}, err
	}
	return d.img.resolveFrom(root, d, path, 0)
}

// resolveFrom walks path starting at start. trueRoot is always the image's
// actual root directory, independent of recursion depth, so that an
// absolute symlink target encountered several levels into a symlink chain
// still resolves against the image root rather than whatever directory
// happened to contain the symlink that led here.
func (img *Image) resolveFrom(trueRoot, start *Directory, path string, linkDepth int) (FSItem, error) {
	if strings.HasPrefix(path, "/") {
		start = trueRoot
		path = strings.TrimPrefix(path, "/")
	}
	if path == "" || path == "." {
		return FSItem{Dir: start}, nil
	}

	parts := strings.Split(path, "/")
	cur := FSItem{Dir: start}

	for i, part := range parts {
		if part == "" || part == "." {
			continue
		}
		dir := cur.Dir
		if dir == nil {
			// A non-final path component pointed at a file or symlink
			// that wasn't itself a directory.
			return FSItem{}, ErrNotDirectory
		}
		if part == ".." {
			parentInode, err := img.readInode(dir.inode.ParentInode)
			if err != nil {
				return FSItem{}, err
			}
			parent, err := itemFor(img, parentInode)
			if err != nil {
				return FSItem{}, err
			}
			if parent.Dir == nil {
				return FSItem{}, ErrNotDirectory
			}
			cur = parent
			continue
		}

		inode, err := dir.Get(part)
		if err != nil {
			return FSItem{}, err
		}
		item, err := itemFor(img, inode)
		if err != nil {
			return FSItem{}, err
		}

		if item.Link != nil {
			linkDepth++
			if linkDepth > LinkLoopMax {
				return FSItem{}, ErrTooManySymlinks
			}
			target, err := item.Link.Target()
			if err != nil {
				return FSItem{}, err
			}
			resolved, err := img.resolveFrom(trueRoot, dir, target, linkDepth)
			if err != nil {
				return FSItem{}, err
			}
			if i < len(parts)-1 && resolved.Dir == nil {
				return FSItem{}, ErrNotDirectory
			}
			cur = resolved
			continue
		}

		cur = item
	}

	return cur, nil
}
