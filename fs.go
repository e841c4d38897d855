package sqfl

import (
	"io"
	"io/fs"
	"time"
)

// Directory is a typed view over a directory inode: its payload is a
// packed, sorted array of Dirent records.
type Directory struct {
	img   *Image
	inode Inode
}

// File is a typed view over a regular file inode, implementing fs.File and
// io.ReaderAt directly against the image's byte store.
type File struct {
	img    *Image
	inode  Inode
	offset int64
}

// Symlink is a typed view over a symlink inode.
type Symlink struct {
	img   *Image
	inode Inode
}

// FSItem is the typed result of resolving a path or a dirent: exactly one
// of Dir, File, or Link is non-nil, matching the inode's Type.
type FSItem struct {
	Dir  *Directory
	File *File
	Link *Symlink
}

// Root returns the image's root directory.
func (img *Image) Root() (*Directory, error) {
	root, err := img.rootInode()
	if err != nil {
		return nil, err
	}
	if root.Type != InodeDirectory {
		return nil, ErrWrongInodeType
	}
	if root.Size%DirentSize != 0 {
		return nil, ErrBadDirentTable
	}
	return &Directory{img: img, inode: root}, nil
}

func itemFor(img *Image, inode Inode) (FSItem, error) {
	switch inode.Type {
	case InodeDirectory:
		if inode.Size%DirentSize != 0 {
			return FSItem{}, ErrBadDirentTable
		}
		return FSItem{Dir: &Directory{img: img, inode: inode}}, nil
	case InodeFile:
		return FSItem{File: &File{img: img, inode: inode}}, nil
	case InodeSymlink:
		return FSItem{Link: &Symlink{img: img, inode: inode}}, nil
	default:
		return FSItem{}, ErrUnknownInodeType
	}
}

// Len returns the number of entries in the directory.
func (d *Directory) Len() int {
	return int(d.inode.Size / DirentSize)
}

// At reads the i'th dirent record (0-indexed) of the directory's packed
// table, in stored (sorted) order. Most callers want Iter or Resolve; At
// is the raw positional accessor.
func (d *Directory) At(i int) (Dirent, error) {
	if i < 0 || i >= d.Len() {
		return Dirent{}, newErr(KindBounds, "dirent index out of range")
	}
	off := d.inode.Offset + uint64(i)*DirentSize
	return d.img.readDirent(off)
}

// nameOf reads the name referenced by a dirent.
func (d *Directory) nameOf(de Dirent) (string, error) {
	b, err := d.img.readStr(de.Name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Get performs a binary search for name among the directory's sorted
// dirents and returns the matching entry's inode. Returns ErrNotExist if
// no dirent with that name exists.
func (d *Directory) Get(name string) (Inode, error) {
	lo, hi := 0, d.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		de, err := d.At(mid)
		if err != nil {
			return Inode{}, err
		}
		n, err := d.nameOf(de)
		if err != nil {
			return Inode{}, err
		}
		switch {
		case n == name:
			return d.img.readInode(de.Inode)
		case n < name:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return Inode{}, ErrNotExist
}

// Iter calls fn for each entry in the directory in stored (sorted) order,
// stopping early if fn returns false.
func (d *Directory) Iter(fn func(name string, item FSItem) bool) error {
	n := d.Len()
	for i := 0; i < n; i++ {
		de, err := d.At(i)
		if err != nil {
			return err
		}
		name, err := d.nameOf(de)
		if err != nil {
			return err
		}
		inode, err := d.img.readInode(de.Inode)
		if err != nil {
			return err
		}
		item, err := itemFor(d.img, inode)
		if err != nil {
			return err
		}
		if !fn(name, item) {
			break
		}
	}
	return nil
}

// Size returns the file's declared content length.
func (f *File) Size() int64 { return int64(f.inode.Size) }

// ReadAt reads len(p) bytes of file content starting at off, per io.ReaderAt
// semantics clamped to [0, Size()): a read that starts at or past Size
// returns (0, io.EOF); a read that would run past Size returns the bytes
// available followed by io.EOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, wrapErr(KindBounds, "negative read offset", io.EOF)
	}
	size := f.Size()
	if off >= size {
		return 0, io.EOF
	}
	end := off + int64(len(p))
	short := false
	if end > size {
		end = size
		short = true
	}
	want := p[:end-off]
	if err := f.img.readFile(want, f.inode.Offset+uint64(off)); err != nil {
		return 0, err
	}
	if short {
		return len(want), io.EOF
	}
	return len(want), nil
}

// Read implements io.Reader / fs.File by tracking an internal cursor over
// ReadAt.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// Stat implements fs.File.
func (f *File) Stat() (fs.FileInfo, error) {
	return fileInfo{name: "", size: f.Size(), mode: 0}, nil
}

// Close implements fs.File. File views hold no host resources of their
// own (reads go through the shared Image store), so Close is a no-op.
func (f *File) Close() error { return nil }

// Target reads the symlink's target path. The target's declared length is
// checked against LinkTargetMax before the exact-size buffer is allocated,
// so a corrupt or hostile inode.Size can't be used to force an oversized
// allocation.
func (l *Symlink) Target() (string, error) {
	if l.inode.Size > LinkTargetMax {
		return "", ErrSymlinkTooLong
	}
	buf := make([]byte, l.inode.Size)
	if err := l.img.readFile(buf, l.inode.Offset); err != nil {
		return "", err
	}
	return string(buf), nil
}

// fileInfo is a minimal fs.FileInfo; the format carries no mode/perm bits
// or modification time, so Mode/ModTime report zero values rather than
// fabricating data the image doesn't record.
type fileInfo struct {
	name string
	size int64
	mode fs.FileMode
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi fileInfo) Sys() any           { return nil }

// direntry adapts a directory entry to fs.DirEntry for ReadDir-style
// callers (io/fs consumers, Glob, WalkDir).
type direntry struct {
	name string
	item FSItem
}

func (e direntry) Name() string { return e.name }

func (e direntry) IsDir() bool { return e.item.Dir != nil }

func (e direntry) Type() fs.FileMode {
	switch {
	case e.item.Dir != nil:
		return fs.ModeDir
	case e.item.Link != nil:
		return fs.ModeSymlink
	default:
		return 0
	}
}

func (e direntry) Info() (fs.FileInfo, error) {
	var size int64
	mode := e.Type()
	switch {
	case e.item.File != nil:
		size = e.item.File.Size()
	case e.item.Link != nil:
		t, err := e.item.Link.Target()
		if err != nil {
			return nil, err
		}
		size = int64(len(t))
	}
	return fileInfo{name: e.name, size: size, mode: mode}, nil
}

// dirFile adapts a Directory to fs.ReadDirFile so it can be returned from
// an fs.FS's Open.
type dirFile struct {
	dir     *Directory
	name    string
	entries []fs.DirEntry
	read    int
}

func newDirFile(name string, dir *Directory) (*dirFile, error) {
	var entries []fs.DirEntry
	err := dir.Iter(func(n string, item FSItem) bool {
		entries = append(entries, direntry{name: n, item: item})
		return true
	})
	if err != nil {
		return nil, err
	}
	return &dirFile{dir: dir, name: name, entries: entries}, nil
}

func (d *dirFile) Stat() (fs.FileInfo, error) {
	return fileInfo{name: d.name, mode: fs.ModeDir}, nil
}

func (d *dirFile) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *dirFile) Close() error { return nil }

func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if n <= 0 {
		rest := d.entries[d.read:]
		d.read = len(d.entries)
		return rest, nil
	}
	remaining := len(d.entries) - d.read
	if remaining == 0 {
		return nil, io.EOF
	}
	if n > remaining {
		n = remaining
	}
	out := d.entries[d.read : d.read+n]
	d.read += n
	return out, nil
}

// FS returns an fs.FS backed by this image's root directory, so the
// standard library's fs.ReadFile, fs.Glob, and fs.WalkDir work against a
// directory image without the caller touching the typed API directly.
func (img *Image) FS() fs.FS {
	return imgFS{img: img}
}

type imgFS struct{ img *Image }

func (i imgFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	item, err := i.img.Resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	switch {
	case item.Dir != nil:
		return newDirFile(name, item.Dir)
	case item.File != nil:
		return item.File, nil
	default:
		// A symlink that survived Resolve unexpanded (shouldn't happen,
		// since Resolve always follows links to a terminal item) has no
		// sensible fs.File representation.
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
}
