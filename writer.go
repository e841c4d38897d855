package sqfl

import (
	"io"
	"os"
	"path/filepath"
	"sort"
)

// WriteOption configures WriteImage.
type WriteOption func(*writeConfig)

type writeConfig struct {
	key         []byte
	copyBufSize int
}

// WithEncryption enables ChaCha20 encryption of everything past the
// header, keyed by material (see KeyMaterialSize). Without this option the
// image is written in cleartext.
func WithEncryption(material []byte) WriteOption {
	return func(c *writeConfig) { c.key = material }
}

// WithCopyBufferSize overrides the buffer size used to stream host file
// contents into the image. The default matches io.Copy's internal default.
func WithCopyBufferSize(n int) WriteOption {
	return func(c *writeConfig) { c.copyBufSize = n }
}

// writer drives a single forward pass over dst: payload bytes are written
// before the inode record that describes them, and parent-inode fields are
// back-patched by seeking once a directory's own inode offset is known.
// Single-writer-only: a writer must not be shared across goroutines.
type writer struct {
	raw    SeekWriter
	body   io.Writer // body == raw, or a cipherWriter wrapping raw
	cipher *cipherWriter
	cfg    writeConfig
}

// WriteImage writes a directory image of the host directory tree rooted at
// sourceDir to dst, which must support both writing and seeking so the
// writer can back-patch fixed-size fields. The header is written last, so
// on success dst is left positioned just past the header (offset
// HeaderSize), not at end-of-image.
func WriteImage(dst SeekWriter, sourceDir string, opts ...WriteOption) error {
	var cfg writeConfig
	for _, o := range opts {
		o(&cfg)
	}

	srcInfo, err := os.Stat(sourceDir)
	if err != nil {
		return wrapErr(KindIO, "stat source directory", err)
	}
	if !srcInfo.IsDir() {
		return ErrSourceNotDirectory
	}

	w := &writer{raw: dst, cfg: cfg}

	if _, err := dst.Seek(HeaderSize, io.SeekStart); err != nil {
		return wrapErr(KindIO, "seeking past header", err)
	}

	var encType EncryptionType = EncryptionNone
	if cfg.key != nil {
		k, err := newKey(cfg.key)
		if err != nil {
			return err
		}
		pos, err := dst.Seek(0, io.SeekCurrent)
		if err != nil {
			return wrapErr(KindIO, "querying position", err)
		}
		cw := newCipherWriter(dst, k, pos)
		w.cipher = cw
		w.body = cw
		encType = EncryptionChaCha20
	} else {
		w.body = dst
	}

	rootOffset, err := w.writeDirectory(sourceDir)
	if err != nil {
		return err
	}

	// The root has no parent other than itself; patch its own
	// ParentInode field now that its offset is known.
	if err := w.patchParent(rootOffset, rootOffset); err != nil {
		return err
	}

	// The header is always written in cleartext, even for an encrypted
	// body, so a reader can validate the format before it has a key.
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return wrapErr(KindIO, "rewinding to header", err)
	}
	h := Header{
		RootInode:       rootOffset,
		VersionMajor:    VersionMajor,
		VersionMinor:    VersionMinor,
		CompressionType: CompressionNone,
		EncryptionType:  encType,
	}
	if _, err := dst.Write(encodeHeader(h)); err != nil {
		return wrapErr(KindIO, "writing header", err)
	}
	return nil
}

// tell returns the writer's current absolute position in the underlying
// stream. When the body is encrypted, w.cipher tracks the logical
// position itself; otherwise the raw stream's own position is queried via
// a zero-length relative seek.
func (w *writer) tell() (uint64, error) {
	if w.cipher != nil {
		pos, err := w.cipher.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, wrapErr(KindIO, "querying position", err)
		}
		return uint64(pos), nil
	}
	pos, err := w.raw.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, wrapErr(KindIO, "querying position", err)
	}
	return uint64(pos), nil
}

func (w *writer) writeAll(p []byte) error {
	_, err := w.body.Write(p)
	if err != nil {
		return wrapErr(KindIO, "writing image body", err)
	}
	return nil
}

// patchParent seeks back to childInodeOffset and overwrites its
// ParentInode field (the first 8 bytes of an Inode record) with
// parentOffset. Apart from WriteImage's final rewind to write the header,
// this is the one place the writer moves backward; it always targets an
// offset already fully written.
func (w *writer) patchParent(childInodeOffset, parentOffset uint64) error {
	buf := make([]byte, 8)
	encodeUint64LE(buf, parentOffset)
	if w.cipher != nil {
		if _, err := w.cipher.Seek(int64(childInodeOffset), io.SeekStart); err != nil {
			return wrapErr(KindIO, "seeking to patch parent", err)
		}
		if _, err := w.cipher.Write(buf); err != nil {
			return wrapErr(KindIO, "patching parent inode", err)
		}
		if _, err := w.cipher.Seek(0, io.SeekEnd); err != nil {
			return wrapErr(KindIO, "seeking to end after patch", err)
		}
		return nil
	}
	end, err := w.raw.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapErr(KindIO, "querying position before patch", err)
	}
	if _, err := w.raw.Seek(int64(childInodeOffset), io.SeekStart); err != nil {
		return wrapErr(KindIO, "seeking to patch parent", err)
	}
	if _, err := w.raw.Write(buf); err != nil {
		return wrapErr(KindIO, "patching parent inode", err)
	}
	if _, err := w.raw.Seek(end, io.SeekStart); err != nil {
		return wrapErr(KindIO, "seeking to end after patch", err)
	}
	return nil
}

func encodeUint64LE(buf []byte, v uint64) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	buf[4] = byte(v >> 32)
	buf[5] = byte(v >> 40)
	buf[6] = byte(v >> 48)
	buf[7] = byte(v >> 56)
}

// writeDirectory writes every child of hostPath (sorted by name, matching
// the dirent table's sort order so lookups can binary-search it), then the
// dirent table itself, then the directory's own inode record, and finally
// back-patches each child's ParentInode now that this directory's inode
// offset is known. It returns the offset of the directory's own inode
// record.
func (w *writer) writeDirectory(hostPath string) (uint64, error) {
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return 0, wrapErr(KindIO, "reading host directory", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)

	type child struct {
		nameOffset  uint64
		inodeOffset uint64
	}
	children := make([]child, 0, len(names))

	for _, name := range names {
		childHostPath := filepath.Join(hostPath, name)
		info, err := os.Lstat(childHostPath)
		if err != nil {
			return 0, wrapErr(KindIO, "stat host entry", err)
		}

		nameOffset, err := w.writeName(name)
		if err != nil {
			return 0, err
		}

		var inodeOffset uint64
		switch {
		case info.IsDir():
			inodeOffset, err = w.writeDirectory(childHostPath)
		case info.Mode()&os.ModeSymlink != 0:
			inodeOffset, err = w.writeSymlink(childHostPath)
		case info.Mode().IsRegular():
			inodeOffset, err = w.writeFile(childHostPath)
		default:
			return 0, ErrNotRegularFile
		}
		if err != nil {
			return 0, err
		}

		children = append(children, child{nameOffset: nameOffset, inodeOffset: inodeOffset})
	}

	direntTableOffset, err := w.tell()
	if err != nil {
		return 0, err
	}
	for _, c := range children {
		if err := w.writeAll(encodeDirent(Dirent{Name: c.nameOffset, Inode: c.inodeOffset})); err != nil {
			return 0, err
		}
	}

	dirInodeOffset, err := w.tell()
	if err != nil {
		return 0, err
	}
	dirInode := Inode{
		ParentInode: 0, // patched by our own caller, or self-patched for the root
		Offset:      direntTableOffset,
		Size:        uint64(len(children)) * DirentSize,
		Type:        InodeDirectory,
	}
	if err := w.writeAll(encodeInode(dirInode)); err != nil {
		return 0, err
	}

	for _, c := range children {
		if err := w.patchParent(c.inodeOffset, dirInodeOffset); err != nil {
			return 0, err
		}
	}

	return dirInodeOffset, nil
}

// writeName writes name followed by a NUL terminator and returns the
// offset it started at, for use as a Dirent.Name value.
func (w *writer) writeName(name string) (uint64, error) {
	offset, err := w.tell()
	if err != nil {
		return 0, err
	}
	buf := make([]byte, len(name)+1)
	copy(buf, name)
	if err := w.writeAll(buf); err != nil {
		return 0, err
	}
	return offset, nil
}

// writeFile streams the host file's contents as the payload, then writes
// its inode record, and returns the inode record's offset.
func (w *writer) writeFile(hostPath string) (uint64, error) {
	f, err := os.Open(hostPath)
	if err != nil {
		return 0, wrapErr(KindIO, "opening host file", err)
	}
	defer f.Close()

	payloadOffset, err := w.tell()
	if err != nil {
		return 0, err
	}

	var buf []byte
	if w.cfg.copyBufSize > 0 {
		buf = make([]byte, w.cfg.copyBufSize)
	}
	n, err := io.CopyBuffer(w.body, f, buf)
	if err != nil {
		return 0, wrapErr(KindIO, "copying file contents", err)
	}

	inodeOffset, err := w.tell()
	if err != nil {
		return 0, err
	}
	inode := Inode{Offset: payloadOffset, Size: uint64(n), Type: InodeFile}
	if err := w.writeAll(encodeInode(inode)); err != nil {
		return 0, err
	}
	return inodeOffset, nil
}

// writeSymlink writes the symlink's target as an exact-size payload (no
// NUL terminator: its length is recorded in the inode, matching how
// Symlink.Target reads it back), then the inode record.
func (w *writer) writeSymlink(hostPath string) (uint64, error) {
	target, err := os.Readlink(hostPath)
	if err != nil {
		return 0, wrapErr(KindIO, "reading host symlink", err)
	}
	if len(target) > LinkTargetMax {
		return 0, ErrSymlinkTooLong
	}

	payloadOffset, err := w.tell()
	if err != nil {
		return 0, err
	}
	if err := w.writeAll([]byte(target)); err != nil {
		return 0, err
	}

	inodeOffset, err := w.tell()
	if err != nil {
		return 0, err
	}
	inode := Inode{Offset: payloadOffset, Size: uint64(len(target)), Type: InodeSymlink}
	if err := w.writeAll(encodeInode(inode)); err != nil {
		return 0, err
	}
	return inodeOffset, nil
}
