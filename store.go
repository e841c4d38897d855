package sqfl

import (
	"io"
	"os"
)

// Store is what the image reader needs from a backing byte store: a
// positioned-read surface. Both *os.File and *MemStore satisfy this
// directly.
type Store interface {
	io.ReaderAt
}

// SeekWriter is what the writer needs: forward writes plus the ability to
// seek backward to patch fixed-size fields (parent-inode back-references,
// the header) once their final value is known.
type SeekWriter interface {
	io.Writer
	io.Seeker
}

// FileStore is a byte store backed by an open host file. *os.File already
// implements io.ReaderAt/io.Writer/io.Seeker in the standard library, so
// FileStore exists only to give callers a named, documented entry point;
// its Close comes from the embedded *os.File (MemStore has no Close, and
// Image.Close skips stores without one).
type FileStore struct {
	*os.File
}

// OpenFileStore opens path read-only as a Store for Open/OpenFile.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, "opening image file", err)
	}
	return &FileStore{File: f}, nil
}

// CreateFileStore creates (or truncates) path as a SeekWriter for
// WriteImage.
func CreateFileStore(path string) (*FileStore, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, wrapErr(KindIO, "creating image file", err)
	}
	return &FileStore{File: f}, nil
}

// MemStore is an in-memory byte store. Reads are served directly from the
// backing slice; writes grow the slice and
// track a logical write cursor so the writer can seek backward to patch
// parent-inode fields the same way it would against a file.
type MemStore struct {
	buf []byte
	pos int64
}

// NewMemStore wraps an existing byte slice for reading (e.g. an image
// produced elsewhere, or a fuzz corpus entry). The slice is used directly,
// not copied.
func NewMemStore(buf []byte) *MemStore {
	return &MemStore{buf: buf}
}

// Bytes returns the store's current backing slice. The caller must not
// retain it across further writes, which may reallocate.
func (m *MemStore) Bytes() []byte { return m.buf }

func (m *MemStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, wrapErr(KindIO, "negative read offset", os.ErrInvalid)
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemStore) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *MemStore) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.buf)) + offset
	default:
		return 0, wrapErr(KindIO, "invalid seek whence", os.ErrInvalid)
	}
	if target < 0 {
		return 0, wrapErr(KindIO, "negative seek position", os.ErrInvalid)
	}
	m.pos = target
	return m.pos, nil
}

// ReadExactAt reads exactly len(buf) bytes from r at offset, looping over
// short reads. A short read that reaches EOF before buf is
// full is reported as ErrUnexpectedEOF; any other read error is wrapped
// with KindIO.
func ReadExactAt(r io.ReaderAt, buf []byte, offset int64) error {
	for len(buf) > 0 {
		n, err := r.ReadAt(buf, offset)
		if n > 0 {
			buf = buf[n:]
			offset += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				if len(buf) > 0 {
					return ErrUnexpectedEOF
				}
				return nil
			}
			return wrapErr(KindIO, "positioned read", err)
		}
		if n == 0 {
			return ErrUnexpectedEOF
		}
	}
	return nil
}
