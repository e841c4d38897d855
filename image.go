package sqfl

import (
	"io"
)

// Image is an opened directory image: a validated header plus a
// (possibly cipher-wrapped) byte store, ready for positioned inode/dirent/
// string/file reads. All reads are safe to call concurrently from
// independent goroutines.
type Image struct {
	store  Store
	header Header
}

// OpenOption configures Open/OpenFile.
type OpenOption func(*openConfig)

type openConfig struct {
	key []byte
}

// WithKey supplies the decryption key material for an encrypted image.
// Required (and only meaningful) when the image's EncryptionType is
// EncryptionChaCha20.
func WithKey(material []byte) OpenOption {
	return func(c *openConfig) { c.key = material }
}

// Open validates the header at offset 0 of store, installs a decryption
// wrapper if the image declares one, and returns a ready-to-use Image.
func Open(store Store, opts ...OpenOption) (*Image, error) {
	var cfg openConfig
	for _, o := range opts {
		o(&cfg)
	}

	raw := make([]byte, HeaderSize)
	if err := ReadExactAt(store, raw, 0); err != nil {
		return nil, err
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	var effective Store = store
	switch h.EncryptionType {
	case EncryptionNone:
		// pass-through
	case EncryptionChaCha20:
		if cfg.key == nil {
			return nil, ErrMissingKey
		}
		k, err := newKey(cfg.key)
		if err != nil {
			return nil, err
		}
		effective = newCipherStore(store, k)
	}

	return &Image{store: effective, header: h}, nil
}

// OpenFile is a convenience wrapper that opens path as a FileStore and
// calls Open on it.
func OpenFile(path string, opts ...OpenOption) (*Image, error) {
	fs, err := OpenFileStore(path)
	if err != nil {
		return nil, err
	}
	img, err := Open(fs, opts...)
	if err != nil {
		fs.Close()
		return nil, err
	}
	return img, nil
}

// Close releases the underlying store's resources, if it supports that
// (FileStore does; MemStore is a no-op).
func (img *Image) Close() error {
	if c, ok := img.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (img *Image) readInode(offset uint64) (Inode, error) {
	buf := make([]byte, InodeSize)
	if err := ReadExactAt(img.store, buf, int64(offset)); err != nil {
		return Inode{}, err
	}
	return decodeInode(buf)
}

func (img *Image) readDirent(offset uint64) (Dirent, error) {
	buf := make([]byte, DirentSize)
	if err := ReadExactAt(img.store, buf, int64(offset)); err != nil {
		return Dirent{}, err
	}
	return decodeDirent(buf)
}

func (img *Image) readStr(offset uint64) ([]byte, error) {
	return readName(img.store, offset)
}

// readFile performs an exact positioned read of the payload bytes at
// offset (file contents or symlink target).
func (img *Image) readFile(buf []byte, offset uint64) error {
	return ReadExactAt(img.store, buf, int64(offset))
}

func (img *Image) rootInode() (Inode, error) {
	return img.readInode(img.header.RootInode)
}

// RootInodeOffset returns the absolute offset of the root inode record, as
// recorded in the header.
func (img *Image) RootInodeOffset() uint64 { return img.header.RootInode }

// Version returns the format version the image was written with.
func (img *Image) Version() (major, minor uint8) {
	return img.header.VersionMajor, img.header.VersionMinor
}

// Compression returns the image's declared payload compression scheme.
func (img *Image) Compression() CompressionType { return img.header.CompressionType }

// Encryption returns the image's declared encryption scheme.
func (img *Image) Encryption() EncryptionType { return img.header.EncryptionType }
