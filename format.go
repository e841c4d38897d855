package sqfl

// On-disk format constants. The format has no global mutable state;
// everything here is fixed at compile time.
const (
	// Magic is the 8-byte ASCII signature at the start of every image.
	Magic = "SQUASHFL"

	// VersionMajor and VersionMinor are the only version this package
	// reads or writes.
	VersionMajor uint8 = 0
	VersionMinor uint8 = 0

	// HeaderSize is the fixed size of the Header record.
	HeaderSize = 32
	// InodeSize is the fixed size of the Inode record.
	InodeSize = 32
	// DirentSize is the fixed size of a single Dirent record.
	DirentSize = 16

	// RekeyPeriod is the span of keystream, in bytes, addressable under a
	// single ChaCha20 nonce before the block-index field of the nonce must
	// advance.
	RekeyPeriod uint64 = 1 << 32

	// KeyMaterialSize is the exact length of ChaCha20 key material: a
	// 32-byte key followed by a 4-byte nonce prefix.
	KeyMaterialSize = 36
	chachaKeySize   = 32
	noncePrefixSize = 4

	// LinkLoopMax bounds symlink resolution depth.
	LinkLoopMax = 100
	// LinkTargetMax bounds the length of a single symlink target.
	LinkTargetMax = 1024

	// nameReadChunk is the chunk size used when scanning for a name's NUL
	// terminator.
	nameReadChunk = 32
)

// CompressionType identifies the payload compression scheme. Only None is
// defined; a field exists for forward compatibility but this package
// refuses to read or write anything else.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
)

func (c CompressionType) valid() bool {
	return c == CompressionNone
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	default:
		return "unknown"
	}
}

// EncryptionType identifies the stream cipher, if any, wrapping the byte
// store from just past the header onward.
type EncryptionType uint8

const (
	EncryptionNone     EncryptionType = 0
	EncryptionChaCha20 EncryptionType = 1
)

func (e EncryptionType) valid() bool {
	switch e {
	case EncryptionNone, EncryptionChaCha20:
		return true
	default:
		return false
	}
}

func (e EncryptionType) String() string {
	switch e {
	case EncryptionNone:
		return "none"
	case EncryptionChaCha20:
		return "chacha20"
	default:
		return "unknown"
	}
}

// InodeType identifies what kind of filesystem object an Inode record
// describes.
type InodeType uint8

const (
	InodeDirectory InodeType = 0
	InodeFile      InodeType = 1
	InodeSymlink   InodeType = 2
)

func (t InodeType) valid() bool {
	switch t {
	case InodeDirectory, InodeFile, InodeSymlink:
		return true
	default:
		return false
	}
}

func (t InodeType) String() string {
	switch t {
	case InodeDirectory:
		return "directory"
	case InodeFile:
		return "file"
	case InodeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}
