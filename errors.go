package sqfl

import (
	"fmt"
	"io/fs"
)

// Kind classifies the broad family an Error belongs to: I/O failures,
// malformed on-disk data, out-of-bounds offsets/sizes, crypto setup
// problems, and operations invalid for the inode type involved.
type Kind int

const (
	// KindIO covers failures from the underlying byte store, including an
	// unexpected EOF during an exact-length read.
	KindIO Kind = iota
	// KindFormat covers magic mismatch, unsupported version, unknown enum
	// discriminants, and malformed strings/tables.
	KindFormat
	// KindBounds covers offsets/sizes outside the expected payload, symlink
	// targets or loop depth exceeding their limits, and unsupported
	// compression.
	KindBounds
	// KindCrypto covers missing/invalid key material and cipher-seek
	// overflow.
	KindCrypto
	// KindInvalidOperation covers dirent reads on non-directory inodes and
	// path traversal through a non-directory.
	KindInvalidOperation
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	case KindBounds:
		return "bounds"
	case KindCrypto:
		return "crypto"
	case KindInvalidOperation:
		return "invalid operation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type returned by this package. It carries a
// Kind so callers can branch on the broad category with IsKind, and can
// still errors.Is/errors.As to a more specific sentinel or the underlying
// I/O cause via Unwrap.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sqfl: %s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("sqfl: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match a sentinel Error even after withCause has wrapped
// it with a different underlying cause (the Kind+Msg pair identifies the
// sentinel; the cause is incidental context).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, k Kind) bool {
	var se *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			se = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return se != nil && se.Kind == k
}

func newErr(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

func wrapErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Err: cause}
}

// withCause returns a copy of a sentinel Error with cause attached, so the
// original I/O error survives in Unwrap() without mutating the shared
// sentinel value.
func (e *Error) withCause(cause error) *Error {
	return &Error{Kind: e.Kind, Msg: e.Msg, Err: cause}
}

// Package-level sentinels for specific, commonly-matched conditions.
// Compare against these with errors.Is, or against the broader category
// with IsKind.
var (
	// ErrInvalidMagic is returned when the header magic does not equal Magic.
	ErrInvalidMagic = newErr(KindFormat, "wrong magic")
	// ErrUnsupportedVersion is returned when the header version isn't 0.0.
	ErrUnsupportedVersion = newErr(KindFormat, "unsupported version")
	// ErrUnsupportedCompression is returned for any CompressionType other
	// than None.
	ErrUnsupportedCompression = newErr(KindBounds, "unsupported compression type")
	// ErrUnknownEncryption is returned for any EncryptionType discriminant
	// this package doesn't know.
	ErrUnknownEncryption = newErr(KindFormat, "unknown encryption type")
	// ErrUnknownInodeType is returned for any InodeType discriminant this
	// package doesn't know.
	ErrUnknownInodeType = newErr(KindFormat, "unknown inode type")
	// ErrBadDirentTable is returned when a directory's size isn't a
	// multiple of the dirent record size.
	ErrBadDirentTable = newErr(KindFormat, "dirent table size not a multiple of entry size")
	// ErrNotDirectory is returned when a directory operation is attempted
	// on a non-directory inode, or path traversal meets a non-directory.
	ErrNotDirectory = newErr(KindInvalidOperation, "not a directory")
	// ErrWrongInodeType is returned when a typed handle (File/Directory/
	// Symlink) is constructed over an inode of a different recorded type.
	ErrWrongInodeType = newErr(KindFormat, "inode type does not match requested view")
	// ErrTooManySymlinks is returned when symlink resolution exceeds
	// LinkLoopMax.
	ErrTooManySymlinks = newErr(KindBounds, "too many levels of symbolic links")
	// ErrSymlinkTooLong is returned when a symlink target exceeds
	// LinkTargetMax.
	ErrSymlinkTooLong = newErr(KindBounds, "symlink target too long")
	// ErrMissingKey is returned when an encrypted image is opened without a
	// key.
	ErrMissingKey = newErr(KindCrypto, "no key provided for encrypted image")
	// ErrWrongKeyLength is returned when the supplied key material isn't
	// exactly KeyMaterialSize bytes.
	ErrWrongKeyLength = newErr(KindCrypto, "invalid key length")
	// ErrUnexpectedEOF is returned when a positioned exact read runs past
	// the end of the underlying store.
	ErrUnexpectedEOF = newErr(KindIO, "unexpected EOF")
	// ErrMalformedString is returned when a name string runs off the end
	// of the store before a NUL terminator is found.
	ErrMalformedString = newErr(KindFormat, "unterminated name string")
	// ErrNotRegularFile is returned by the writer when asked to pack a
	// filesystem entry that is neither a regular file, directory, nor
	// symlink.
	ErrNotRegularFile = newErr(KindInvalidOperation, "unsupported source file type")
	// ErrSourceNotDirectory is returned by WriteImage when the source path
	// is not a directory.
	ErrSourceNotDirectory = newErr(KindInvalidOperation, "root is not a directory")
	// ErrCipherSeekOverflow is returned when positioning the keystream at a
	// stream offset (for a read or a write) would overflow the stream
	// cipher's 32-bit block counter.
	ErrCipherSeekOverflow = newErr(KindCrypto, "cipher seek overflow")
	// ErrNotExist is returned when a directory lookup finds no entry with
	// the requested name. It unwraps to fs.ErrNotExist so callers going
	// through the fs.FS view get the standard io/fs sentinel for free.
	ErrNotExist = wrapErr(KindBounds, "name not found in directory", fs.ErrNotExist)
)
