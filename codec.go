package sqfl

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Header is the 32-byte record at absolute offset 0 of every image.
// Decoded/encoded field-by-field with encoding/binary rather than via
// struct punning or reflection, so every discriminant is validated as it
// comes off the wire.
type Header struct {
	RootInode       uint64
	VersionMajor    uint8
	VersionMinor    uint8
	CompressionType CompressionType
	EncryptionType  EncryptionType
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, wrapErr(KindIO, "short header buffer", io.ErrUnexpectedEOF)
	}
	var h Header
	if !bytes.Equal(buf[0:8], []byte(Magic)) {
		return Header{}, ErrInvalidMagic
	}
	h.RootInode = binary.LittleEndian.Uint64(buf[8:16])
	h.VersionMajor = buf[16]
	h.VersionMinor = buf[17]
	h.CompressionType = CompressionType(buf[18])
	h.EncryptionType = EncryptionType(buf[19])
	// buf[20:32] is the reserved, zero-filled tail; not validated, to
	// allow future extension fields readers of this version ignore.

	if h.VersionMajor != VersionMajor || h.VersionMinor != VersionMinor {
		return Header{}, ErrUnsupportedVersion
	}
	if !h.EncryptionType.valid() {
		return Header{}, ErrUnknownEncryption
	}
	if !h.CompressionType.valid() {
		return Header{}, ErrUnsupportedCompression
	}
	return h, nil
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], Magic)
	binary.LittleEndian.PutUint64(buf[8:16], h.RootInode)
	buf[16] = h.VersionMajor
	buf[17] = h.VersionMinor
	buf[18] = uint8(h.CompressionType)
	buf[19] = uint8(h.EncryptionType)
	// buf[20:32] stays zero (reserved).
	return buf
}

// Inode is the 32-byte record describing one directory, file, or symlink.
type Inode struct {
	ParentInode uint64
	Offset      uint64
	Size        uint64
	Type        InodeType
}

func decodeInode(buf []byte) (Inode, error) {
	if len(buf) < InodeSize {
		return Inode{}, wrapErr(KindIO, "short inode buffer", io.ErrUnexpectedEOF)
	}
	var i Inode
	i.ParentInode = binary.LittleEndian.Uint64(buf[0:8])
	i.Offset = binary.LittleEndian.Uint64(buf[8:16])
	i.Size = binary.LittleEndian.Uint64(buf[16:24])
	i.Type = InodeType(buf[24])
	// buf[25:32] is zero-filled pad.
	if !i.Type.valid() {
		return Inode{}, ErrUnknownInodeType
	}
	return i, nil
}

func encodeInode(i Inode) []byte {
	buf := make([]byte, InodeSize)
	binary.LittleEndian.PutUint64(buf[0:8], i.ParentInode)
	binary.LittleEndian.PutUint64(buf[8:16], i.Offset)
	binary.LittleEndian.PutUint64(buf[16:24], i.Size)
	buf[24] = uint8(i.Type)
	return buf
}

// Dirent is a (name offset, inode offset) pair; a directory's payload is a
// packed, sorted array of these.
type Dirent struct {
	Name  uint64
	Inode uint64
}

func decodeDirent(buf []byte) (Dirent, error) {
	if len(buf) < DirentSize {
		return Dirent{}, wrapErr(KindIO, "short dirent buffer", io.ErrUnexpectedEOF)
	}
	return Dirent{
		Name:  binary.LittleEndian.Uint64(buf[0:8]),
		Inode: binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

func encodeDirent(d Dirent) []byte {
	buf := make([]byte, DirentSize)
	binary.LittleEndian.PutUint64(buf[0:8], d.Name)
	binary.LittleEndian.PutUint64(buf[8:16], d.Inode)
	return buf
}

// readName reads a NUL-terminated byte string starting at offset, scanning
// in fixed-size chunks. There is no declared length
// prefix; the terminator must be located by byte scan. Returns the name
// without its trailing NUL.
func readName(r io.ReaderAt, offset uint64) ([]byte, error) {
	var out []byte
	tmp := make([]byte, nameReadChunk)
	off := offset
	for {
		n, err := r.ReadAt(tmp, int64(off))
		if n == 0 {
			if err != nil && err != io.EOF {
				return nil, wrapErr(KindIO, "reading name", err)
			}
			return nil, ErrMalformedString
		}
		chunk := tmp[:n]
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			out = append(out, chunk[:i]...)
			return out, nil
		}
		out = append(out, chunk...)
		off += uint64(n)
	}
}
