package sqfl

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		RootInode:       12345,
		VersionMajor:    VersionMajor,
		VersionMinor:    VersionMinor,
		CompressionType: CompressionNone,
		EncryptionType:  EncryptionChaCha20,
	}
	buf := encodeHeader(h)
	if len(buf) != HeaderSize {
		t.Fatalf("encodeHeader: got %d bytes, want %d", len(buf), HeaderSize)
	}
	got, err := decodeHeader(buf)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderBadMagic(t *testing.T) {
	h := Header{VersionMajor: VersionMajor, VersionMinor: VersionMinor}
	buf := encodeHeader(h)
	buf[0] ^= 0xff
	_, err := decodeHeader(buf)
	if err != ErrInvalidMagic {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	if !IsKind(err, KindFormat) {
		t.Fatalf("expected KindFormat error, got %v", err)
	}
}

func TestDecodeHeaderBadVersion(t *testing.T) {
	h := Header{VersionMajor: VersionMajor + 1, VersionMinor: VersionMinor}
	buf := encodeHeader(h)
	if _, err := decodeHeader(buf); err != ErrUnsupportedVersion {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeHeaderUnknownEncryption(t *testing.T) {
	h := Header{VersionMajor: VersionMajor, VersionMinor: VersionMinor, EncryptionType: EncryptionType(99)}
	buf := encodeHeader(h)
	if _, err := decodeHeader(buf); err != ErrUnknownEncryption {
		t.Fatalf("expected ErrUnknownEncryption, got %v", err)
	}
}

func TestDecodeHeaderUnsupportedCompression(t *testing.T) {
	h := Header{VersionMajor: VersionMajor, VersionMinor: VersionMinor, CompressionType: CompressionType(7)}
	buf := encodeHeader(h)
	if _, err := decodeHeader(buf); err != ErrUnsupportedCompression {
		t.Fatalf("expected ErrUnsupportedCompression, got %v", err)
	}
}

func TestInodeRoundTrip(t *testing.T) {
	for _, typ := range []InodeType{InodeDirectory, InodeFile, InodeSymlink} {
		i := Inode{ParentInode: 32, Offset: 9001, Size: 42, Type: typ}
		buf := encodeInode(i)
		if len(buf) != InodeSize {
			t.Fatalf("encodeInode: got %d bytes, want %d", len(buf), InodeSize)
		}
		got, err := decodeInode(buf)
		if err != nil {
			t.Fatalf("decodeInode(%s): %v", typ, err)
		}
		if got != i {
			t.Fatalf("round trip mismatch for %s: got %+v, want %+v", typ, got, i)
		}
	}
}

func TestDecodeInodeUnknownType(t *testing.T) {
	i := Inode{Type: InodeType(200)}
	buf := encodeInode(i)
	if _, err := decodeInode(buf); err != ErrUnknownInodeType {
		t.Fatalf("expected ErrUnknownInodeType, got %v", err)
	}
}

func TestDirentRoundTrip(t *testing.T) {
	d := Dirent{Name: 64, Inode: 128}
	buf := encodeDirent(d)
	if len(buf) != DirentSize {
		t.Fatalf("encodeDirent: got %d bytes, want %d", len(buf), DirentSize)
	}
	got, err := decodeDirent(buf)
	if err != nil {
		t.Fatalf("decodeDirent: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestReadName(t *testing.T) {
	store := NewMemStore([]byte("hello\x00world"))
	name, err := readName(store, 0)
	if err != nil {
		t.Fatalf("readName: %v", err)
	}
	if string(name) != "hello" {
		t.Fatalf("got %q, want %q", name, "hello")
	}
}

func TestReadNameSpansChunks(t *testing.T) {
	long := make([]byte, nameReadChunk*3+5)
	for i := range long {
		long[i] = 'a'
	}
	long[len(long)-1] = 0
	store := NewMemStore(long)
	name, err := readName(store, 0)
	if err != nil {
		t.Fatalf("readName: %v", err)
	}
	if len(name) != len(long)-1 {
		t.Fatalf("got length %d, want %d", len(name), len(long)-1)
	}
}

func TestReadNameUnterminated(t *testing.T) {
	store := NewMemStore([]byte("noterminator"))
	if _, err := readName(store, 0); err != ErrMalformedString {
		t.Fatalf("expected ErrMalformedString, got %v", err)
	}
}
