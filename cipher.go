package sqfl

import (
	"io"

	"golang.org/x/crypto/chacha20"
)

// key holds validated ChaCha20 key material: a 32-byte key and a 4-byte
// nonce prefix used to domain-separate images sharing a key.
type key struct {
	k      [chachaKeySize]byte
	prefix [noncePrefixSize]byte
}

func newKey(material []byte) (key, error) {
	if len(material) != KeyMaterialSize {
		return key{}, ErrWrongKeyLength
	}
	var k key
	copy(k.k[:], material[:chachaKeySize])
	copy(k.prefix[:], material[chachaKeySize:])
	return k, nil
}

// nonceFor builds the 12-byte ChaCha20 nonce for the rekey window covering
// absolute stream offset o: the 4-byte per-image prefix followed by the
// big-endian window index. Crossing RekeyPeriod bytes of stream advances
// the window index, giving every window a fresh keystream without ever
// reusing a (key, nonce) pair.
func (k key) nonceFor(o uint64) [12]byte {
	var nonce [12]byte
	copy(nonce[:4], k.prefix[:])
	blockIndex := o / RekeyPeriod
	nonce[4] = byte(blockIndex >> 56)
	nonce[5] = byte(blockIndex >> 48)
	nonce[6] = byte(blockIndex >> 40)
	nonce[7] = byte(blockIndex >> 32)
	nonce[8] = byte(blockIndex >> 24)
	nonce[9] = byte(blockIndex >> 16)
	nonce[10] = byte(blockIndex >> 8)
	nonce[11] = byte(blockIndex)
	return nonce
}

// streamAt returns a ChaCha20 keystream cipher seeked to absolute stream
// offset o, ready to XOR exactly the bytes starting at o within the
// current RekeyPeriod window.
func (k key) streamAt(o uint64) (*chacha20.Cipher, error) {
	nonce := k.nonceFor(o)
	c, err := chacha20.NewUnauthenticatedCipher(k.k[:], nonce[:])
	if err != nil {
		return nil, wrapErr(KindCrypto, "constructing chacha20 cipher", err)
	}
	p := o % RekeyPeriod
	// SetCounter addresses 64-byte blocks; to start mid-block we generate
	// from the containing block's start and discard the leading bytes.
	// RekeyPeriod is sized so block always fits uint32; this guards the
	// invariant rather than a reachable runtime condition.
	block := p / 64
	if block > 0xffffffff {
		return nil, ErrCipherSeekOverflow
	}
	lead := int(p % 64)
	c.SetCounter(uint32(block))
	if lead > 0 {
		discard := make([]byte, lead)
		c.XORKeyStream(discard, discard)
	}
	return c, nil
}

// xorRange applies the keystream for [o, o+len(buf)) to buf in place,
// splitting at RekeyPeriod boundaries so each slice uses the correct
// window's nonce.
func (k key) xorRange(buf []byte, o uint64) error {
	for len(buf) > 0 {
		p := o % RekeyPeriod
		remaining := RekeyPeriod - p
		n := uint64(len(buf))
		if n > remaining {
			n = remaining
		}
		c, err := k.streamAt(o)
		if err != nil {
			return err
		}
		c.XORKeyStream(buf[:n], buf[:n])
		buf = buf[n:]
		o += n
	}
	return nil
}

// cipherStore wraps a read-only Store with transparent ChaCha20 decryption.
// It is stateless across ReadAt calls (the nonce is derived purely from the
// absolute offset), so concurrent positioned reads compose safely.
type cipherStore struct {
	inner Store
	key   key
}

func newCipherStore(inner Store, k key) *cipherStore {
	return &cipherStore{inner: inner, key: k}
}

// Close forwards to the wrapped store if it holds a closeable resource
// (e.g. a FileStore's underlying os.File), so Image.Close works the same
// whether or not the image is encrypted.
func (c *cipherStore) Close() error {
	if cl, ok := c.inner.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *cipherStore) ReadAt(buf []byte, off int64) (int, error) {
	n, err := c.inner.ReadAt(buf, off)
	if n > 0 {
		if xerr := c.key.xorRange(buf[:n], uint64(off)); xerr != nil {
			return n, xerr
		}
	}
	return n, err
}

// cipherWriter wraps a SeekWriter with transparent ChaCha20 encryption. It
// tracks a logical position so Write always knows the absolute stream
// offset to derive the right nonce/window from, and so Seek can report the
// inner stream's position back to the caller. This side is not safe for
// concurrent use: the logical position and scratch buffer are shared
// mutable state.
type cipherWriter struct {
	inner SeekWriter
	key   key
	pos   int64
	buf   [4096]byte
}

func newCipherWriter(inner SeekWriter, k key, startPos int64) *cipherWriter {
	return &cipherWriter{inner: inner, key: k, pos: startPos}
}

func (c *cipherWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > len(c.buf) {
			n = len(c.buf)
		}
		chunk := c.buf[:n]
		copy(chunk, p[:n])
		if err := c.key.xorRange(chunk, uint64(c.pos)); err != nil {
			return total, err
		}
		written, err := c.inner.Write(chunk)
		total += written
		c.pos += int64(written)
		if err != nil {
			return total, err
		}
		if written < n {
			return total, io.ErrShortWrite
		}
		p = p[n:]
	}
	return total, nil
}

func (c *cipherWriter) Seek(offset int64, whence int) (int64, error) {
	p, err := c.inner.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	c.pos = p
	return p, nil
}
