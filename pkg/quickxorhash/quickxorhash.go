// Package quickxorhash implements QuickXorHash, the content hash OneDrive
// for Business and SharePoint report for every file.
//
// Each input byte is XORed into a circular 160-bit buffer at a bit offset
// that advances by 11 per byte. The digest is the buffer with the total
// input length XORed, little-endian, into its last 8 bytes.
//
// Reference: https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/binary"
	"hash"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
	lengthBytes = 8
)

// digest keeps the 160-bit buffer as bytes; bit n of the buffer is bit
// n%8 of buf[n/8].
type digest struct {
	buf    [Size]byte
	offset int // bit offset for the next input byte
	length uint64
}

// New returns a new hash.Hash computing the QuickXorHash checksum.
func New() hash.Hash {
	return &digest{}
}

func (d *digest) Write(p []byte) (int, error) {
	offset := d.offset

	for _, b := range p {
		i := offset / 8
		v := uint16(b) << (offset % 8)

		d.buf[i] ^= byte(v)
		d.buf[(i+1)%Size] ^= byte(v >> 8)

		offset += shift
		if offset >= widthInBits {
			offset -= widthInBits
		}
	}

	d.offset = offset
	d.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the digest to b without changing the hash state.
func (d *digest) Sum(b []byte) []byte {
	out := d.buf

	var n [lengthBytes]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i := range lengthBytes {
		out[Size-lengthBytes+i] ^= n[i]
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return BlockSize }
