// Package hashlist produces and holds the per-block hash list of a
// remote file: one weak rolling digest plus one strong digest per
// fixed-size block. The list is what the delta resolver matches local
// data against, so both sides must agree on block size and strong
// hash function.
package hashlist

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// StrongHash is a fixed-width collision-resistant block digest. It is
// treated as opaque: equality and ordering only.
type StrongHash [32]byte

// Compare orders two strong hashes bytewise.
func (h StrongHash) Compare(other StrongHash) int {
	return bytes.Compare(h[:], other[:])
}

// StrongHasher digests a block. Implementations must be deterministic
// and safe for concurrent use.
type StrongHasher func(block []byte) StrongHash

// Blake3 is the default strong hasher.
func Blake3(block []byte) StrongHash {
	return blake3.Sum256(block)
}

// BlockHash is the hash pair of a single remote block. The block's
// index in the list determines its canonical offset, index * blocksize.
type BlockHash struct {
	Weak   uint32
	Strong StrongHash
}

// HashList describes a remote file as an ordered sequence of block
// hashes. The last block may be shorter than BlockSize.
type HashList struct {
	BlockSize int64
	FileSize  int64
	Blocks    []BlockHash
}

// Len returns the number of blocks.
func (l *HashList) Len() int {
	return len(l.Blocks)
}

// BlockLength returns the byte length of block i, accounting for a
// short final block.
func (l *HashList) BlockLength(i int64) int64 {
	length := l.FileSize - i*l.BlockSize
	if length > l.BlockSize {
		length = l.BlockSize
	}
	return length
}

// Digest returns a 64-bit fingerprint of the whole list. Two files
// with equal digests (same block size) are identical with overwhelming
// probability, which lets callers skip resolution entirely.
func (l *HashList) Digest() uint64 {
	d := xxhash.New()
	var header [16]byte
	binary.LittleEndian.PutUint64(header[0:], uint64(l.BlockSize))
	binary.LittleEndian.PutUint64(header[8:], uint64(l.FileSize))
	d.Write(header[:])
	var weak [4]byte
	for _, b := range l.Blocks {
		binary.LittleEndian.PutUint32(weak[:], b.Weak)
		d.Write(weak[:])
		d.Write(b.Strong[:])
	}
	return d.Sum64()
}
