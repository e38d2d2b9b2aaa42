// Package delta implements the delta resolver: a parallel rolling-hash
// scanner that, given the block hash list of a remote file, discovers
// where remote blocks already exist in a local file and produces a
// per-block plan for bringing the local file in sync.
//
// The scan slides a one-byte-granular window over the local file,
// probing a two-level (weak, then strong) hash index. Matches are
// recorded as local byte offsets; blocks never seen locally stay at
// their canonical offset, which the patcher reads as "fetch from
// remote".
package delta

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrCancelled is returned from Wait when the task was cancelled
// before completing.
var ErrCancelled = errors.New("delta resolution cancelled")

// Element is the plan entry for one remote block. LocalOffset is
// either a byte offset into the local file where the block's bytes
// were found, or the block's canonical offset BlockIndex*blocksize,
// meaning the bytes were not found and must come from the remote side
// (or are already in place — the patcher tells those apart by
// hashing).
type Element struct {
	BlockIndex  int64
	LocalOffset int64
}

// Map is the completed plan: one Element per remote block, in block
// order, plus the equivalence classes of remote blocks that share a
// strong hash.
type Map struct {
	Elements []Element

	// IdenticalBlocks maps a block index to the other block indices
	// carrying the same strong hash. Only blocks whose hash appears
	// more than once in the remote list have an entry. Symmetric.
	IdenticalBlocks map[int64][]int64
}

// Resolved reports whether block i was located in the local file at a
// non-canonical offset.
func (m *Map) Resolved(i int64, blockSize int64) bool {
	return m.Elements[i].LocalOffset != i*blockSize
}

// setOffset publishes a match. Two workers scanning different chunks
// may race on the same block index; every candidate offset names bytes
// that strong-hash to the block, so any winner is valid. The store is
// atomic to rule out torn writes.
func (m *Map) setOffset(i int64, offset int64) {
	atomic.StoreInt64(&m.Elements[i].LocalOffset, offset)
}
