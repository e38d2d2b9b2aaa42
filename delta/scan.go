package delta

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/pps83/zinc/blocksource"
	"github.com/pps83/zinc/hashlist"
	"github.com/pps83/zinc/rollsum"
)

// localHashCacheEntries bounds the per-worker cache of strong hashes
// of canonical local blocks. The cache is private to a job, so the
// same canonical block may be hashed by several workers; that is
// cheaper than sharing.
const localHashCacheEntries = 4096

// scan tests every window-start position in [start, start+length)
// against the hash index. Chunks partition the local file, so across
// all jobs each window start is assigned to exactly one worker. The
// window itself may extend past the chunk boundary, which is why the
// job's read buffer overlaps the next chunk by blockSize-1 bytes.
func (r *Resolver) scan(start, length int64) error {
	if r.isCancelled() {
		return nil
	}

	blockSize := r.params.BlockSize
	total := r.total
	end := start + length

	bufLen := length + blockSize - 1
	if bufLen > total-start {
		bufLen = total - start
	}
	buf, err := blocksource.ReadFull(r.params.Local, start, bufLen)
	if err != nil {
		r.fail(err)
		return err
	}

	cache, err := lru.New(localHashCacheEntries)
	if err != nil {
		return errors.WithStack(err)
	}

	var weak rollsum.Checksum
	var lastFailed bool
	var lastFailedWeak uint32

	// Skipping the self-overlap check for the final block keeps every
	// canonical read full-sized; a last block that is already correct
	// may get pointed at an earlier equal window, which the patcher
	// resolves to the same bytes anyway.
	selfCheckBound := total - blockSize

	p := start
	pending := int64(0)
	advance := func(step int64) {
		credit := step
		if credit > end-p {
			credit = end - p
		}
		pending += credit
		p += step
	}

	for p < end {
		// Progress checkpoint, at least once per blockSize of forward
		// movement.
		if pending >= blockSize {
			done := r.creditProgress(pending)
			pending = 0
			r.consumer.Progress(float64(done) / float64(total))
			if r.isCancelled() {
				return nil
			}
		}

		windowLen := blockSize
		if total-p < blockSize {
			windowLen = total - p
		}
		window := buf[p-start : p-start+windowLen]

		switch {
		case windowLen < blockSize:
			// Short tail window: rotation is undefined across the
			// shrinking boundary, re-seed at every position.
			weak.Clear()
			weak.Update(window)
		case weak.IsEmpty():
			weak.Update(window)
		default:
			weak.Rotate(buf[p-start-1], window[windowLen-1])
		}

		digest := weak.Digest()

		// Repeating-pattern shortcut: a run of identical weak digests
		// that already failed the strong lookup will keep failing, so
		// skip the strong hash entirely until the digest changes.
		if lastFailed && digest == lastFailedWeak {
			advance(1)
			continue
		}

		inner, ok := r.lookup[digest]
		if !ok {
			lastFailed = true
			lastFailedWeak = digest
			advance(1)
			continue
		}

		strong := r.params.StrongHasher(window)
		blockIndex, ok := inner[strong]
		if !ok {
			lastFailed = true
			lastFailedWeak = digest
			advance(1)
			continue
		}
		lastFailed = false

		canonical := blockIndex * blockSize
		if p == canonical {
			// Block already sits at its final position.
			weak.Clear()
			advance(windowLen)
			continue
		}

		if canonical < selfCheckBound {
			identical, err := r.canonicalMatches(cache, canonical, strong)
			if err != nil {
				r.fail(err)
				return err
			}
			if identical {
				// The destination already holds the right bytes; do
				// not make the patcher move data for nothing.
				weak.Clear()
				advance(windowLen)
				continue
			}
		}

		r.result.setOffset(blockIndex, p)
		weak.Clear()
		advance(windowLen)
	}

	if pending > 0 {
		done := r.creditProgress(pending)
		r.consumer.Progress(float64(done) / float64(total))
	}
	return nil
}

// creditProgress adds n scanned bytes to the shared counter. Each job
// credits exactly the length of its chunk over its lifetime, so the
// total never exceeds BytesTotal.
func (r *Resolver) creditProgress(n int64) int64 {
	return atomic.AddInt64(&r.bytesDone, n)
}

// canonicalMatches reports whether the local bytes at a block's
// canonical offset already strong-hash to the given digest.
func (r *Resolver) canonicalMatches(cache *lru.Cache, canonical int64, strong hashlist.StrongHash) (bool, error) {
	if cached, ok := cache.Get(canonical); ok {
		return cached.(hashlist.StrongHash) == strong, nil
	}
	block, err := blocksource.ReadFull(r.params.Local, canonical, r.params.BlockSize)
	if err != nil {
		return false, err
	}
	localHash := r.params.StrongHasher(block)
	cache.Add(canonical, localHash)
	return localHash == strong, nil
}
