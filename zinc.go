// Package zinc synchronizes a local byte sequence to a remote one by
// transferring only the regions that differ. The remote side is
// described by a per-block hash list (hashlist); a parallel
// rolling-hash scan (delta) locates remote blocks in the local data,
// possibly at shifted offsets; the resulting plan is applied in place
// (patcher), fetching only the blocks that were not found locally.
package zinc

import (
	"github.com/pkg/errors"

	"github.com/pps83/zinc/blocksource"
	"github.com/pps83/zinc/delta"
	"github.com/pps83/zinc/hashlist"
	"github.com/pps83/zinc/patcher"
)

// BlockChecksums hashes the remote data into a block hash list. This
// runs on the remote side; only the list travels to the local side.
func BlockChecksums(remote []byte, blockSize int64, concurrency int) (*hashlist.HashList, error) {
	return hashlist.Calculate(hashlist.Params{
		Source:      blocksource.NewBuffer(remote),
		BlockSize:   blockSize,
		Concurrency: concurrency,
	})
}

// ResolveDelta scans the local source against the remote hash list
// and returns the completed plan.
func ResolveDelta(local blocksource.Source, hashes *hashlist.HashList, concurrency int) (*delta.Map, error) {
	resolver, err := delta.NewResolver(delta.Params{
		Local:       local,
		BlockSize:   hashes.BlockSize,
		Hashes:      hashes,
		Concurrency: concurrency,
	})
	if err != nil {
		return nil, err
	}
	err = resolver.Wait()
	if err != nil {
		return nil, err
	}
	return resolver.Result(), nil
}

// Patch applies a plan in place on local, pulling missing blocks
// through fetch.
func Patch(local []byte, hashes *hashlist.HashList, deltaMap *delta.Map, fetch patcher.FetchFunc) error {
	return patcher.Patch(patcher.Params{
		Local:  local,
		Hashes: hashes,
		Delta:  deltaMap,
		Fetch:  fetch,
	})
}

// Sync brings local in line with remote entirely in memory and
// returns the synchronized bytes. It is the whole pipeline in one
// call: checksum, resolve, patch, truncate.
func Sync(local, remote []byte, blockSize int64, concurrency int) ([]byte, error) {
	if blockSize < 1 {
		return nil, errors.Errorf("block size must be positive, got %d", blockSize)
	}
	if len(remote) == 0 {
		return []byte{}, nil
	}

	hashes, err := BlockChecksums(remote, blockSize, concurrency)
	if err != nil {
		return nil, err
	}

	// The working buffer must cover every remote block, so pad the
	// local bytes up to a block multiple at least as large as remote.
	bufLen := int64(len(local))
	if int64(len(remote)) > bufLen {
		bufLen = int64(len(remote))
	}
	if rem := bufLen % blockSize; rem != 0 {
		bufLen += blockSize - rem
	}
	working := make([]byte, bufLen)
	copy(working, local)

	deltaMap, err := ResolveDelta(blocksource.NewBuffer(working), hashes, concurrency)
	if err != nil {
		return nil, err
	}

	err = Patch(working, hashes, deltaMap, func(blockIndex, blockLength int64) ([]byte, error) {
		offset := blockIndex * blockSize
		return remote[offset : offset+blockLength], nil
	})
	if err != nil {
		return nil, err
	}

	return working[:len(remote)], nil
}
