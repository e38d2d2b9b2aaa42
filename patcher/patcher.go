// Package patcher applies a delta plan in place on a local buffer,
// copying blocks that were found locally and fetching the rest
// through a caller-supplied callback. Blocks sharing a strong hash
// are fetched at most once: the plan's identical-block registry lets
// one resolved or fetched block serve its whole equivalence class.
package patcher

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/itchio/headway/state"
	"github.com/itchio/headway/united"
	"github.com/pkg/errors"

	"github.com/pps83/zinc/delta"
	"github.com/pps83/zinc/hashlist"
)

// FetchFunc supplies the bytes of a remote block that could not be
// located in the local file.
type FetchFunc func(blockIndex int64, blockLength int64) ([]byte, error)

// Params configures Patch.
type Params struct {
	// Local is patched in place. Must hold at least Hashes.FileSize
	// bytes; callers pad with zeros when the local file is shorter
	// than the remote one.
	Local  []byte
	Hashes *hashlist.HashList
	Delta  *delta.Map

	// Fetch may be nil when the plan needs no remote data.
	Fetch FetchFunc

	// optional, must match the hasher that produced Hashes; defaults
	// to hashlist.Blake3
	StrongHasher hashlist.StrongHasher
	// optional
	Consumer *state.Consumer
}

// Patch executes the plan. Copy sources are read from a snapshot of
// the pre-patch buffer, so blocks may move in any order without a
// later copy reading bytes an earlier one overwrote.
func Patch(params Params) error {
	err := validation.ValidateStruct(&params,
		validation.Field(&params.Local, validation.Required),
		validation.Field(&params.Hashes, validation.Required),
		validation.Field(&params.Delta, validation.Required),
	)
	if err != nil {
		return errors.WithStack(err)
	}
	if params.StrongHasher == nil {
		params.StrongHasher = hashlist.Blake3
	}
	consumer := params.Consumer
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	hashes := params.Hashes
	numBlocks := int64(hashes.Len())
	if int64(len(params.Delta.Elements)) != numBlocks {
		return errors.Errorf("patcher: plan has %d entries, hash list has %d blocks",
			len(params.Delta.Elements), numBlocks)
	}
	if int64(len(params.Local)) < hashes.FileSize {
		return errors.Errorf("patcher: local buffer holds %d bytes, remote file needs %d",
			len(params.Local), hashes.FileSize)
	}

	p := &patchRun{
		params:   params,
		consumer: consumer,
		snapshot: append([]byte(nil), params.Local...),
		fetched:  make(map[hashlist.StrongHash][]byte),
		canon:    make(map[int64]hashlist.StrongHash),
	}

	for i := int64(0); i < numBlocks; i++ {
		if err := p.applyBlock(i); err != nil {
			return err
		}
		consumer.Progress(float64(i+1) / float64(numBlocks))
	}

	consumer.Debugf("patched %s: %s copied, %s fetched, %s already in place",
		united.FormatBytes(hashes.FileSize),
		united.FormatBytes(p.bytesCopied),
		united.FormatBytes(p.bytesFetched),
		united.FormatBytes(hashes.FileSize-p.bytesCopied-p.bytesFetched))
	return nil
}

type patchRun struct {
	params   Params
	consumer *state.Consumer

	// pre-patch bytes; every copy source reads from here
	snapshot []byte
	// remote blocks fetched so far, by strong hash
	fetched map[hashlist.StrongHash][]byte
	// strong hashes of canonical snapshot blocks, computed lazily
	canon map[int64]hashlist.StrongHash

	bytesCopied  int64
	bytesFetched int64
}

func (p *patchRun) applyBlock(i int64) error {
	hashes := p.params.Hashes
	blockSize := hashes.BlockSize
	canonical := i * blockSize
	blockLen := hashes.BlockLength(i)
	offset := p.params.Delta.Elements[i].LocalOffset

	if offset != canonical {
		if offset < 0 || offset+blockLen > int64(len(p.snapshot)) {
			return errors.Errorf("patcher: block %d names local offset %d past buffer end", i, offset)
		}
		copy(p.params.Local[canonical:canonical+blockLen], p.snapshot[offset:offset+blockLen])
		p.bytesCopied += blockLen
		return nil
	}

	// A canonical entry is either a block that was already in place or
	// one that was never found; hashing the snapshot tells them apart.
	strong := hashes.Blocks[i].Strong
	if p.canonicalHash(i) == strong {
		return nil
	}

	data := p.fetched[strong]
	if data == nil {
		data = p.classSource(i, strong, blockLen)
	}
	if data == nil {
		if p.params.Fetch == nil {
			return errors.Errorf("patcher: block %d needs remote data but no fetch callback was given", i)
		}
		remote, err := p.params.Fetch(i, blockLen)
		if err != nil {
			return errors.Wrapf(err, "fetching block %d", i)
		}
		if int64(len(remote)) < blockLen {
			return errors.Errorf("patcher: fetch of block %d returned %d bytes, want %d", i, len(remote), blockLen)
		}
		data = remote[:blockLen]
		p.fetched[strong] = data
		p.bytesFetched += blockLen
	} else {
		p.bytesCopied += blockLen
	}

	copy(p.params.Local[canonical:canonical+blockLen], data[:blockLen])
	return nil
}

// classSource looks for another member of block i's equivalence class
// whose bytes are present in the snapshot, either at a resolved local
// offset or already correct at its own canonical position.
func (p *patchRun) classSource(i int64, strong hashlist.StrongHash, blockLen int64) []byte {
	hashes := p.params.Hashes
	for _, j := range p.params.Delta.IdenticalBlocks[i] {
		jCanonical := j * hashes.BlockSize
		jOffset := p.params.Delta.Elements[j].LocalOffset
		if jOffset != jCanonical {
			if jOffset >= 0 && jOffset+blockLen <= int64(len(p.snapshot)) {
				return p.snapshot[jOffset : jOffset+blockLen]
			}
			continue
		}
		if jCanonical+blockLen <= int64(len(p.snapshot)) && p.canonicalHash(j) == strong {
			return p.snapshot[jCanonical : jCanonical+blockLen]
		}
	}
	return nil
}

func (p *patchRun) canonicalHash(i int64) hashlist.StrongHash {
	if h, ok := p.canon[i]; ok {
		return h
	}
	hashes := p.params.Hashes
	canonical := i * hashes.BlockSize
	end := canonical + hashes.BlockLength(i)
	if end > int64(len(p.snapshot)) {
		end = int64(len(p.snapshot))
	}
	h := p.params.StrongHasher(p.snapshot[canonical:end])
	p.canon[i] = h
	return h
}
