package hashlist

import (
	"io"
	"runtime"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/itchio/headway/state"
	"github.com/itchio/headway/united"
	"github.com/pkg/errors"

	"github.com/pps83/zinc/blocksource"
	"github.com/pps83/zinc/counter"
	"github.com/pps83/zinc/pool"
	"github.com/pps83/zinc/rollsum"
)

// Params configures Calculate.
type Params struct {
	Source    blocksource.Source
	BlockSize int64

	// optional, defaults to the number of CPUs
	Concurrency int
	// optional, defaults to Blake3
	StrongHasher StrongHasher
	// optional
	Consumer *state.Consumer
}

// Calculate hashes every block of the source in parallel and returns
// the ordered hash list. The result is deterministic for a given
// source, block size and strong hasher.
func Calculate(params Params) (*HashList, error) {
	err := validation.ValidateStruct(&params,
		validation.Field(&params.Source, validation.Required),
		validation.Field(&params.BlockSize, validation.Required, validation.Min(int64(1))),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if params.Concurrency <= 0 {
		params.Concurrency = runtime.NumCPU()
	}
	if params.StrongHasher == nil {
		params.StrongHasher = Blake3
	}
	consumer := params.Consumer
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	size := params.Source.Size()
	numBlocks := (size + params.BlockSize - 1) / params.BlockSize

	list := &HashList{
		BlockSize: params.BlockSize,
		FileSize:  size,
		Blocks:    make([]BlockHash, numBlocks),
	}
	if numBlocks == 0 {
		return list, nil
	}

	// Each worker owns a contiguous run of block indices, so writes to
	// the shared slice are disjoint.
	blocksPerWorker := numBlocks / int64(params.Concurrency)
	if blocksPerWorker*int64(params.Concurrency) < numBlocks {
		blocksPerWorker++
	}

	p := pool.New(params.Concurrency)
	for first := int64(0); first < numBlocks; first += blocksPerWorker {
		first := first
		last := first + blocksPerWorker
		if last > numBlocks {
			last = numBlocks
		}
		p.Enqueue(func() error {
			for i := first; i < last; i++ {
				block, err := blocksource.ReadFull(params.Source, i*params.BlockSize, params.BlockSize)
				if err != nil {
					return err
				}
				list.Blocks[i] = BlockHash{
					Weak:   rollsum.Sum(block),
					Strong: params.StrongHasher(block),
				}
			}
			consumer.Progress(float64(last) / float64(numBlocks))
			return nil
		})
	}

	err = p.Wait()
	if err != nil {
		return nil, err
	}
	return list, nil
}

// CalculateStream hashes blocks sequentially from a stream whose size
// is not known up front, e.g. stdin. Progress is reported as a byte
// count rather than a completion ratio.
func CalculateStream(reader io.Reader, blockSize int64, hasher StrongHasher, consumer *state.Consumer) (*HashList, error) {
	if blockSize < 1 {
		return nil, errors.Errorf("block size must be positive, got %d", blockSize)
	}
	if hasher == nil {
		hasher = Blake3
	}
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	cr := counter.NewReaderCallback(func(count int64) {
		consumer.ProgressLabel(united.FormatBytes(count))
	}, reader)

	list := &HashList{BlockSize: blockSize}
	block := make([]byte, blockSize)
	for {
		n, err := io.ReadFull(cr, block)
		if n > 0 {
			list.Blocks = append(list.Blocks, BlockHash{
				Weak:   rollsum.Sum(block[:n]),
				Strong: hasher(block[:n]),
			})
			list.FileSize += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return list, nil
}
