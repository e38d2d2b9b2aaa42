package delta

import (
	"runtime"
	"sync"
	"sync/atomic"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/itchio/headway/state"
	"github.com/pkg/errors"

	"github.com/pps83/zinc/blocksource"
	"github.com/pps83/zinc/hashlist"
	"github.com/pps83/zinc/pool"
)

// DefaultChunkSize is the span of local window-start positions handed
// to a single scan job.
const DefaultChunkSize int64 = 10 * 1024 * 1024

// Params configures NewResolver.
type Params struct {
	Local     blocksource.Source
	BlockSize int64
	Hashes    *hashlist.HashList

	// optional, defaults to the number of CPUs
	Concurrency int
	// optional, defaults to DefaultChunkSize
	ChunkSize int64
	// optional, must match the hasher that produced Hashes; defaults
	// to hashlist.Blake3
	StrongHasher hashlist.StrongHasher
	// optional
	Consumer *state.Consumer
}

// Resolver is a running delta-resolution task. It owns its worker
// pool; all scan jobs are queued before NewResolver returns. Callers
// observe progress through BytesDone, may Cancel at any time, and
// collect the plan with Wait + Result.
type Resolver struct {
	params   Params
	consumer *state.Consumer

	total  int64
	lookup lookupTable
	result *Map

	bytesDone int64
	cancelled int32

	pool *pool.Pool

	failMu sync.Mutex
	failed error

	waitOnce sync.Once
	waitErr  error
	done     bool
}

// NewResolver builds the hash index and identical-block registry,
// pre-fills the plan with canonical entries, and queues one scan job
// per chunk of the local file.
func NewResolver(params Params) (*Resolver, error) {
	err := validation.ValidateStruct(&params,
		validation.Field(&params.Local, validation.Required),
		validation.Field(&params.BlockSize, validation.Required, validation.Min(int64(1))),
		validation.Field(&params.Hashes, validation.Required),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if params.Hashes.Len() == 0 {
		return nil, errors.New("delta: remote hash list is empty")
	}

	if params.Concurrency <= 0 {
		params.Concurrency = runtime.NumCPU()
	}
	if params.ChunkSize <= 0 {
		params.ChunkSize = DefaultChunkSize
	}
	if params.StrongHasher == nil {
		params.StrongHasher = hashlist.Blake3
	}
	consumer := params.Consumer
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	lookup, registry := buildIndex(params.Hashes)

	numBlocks := int64(params.Hashes.Len())
	elements := make([]Element, numBlocks)
	for i := int64(0); i < numBlocks; i++ {
		elements[i] = Element{BlockIndex: i, LocalOffset: i * params.BlockSize}
	}

	r := &Resolver{
		params:   params,
		consumer: consumer,
		total:    params.Local.Size(),
		lookup:   lookup,
		result: &Map{
			Elements:        elements,
			IdenticalBlocks: registry,
		},
		pool: pool.New(params.Concurrency),
	}

	for start := int64(0); start < r.total; start += params.ChunkSize {
		start := start
		length := params.ChunkSize
		if start+length > r.total {
			length = r.total - start
		}
		r.pool.Enqueue(func() error {
			return r.scan(start, length)
		})
	}

	return r, nil
}

// BytesTotal returns the size of the local file being scanned.
func (r *Resolver) BytesTotal() int64 {
	return r.total
}

// BytesDone returns how many local bytes have been scanned so far.
// Monotonically non-decreasing, bounded by BytesTotal.
func (r *Resolver) BytesDone() int64 {
	return atomic.LoadInt64(&r.bytesDone)
}

// Cancel asks every scan job to stop at its next checkpoint.
// Idempotent; returns immediately.
func (r *Resolver) Cancel() {
	atomic.StoreInt32(&r.cancelled, 1)
}

func (r *Resolver) isCancelled() bool {
	return atomic.LoadInt32(&r.cancelled) != 0
}

// fail records the first worker error and makes the remaining workers
// exit at their next checkpoint.
func (r *Resolver) fail(err error) {
	r.failMu.Lock()
	if r.failed == nil {
		r.failed = err
	}
	r.failMu.Unlock()
	atomic.StoreInt32(&r.cancelled, 1)
}

// Wait blocks until every scan job has drained. It returns nil on
// success, ErrCancelled after Cancel, or the first I/O error a worker
// hit. Safe to call more than once.
func (r *Resolver) Wait() error {
	r.waitOnce.Do(func() {
		poolErr := r.pool.Wait()

		r.failMu.Lock()
		failed := r.failed
		r.failMu.Unlock()

		switch {
		case failed != nil:
			r.waitErr = failed
		case poolErr != nil:
			r.waitErr = poolErr
		case r.isCancelled():
			r.waitErr = ErrCancelled
		}
		r.done = true
	})
	return r.waitErr
}

// Success reports whether the task ran to completion uncancelled.
// Only meaningful after Wait has returned.
func (r *Resolver) Success() bool {
	return r.done && r.waitErr == nil
}

// Result returns the completed plan. Valid only when Success is true.
// The resolver drops its reference to the local source so the caller
// can reopen it for patching.
func (r *Resolver) Result() *Map {
	if !r.Success() {
		return nil
	}
	r.params.Local = nil
	return r.result
}
