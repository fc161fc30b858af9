package media

import (
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrPoolSaturated signals that the optimization pool is at capacity. The
// caller should finalize with the unoptimized original rather than queue.
var ErrPoolSaturated = errors.New("media pool saturated")

// Pool bounds concurrent CPU-heavy processing so a burst of large uploads
// cannot starve the authorization path. Saturation rejects instead of
// queueing.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool constructs a pool admitting up to size concurrent jobs.
func NewPool(size int64) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{sem: semaphore.NewWeighted(size)}
}

// Do runs fn if a slot is free, otherwise returns ErrPoolSaturated.
func (p *Pool) Do(fn func() error) error {
	if !p.sem.TryAcquire(1) {
		return ErrPoolSaturated
	}
	defer p.sem.Release(1)
	return fn()
}
