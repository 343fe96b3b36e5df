package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent hash and verify calls on a shared [Hasher].
type Pool struct {
	hasher Hasher
	sem    *semaphore.Weighted
	limit  int64
}

// NewPool wraps h. A limit <= 0 selects runtime.GOMAXPROCS(0).
func NewPool(h Hasher, limit int) *Pool {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		hasher: h,
		sem:    semaphore.NewWeighted(int64(limit)),
		limit:  int64(limit),
	}
}

// Hash waits for a free slot, then hashes. It returns ctx.Err() if the
// context ends while waiting.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	return p.hasher.Hash(password)
}

// Verify waits for a free slot, then verifies.
func (p *Pool) Verify(ctx context.Context, password, encoded string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	return p.hasher.Verify(password, encoded)
}

// Limit returns the maximum number of concurrent operations.
func (p *Pool) Limit() int {
	return int(p.limit)
}
