// Package pool runs work on a bounded number of goroutines.
//
// Items are pulled from a shared queue rather than partitioned up front, so
// a slot freed by a fast or failed item is refilled immediately. An error
// returned by a work function is treated as fatal: the pool stops scheduling
// queued items and [Pool.Wait] reports the first such error. Work functions
// that want per-item failures to be non-fatal should log them and return nil.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is used when a non-positive limit is given.
const DefaultLimit = 10

// Pool schedules functions with at most limit running at once.
type Pool struct {
	g   *errgroup.Group
	ctx context.Context
}

// New creates a pool bound to ctx. The returned context is cancelled when
// any function fails or ctx ends.
func New(ctx context.Context, limit int) (*Pool, context.Context) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	return &Pool{g: g, ctx: gctx}, gctx
}

// Go schedules fn, blocking while all slots are busy. It reports false
// without scheduling when the pool has been cancelled.
func (p *Pool) Go(fn func(ctx context.Context) error) bool {
	if p.ctx.Err() != nil {
		return false
	}
	p.g.Go(func() error {
		if err := p.ctx.Err(); err != nil {
			return nil
		}
		return fn(p.ctx)
	})
	return true
}

// Wait blocks until every scheduled function returns, and reports the first
// error returned by one of them.
func (p *Pool) Wait() error {
	return p.g.Wait()
}

// Run calls fn for each item with at most limit calls in flight. Items not
// yet started when the context ends are skipped.
func Run[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) error {
	p, _ := New(ctx, limit)
	for _, item := range items {
		if !p.Go(func(ctx context.Context) error { return fn(ctx, item) }) {
			break
		}
	}
	if err := p.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
