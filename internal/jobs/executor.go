package jobs

import (
	"context"
	"sync"
)

// Executor runs background scans
type Executor interface {
	Submit(task func())
	// Wait blocks until every submitted task has returned or ctx is done.
	Wait(ctx context.Context) error
}

// PoolExecutor runs each task on its own goroutine, at most limit at once.
// Tasks beyond the limit wait for a free slot.
type PoolExecutor struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPoolExecutor creates an executor running up to limit tasks (min 1)
func NewPoolExecutor(limit int) *PoolExecutor {
	if limit < 1 {
		limit = 1
	}
	return &PoolExecutor{sem: make(chan struct{}, limit)}
}

// Submit schedules task and returns immediately
func (e *PoolExecutor) Submit(task func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sem <- struct{}{}
		defer func() { <-e.sem }()
		task()
	}()
}

// Wait blocks until all tasks finish or ctx is done
func (e *PoolExecutor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
