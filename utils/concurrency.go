package utils

import (
	"context"
	"sync"
)

// WorkerPool runs jobs on a bounded number of goroutines and keeps the
// first error. Jobs submitted after the context is done are not started.
type WorkerPool struct {
	ctx       context.Context
	semaphore chan struct{}
	wg        sync.WaitGroup

	once sync.Once
	err  error
}

// NewWorkerPool creates a WorkerPool with the given concurrency.
func NewWorkerPool(ctx context.Context, maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		ctx:       ctx,
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// Submit enqueues a job. It blocks while all workers are busy.
func (wp *WorkerPool) Submit(job func(ctx context.Context) error) {
	select {
	case wp.semaphore <- struct{}{}:
	case <-wp.ctx.Done():
		wp.fail(wp.ctx.Err())
		return
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		if err := wp.ctx.Err(); err != nil {
			wp.fail(err)
			return
		}
		if err := job(wp.ctx); err != nil {
			wp.fail(err)
		}
	}()
}

// Wait blocks until all submitted jobs have completed and returns the first error.
func (wp *WorkerPool) Wait() error {
	wp.wg.Wait()
	return wp.err
}

func (wp *WorkerPool) fail(err error) {
	wp.once.Do(func() { wp.err = err })
}
