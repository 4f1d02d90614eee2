package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4)
	var done int64

	for i := 0; i < 100; i++ {
		pool.Submit(func(context.Context) error {
			atomic.AddInt64(&done, 1)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if done != 100 {
		t.Errorf("expected 100 jobs to run, got %d", done)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	const maxWorkers = 3
	pool := NewWorkerPool(context.Background(), maxWorkers)
	var running, peak int64

	for i := 0; i < 20; i++ {
		pool.Submit(func(context.Context) error {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if peak > maxWorkers {
		t.Errorf("peak concurrency %d exceeds %d", peak, maxWorkers)
	}
}

func TestWorkerPoolKeepsFirstError(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1)
	first := errors.New("first")

	pool.Submit(func(context.Context) error { return first })
	pool.Submit(func(context.Context) error { return errors.New("second") })

	if err := pool.Wait(); !errors.Is(err, first) {
		t.Errorf("Wait() = %v, want %v", err, first)
	}
}

func TestWorkerPoolStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewWorkerPool(ctx, 2)
	var ran int64
	for i := 0; i < 5; i++ {
		pool.Submit(func(context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
	}

	if err := pool.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if ran != 0 {
		t.Errorf("expected no jobs to run after cancel, got %d", ran)
	}
}
