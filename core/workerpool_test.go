package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	var counter int64
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const jobs = 20
	done := make(chan struct{}, jobs)
	for i := 0; i < jobs; i++ {
		if err := pool.Submit(ctx, func() {
			atomic.AddInt64(&counter, 1)
			done <- struct{}{}
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	for i := 0; i < jobs; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for job %d to complete", i)
		}
	}
	if got := atomic.LoadInt64(&counter); got != jobs {
		t.Fatalf("counter = %d, want %d", got, jobs)
	}
}

func TestWorkerPoolRunPropagatesError(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	boom := Newf(KindInvariantViolation, "boom")
	err := pool.Run(context.Background(), func() error { return boom })
	if err != boom {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
}

func TestWorkerPoolSubmitRespectsContextCancellation(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	// saturate the single worker with a job that blocks until released.
	block := make(chan struct{})
	release := make(chan struct{})
	if err := pool.Submit(context.Background(), func() {
		close(block)
		<-release
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-block
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.Submit(ctx, func() {}); err == nil {
		t.Fatalf("expected Submit to fail once its context is cancelled while the pool is busy")
	}
}
