package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j-1", Type: "noop"}))
	require.NoError(t, q.Enqueue(Job{ID: "j-2", Type: "noop"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"j-1", "j-2"}, seen)
}

func TestQueueRetriesUntilBudget(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	exhausted := make(chan struct{})

	q := NewQueue("retry", func(_ context.Context, job Job) error {
		mu.Lock()
		attempts++
		if job.Attempt == 2 {
			close(exhausted)
		}
		mu.Unlock()
		return errors.New("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j-1", Type: "flaky"}))

	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried to the budget")
	}

	// First delivery plus MaxRetries redeliveries.
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, attempts)
}

func TestStopDrainsPendingRetries(t *testing.T) {
	var mu sync.Mutex
	deliveries := 0
	failed := make(chan struct{}, 1)

	q := NewQueue("drain", func(_ context.Context, _ Job) error {
		mu.Lock()
		deliveries++
		mu.Unlock()
		failed <- struct{}{}
		return errors.New("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Hour})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "j-1", Type: "slow-retry"}))

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never delivered")
	}

	// Stop must wait out the scheduled retry goroutine, and that goroutine
	// must yield to cancellation rather than the hour-long backoff timer.
	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not drain the pending retry")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, deliveries)
}

func TestEnqueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})

	err := q.Enqueue(Job{ID: "j-1"})
	require.Error(t, err)

	q.Start(context.Background())
	q.Stop()

	err = q.Enqueue(Job{ID: "j-2"})
	require.Error(t, err)
}

func TestEnqueueFailsFastOnFullBuffer(t *testing.T) {
	block := make(chan struct{})
	running := make(chan struct{}, 2)
	q := NewQueue("full", func(_ context.Context, _ Job) error {
		running <- struct{}{}
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	// One job occupies the worker, one fills the buffer; the next must be
	// rejected rather than block the caller.
	require.NoError(t, q.Enqueue(Job{ID: "j-1"}))
	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first job")
	}
	require.NoError(t, q.Enqueue(Job{ID: "j-2"}))
	require.Error(t, q.Enqueue(Job{ID: "overflow"}))
}
