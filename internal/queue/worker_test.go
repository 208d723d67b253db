package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

func newTestPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })
	return pubSub
}

func startWorker(t *testing.T, pubSub *gochannel.GoChannel, cfg WorkerConfig, handler JobFunc) *Worker {
	t.Helper()

	worker, err := NewWorker(pubSub, pubSub, cfg, handler, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("worker run: %v", err)
		}
	}()
	<-worker.Running()
	return worker
}

func TestWorker_ProcessesJob(t *testing.T) {
	pubSub := newTestPubSub(t)

	done := make(chan GradeSyncJob, 1)
	startWorker(t, pubSub, WorkerConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Concurrency: 3},
		func(ctx context.Context, job GradeSyncJob) error {
			done <- job
			return nil
		})

	publisher := NewPublisher(pubSub)
	if err := publisher.EnqueueGradeSync(42); err != nil {
		t.Fatalf("EnqueueGradeSync: %v", err)
	}

	select {
	case job := <-done:
		if job.AttemptID != 42 {
			t.Errorf("attemptId = %d, want 42", job.AttemptID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job not processed")
	}
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	pubSub := newTestPubSub(t)

	var calls atomic.Int32
	done := make(chan struct{})
	startWorker(t, pubSub, WorkerConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Concurrency: 1},
		func(ctx context.Context, job GradeSyncJob) error {
			if calls.Add(1) < 3 {
				return errors.New("delivery failed")
			}
			close(done)
			return nil
		})

	publisher := NewPublisher(pubSub)
	if err := publisher.EnqueueGradeSync(7); err != nil {
		t.Fatalf("EnqueueGradeSync: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("job not retried to success, calls = %d", calls.Load())
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("handler called %d times, want 3", got)
	}
}

func TestWorker_ExhaustedJobGoesToPoison(t *testing.T) {
	pubSub := newTestPubSub(t)

	poisoned, err := pubSub.Subscribe(context.Background(), TopicGradePassbackPoison)
	if err != nil {
		t.Fatalf("subscribe poison: %v", err)
	}

	var calls atomic.Int32
	startWorker(t, pubSub, WorkerConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Concurrency: 1},
		func(ctx context.Context, job GradeSyncJob) error {
			calls.Add(1)
			return errors.New("permanent delivery failure")
		})

	publisher := NewPublisher(pubSub)
	if err := publisher.EnqueueGradeSync(13); err != nil {
		t.Fatalf("EnqueueGradeSync: %v", err)
	}

	select {
	case msg := <-poisoned:
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("exhausted job never reached poison topic")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("handler called %d times, want 3 attempts before poison", got)
	}
}

func TestWorker_BoundedConcurrency(t *testing.T) {
	pubSub := newTestPubSub(t)

	const limit = 3
	var mu sync.Mutex
	var active, peak int
	var wg sync.WaitGroup
	wg.Add(6)

	startWorker(t, pubSub, WorkerConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, Concurrency: limit},
		func(ctx context.Context, job GradeSyncJob) error {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(50 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			wg.Done()
			return nil
		})

	publisher := NewPublisher(pubSub)
	for i := uint(1); i <= 6; i++ {
		if err := publisher.EnqueueGradeSync(i); err != nil {
			t.Fatalf("EnqueueGradeSync: %v", err)
		}
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(10 * time.Second):
		t.Fatal("jobs not drained")
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > limit {
		t.Errorf("peak concurrency %d exceeds limit %d", peak, limit)
	}
}
