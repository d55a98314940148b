package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relaydesk/pkg/models"
)

type applyRecorder struct {
	mu    sync.Mutex
	calls []Job
	fail  int // fail the first N calls
	done  chan struct{}
}

func (a *applyRecorder) apply(_ context.Context, j Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, j)
	if a.fail > 0 {
		a.fail--
		return errors.New("transient failure")
	}
	if a.done != nil {
		select {
		case a.done <- struct{}{}:
		default:
		}
	}
	return nil
}

func (a *applyRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func TestQueueAppliesJobAsync(t *testing.T) {
	rec := &applyRecorder{done: make(chan struct{}, 1)}
	q := NewQueue(4, 3, time.Millisecond, rec.apply)
	q.Start()
	defer q.Stop()

	q.Enqueue(1, 5, models.Offline)

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatalf("job was not applied")
	}
	rec.mu.Lock()
	j := rec.calls[0]
	rec.mu.Unlock()
	if j.TenantID != 1 || j.OperatorID != 5 || j.Status != models.Offline {
		t.Fatalf("unexpected job: %+v", j)
	}
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	rec := &applyRecorder{fail: 2, done: make(chan struct{}, 1)}
	q := NewQueue(4, 3, time.Millisecond, rec.apply)
	q.Start()
	defer q.Stop()

	q.Enqueue(1, 5, models.Available)

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatalf("job never succeeded")
	}
	if got := rec.count(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestQueueDropsAfterMaxAttempts(t *testing.T) {
	rec := &applyRecorder{fail: 100}
	q := NewQueue(4, 3, time.Millisecond, rec.apply)
	q.Start()
	defer q.Stop()

	q.Enqueue(1, 5, models.Available)

	deadline := time.Now().Add(time.Second)
	for rec.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.count(); got != 3 {
		t.Fatalf("expected exactly 3 attempts before drop, got %d", got)
	}
	// give it a moment to prove no further retries happen
	time.Sleep(20 * time.Millisecond)
	if got := rec.count(); got != 3 {
		t.Fatalf("job retried past the ceiling: %d attempts", got)
	}
}

func TestQueueFullDropsNewJob(t *testing.T) {
	block := make(chan struct{})
	var applied int
	var mu sync.Mutex
	q := NewQueue(1, 1, time.Millisecond, func(context.Context, Job) error {
		<-block
		mu.Lock()
		applied++
		mu.Unlock()
		return nil
	})
	q.Start()
	defer func() { close(block); q.Stop() }()

	// the worker is not yet draining until a job arrives; fill the buffer
	// then overflow it
	q.Enqueue(1, 1, models.Available)
	time.Sleep(10 * time.Millisecond) // worker picks it up and blocks
	q.Enqueue(1, 2, models.Available) // buffered
	q.Enqueue(1, 3, models.Available) // dropped, queue full

	mu.Lock()
	n := applied
	mu.Unlock()
	if n != 0 {
		t.Fatalf("apply completed early: %d", n)
	}
}

func TestQueueStopIsIdempotent(t *testing.T) {
	q := NewQueue(1, 1, time.Millisecond, func(context.Context, Job) error { return nil })
	q.Start()
	q.Stop()
	q.Stop()
}
