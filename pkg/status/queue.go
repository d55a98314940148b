package status

import (
	"context"
	"sync"
	"time"

	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
	"relaydesk/pkg/telemetry"
)

// Job is one pending availability write.
type Job struct {
	TenantID   int64
	OperatorID int64
	Status     models.Availability
}

// Queue applies availability writes asynchronously so foreign status
// propagation never runs on a request path. It is explicitly
// non-durable: pending and retrying jobs are lost on process restart.
// A single worker drains jobs sequentially; failed jobs are retried with
// linearly increasing backoff and dropped after the attempt ceiling.
type Queue struct {
	ch          chan Job
	apply       func(context.Context, Job) error
	maxAttempts int
	baseBackoff time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewQueue builds a queue of the given capacity around apply. The
// default apply target is a Tracker's SetStatus.
func NewQueue(capacity, maxAttempts int, baseBackoff time.Duration, apply func(context.Context, Job) error) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	return &Queue{
		ch:          make(chan Job, capacity),
		apply:       apply,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		stop:        make(chan struct{}),
	}
}

// TrackerApply adapts a Tracker to the queue's apply signature.
func TrackerApply(t *Tracker) func(context.Context, Job) error {
	return func(ctx context.Context, j Job) error {
		_, err := t.SetStatus(ctx, j.TenantID, j.OperatorID, j.Status)
		return err
	}
}

// Start launches the single worker. Call Stop to drain out.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop signals the worker and waits for it to exit. Pending jobs are
// discarded.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}

// Enqueue appends a job without blocking the caller. Fire-and-forget:
// the caller never learns the outcome, and a full queue drops the job
// with only a log line and a counter.
func (q *Queue) Enqueue(tenantID, operatorID int64, st models.Availability) {
	select {
	case q.ch <- Job{TenantID: tenantID, OperatorID: operatorID, Status: st}:
		telemetry.StatusQueueDepth.Set(float64(len(q.ch)))
	default:
		telemetry.StatusJobsTotal.WithLabelValues("rejected").Inc()
		logger.Warn("status_queue_full", "tenant", tenantID, "operator", operatorID)
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case job := <-q.ch:
			telemetry.StatusQueueDepth.Set(float64(len(q.ch)))
			q.handle(job)
		}
	}
}

// handle runs a job to completion or exhaustion. Retries happen in-line
// so jobs stay strictly sequential.
func (q *Queue) handle(job Job) {
	ctx := context.Background()
	for attempt := 1; ; attempt++ {
		err := q.apply(ctx, job)
		if err == nil {
			telemetry.StatusJobsTotal.WithLabelValues("ok").Inc()
			return
		}
		logger.Error("status_job_failed", "tenant", job.TenantID, "operator", job.OperatorID, "attempt", attempt, "error", err)
		if attempt >= q.maxAttempts {
			// exhausted: drop silently, callers were never promised delivery
			telemetry.StatusJobsTotal.WithLabelValues("dropped").Inc()
			logger.Warn("status_job_dropped", "tenant", job.TenantID, "operator", job.OperatorID, "attempts", attempt)
			return
		}
		backoff := time.Duration(attempt) * q.baseBackoff
		select {
		case <-time.After(backoff):
		case <-q.stop:
			return
		}
	}
}
