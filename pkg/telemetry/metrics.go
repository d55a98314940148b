// Package telemetry registers the service's prometheus collectors. The
// /metrics endpoint itself is mounted by internal/app via promhttp.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AllocationsTotal counts allocate-next outcomes: allocated,
	// no_candidate, race_lost, offline.
	AllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_allocations_total",
		Help: "allocate-next outcomes",
	}, []string{"outcome"})

	// TransitionsTotal counts successful engine state transitions by op.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_transitions_total",
		Help: "successful conversation state transitions",
	}, []string{"op"})

	// GraceCreatedTotal counts reclaim records written by the tracker.
	GraceCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaydesk_grace_records_created_total",
		Help: "grace-period reclaim records created",
	})

	// GraceSweptTotal counts sweeper record outcomes: requeued (the
	// conversation went back to the pool) or skipped (state had moved on).
	GraceSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_grace_swept_total",
		Help: "grace-period reclaim records processed",
	}, []string{"outcome"})

	// StatusQueueDepth is the current length of the status retry queue.
	StatusQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaydesk_status_queue_depth",
		Help: "pending status-update jobs",
	})

	// StatusJobsTotal counts queue job terminations: ok, dropped,
	// rejected (queue full at enqueue).
	StatusJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaydesk_status_jobs_total",
		Help: "status-update job outcomes",
	}, []string{"result"})

	// EventPublishFailures counts lifecycle events that could not be
	// published; publishing is best-effort and never fails an operation.
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaydesk_event_publish_failures_total",
		Help: "conversation lifecycle events dropped on publish error",
	})
)
