// Package sweeper reclaims conversations from operators whose grace
// period elapsed, returning them to the queue for reallocation.
package sweeper

import (
	"context"
	"errors"
	"time"

	"relaydesk/pkg/events"
	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
	"relaydesk/pkg/store"
	"relaydesk/pkg/telemetry"
)

// Sweeper periodically consumes expired grace-period records.
type Sweeper struct {
	// Interval between sweep passes. Sub-minute keeps reclaim-window
	// slippage bounded.
	Interval time.Duration
	// Publisher receives conversation.reclaimed events, best-effort.
	Publisher events.Publisher
}

// New builds a sweeper; interval defaults to 30s.
func New(interval time.Duration, pub events.Publisher) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Sweeper{Interval: interval, Publisher: pub}
}

// ProcessExpired sweeps every reclaim record with expiry <= now, across
// all tenants. A record whose conversation is still allocated to the
// reclaim's operator sends the conversation back to QUEUED; any other
// outcome (resolved, reassigned, deleted) leaves the conversation
// untouched. The reclaim record is always deleted afterwards: it never
// survives its own processing pass. Returns the number of records
// processed. A failure on one record does not abort the rest.
func (s *Sweeper) ProcessExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := store.ListExpiredGrace(now.UnixNano())
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, g := range expired {
		if err := s.processOne(ctx, g, now); err != nil {
			logger.Error("grace_record_failed", "tenant", g.TenantID, "conversation", g.ConversationID, "operator", g.OperatorID, "error", err)
		}
		// consume the record regardless of outcome
		if err := store.DeleteGraceAssignment(g.ConversationID, g.OperatorID); err != nil {
			logger.Error("grace_record_delete_failed", "conversation", g.ConversationID, "operator", g.OperatorID, "error", err)
			continue
		}
		processed++
	}
	if processed > 0 {
		logger.Info("sweep_completed", "processed", processed)
	}
	return processed, nil
}

func (s *Sweeper) processOne(ctx context.Context, g *models.GraceAssignment, now time.Time) error {
	conv, err := store.GetConversation(g.TenantID, g.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil || conv.State != models.StateAllocated || conv.AssignedOperatorID != g.OperatorID {
		// resolved, reassigned or gone in the meantime: nothing to do
		telemetry.GraceSweptTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	updated, err := store.UpdateConversationIf(g.TenantID, g.ConversationID, models.StateAllocated, func(c *models.Conversation) {
		if c.AssignedOperatorID != g.OperatorID {
			return
		}
		c.State = models.StateQueued
		c.AssignedOperatorID = 0
		c.UpdatedTS = now.UnixNano()
	})
	if err != nil {
		if errors.Is(err, store.ErrStateChanged) || errors.Is(err, store.ErrConversationMissing) {
			telemetry.GraceSweptTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		return err
	}
	if updated.State != models.StateQueued {
		// assignee changed under the lock; leave it alone
		telemetry.GraceSweptTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	telemetry.GraceSweptTotal.WithLabelValues("requeued").Inc()
	logger.Info("conversation_reclaimed", "tenant", g.TenantID, "conversation", g.ConversationID, "operator", g.OperatorID)
	events.Emit(ctx, s.Publisher, events.Event{
		Type:           events.TypeReclaimed,
		TenantID:       g.TenantID,
		ConversationID: g.ConversationID,
		InboxID:        updated.InboxID,
		OperatorID:     g.OperatorID,
	})
	return nil
}

// Start launches the periodic sweep loop. Returns a cancel func.
func (s *Sweeper) Start(ctx context.Context) (context.CancelFunc, error) {
	ctx2, cancel := context.WithCancel(ctx)
	go s.runLoop(ctx2)
	logger.Info("sweeper_started", "interval", s.Interval)
	return cancel, nil
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper_stopping")
			return
		case <-ticker.C:
			if _, err := s.ProcessExpired(ctx, time.Now().UTC()); err != nil {
				logger.Error("sweep_run_error", "error", err)
			}
		}
	}
}
