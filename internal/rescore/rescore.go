// Package rescore refreshes the persisted priority-score snapshots of
// queued conversations on a cron schedule. Snapshots are written at
// allocation time and go stale as waiting delay grows; this keeps the
// priority listing meaningful between allocations.
package rescore

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
	"relaydesk/pkg/scoring"
	"relaydesk/pkg/store"
)

// snapshotWindow bounds how many queued conversations per tenant get
// refreshed in one run.
const snapshotWindow = 1000

// Start launches the cron-scheduled refresh loop. weights resolves the
// raw weight pair per tenant. Returns a cancel func.
func Start(ctx context.Context, cronExpr string, weights func(int64) scoring.Weights) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("rescore_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid rescore cron expression: %s", cronExpr)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, weights)
	logger.Info("rescore_scheduler_started", "cron", cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression and sleeps
// until it, then refreshes all tenants.
func runScheduler(ctx context.Context, cronExpr string, weights func(int64) scoring.Weights) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("rescore_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("rescore_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(weights); err != nil {
				logger.Error("rescore_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("rescore_scheduler_stopping")
			return
		}
	}
}

// RunOnce refreshes score snapshots for every tenant's queued
// conversations. A failure in one tenant does not abort the others.
func RunOnce(weights func(int64) scoring.Weights) error {
	tenants, err := store.ListTenants()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, t := range tenants {
		if err := refreshTenant(t.ID, scoring.Normalize(weights(t.ID)), now); err != nil {
			logger.Error("rescore_tenant_failed", "tenant", t.ID, "error", err)
		}
	}
	return nil
}

func refreshTenant(tenantID int64, w scoring.Weights, now time.Time) error {
	queued, err := store.ListConversations(tenantID, store.ConversationFilter{
		State: models.StateQueued,
		Limit: snapshotWindow,
	})
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		return nil
	}
	updated := 0
	for _, r := range scoring.Rank(queued, w, now) {
		_, err := store.UpdateConversationIf(tenantID, r.Conversation.ID, models.StateQueued, func(c *models.Conversation) {
			c.PriorityScore = r.Score
		})
		if err != nil {
			// a conversation allocated mid-refresh keeps its allocation score
			continue
		}
		updated++
	}
	logger.Info("rescore_tenant_completed", "tenant", tenantID, "updated", updated)
	return nil
}
