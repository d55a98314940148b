// Package status tracks operator availability and drives the
// grace-period reclaim records an offline operator leaves behind.
package status

import (
	"context"
	"time"

	"relaydesk/pkg/apperr"
	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
	"relaydesk/pkg/store"
	"relaydesk/pkg/telemetry"
)

// Tracker upserts operator availability records and manages the reclaim
// records derived from them.
type Tracker struct {
	// GraceWindow is how long an offline operator's allocations stay
	// reserved before the sweeper returns them to the queue.
	GraceWindow time.Duration
}

// NewTracker builds a tracker with the given reclaim window.
func NewTracker(graceWindow time.Duration) *Tracker {
	if graceWindow <= 0 {
		graceWindow = 5 * time.Minute
	}
	return &Tracker{GraceWindow: graceWindow}
}

// SetStatus upserts the operator's availability. Going OFFLINE creates
// one reclaim record per currently-allocated conversation; returning
// AVAILABLE cancels all of the operator's pending reclaims.
func (t *Tracker) SetStatus(ctx context.Context, tenantID, operatorID int64, st models.Availability) (*models.OperatorStatus, error) {
	if !st.Valid() {
		return nil, apperr.BadRequest("unknown availability status")
	}
	op, err := store.GetOperator(operatorID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, apperr.NotFound("operator not found")
	}
	if op.TenantID != tenantID {
		return nil, apperr.Forbidden("operator does not belong to tenant")
	}

	now := time.Now().UTC()
	rec, err := store.GetOperatorStatus(operatorID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &models.OperatorStatus{OperatorID: operatorID, TenantID: tenantID}
	}
	rec.Status = st
	rec.ChangedTS = now.UnixNano()
	rec.TenantID = tenantID
	if err := store.SaveOperatorStatus(rec); err != nil {
		return nil, err
	}

	if st == models.Offline {
		if err := t.createReclaims(tenantID, operatorID, now); err != nil {
			return nil, err
		}
	} else {
		deleted, err := store.DeleteGraceForOperator(tenantID, operatorID)
		if err != nil {
			return nil, err
		}
		if deleted > 0 {
			logger.Info("grace_records_cancelled", "tenant", tenantID, "operator", operatorID, "count", deleted)
		}
	}

	logger.Info("operator_status_updated", "tenant", tenantID, "operator", operatorID, "status", st)
	return rec, nil
}

// GetStatus returns the operator's availability record, or nil when the
// operator has never written one. A record owned by a different tenant
// than requested is a scope violation.
func (t *Tracker) GetStatus(ctx context.Context, tenantID, operatorID int64) (*models.OperatorStatus, error) {
	rec, err := store.GetOperatorStatus(operatorID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if rec.TenantID != tenantID {
		return nil, apperr.Forbidden("operator status belongs to another tenant")
	}
	return rec, nil
}

func (t *Tracker) createReclaims(tenantID, operatorID int64, now time.Time) error {
	allocated, err := store.FindAllocatedToOperator(tenantID, operatorID)
	if err != nil {
		return err
	}
	if len(allocated) == 0 {
		return nil
	}
	expires := now.Add(t.GraceWindow).UnixNano()
	assignments := make([]*models.GraceAssignment, 0, len(allocated))
	for _, c := range allocated {
		assignments = append(assignments, &models.GraceAssignment{
			TenantID:       tenantID,
			ConversationID: c.ID,
			OperatorID:     operatorID,
			ExpiresTS:      expires,
			Reason:         models.ReasonOffline,
			CreatedTS:      now.UnixNano(),
		})
	}
	if err := store.UpsertGraceAssignments(assignments); err != nil {
		return err
	}
	telemetry.GraceCreatedTotal.Add(float64(len(assignments)))
	logger.Info("grace_records_created", "tenant", tenantID, "operator", operatorID, "count", len(assignments))
	return nil
}
