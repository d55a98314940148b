// Package alloc implements the conversation allocation engine: the state
// machine that hands queued conversations to operators and moves them
// through ALLOCATED to RESOLVED or back to QUEUED.
package alloc

import (
	"context"
	"errors"
	"time"

	"relaydesk/pkg/apperr"
	"relaydesk/pkg/events"
	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
	"relaydesk/pkg/scoring"
	"relaydesk/pkg/store"
	"relaydesk/pkg/telemetry"
)

// Engine exposes the six allocation operations. All operations are
// scoped to the caller's tenant and role.
type Engine struct {
	// Weights resolves the raw (un-normalized) scoring weights for a
	// tenant.
	Weights func(tenantID int64) scoring.Weights
	// ScanWindow bounds the queued-candidate scan per allocate-next.
	ScanWindow int
	// Publisher receives lifecycle events, best-effort.
	Publisher events.Publisher
}

// New builds an engine with the given weight resolver and scan window.
func New(weights func(int64) scoring.Weights, scanWindow int, pub events.Publisher) *Engine {
	if weights == nil {
		weights = func(int64) scoring.Weights { return scoring.DefaultWeights }
	}
	if scanWindow <= 0 {
		scanWindow = 100
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{Weights: weights, ScanWindow: scanWindow, Publisher: pub}
}

// AllocateNext hands the caller the top-ranked queued conversation from
// its subscribed inboxes. A nil conversation with nil error means "no
// candidate": nothing to hand out right now, including the case where a
// racing operator took the scanned winner first.
func (e *Engine) AllocateNext(ctx context.Context, caller models.Caller) (*models.Conversation, error) {
	st, err := store.GetOperatorStatus(caller.OperatorID)
	if err != nil {
		return nil, err
	}
	if st != nil && st.Status == models.Offline {
		telemetry.AllocationsTotal.WithLabelValues("offline").Inc()
		return nil, apperr.Conflict("operator is offline")
	}

	subs, err := store.ListSubscriptions(caller.TenantID, store.SubscriptionFilter{OperatorID: caller.OperatorID})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		telemetry.AllocationsTotal.WithLabelValues("no_candidate").Inc()
		return nil, nil
	}
	inboxIDs := make([]int64, 0, len(subs))
	for _, s := range subs {
		inboxIDs = append(inboxIDs, s.InboxID)
	}

	candidates, err := store.FindQueuedByInboxes(caller.TenantID, inboxIDs, e.ScanWindow)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		telemetry.AllocationsTotal.WithLabelValues("no_candidate").Inc()
		return nil, nil
	}

	now := time.Now().UTC()
	ranked := scoring.Rank(candidates, scoring.Normalize(e.Weights(caller.TenantID)), now)
	top := ranked[0]

	// Conditional update on state=QUEUED: exactly one of several racing
	// allocators can win this transition.
	updated, err := store.UpdateConversationIf(caller.TenantID, top.Conversation.ID, models.StateQueued, func(c *models.Conversation) {
		c.State = models.StateAllocated
		c.AssignedOperatorID = caller.OperatorID
		c.PriorityScore = top.Score
		c.UpdatedTS = now.UnixNano()
	})
	if err != nil {
		if errors.Is(err, store.ErrStateChanged) || errors.Is(err, store.ErrConversationMissing) {
			// race loss, not an error
			telemetry.AllocationsTotal.WithLabelValues("race_lost").Inc()
			return nil, nil
		}
		return nil, err
	}

	telemetry.AllocationsTotal.WithLabelValues("allocated").Inc()
	logger.Info("conversation_allocated", "tenant", caller.TenantID, "conversation", updated.ID, "operator", caller.OperatorID, "score", top.Score)
	events.Emit(ctx, e.Publisher, events.Event{
		Type:           events.TypeAllocated,
		TenantID:       updated.TenantID,
		ConversationID: updated.ID,
		InboxID:        updated.InboxID,
		OperatorID:     caller.OperatorID,
	})
	return updated, nil
}

// Claim allocates a specific queued conversation to the caller.
func (e *Engine) Claim(ctx context.Context, caller models.Caller, conversationID int64) (*models.Conversation, error) {
	conv, err := store.GetConversation(caller.TenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	if conv.State != models.StateQueued {
		return nil, apperr.Conflict("conversation already taken")
	}
	ok, err := store.HasSubscription(caller.TenantID, caller.OperatorID, conv.InboxID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("operator not subscribed to inbox")
	}

	updated, err := store.UpdateConversationIf(caller.TenantID, conversationID, models.StateQueued, func(c *models.Conversation) {
		c.State = models.StateAllocated
		c.AssignedOperatorID = caller.OperatorID
		c.UpdatedTS = time.Now().UTC().UnixNano()
	})
	if err != nil {
		if errors.Is(err, store.ErrStateChanged) {
			return nil, apperr.Conflict("conversation already taken")
		}
		if errors.Is(err, store.ErrConversationMissing) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}

	telemetry.TransitionsTotal.WithLabelValues("claim").Inc()
	logger.Info("conversation_claimed", "tenant", caller.TenantID, "conversation", updated.ID, "operator", caller.OperatorID)
	events.Emit(ctx, e.Publisher, events.Event{
		Type:           events.TypeAllocated,
		TenantID:       updated.TenantID,
		ConversationID: updated.ID,
		InboxID:        updated.InboxID,
		OperatorID:     caller.OperatorID,
	})
	return updated, nil
}

// Resolve marks an allocated conversation resolved. Only the assignee or
// a privileged role may resolve. RESOLVED is terminal.
func (e *Engine) Resolve(ctx context.Context, caller models.Caller, conversationID int64) (*models.Conversation, error) {
	conv, err := store.GetConversation(caller.TenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	if conv.State != models.StateAllocated {
		return nil, apperr.BadRequest("only allocated conversations can be resolved")
	}
	if conv.AssignedOperatorID != caller.OperatorID && !caller.Role.Privileged() {
		return nil, apperr.Forbidden("not allowed to resolve this conversation")
	}

	now := time.Now().UTC().UnixNano()
	prevOperator := conv.AssignedOperatorID
	updated, err := store.UpdateConversationIf(caller.TenantID, conversationID, models.StateAllocated, func(c *models.Conversation) {
		c.State = models.StateResolved
		c.AssignedOperatorID = 0
		c.ResolvedTS = now
		c.UpdatedTS = now
	})
	if err != nil {
		if errors.Is(err, store.ErrStateChanged) {
			return nil, apperr.BadRequest("only allocated conversations can be resolved")
		}
		if errors.Is(err, store.ErrConversationMissing) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}

	telemetry.TransitionsTotal.WithLabelValues("resolve").Inc()
	logger.Info("conversation_resolved", "tenant", caller.TenantID, "conversation", updated.ID, "operator", prevOperator, "resolved_by", caller.OperatorID)
	events.Emit(ctx, e.Publisher, events.Event{
		Type:           events.TypeResolved,
		TenantID:       updated.TenantID,
		ConversationID: updated.ID,
		InboxID:        updated.InboxID,
		OperatorID:     prevOperator,
	})
	return updated, nil
}

// Deallocate returns an allocated conversation to the queue, clearing
// the assignee. Same authorization rules as Resolve.
func (e *Engine) Deallocate(ctx context.Context, caller models.Caller, conversationID int64) (*models.Conversation, error) {
	conv, err := store.GetConversation(caller.TenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	if conv.State != models.StateAllocated {
		return nil, apperr.BadRequest("only allocated conversations can be deallocated")
	}
	if conv.AssignedOperatorID != caller.OperatorID && !caller.Role.Privileged() {
		return nil, apperr.Forbidden("not allowed to deallocate this conversation")
	}

	prevOperator := conv.AssignedOperatorID
	updated, err := store.UpdateConversationIf(caller.TenantID, conversationID, models.StateAllocated, func(c *models.Conversation) {
		c.State = models.StateQueued
		c.AssignedOperatorID = 0
		c.UpdatedTS = time.Now().UTC().UnixNano()
	})
	if err != nil {
		if errors.Is(err, store.ErrStateChanged) {
			return nil, apperr.BadRequest("only allocated conversations can be deallocated")
		}
		if errors.Is(err, store.ErrConversationMissing) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}

	telemetry.TransitionsTotal.WithLabelValues("deallocate").Inc()
	logger.Info("conversation_deallocated", "tenant", caller.TenantID, "conversation", updated.ID, "operator", prevOperator)
	events.Emit(ctx, e.Publisher, events.Event{
		Type:           events.TypeDeallocated,
		TenantID:       updated.TenantID,
		ConversationID: updated.ID,
		InboxID:        updated.InboxID,
		OperatorID:     prevOperator,
	})
	return updated, nil
}

// Reassign hands an allocated conversation to a different operator in
// place. Privileged roles only; the target operator must exist in the
// tenant and be subscribed to the conversation's inbox.
func (e *Engine) Reassign(ctx context.Context, caller models.Caller, conversationID, newOperatorID int64) (*models.Conversation, error) {
	if !caller.Role.Privileged() {
		return nil, apperr.Forbidden("only managers or admins can reassign")
	}
	conv, err := store.GetConversation(caller.TenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	if conv.State != models.StateAllocated {
		return nil, apperr.BadRequest("only allocated conversations can be reassigned")
	}

	newOperator, err := store.GetOperator(newOperatorID)
	if err != nil {
		return nil, err
	}
	if newOperator == nil {
		return nil, apperr.NotFound("new operator not found")
	}
	if newOperator.TenantID != caller.TenantID {
		return nil, apperr.Forbidden("cannot reassign across tenants")
	}
	ok, err := store.HasSubscription(caller.TenantID, newOperatorID, conv.InboxID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.BadRequest("operator is not subscribed to the conversation inbox")
	}

	updated, err := store.UpdateConversationIf(caller.TenantID, conversationID, models.StateAllocated, func(c *models.Conversation) {
		c.AssignedOperatorID = newOperatorID
		c.UpdatedTS = time.Now().UTC().UnixNano()
	})
	if err != nil {
		if errors.Is(err, store.ErrStateChanged) {
			return nil, apperr.BadRequest("only allocated conversations can be reassigned")
		}
		if errors.Is(err, store.ErrConversationMissing) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}

	telemetry.TransitionsTotal.WithLabelValues("reassign").Inc()
	logger.Info("conversation_reassigned", "tenant", caller.TenantID, "conversation", updated.ID, "operator", newOperatorID)
	events.Emit(ctx, e.Publisher, events.Event{
		Type:           events.TypeReassigned,
		TenantID:       updated.TenantID,
		ConversationID: updated.ID,
		InboxID:        updated.InboxID,
		OperatorID:     newOperatorID,
	})
	return updated, nil
}

// MoveInbox moves a conversation to another inbox in the same tenant and
// unconditionally resets it to QUEUED with no assignee, forfeiting any
// current allocation so the new inbox's operators can compete for it.
// Privileged roles only; resolved conversations cannot be moved.
func (e *Engine) MoveInbox(ctx context.Context, caller models.Caller, conversationID, newInboxID int64) (*models.Conversation, error) {
	if !caller.Role.Privileged() {
		return nil, apperr.Forbidden("only managers or admins can move a conversation")
	}
	conv, err := store.GetConversation(caller.TenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	if conv.State == models.StateResolved {
		return nil, apperr.BadRequest("resolved conversations cannot be moved")
	}
	inbox, err := store.GetInbox(caller.TenantID, newInboxID)
	if err != nil {
		return nil, err
	}
	if inbox == nil {
		return nil, apperr.NotFound("inbox not found")
	}

	updated, err := store.UpdateConversationUnless(caller.TenantID, conversationID, models.StateResolved, func(c *models.Conversation) {
		c.InboxID = newInboxID
		c.State = models.StateQueued
		c.AssignedOperatorID = 0
		c.UpdatedTS = time.Now().UTC().UnixNano()
	})
	if err != nil {
		if errors.Is(err, store.ErrStateChanged) {
			return nil, apperr.BadRequest("resolved conversations cannot be moved")
		}
		if errors.Is(err, store.ErrConversationMissing) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}

	telemetry.TransitionsTotal.WithLabelValues("move_inbox").Inc()
	logger.Info("conversation_moved", "tenant", caller.TenantID, "conversation", updated.ID, "inbox", newInboxID)
	events.Emit(ctx, e.Publisher, events.Event{
		Type:           events.TypeMoved,
		TenantID:       updated.TenantID,
		ConversationID: updated.ID,
		InboxID:        newInboxID,
	})
	return updated, nil
}
