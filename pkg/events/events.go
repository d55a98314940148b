// Package events publishes conversation lifecycle events to a topic
// exchange so downstream consumers (dashboards, orchestrators) can react
// to allocation changes. Publishing is best-effort: a failed publish is
// logged and counted, never surfaced to the operation that produced it.
package events

import (
	"context"
	"time"

	"relaydesk/pkg/logger"
	"relaydesk/pkg/telemetry"
)

// Event types, used verbatim as routing keys.
const (
	TypeAllocated   = "conversation.allocated"
	TypeResolved    = "conversation.resolved"
	TypeDeallocated = "conversation.deallocated"
	TypeReassigned  = "conversation.reassigned"
	TypeMoved       = "conversation.moved"
	TypeReclaimed   = "conversation.reclaimed"
)

// Event is the JSON envelope published per lifecycle change.
type Event struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	TenantID       int64  `json:"tenant_id"`
	ConversationID int64  `json:"conversation_id"`
	InboxID        int64  `json:"inbox_id,omitempty"`
	OperatorID     int64  `json:"operator_id,omitempty"`
	OccurredTS     int64  `json:"occurred_ts"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// Publisher delivers lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards all events; used when the events section is not
// configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Emit publishes through p without failing the caller: errors are logged
// and counted only. A nil publisher is treated as Nop.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredTS == 0 {
		ev.OccurredTS = time.Now().UTC().UnixNano()
	}
	if err := p.Publish(ctx, ev); err != nil {
		telemetry.EventPublishFailures.Inc()
		logger.Warn("event_publish_failed", "type", ev.Type, "tenant", ev.TenantID, "conversation", ev.ConversationID, "error", err)
	}
}
