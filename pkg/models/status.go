package models

// Availability is an operator's online/offline status.
type Availability string

const (
	Available Availability = "AVAILABLE"
	Offline   Availability = "OFFLINE"
)

// Valid reports whether a is a known availability value.
func (a Availability) Valid() bool {
	return a == Available || a == Offline
}

// OperatorStatus is the single availability record kept per operator.
// Created on first status write, updated on every change, never deleted.
type OperatorStatus struct {
	OperatorID int64        `json:"operator_id"`
	TenantID   int64        `json:"tenant_id"`
	Status     Availability `json:"status"`
	ChangedTS  int64        `json:"changed_ts"`
}

// GraceReason records why a conversation was put at risk of reclaim.
type GraceReason string

const (
	ReasonOffline GraceReason = "OFFLINE"
	ReasonManual  GraceReason = "MANUAL"
)

// GraceAssignment marks one (conversation, operator) pair as reclaimable
// once ExpiresTS passes. It is consumed exactly once by the sweeper, or
// deleted in bulk when the operator returns to AVAILABLE.
type GraceAssignment struct {
	TenantID       int64       `json:"tenant_id"`
	ConversationID int64       `json:"conversation_id"`
	OperatorID     int64       `json:"operator_id"`
	ExpiresTS      int64       `json:"expires_ts"`
	Reason         GraceReason `json:"reason"`
	CreatedTS      int64       `json:"created_ts"`
}
