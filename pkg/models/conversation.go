package models

// ConversationState is the assignment lifecycle state of a conversation.
type ConversationState string

const (
	StateQueued    ConversationState = "QUEUED"
	StateAllocated ConversationState = "ALLOCATED"
	StateResolved  ConversationState = "RESOLVED"
)

// Valid reports whether s is a known conversation state.
func (s ConversationState) Valid() bool {
	switch s {
	case StateQueued, StateAllocated, StateResolved:
		return true
	}
	return false
}

// Conversation is one external customer thread, unique per
// (tenant, external id). State and assignee are mutated only through the
// allocation engine's transitions and the grace-period sweeper.
type Conversation struct {
	ID         int64  `json:"id"`
	TenantID   int64  `json:"tenant_id"`
	InboxID    int64  `json:"inbox_id"`
	ExternalID string `json:"external_id"`
	// CustomerPhone identifies the customer on the inbox channel
	CustomerPhone string            `json:"customer_phone_number"`
	State         ConversationState `json:"state"`
	// AssignedOperatorID is non-zero iff State == ALLOCATED
	AssignedOperatorID int64 `json:"assigned_operator_id,omitempty"`
	// LastMessageTS is the last customer/operator activity (ns); zero when
	// no message has been recorded yet
	LastMessageTS int64 `json:"last_message_ts,omitempty"`
	MessageCount  int   `json:"message_count"`
	// PriorityScore is a persisted snapshot of the canonical priority score;
	// it is never an input to ranking
	PriorityScore float64 `json:"priority_score"`
	// ResolvedTS is non-zero iff State == RESOLVED (ns)
	ResolvedTS int64 `json:"resolved_ts,omitempty"`
	CreatedTS  int64 `json:"created_ts"`
	UpdatedTS  int64 `json:"updated_ts"`
}

// ActivityTS returns the conversation's effective last-activity timestamp:
// the newer of last message and creation time.
func (c *Conversation) ActivityTS() int64 {
	if c.LastMessageTS > c.CreatedTS {
		return c.LastMessageTS
	}
	return c.CreatedTS
}

// Role is the caller's privilege class on engine operations.
type Role string

const (
	RoleOperator Role = "OPERATOR"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

// Privileged reports whether the role may act on conversations it is not
// assigned to (reassign, move-inbox, foreign resolve/deallocate).
func (r Role) Privileged() bool {
	return r == RoleManager || r == RoleAdmin
}

// Caller is the authenticated context every tenant-scoped operation runs
// under.
type Caller struct {
	TenantID   int64 `json:"tenant_id"`
	OperatorID int64 `json:"operator_id"`
	Role       Role  `json:"role"`
}
