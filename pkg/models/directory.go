package models

// Tenant is the isolation boundary every other entity is scoped to.
type Tenant struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedTS int64  `json:"created_ts"`
}

// Operator is a human agent who can be allocated conversations.
type Operator struct {
	ID        int64  `json:"id"`
	TenantID  int64  `json:"tenant_id"`
	Name      string `json:"name"`
	CreatedTS int64  `json:"created_ts"`
}

// Inbox is a routable channel conversations arrive on.
type Inbox struct {
	ID          int64  `json:"id"`
	TenantID    int64  `json:"tenant_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	CreatedTS   int64  `json:"created_ts"`
}

// Subscription links an operator to an inbox it may pull work from.
// Administrative data; read-only to the allocation engine.
type Subscription struct {
	TenantID   int64 `json:"tenant_id"`
	OperatorID int64 `json:"operator_id"`
	InboxID    int64 `json:"inbox_id"`
	CreatedTS  int64 `json:"created_ts"`
}
