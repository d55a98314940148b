package store

import (
	"encoding/json"
	"fmt"

	"relaydesk/pkg/models"
)

func tenantKey(id int64) string { return fmt.Sprintf("tenant:%012d", id) }

// operators are keyed globally; the record carries its tenant so
// cross-tenant validation (reassign) can inspect ownership.
func operatorKey(id int64) string { return fmt.Sprintf("operator:%012d", id) }

func inboxKey(tenantID, id int64) string { return fmt.Sprintf("inbox:%012d:%012d", tenantID, id) }

func subKey(tenantID, operatorID, inboxID int64) string {
	return fmt.Sprintf("sub:%012d:%012d:%012d", tenantID, operatorID, inboxID)
}

func SaveTenant(t *models.Tenant) error {
	return setJSON(tenantKey(t.ID), t)
}

// GetTenant returns the tenant or nil when absent.
func GetTenant(id int64) (*models.Tenant, error) {
	var t models.Tenant
	ok, err := getJSON(tenantKey(id), &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

func ListTenants() ([]*models.Tenant, error) {
	var out []*models.Tenant
	err := scanPrefix("tenant:", func(_ string, value []byte) (bool, error) {
		var t models.Tenant
		if err := json.Unmarshal(value, &t); err != nil {
			return false, err
		}
		out = append(out, &t)
		return true, nil
	})
	return out, err
}

func SaveOperator(o *models.Operator) error {
	return setJSON(operatorKey(o.ID), o)
}

// GetOperator returns the operator or nil when absent. Lookup is global;
// callers enforce tenant ownership from the record.
func GetOperator(id int64) (*models.Operator, error) {
	var o models.Operator
	ok, err := getJSON(operatorKey(id), &o)
	if err != nil || !ok {
		return nil, err
	}
	return &o, nil
}

func ListOperators(tenantID int64) ([]*models.Operator, error) {
	var out []*models.Operator
	err := scanPrefix("operator:", func(_ string, value []byte) (bool, error) {
		var o models.Operator
		if err := json.Unmarshal(value, &o); err != nil {
			return false, err
		}
		if o.TenantID == tenantID {
			out = append(out, &o)
		}
		return true, nil
	})
	return out, err
}

func SaveInbox(ib *models.Inbox) error {
	return setJSON(inboxKey(ib.TenantID, ib.ID), ib)
}

// GetInbox returns the inbox or nil when absent. The key is tenant-scoped
// so a foreign tenant's inbox is indistinguishable from a missing one.
func GetInbox(tenantID, id int64) (*models.Inbox, error) {
	var ib models.Inbox
	ok, err := getJSON(inboxKey(tenantID, id), &ib)
	if err != nil || !ok {
		return nil, err
	}
	return &ib, nil
}

func ListInboxes(tenantID int64) ([]*models.Inbox, error) {
	var out []*models.Inbox
	prefix := fmt.Sprintf("inbox:%012d:", tenantID)
	err := scanPrefix(prefix, func(_ string, value []byte) (bool, error) {
		var ib models.Inbox
		if err := json.Unmarshal(value, &ib); err != nil {
			return false, err
		}
		out = append(out, &ib)
		return true, nil
	})
	return out, err
}

func SaveSubscription(s *models.Subscription) error {
	return setJSON(subKey(s.TenantID, s.OperatorID, s.InboxID), s)
}

func DeleteSubscription(tenantID, operatorID, inboxID int64) error {
	return deleteKey(subKey(tenantID, operatorID, inboxID))
}

// HasSubscription reports whether the operator is subscribed to the inbox.
func HasSubscription(tenantID, operatorID, inboxID int64) (bool, error) {
	var s models.Subscription
	return getJSON(subKey(tenantID, operatorID, inboxID), &s)
}

// SubscriptionFilter narrows ListSubscriptions. Zero values mean "any".
type SubscriptionFilter struct {
	OperatorID int64
	InboxID    int64
}

// ListSubscriptions returns a tenant's subscription links, optionally
// narrowed by operator and/or inbox.
func ListSubscriptions(tenantID int64, f SubscriptionFilter) ([]*models.Subscription, error) {
	prefix := fmt.Sprintf("sub:%012d:", tenantID)
	if f.OperatorID != 0 {
		prefix = fmt.Sprintf("sub:%012d:%012d:", tenantID, f.OperatorID)
	}
	var out []*models.Subscription
	err := scanPrefix(prefix, func(_ string, value []byte) (bool, error) {
		var s models.Subscription
		if err := json.Unmarshal(value, &s); err != nil {
			return false, err
		}
		if f.InboxID != 0 && s.InboxID != f.InboxID {
			return true, nil
		}
		out = append(out, &s)
		return true, nil
	})
	return out, err
}
