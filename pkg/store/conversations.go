package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/cockroachdb/pebble"

	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
)

// ErrStateChanged is returned by UpdateConversationIf when the
// conversation is no longer in the expected state. Callers treat it as a
// race loss, not a storage failure.
var ErrStateChanged = errors.New("conversation state changed")

// ErrConversationMissing is returned by conditional updates when the row
// disappeared between scan and write.
var ErrConversationMissing = errors.New("conversation missing")

func convKey(tenantID, id int64) string {
	return fmt.Sprintf("conv:%012d:%012d", tenantID, id)
}

func convExtKey(tenantID int64, externalID string) string {
	return fmt.Sprintf("convext:%012d:%s", tenantID, externalID)
}

// SaveConversation persists the conversation and its external-id index.
func SaveConversation(c *models.Conversation) error {
	if err := setJSON(convKey(c.TenantID, c.ID), c); err != nil {
		logger.Error("save_conversation_failed", "tenant", c.TenantID, "conversation", c.ID, "error", err)
		return err
	}
	if c.ExternalID != "" {
		if db == nil {
			return errNotOpened()
		}
		idx := convExtKey(c.TenantID, c.ExternalID)
		if err := db.Set([]byte(idx), []byte(strconv.FormatInt(c.ID, 10)), pebble.Sync); err != nil {
			return err
		}
	}
	return nil
}

// GetConversation returns the conversation or nil when absent.
func GetConversation(tenantID, id int64) (*models.Conversation, error) {
	var c models.Conversation
	ok, err := getJSON(convKey(tenantID, id), &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// GetConversationByExternal resolves a conversation through the
// per-tenant external-id index. Returns nil when absent.
func GetConversationByExternal(tenantID int64, externalID string) (*models.Conversation, error) {
	if db == nil {
		return nil, errNotOpened()
	}
	v, closer, err := db.Get([]byte(convExtKey(tenantID, externalID)))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, perr := strconv.ParseInt(string(v), 10, 64)
	_ = closer.Close()
	if perr != nil {
		return nil, fmt.Errorf("corrupt external index for %q: %w", externalID, perr)
	}
	return GetConversation(tenantID, id)
}

// UpdateConversationIf re-reads the conversation under the store's write
// lock, checks it is still in the expected state, applies mutate and
// persists. This is the single write path for every state transition:
// two racers can never both observe the precondition.
func UpdateConversationIf(tenantID, id int64, expect models.ConversationState, mutate func(*models.Conversation)) (*models.Conversation, error) {
	convMu.Lock()
	defer convMu.Unlock()
	c, err := GetConversation(tenantID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrConversationMissing
	}
	if c.State != expect {
		return nil, ErrStateChanged
	}
	mutate(c)
	if err := SaveConversation(c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateConversationUnless applies mutate under the write lock provided
// the conversation is NOT in the forbidden state (used by move-inbox,
// which fires from QUEUED or ALLOCATED but never RESOLVED).
func UpdateConversationUnless(tenantID, id int64, forbidden models.ConversationState, mutate func(*models.Conversation)) (*models.Conversation, error) {
	convMu.Lock()
	defer convMu.Unlock()
	c, err := GetConversation(tenantID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrConversationMissing
	}
	if c.State == forbidden {
		return nil, ErrStateChanged
	}
	mutate(c)
	if err := SaveConversation(c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateConversationMeta refreshes ingestion metadata under the write
// lock. State, assignee and the score snapshot belong to the engine and
// the sweeper: whatever mutate does to them is discarded, so a webhook
// re-delivery can never undo a concurrent allocation.
func UpdateConversationMeta(tenantID, id int64, mutate func(*models.Conversation)) (*models.Conversation, error) {
	convMu.Lock()
	defer convMu.Unlock()
	c, err := GetConversation(tenantID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrConversationMissing
	}
	state := c.State
	operator := c.AssignedOperatorID
	score := c.PriorityScore
	mutate(c)
	c.State = state
	c.AssignedOperatorID = operator
	c.PriorityScore = score
	if err := SaveConversation(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ConversationFilter narrows ListConversations. Zero values mean "any".
type ConversationFilter struct {
	InboxID            int64
	State              models.ConversationState
	AssignedOperatorID int64
	Sort               string // newest (default) | oldest | priority
	Limit              int
}

// ListConversations scans a tenant's conversations applying the filter.
func ListConversations(tenantID int64, f ConversationFilter) ([]*models.Conversation, error) {
	var out []*models.Conversation
	prefix := fmt.Sprintf("conv:%012d:", tenantID)
	err := scanPrefix(prefix, func(_ string, value []byte) (bool, error) {
		var c models.Conversation
		if err := json.Unmarshal(value, &c); err != nil {
			return false, err
		}
		if f.InboxID != 0 && c.InboxID != f.InboxID {
			return true, nil
		}
		if f.State != "" && c.State != f.State {
			return true, nil
		}
		if f.AssignedOperatorID != 0 && c.AssignedOperatorID != f.AssignedOperatorID {
			return true, nil
		}
		out = append(out, &c)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	switch f.Sort {
	case "oldest":
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	case "priority":
		sort.Slice(out, func(i, j int) bool {
			if out[i].PriorityScore != out[j].PriorityScore {
				return out[i].PriorityScore > out[j].PriorityScore
			}
			return out[i].ActivityTS() > out[j].ActivityTS()
		})
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// FindQueuedByInboxes returns up to limit QUEUED conversations across the
// inbox set, most recent activity first.
func FindQueuedByInboxes(tenantID int64, inboxIDs []int64, limit int) ([]*models.Conversation, error) {
	if len(inboxIDs) == 0 {
		return nil, nil
	}
	set := make(map[int64]struct{}, len(inboxIDs))
	for _, id := range inboxIDs {
		set[id] = struct{}{}
	}
	var out []*models.Conversation
	prefix := fmt.Sprintf("conv:%012d:", tenantID)
	err := scanPrefix(prefix, func(_ string, value []byte) (bool, error) {
		var c models.Conversation
		if err := json.Unmarshal(value, &c); err != nil {
			return false, err
		}
		if c.State != models.StateQueued {
			return true, nil
		}
		if _, ok := set[c.InboxID]; !ok {
			return true, nil
		}
		out = append(out, &c)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivityTS() > out[j].ActivityTS() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindAllocatedToOperator returns the conversations currently ALLOCATED
// to the operator in the tenant.
func FindAllocatedToOperator(tenantID, operatorID int64) ([]*models.Conversation, error) {
	return ListConversations(tenantID, ConversationFilter{
		State:              models.StateAllocated,
		AssignedOperatorID: operatorID,
	})
}
