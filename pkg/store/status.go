package store

import (
	"encoding/json"
	"fmt"

	"relaydesk/pkg/models"
)

func statusKey(operatorID int64) string { return fmt.Sprintf("opstatus:%012d", operatorID) }

// grace records are keyed (conversation, operator) so re-creating one for
// the same pair is a natural upsert.
func graceKey(conversationID, operatorID int64) string {
	return fmt.Sprintf("grace:%012d:%012d", conversationID, operatorID)
}

func SaveOperatorStatus(s *models.OperatorStatus) error {
	return setJSON(statusKey(s.OperatorID), s)
}

// GetOperatorStatus returns the status record or nil when the operator
// has never written one.
func GetOperatorStatus(operatorID int64) (*models.OperatorStatus, error) {
	var s models.OperatorStatus
	ok, err := getJSON(statusKey(operatorID), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// UpsertGraceAssignments writes one reclaim record per assignment,
// overwriting any existing record for the same (conversation, operator).
func UpsertGraceAssignments(assignments []*models.GraceAssignment) error {
	for _, g := range assignments {
		if err := setJSON(graceKey(g.ConversationID, g.OperatorID), g); err != nil {
			return err
		}
	}
	return nil
}

// DeleteGraceAssignment removes a single reclaim record.
func DeleteGraceAssignment(conversationID, operatorID int64) error {
	return deleteKey(graceKey(conversationID, operatorID))
}

// DeleteGraceForOperator removes every reclaim record the operator holds
// in the tenant. Used when an operator returns to AVAILABLE.
func DeleteGraceForOperator(tenantID, operatorID int64) (int, error) {
	var keys []string
	err := scanPrefix("grace:", func(key string, value []byte) (bool, error) {
		var g models.GraceAssignment
		if err := json.Unmarshal(value, &g); err != nil {
			return false, err
		}
		if g.TenantID == tenantID && g.OperatorID == operatorID {
			keys = append(keys, key)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := deleteKey(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// ListExpiredGrace returns every reclaim record with expiry <= now (ns),
// across all tenants; the sweep is global.
func ListExpiredGrace(nowNS int64) ([]*models.GraceAssignment, error) {
	var out []*models.GraceAssignment
	err := scanPrefix("grace:", func(_ string, value []byte) (bool, error) {
		var g models.GraceAssignment
		if err := json.Unmarshal(value, &g); err != nil {
			return false, err
		}
		if g.ExpiresTS <= nowNS {
			out = append(out, &g)
		}
		return true, nil
	})
	return out, err
}

// ListGraceForOperator returns the operator's pending reclaim records.
func ListGraceForOperator(tenantID, operatorID int64) ([]*models.GraceAssignment, error) {
	var out []*models.GraceAssignment
	err := scanPrefix("grace:", func(_ string, value []byte) (bool, error) {
		var g models.GraceAssignment
		if err := json.Unmarshal(value, &g); err != nil {
			return false, err
		}
		if g.TenantID == tenantID && g.OperatorID == operatorID {
			out = append(out, &g)
		}
		return true, nil
	})
	return out, err
}
