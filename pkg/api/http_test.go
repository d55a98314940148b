package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relaydesk/internal/sweeper"
	"relaydesk/pkg/alloc"
	"relaydesk/pkg/auth"
	"relaydesk/pkg/models"
	"relaydesk/pkg/status"
	"relaydesk/pkg/store"
)

// setupServer builds the full middleware+router stack over a fresh
// store, in open (no API keys) mode.
func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tracker := status.NewTracker(time.Minute)
	queue := status.NewQueue(8, 3, time.Millisecond, status.TrackerApply(tracker))
	queue.Start()
	t.Cleanup(queue.Stop)

	h := Handler(Deps{
		Engine:  alloc.New(nil, 100, nil),
		Tracker: tracker,
		Queue:   queue,
		Sweeper: sweeper.New(time.Second, nil),
	})
	wrapped := auth.Middleware(auth.SecConfig{
		BackendKeys: map[string]struct{}{},
		AdminKeys:   map[string]struct{}{},
	})(h)
	srv := httptest.NewServer(wrapped)
	t.Cleanup(srv.Close)
	return srv
}

type testClient struct {
	t    *testing.T
	base string
}

func (c *testClient) do(method, path string, headers map[string]string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func identity(tenant, operator int64, role string) map[string]string {
	return map[string]string{
		auth.HeaderTenant:   fmt.Sprintf("%d", tenant),
		auth.HeaderOperator: fmt.Sprintf("%d", operator),
		auth.HeaderRole:     role,
	}
}

func decodeInto(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode response %q: %v", data, err)
	}
}

func TestFullAllocationFlow(t *testing.T) {
	srv := setupServer(t)
	c := &testClient{t: t, base: srv.URL}
	admin := identity(1, 0, "ADMIN")

	// seed directory through the admin surface
	var tenant models.Tenant
	resp, body := c.do(http.MethodPost, "/v1/admin/tenants", admin, map[string]any{"name": "acme"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create tenant: %d %s", resp.StatusCode, body)
	}
	decodeInto(t, body, &tenant)

	var op models.Operator
	resp, body = c.do(http.MethodPost, "/v1/admin/operators", admin, map[string]any{"tenant_id": tenant.ID, "name": "ana"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create operator: %d %s", resp.StatusCode, body)
	}
	decodeInto(t, body, &op)

	var inbox models.Inbox
	resp, body = c.do(http.MethodPost, "/v1/admin/inboxes", admin, map[string]any{"tenant_id": tenant.ID, "name": "support", "phone_number": "+551199"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create inbox: %d %s", resp.StatusCode, body)
	}
	decodeInto(t, body, &inbox)

	resp, body = c.do(http.MethodPost, "/v1/admin/subscriptions", admin, map[string]any{
		"tenant_id": tenant.ID, "operator_id": op.ID, "inbox_id": inbox.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create subscription: %d %s", resp.StatusCode, body)
	}

	caller := identity(tenant.ID, op.ID, "OPERATOR")

	// empty queue: 204
	resp, _ = c.do(http.MethodPost, "/v1/allocation/next", caller, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("allocate on empty queue: %d", resp.StatusCode)
	}

	// ingest a conversation
	var conv models.Conversation
	resp, body = c.do(http.MethodPost, "/v1/conversations", caller, map[string]any{
		"inbox_id": inbox.ID, "external_id": "wa-1", "customer_phone_number": "+551188",
		"message_count": 4, "last_message_ts": time.Now().UTC().UnixNano(),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest: %d %s", resp.StatusCode, body)
	}
	decodeInto(t, body, &conv)
	if conv.State != models.StateQueued {
		t.Fatalf("ingested state = %s", conv.State)
	}

	// re-ingest by the same external id refreshes, not duplicates
	resp, body = c.do(http.MethodPost, "/v1/conversations", caller, map[string]any{
		"inbox_id": inbox.ID, "external_id": "wa-1", "message_count": 6,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-ingest: %d %s", resp.StatusCode, body)
	}
	var again models.Conversation
	decodeInto(t, body, &again)
	if again.ID != conv.ID || again.MessageCount != 6 {
		t.Fatalf("upsert did not refresh in place: %+v", again)
	}

	// allocate it
	resp, body = c.do(http.MethodPost, "/v1/allocation/next", caller, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("allocate: %d %s", resp.StatusCode, body)
	}
	var allocated models.Conversation
	decodeInto(t, body, &allocated)
	if allocated.ID != conv.ID || allocated.State != models.StateAllocated || allocated.AssignedOperatorID != op.ID {
		t.Fatalf("unexpected allocation: %+v", allocated)
	}

	// a webhook re-delivery while allocated refreshes metadata only
	resp, body = c.do(http.MethodPost, "/v1/conversations", caller, map[string]any{
		"inbox_id": inbox.ID, "external_id": "wa-1", "message_count": 8,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-ingest while allocated: %d %s", resp.StatusCode, body)
	}
	var refreshed models.Conversation
	decodeInto(t, body, &refreshed)
	if refreshed.MessageCount != 8 {
		t.Fatalf("metadata not refreshed: %+v", refreshed)
	}
	if refreshed.State != models.StateAllocated || refreshed.AssignedOperatorID != op.ID {
		t.Fatalf("re-ingest reverted the allocation: %+v", refreshed)
	}

	// resolve it
	resp, body = c.do(http.MethodPost, fmt.Sprintf("/v1/allocation/%d/resolve", conv.ID), caller, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", resp.StatusCode, body)
	}
	var resolved models.Conversation
	decodeInto(t, body, &resolved)
	if resolved.State != models.StateResolved {
		t.Fatalf("resolve state = %s", resolved.State)
	}

	// resolved rows cannot be resolved again
	resp, _ = c.do(http.MethodPost, fmt.Sprintf("/v1/allocation/%d/resolve", conv.ID), caller, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("re-resolve: %d", resp.StatusCode)
	}

	// listing shows it
	resp, body = c.do(http.MethodGet, "/v1/conversations?state=RESOLVED", caller, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	var listed []models.Conversation
	decodeInto(t, body, &listed)
	if len(listed) != 1 || listed[0].ID != conv.ID {
		t.Fatalf("unexpected listing: %+v", listed)
	}
}

func TestStatusEndpointsAndGraceSweep(t *testing.T) {
	srv := setupServer(t)
	c := &testClient{t: t, base: srv.URL}
	admin := identity(1, 0, "ADMIN")

	var tenant models.Tenant
	_, body := c.do(http.MethodPost, "/v1/admin/tenants", admin, map[string]any{"name": "acme"})
	decodeInto(t, body, &tenant)
	var op models.Operator
	_, body = c.do(http.MethodPost, "/v1/admin/operators", admin, map[string]any{"tenant_id": tenant.ID, "name": "ana"})
	decodeInto(t, body, &op)

	caller := identity(tenant.ID, op.ID, "OPERATOR")

	// unknown status string rejected
	resp, _ := c.do(http.MethodPut, fmt.Sprintf("/v1/operators/%d/status", op.ID), caller, map[string]any{"status": "NAPPING"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status: %d", resp.StatusCode)
	}

	// unwritten status reads as 404
	resp, _ = c.do(http.MethodGet, fmt.Sprintf("/v1/operators/%d/status", op.ID), caller, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unwritten status: %d", resp.StatusCode)
	}

	// seed an allocated conversation directly, then go offline
	err := store.SaveConversation(&models.Conversation{
		ID: 77, TenantID: tenant.ID, InboxID: 1, State: models.StateAllocated, AssignedOperatorID: op.ID,
	})
	if err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	resp, body = c.do(http.MethodPut, fmt.Sprintf("/v1/operators/%d/status", op.ID), caller, map[string]any{"status": "offline"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set offline: %d %s", resp.StatusCode, body)
	}
	var rec models.OperatorStatus
	decodeInto(t, body, &rec)
	if rec.Status != models.Offline {
		t.Fatalf("status = %s", rec.Status)
	}

	// offline operators cannot allocate
	resp, _ = c.do(http.MethodPost, "/v1/allocation/next", caller, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("allocate while offline: %d", resp.StatusCode)
	}

	// the grace record is not due yet, a sweep consumes nothing
	resp, body = c.do(http.MethodPost, "/v1/grace-periods/process", caller, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("process: %d %s", resp.StatusCode, body)
	}
	var out map[string]int
	decodeInto(t, body, &out)
	if out["processed"] != 0 {
		t.Fatalf("processed = %d, want 0", out["processed"])
	}

	// force the record due and sweep again
	err = store.UpsertGraceAssignments([]*models.GraceAssignment{{
		TenantID: tenant.ID, ConversationID: 77, OperatorID: op.ID,
		ExpiresTS: time.Now().Add(-time.Second).UnixNano(), Reason: models.ReasonOffline,
	}})
	if err != nil {
		t.Fatalf("UpsertGraceAssignments: %v", err)
	}
	resp, body = c.do(http.MethodPost, "/v1/grace-periods/process", caller, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("process: %d %s", resp.StatusCode, body)
	}
	decodeInto(t, body, &out)
	if out["processed"] != 1 {
		t.Fatalf("processed = %d, want 1", out["processed"])
	}
	conv, _ := store.GetConversation(tenant.ID, 77)
	if conv.State != models.StateQueued || conv.AssignedOperatorID != 0 {
		t.Fatalf("conversation not reclaimed: %+v", conv)
	}

	// async status write lands through the queue
	resp, _ = c.do(http.MethodPost, fmt.Sprintf("/v1/operators/%d/status/async", op.ID), caller, map[string]any{"status": "AVAILABLE"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("async status: %d", resp.StatusCode)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st, err := store.GetOperatorStatus(op.ID)
		if err == nil && st != nil && st.Status == models.Available {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("async status write never applied")
}

func TestMissingIdentityHeaders(t *testing.T) {
	srv := setupServer(t)
	c := &testClient{t: t, base: srv.URL}

	resp, _ := c.do(http.MethodPost, "/v1/allocation/next", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without identity headers, got %d", resp.StatusCode)
	}
}
