package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"relaydesk/pkg/apperr"
	"relaydesk/pkg/models"
	"relaydesk/pkg/store"
)

// RegisterAdmin registers the directory seeding endpoints. These sit
// under /admin and are gated to admin-class keys by the auth middleware.
func RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/admin/tenants", createTenant).Methods(http.MethodPost)
	r.HandleFunc("/admin/tenants", listTenants).Methods(http.MethodGet)
	r.HandleFunc("/admin/operators", createOperator).Methods(http.MethodPost)
	r.HandleFunc("/admin/operators", listOperators).Methods(http.MethodGet)
	r.HandleFunc("/admin/inboxes", createInbox).Methods(http.MethodPost)
	r.HandleFunc("/admin/inboxes", listInboxes).Methods(http.MethodGet)
	r.HandleFunc("/admin/subscriptions", createSubscription).Methods(http.MethodPost)
	r.HandleFunc("/admin/subscriptions", listSubscriptions).Methods(http.MethodGet)
	r.HandleFunc("/admin/subscriptions", deleteSubscription).Methods(http.MethodDelete)
}

func createTenant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, apperr.BadRequest("name is required"))
		return
	}
	id, err := store.NextID("tenant")
	if err != nil {
		writeError(w, err)
		return
	}
	t := &models.Tenant{ID: id, Name: body.Name, CreatedTS: time.Now().UTC().UnixNano()}
	if err := store.SaveTenant(t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func listTenants(w http.ResponseWriter, r *http.Request) {
	out, err := store.ListTenants()
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []*models.Tenant{}
	}
	writeJSON(w, http.StatusOK, out)
}

func createOperator(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID int64  `json:"tenant_id"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, apperr.BadRequest("tenant_id and name are required"))
		return
	}
	tenant, err := store.GetTenant(body.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if tenant == nil {
		writeError(w, apperr.NotFound("tenant not found"))
		return
	}
	id, err := store.NextID("operator")
	if err != nil {
		writeError(w, err)
		return
	}
	op := &models.Operator{ID: id, TenantID: body.TenantID, Name: body.Name, CreatedTS: time.Now().UTC().UnixNano()}
	if err := store.SaveOperator(op); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

func listOperators(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := queryTenant(w, r)
	if !ok {
		return
	}
	out, err := store.ListOperators(tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []*models.Operator{}
	}
	writeJSON(w, http.StatusOK, out)
}

func createInbox(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID    int64  `json:"tenant_id"`
		Name        string `json:"name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, apperr.BadRequest("tenant_id and name are required"))
		return
	}
	tenant, err := store.GetTenant(body.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if tenant == nil {
		writeError(w, apperr.NotFound("tenant not found"))
		return
	}
	id, err := store.NextID("inbox")
	if err != nil {
		writeError(w, err)
		return
	}
	ib := &models.Inbox{ID: id, TenantID: body.TenantID, Name: body.Name, PhoneNumber: body.PhoneNumber, CreatedTS: time.Now().UTC().UnixNano()}
	if err := store.SaveInbox(ib); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ib)
}

func listInboxes(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := queryTenant(w, r)
	if !ok {
		return
	}
	out, err := store.ListInboxes(tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []*models.Inbox{}
	}
	writeJSON(w, http.StatusOK, out)
}

func createSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID   int64 `json:"tenant_id"`
		OperatorID int64 `json:"operator_id"`
		InboxID    int64 `json:"inbox_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.BadRequest("invalid json"))
		return
	}
	op, err := store.GetOperator(body.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	if op == nil || op.TenantID != body.TenantID {
		writeError(w, apperr.NotFound("operator not found"))
		return
	}
	ib, err := store.GetInbox(body.TenantID, body.InboxID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ib == nil {
		writeError(w, apperr.NotFound("inbox not found"))
		return
	}
	s := &models.Subscription{TenantID: body.TenantID, OperatorID: body.OperatorID, InboxID: body.InboxID, CreatedTS: time.Now().UTC().UnixNano()}
	if err := store.SaveSubscription(s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func listSubscriptions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := queryTenant(w, r)
	if !ok {
		return
	}
	f := store.SubscriptionFilter{}
	if v := r.URL.Query().Get("operator_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.OperatorID = id
		}
	}
	out, err := store.ListSubscriptions(tenantID, f)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []*models.Subscription{}
	}
	writeJSON(w, http.StatusOK, out)
}

func deleteSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID   int64 `json:"tenant_id"`
		OperatorID int64 `json:"operator_id"`
		InboxID    int64 `json:"inbox_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.BadRequest("invalid json"))
		return
	}
	if err := store.DeleteSubscription(body.TenantID, body.OperatorID, body.InboxID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryTenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v := r.URL.Query().Get("tenant_id")
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperr.BadRequest("tenant_id query parameter is required"))
		return 0, false
	}
	return id, true
}
