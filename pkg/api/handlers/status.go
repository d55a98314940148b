package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"relaydesk/pkg/apperr"
	"relaydesk/pkg/models"
	"relaydesk/pkg/status"
)

// RegisterStatus registers operator availability routes: synchronous
// set/get plus the fire-and-forget async variant through the retry
// queue.
func RegisterStatus(r *mux.Router, t *status.Tracker, q *status.Queue) {
	r.HandleFunc("/operators/{id}/status", setStatus(t)).Methods(http.MethodPut)
	r.HandleFunc("/operators/{id}/status", getStatus(t)).Methods(http.MethodGet)
	r.HandleFunc("/operators/{id}/status/async", enqueueStatus(q)).Methods(http.MethodPost)
}

func decodeAvailability(r *http.Request) (models.Availability, error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", apperr.BadRequest("invalid json")
	}
	st := models.Availability(strings.ToUpper(strings.TrimSpace(body.Status)))
	if !st.Valid() {
		return "", apperr.BadRequest("status must be AVAILABLE or OFFLINE")
	}
	return st, nil
}

func setStatus(t *status.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		operatorID, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid operator id"))
			return
		}
		st, err := decodeAvailability(r)
		if err != nil {
			writeError(w, err)
			return
		}
		rec, err := t.SetStatus(r.Context(), caller.TenantID, operatorID, st)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func getStatus(t *status.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		operatorID, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid operator id"))
			return
		}
		rec, err := t.GetStatus(r.Context(), caller.TenantID, operatorID)
		if err != nil {
			writeError(w, err)
			return
		}
		if rec == nil {
			writeError(w, apperr.NotFound("operator status not found"))
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// enqueueStatus accepts the write and returns immediately; the queue
// applies it with bounded retries and no delivery guarantee.
func enqueueStatus(q *status.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		operatorID, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid operator id"))
			return
		}
		st, err := decodeAvailability(r)
		if err != nil {
			writeError(w, err)
			return
		}
		q.Enqueue(caller.TenantID, operatorID, st)
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
	}
}
