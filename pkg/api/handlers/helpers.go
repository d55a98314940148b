package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"relaydesk/pkg/apperr"
	"relaydesk/pkg/auth"
	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request_failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID extracts a positive int64 path variable.
func pathID(r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// requireCaller pulls the authenticated caller from the context or
// writes a 400 for requests missing identity headers.
func requireCaller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	c, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller identity headers"})
		return models.Caller{}, false
	}
	return c, true
}
