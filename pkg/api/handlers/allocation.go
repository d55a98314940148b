package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"relaydesk/pkg/alloc"
	"relaydesk/pkg/apperr"
)

// RegisterAllocation registers the allocation engine's six operations.
func RegisterAllocation(r *mux.Router, e *alloc.Engine) {
	r.HandleFunc("/allocation/next", allocateNext(e)).Methods(http.MethodPost)
	r.HandleFunc("/allocation/{id}/claim", claim(e)).Methods(http.MethodPost)
	r.HandleFunc("/allocation/{id}/resolve", resolve(e)).Methods(http.MethodPost)
	r.HandleFunc("/allocation/{id}/deallocate", deallocate(e)).Methods(http.MethodPost)
	r.HandleFunc("/allocation/{id}/reassign", reassign(e)).Methods(http.MethodPost)
	r.HandleFunc("/allocation/{id}/move-inbox", moveInbox(e)).Methods(http.MethodPost)
}

// allocateNext hands out the top-ranked queued conversation. 204 means
// "no candidate": a legitimate empty result, not an error.
func allocateNext(e *alloc.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		conv, err := e.AllocateNext(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		if conv == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func claim(e *alloc.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid conversation id"))
			return
		}
		conv, err := e.Claim(r.Context(), caller, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func resolve(e *alloc.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid conversation id"))
			return
		}
		conv, err := e.Resolve(r.Context(), caller, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func deallocate(e *alloc.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid conversation id"))
			return
		}
		conv, err := e.Deallocate(r.Context(), caller, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func reassign(e *alloc.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid conversation id"))
			return
		}
		var body struct {
			OperatorID int64 `json:"operator_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OperatorID <= 0 {
			writeError(w, apperr.BadRequest("invalid operator_id"))
			return
		}
		conv, err := e.Reassign(r.Context(), caller, id, body.OperatorID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func moveInbox(e *alloc.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, apperr.BadRequest("invalid conversation id"))
			return
		}
		var body struct {
			InboxID int64 `json:"inbox_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.InboxID <= 0 {
			writeError(w, apperr.BadRequest("invalid inbox_id"))
			return
		}
		conv, err := e.MoveInbox(r.Context(), caller, id, body.InboxID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}
