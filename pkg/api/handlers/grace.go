package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"relaydesk/internal/sweeper"
)

// RegisterGrace registers the on-demand grace-period sweep trigger. The
// same pass runs on the sweeper's own interval; this endpoint exists for
// operational nudges and tests.
func RegisterGrace(r *mux.Router, s *sweeper.Sweeper) {
	r.HandleFunc("/grace-periods/process", processGrace(s)).Methods(http.MethodPost)
}

func processGrace(s *sweeper.Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireCaller(w, r); !ok {
			return
		}
		processed, err := s.ProcessExpired(r.Context(), time.Now().UTC())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
	}
}
