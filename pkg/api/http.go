// Package api assembles the HTTP surface over the allocation engine,
// availability tracker, retry queue and sweeper.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"relaydesk/internal/sweeper"
	"relaydesk/pkg/alloc"
	"relaydesk/pkg/api/handlers"
	"relaydesk/pkg/status"
)

// Deps carries the components the handlers operate on.
type Deps struct {
	Engine  *alloc.Engine
	Tracker *status.Tracker
	Queue   *status.Queue
	Sweeper *sweeper.Sweeper
}

// Handler returns the /v1 router.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterAllocation(v1, d.Engine)
	handlers.RegisterStatus(v1, d.Tracker, d.Queue)
	handlers.RegisterGrace(v1, d.Sweeper)
	handlers.RegisterConversations(v1)
	handlers.RegisterAdmin(v1)
	return r
}
