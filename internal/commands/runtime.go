package commands

import (
	"taskboard/internal/connectivity"
	"taskboard/internal/dashboard"
	"taskboard/internal/service"
	"taskboard/internal/session"
	"taskboard/internal/storage"
)

// Runtime is everything a command runs against: the session, the task
// service behind the connectivity layer, and the store they persist into.
type Runtime struct {
	Store    storage.Store
	Policy   connectivity.Policy
	Sessions *session.Manager
	Replica  *connectivity.Replica
	Service  service.Service
}

// NewRuntime wires a runtime around a backend. backend and auth are usually
// the same HTTP client.
func NewRuntime(store storage.Store, backend service.Service, auth service.Authenticator, policy connectivity.Policy) *Runtime {
	sessions := session.New(store, auth, policy)
	replica := connectivity.NewReplica(store, policy)
	return &Runtime{
		Store:    store,
		Policy:   policy,
		Sessions: sessions,
		Replica:  replica,
		Service:  connectivity.NewService(backend, policy, replica, sessions.UserID),
	}
}

// Dashboard returns a controller over the runtime's service and session.
func (rt *Runtime) Dashboard(opts ...dashboard.Option) *dashboard.Controller {
	return dashboard.New(rt.Service, rt.Sessions, opts...)
}
