package core

import "pkt.systems/pslog"

// ServiceDeps captures dependencies for the core service. Endpoint is
// required; the rest are optional.
type ServiceDeps struct {
	Endpoint  Endpoint
	EventSink EventSink
	Store     ContinuityStore
	Logger    pslog.Logger
}
