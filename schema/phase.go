package schema

// SessionPhase describes the current lifecycle phase of the remote session.
type SessionPhase string

const (
	// PhaseInactive indicates no remote instance exists.
	PhaseInactive SessionPhase = "inactive"
	// PhaseStarting indicates a start request is in flight.
	PhaseStarting SessionPhase = "starting"
	// PhaseActive indicates the remote instance is running.
	PhaseActive SessionPhase = "active"
	// PhaseStopping indicates a stop request is in flight.
	PhaseStopping SessionPhase = "stopping"
)

// CanStart reports whether a start request is permitted in this phase.
func (p SessionPhase) CanStart() bool { return p == PhaseInactive }

// CanStop reports whether a stop request is permitted in this phase.
func (p SessionPhase) CanStop() bool { return p == PhaseActive }

// CanDispatch reports whether commands may be dispatched in this phase.
func (p SessionPhase) CanDispatch() bool { return p == PhaseActive }
