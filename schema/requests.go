package schema

// Session lifecycle.

// StartSessionRequest describes a request to start a remote instance.
type StartSessionRequest struct {
	InstanceKind InstanceKind
	TimeoutHours int
}

// StartSessionResponse reports the session state after the start settled.
type StartSessionResponse struct {
	Session SessionSnapshot
}

// StopSessionRequest describes a request to stop the remote instance.
type StopSessionRequest struct{}

// StopSessionResponse reports the session state after the stop settled.
type StopSessionResponse struct {
	Session SessionSnapshot
}

// Command dispatch.

// DispatchCommandRequest describes a prompt submission to the remote agent.
type DispatchCommandRequest struct {
	Prompt         string
	Tools          []ToolKind
	ConversationID ConversationID
}

// DispatchCommandResponse reports the outcome of a dispatched command.
type DispatchCommandResponse struct {
	Accepted       bool
	ResultText     string
	ConversationID ConversationID
	Session        SessionSnapshot
}

// Screenshot capture.

// CaptureRequest describes a request for a one-shot screenshot.
type CaptureRequest struct{}

// CaptureResponse carries the captured PNG bytes.
type CaptureResponse struct {
	Image []byte
}

// Pause toggle.

// TogglePauseRequest describes a request to flip the local pause flag.
type TogglePauseRequest struct{}

// TogglePauseResponse reports the session state after the flip.
type TogglePauseResponse struct {
	Paused  bool
	Session SessionSnapshot
}

// Read-only views.

// GetSessionRequest describes a request for the session snapshot.
type GetSessionRequest struct{}

// GetSessionResponse reports the session snapshot.
type GetSessionResponse struct {
	Session SessionSnapshot
}

// GetHistoryRequest describes a request for the interaction log.
type GetHistoryRequest struct{}

// GetHistoryResponse reports the interaction log snapshot.
type GetHistoryResponse struct {
	History HistorySnapshot
}
