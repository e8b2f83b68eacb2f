package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionActive indicates a start was requested while a session exists.
	ErrSessionActive = errors.New("session already active")
	// ErrSessionNotActive indicates the operation requires an active session.
	ErrSessionNotActive = errors.New("session not active")
	// ErrSessionPaused indicates command dispatch is blocked while paused.
	ErrSessionPaused = errors.New("session paused")
	// ErrEmptyPrompt indicates the prompt was empty after trimming.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrInvalidInstanceKind indicates an unknown instance kind.
	ErrInvalidInstanceKind = errors.New("invalid instance kind")
	// ErrInvalidTool indicates an unknown tool kind.
	ErrInvalidTool = errors.New("invalid tool")
	// ErrEndpointUnavailable indicates the remote endpoint could not be reached.
	ErrEndpointUnavailable = errors.New("agent endpoint unavailable")
	// ErrRemoteFailure indicates the remote endpoint reported a failure.
	ErrRemoteFailure = errors.New("agent reported failure")
)
