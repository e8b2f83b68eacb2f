package core

import (
	"context"

	"pkt.systems/deskpilot/schema"
)

// StartRequest asks the remote endpoint to provision an instance.
type StartRequest struct {
	InstanceKind schema.InstanceKind
	TimeoutHours int
}

// StartResult reports the outcome of an instance start.
type StartResult struct {
	OK        bool
	Message   string
	StreamURL schema.StreamURL
}

// StopResult reports the outcome of an instance stop.
type StopResult struct {
	OK      bool
	Message string
}

// StatusResult reports remote instance liveness.
type StatusResult struct {
	Active    bool
	Message   string
	StreamURL schema.StreamURL
}

// CommandRequest carries a prompt to the remote agent.
type CommandRequest struct {
	Prompt         string
	Tools          []schema.ToolKind
	ConversationID schema.ConversationID
}

// CommandResult reports the outcome of an agent command.
type CommandResult struct {
	OK             bool
	ResultText     string
	Message        string
	ConversationID schema.ConversationID
}

// CaptureResult carries a one-shot screenshot.
type CaptureResult struct {
	OK      bool
	Image   []byte
	Message string
}

// Endpoint is the remote control surface for a sandboxed agent instance.
// A returned error means the endpoint could not be reached or answered
// malformed data; a result with OK=false means the remote itself reported
// the failure. Implementations never retry Command.
type Endpoint interface {
	Start(ctx context.Context, req StartRequest) (StartResult, error)
	Stop(ctx context.Context) (StopResult, error)
	Status(ctx context.Context) (StatusResult, error)
	Command(ctx context.Context, req CommandRequest) (CommandResult, error)
	Capture(ctx context.Context) (CaptureResult, error)
}
