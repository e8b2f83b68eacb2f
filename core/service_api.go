package core

import (
	"context"

	"pkt.systems/deskpilot/schema"
)

// Service is the transport-agnostic API for driving a remote agent session.
type Service interface {
	StartSession(ctx context.Context, req schema.StartSessionRequest) (schema.StartSessionResponse, error)
	StopSession(ctx context.Context, req schema.StopSessionRequest) (schema.StopSessionResponse, error)
	DispatchCommand(ctx context.Context, req schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error)
	Capture(ctx context.Context, req schema.CaptureRequest) (schema.CaptureResponse, error)
	TogglePause(ctx context.Context, req schema.TogglePauseRequest) (schema.TogglePauseResponse, error)
	GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error)
	GetHistory(ctx context.Context, req schema.GetHistoryRequest) (schema.GetHistoryResponse, error)
}
