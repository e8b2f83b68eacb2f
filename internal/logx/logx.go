package logx

import (
	"context"

	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	instanceKey contextKey = iota
	conversationKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithInstance annotates the logger with the instance kind if present.
func WithInstance(ctx context.Context, kind schema.InstanceKind) pslog.Logger {
	log := pslog.Ctx(ctx)
	if kind != "" {
		if current, ok := ctx.Value(instanceKey).(schema.InstanceKind); ok && current == kind {
			return log
		}
		log = log.With("instance", kind)
	}
	return log
}

// WithConversation annotates the logger with a conversation id when available.
func WithConversation(log pslog.Logger, id schema.ConversationID) pslog.Logger {
	if id != "" {
		log = log.With("conversation", id)
	}
	return log
}

// WithPhase annotates the logger with the session phase.
func WithPhase(log pslog.Logger, phase schema.SessionPhase) pslog.Logger {
	if phase != "" {
		log = log.With("phase", phase)
	}
	return log
}

// ContextWithInstance stores the instance marker on the context for log de-duplication.
func ContextWithInstance(ctx context.Context, kind schema.InstanceKind) context.Context {
	if ctx == nil || kind == "" {
		return ctx
	}
	return context.WithValue(ctx, instanceKey, kind)
}

// ContextWithConversation stores the conversation marker on the context for log de-duplication.
func ContextWithConversation(ctx context.Context, id schema.ConversationID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationKey, id)
}

// ContextWithInstanceLogger attaches the logger and instance marker to the context.
func ContextWithInstanceLogger(ctx context.Context, log pslog.Logger, kind schema.InstanceKind) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithInstance(ctx, kind)
}
