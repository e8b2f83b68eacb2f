package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/deskpilot/internal/logx"
	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

const (
	messageStarted    = "Agent started successfully"
	messageStopped    = "Agent stopped"
	messagePaused     = "Agent paused"
	messageResumed    = "Agent resumed"
	messageExecuted   = "Command executed"
	messageStarting   = "Starting instance..."
	messageStopping   = "Stopping instance..."
	messageNoSession  = "No active session"
	messageReattached = "Reattached to running agent"
)

type service struct {
	cfg      schema.ServiceConfig
	endpoint Endpoint
	sink     EventSink
	store    ContinuityStore
	logger   pslog.Logger

	// mu owns every field below it. Endpoint calls never happen while
	// holding it; results are re-validated against version before apply.
	mu           sync.Mutex
	phase        schema.SessionPhase
	message      string
	streamURL    schema.StreamURL
	paused       bool
	instance     schema.InstanceKind
	conversation schema.ConversationID
	version      uint64
	history      *historyLog

	// dispatchMu serializes command dispatches so the operator entry and
	// its resolution never interleave with another dispatch.
	dispatchMu sync.Mutex
}

// NewService constructs the session controller.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Endpoint == nil {
		return nil, errors.New("endpoint dependency is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &service{
		cfg:      normalized,
		endpoint: deps.Endpoint,
		sink:     deps.EventSink,
		store:    deps.Store,
		logger:   logger,
		phase:    schema.PhaseInactive,
		message:  messageNoSession,
		history:  newHistoryLog(normalized.HistoryCapacity),
	}
	if deps.Store != nil {
		record, ok, err := deps.Store.Load()
		if err != nil {
			logger.Warn("continuity load failed", "err", err)
		} else if ok {
			s.conversation = record.ConversationID
			s.instance = record.InstanceKind
			logger.Info("continuity resumed", "conversation", record.ConversationID, "instance", record.InstanceKind)
		}
	}
	return s, nil
}

func (s *service) StartSession(ctx context.Context, req schema.StartSessionRequest) (schema.StartSessionResponse, error) {
	kind := req.InstanceKind
	if kind == "" {
		kind = s.cfg.DefaultInstanceKind
	}
	if !kind.Valid() {
		return schema.StartSessionResponse{}, schema.ErrInvalidInstanceKind
	}
	timeout := req.TimeoutHours
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeoutHours
	}
	log := logx.WithInstance(ctx, kind)

	s.mu.Lock()
	if !s.phase.CanStart() {
		phase := s.phase
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		log.Warn("session start rejected", "phase", phase)
		return schema.StartSessionResponse{Session: snapshot}, schema.ErrSessionActive
	}
	s.phase = schema.PhaseStarting
	s.message = messageStarting
	s.instance = kind
	s.version++
	version := s.version
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.emitSession(snapshot)
	log.Info("session start", "timeout_hours", timeout)

	result, callErr := s.endpoint.Start(ctx, StartRequest{InstanceKind: kind, TimeoutHours: timeout})

	s.mu.Lock()
	if s.version != version {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		log.Warn("session start result discarded", "reason", "state changed while starting")
		return schema.StartSessionResponse{Session: snapshot}, nil
	}
	var entry schema.HistoryEntry
	var opErr error
	switch {
	case callErr != nil:
		s.phase = schema.PhaseInactive
		s.streamURL = ""
		s.message = fmt.Sprintf("Failed to start agent: %v", callErr)
		entry = s.history.Append(schema.OriginSystem, s.message)
		opErr = callErr
	case !result.OK:
		s.phase = schema.PhaseInactive
		s.streamURL = ""
		s.message = remoteMessage("Failed to start agent", result.Message)
		entry = s.history.Append(schema.OriginSystem, s.message)
		opErr = fmt.Errorf("%w: %s", schema.ErrRemoteFailure, result.Message)
	default:
		s.phase = schema.PhaseActive
		s.streamURL = result.StreamURL
		s.message = messageStarted
		entry = s.history.Append(schema.OriginSystem, messageStarted)
	}
	s.version++
	snapshot = s.snapshotLocked()
	s.mu.Unlock()

	s.emitHistory(entry)
	s.emitSession(snapshot)
	if opErr != nil {
		log.Warn("session start failed", "err", opErr)
		return schema.StartSessionResponse{Session: snapshot}, opErr
	}
	s.persist(snapshot)
	log.Info("session start ok", "stream_url", snapshot.StreamURL)
	return schema.StartSessionResponse{Session: snapshot}, nil
}

func (s *service) StopSession(ctx context.Context, _ schema.StopSessionRequest) (schema.StopSessionResponse, error) {
	log := pslog.Ctx(ctx)

	s.mu.Lock()
	if !s.phase.CanStop() {
		phase := s.phase
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		log.Warn("session stop rejected", "phase", phase)
		return schema.StopSessionResponse{Session: snapshot}, schema.ErrSessionNotActive
	}
	s.phase = schema.PhaseStopping
	s.message = messageStopping
	s.version++
	version := s.version
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.emitSession(snapshot)
	log.Info("session stop")

	result, callErr := s.endpoint.Stop(ctx)

	s.mu.Lock()
	if s.version != version {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		log.Warn("session stop result discarded", "reason", "state changed while stopping")
		return schema.StopSessionResponse{Session: snapshot}, nil
	}
	// Best effort: whatever the endpoint said, the session settles inactive.
	s.phase = schema.PhaseInactive
	s.streamURL = ""
	s.paused = false
	var entry schema.HistoryEntry
	switch {
	case callErr != nil:
		s.message = fmt.Sprintf("Stop failed: %v", callErr)
		entry = s.history.Append(schema.OriginSystem, s.message)
	case !result.OK:
		s.message = remoteMessage("Stop failed", result.Message)
		entry = s.history.Append(schema.OriginSystem, s.message)
	default:
		s.message = messageStopped
		entry = s.history.Append(schema.OriginSystem, messageStopped)
	}
	s.version++
	stopFailed := callErr != nil || !result.OK
	snapshot = s.snapshotLocked()
	s.mu.Unlock()

	s.emitHistory(entry)
	s.emitSession(snapshot)
	s.clearContinuity()
	if stopFailed {
		log.Warn("session stop settled with failure", "message", snapshot.Message)
	} else {
		log.Info("session stop ok")
	}
	return schema.StopSessionResponse{Session: snapshot}, nil
}

func (s *service) DispatchCommand(ctx context.Context, req schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	tools := req.Tools
	if len(tools) == 0 {
		tools = s.cfg.DefaultTools
	}
	for _, tool := range tools {
		if !tool.Valid() {
			return schema.DispatchCommandResponse{}, schema.ErrInvalidTool
		}
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if !s.phase.CanDispatch() {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("command rejected", "phase", snapshot.Phase)
		return schema.DispatchCommandResponse{Session: snapshot}, schema.ErrSessionNotActive
	}
	if prompt == "" {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		return schema.DispatchCommandResponse{Session: snapshot}, schema.ErrEmptyPrompt
	}
	if s.paused && s.cfg.PauseBlocksDispatch {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("command rejected", "reason", "paused")
		return schema.DispatchCommandResponse{Session: snapshot}, schema.ErrSessionPaused
	}
	conversation := req.ConversationID
	if conversation == "" {
		conversation = s.conversation
	}
	operator := s.history.Append(schema.OriginOperator, prompt)
	s.mu.Unlock()
	s.emitHistory(operator)

	log := logx.WithConversation(pslog.Ctx(ctx), conversation)
	log.Info("command dispatch", "tools", toolNames(tools), "prompt_len", len(prompt))

	result, callErr := s.endpoint.Command(ctx, CommandRequest{
		Prompt:         prompt,
		Tools:          tools,
		ConversationID: conversation,
	})

	s.mu.Lock()
	var entry schema.HistoryEntry
	var opErr error
	resultText := ""
	switch {
	case callErr != nil:
		entry = s.history.Append(schema.OriginSystem, fmt.Sprintf("Command failed: %v", callErr))
		opErr = callErr
	case !result.OK:
		entry = s.history.Append(schema.OriginSystem, remoteMessage("Command failed", result.Message))
		opErr = fmt.Errorf("%w: %s", schema.ErrRemoteFailure, result.Message)
	default:
		resultText = strings.TrimSpace(result.ResultText)
		if resultText == "" {
			resultText = messageExecuted
		}
		entry = s.history.Append(schema.OriginAgent, resultText)
		if result.ConversationID != "" {
			s.conversation = result.ConversationID
			conversation = result.ConversationID
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.emitHistory(entry)
	if opErr != nil {
		log.Warn("command dispatch failed", "err", opErr)
		return schema.DispatchCommandResponse{Accepted: true, Session: snapshot}, opErr
	}
	s.persist(snapshot)
	log.Info("command dispatch ok", "result_len", len(resultText))
	return schema.DispatchCommandResponse{
		Accepted:       true,
		ResultText:     resultText,
		ConversationID: conversation,
		Session:        snapshot,
	}, nil
}

func (s *service) Capture(ctx context.Context, _ schema.CaptureRequest) (schema.CaptureResponse, error) {
	s.mu.Lock()
	if s.phase != schema.PhaseActive {
		phase := s.phase
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("capture rejected", "phase", phase)
		return schema.CaptureResponse{}, schema.ErrSessionNotActive
	}
	s.mu.Unlock()

	result, err := s.endpoint.Capture(ctx)
	if err != nil {
		pslog.Ctx(ctx).Warn("capture failed", "err", err)
		return schema.CaptureResponse{}, err
	}
	if !result.OK {
		pslog.Ctx(ctx).Warn("capture failed", "message", result.Message)
		return schema.CaptureResponse{}, fmt.Errorf("%w: %s", schema.ErrRemoteFailure, result.Message)
	}
	pslog.Ctx(ctx).Debug("capture ok", "bytes", len(result.Image))
	return schema.CaptureResponse{Image: result.Image}, nil
}

func (s *service) TogglePause(ctx context.Context, _ schema.TogglePauseRequest) (schema.TogglePauseResponse, error) {
	s.mu.Lock()
	if s.phase != schema.PhaseActive {
		phase := s.phase
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("pause toggle rejected", "phase", phase)
		return schema.TogglePauseResponse{Session: snapshot}, schema.ErrSessionNotActive
	}
	s.paused = !s.paused
	text := messagePaused
	if !s.paused {
		text = messageResumed
	}
	entry := s.history.Append(schema.OriginSystem, text)
	s.version++
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.emitHistory(entry)
	s.emitSession(snapshot)
	pslog.Ctx(ctx).Info("pause toggled", "paused", snapshot.Paused)
	return schema.TogglePauseResponse{Paused: snapshot.Paused, Session: snapshot}, nil
}

func (s *service) GetSession(_ context.Context, _ schema.GetSessionRequest) (schema.GetSessionResponse, error) {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return schema.GetSessionResponse{Session: snapshot}, nil
}

func (s *service) GetHistory(_ context.Context, _ schema.GetHistoryRequest) (schema.GetHistoryResponse, error) {
	s.mu.Lock()
	entries := s.history.Entries()
	s.mu.Unlock()
	return schema.GetHistoryResponse{History: schema.HistorySnapshot{Entries: entries}}, nil
}

func (s *service) snapshotLocked() schema.SessionSnapshot {
	return schema.SessionSnapshot{
		Phase:          s.phase,
		Message:        s.message,
		StreamURL:      s.streamURL,
		Paused:         s.paused,
		InstanceKind:   s.instance,
		ConversationID: s.conversation,
		Version:        s.version,
	}
}

func (s *service) emitSession(snapshot schema.SessionSnapshot) {
	if s.sink == nil {
		return
	}
	s.sink.OnSessionEvent(schema.SessionEvent{Session: snapshot})
}

func (s *service) emitHistory(entries ...schema.HistoryEntry) {
	if s.sink == nil {
		return
	}
	for _, entry := range entries {
		if entry.Sequence == 0 {
			continue
		}
		s.sink.OnHistoryEvent(schema.HistoryEvent{Entry: entry})
	}
}

func (s *service) persist(snapshot schema.SessionSnapshot) {
	if s.store == nil {
		return
	}
	record := ContinuityRecord{
		ConversationID: snapshot.ConversationID,
		InstanceKind:   snapshot.InstanceKind,
		StreamURL:      snapshot.StreamURL,
	}
	if err := s.store.Save(record); err != nil {
		s.logger.Warn("continuity save failed", "err", err)
	}
}

func (s *service) clearContinuity() {
	if s.store == nil {
		return
	}
	if err := s.store.Clear(); err != nil {
		s.logger.Warn("continuity clear failed", "err", err)
	}
}

func remoteMessage(prefix, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return prefix
	}
	return prefix + ": " + message
}

func toolNames(tools []schema.ToolKind) string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, string(tool))
	}
	return strings.Join(names, ",")
}
