package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pkt.systems/deskpilot/core"
	"pkt.systems/deskpilot/internal/eventbus"
	"pkt.systems/deskpilot/internal/logx"
	"pkt.systems/deskpilot/schema"
)

const shutdownTimeout = 5 * time.Second

// Server serves the JSON control API in front of the session controller.
type Server struct {
	cfg      Config
	service  core.Service
	events   *eventbus.Bus
	basePath string
}

// NewServer constructs the control API server. A nil events bus disables the
// live event stream.
func NewServer(cfg Config, service core.Service, events *eventbus.Bus) *Server {
	return &Server{
		cfg:      cfg,
		service:  service,
		events:   events,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.requireToken(s.handleSession))
	mux.HandleFunc("/api/history", s.requireToken(s.handleHistory))
	mux.HandleFunc("/api/session/start", s.requireToken(s.handleStart))
	mux.HandleFunc("/api/session/stop", s.requireToken(s.handleStop))
	mux.HandleFunc("/api/command", s.requireToken(s.handleCommand))
	mux.HandleFunc("/api/pause", s.requireToken(s.handlePause))
	mux.HandleFunc("/api/capture", s.requireToken(s.handleCapture))
	if s.events != nil {
		mux.HandleFunc("/api/events", s.requireToken(s.handleEvents))
	}

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.APIToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token != s.cfg.APIToken {
			logx.Ctx(r.Context()).Warn("http auth rejected", "remote", clientIP(r))
			writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(resp.Session))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.GetHistory(r.Context(), schema.GetHistoryRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	entries := make([]map[string]any, 0, len(resp.History.Entries))
	for _, entry := range resp.History.Entries {
		entries = append(entries, map[string]any{
			"sequence": entry.Sequence,
			"origin":   entry.Origin,
			"text":     entry.Text,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		InstanceKind string `json:"instance_kind"`
		TimeoutHours int    `json:"timeout_hours"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.StartSession(r.Context(), schema.StartSessionRequest{
		InstanceKind: schema.InstanceKind(payload.InstanceKind),
		TimeoutHours: payload.TimeoutHours,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(resp.Session))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.StopSession(r.Context(), schema.StopSessionRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(resp.Session))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Prompt         string   `json:"prompt"`
		Tools          []string `json:"tools"`
		ConversationID string   `json:"conversation_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tools := make([]schema.ToolKind, 0, len(payload.Tools))
	for _, tool := range payload.Tools {
		tools = append(tools, schema.ToolKind(tool))
	}
	resp, err := s.service.DispatchCommand(r.Context(), schema.DispatchCommandRequest{
		Prompt:         payload.Prompt,
		Tools:          tools,
		ConversationID: schema.ConversationID(payload.ConversationID),
	})
	if errors.Is(err, schema.ErrEmptyPrompt) {
		// Blank prompts are dropped without surfacing an error.
		writeJSON(w, http.StatusOK, map[string]any{"accepted": false})
		return
	}
	if err != nil && !resp.Accepted {
		writeServiceError(w, err)
		return
	}
	body := map[string]any{
		"accepted": resp.Accepted,
		"success":  err == nil,
		"session":  sessionJSON(resp.Session),
	}
	if resp.ResultText != "" {
		body["result_text"] = resp.ResultText
	}
	if resp.ConversationID != "" {
		body["conversation_id"] = resp.ConversationID
	}
	if err != nil {
		body["message"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.TogglePause(r.Context(), schema.TogglePauseRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":  resp.Paused,
		"session": sessionJSON(resp.Session),
	})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.Capture(r.Context(), schema.CaptureRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Image)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	events, cancel := s.events.Subscribe()
	defer cancel()

	// Give new subscribers the current state right away.
	if resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{}); err == nil {
		writeSSE(w, "session", sessionJSON(resp.Session))
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			switch event.Type {
			case eventbus.EventSession:
				writeSSE(w, "session", sessionJSON(event.Session.Session))
			case eventbus.EventHistory:
				writeSSE(w, "history", map[string]any{
					"sequence": event.History.Entry.Sequence,
					"origin":   event.History.Entry.Origin,
					"text":     event.History.Entry.Text,
				})
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func sessionJSON(session schema.SessionSnapshot) map[string]any {
	body := map[string]any{
		"phase":   session.Phase,
		"message": session.Message,
		"paused":  session.Paused,
	}
	if session.StreamURL != "" {
		body["stream_url"] = session.StreamURL
	}
	if session.InstanceKind != "" {
		body["instance_kind"] = session.InstanceKind
	}
	if session.ConversationID != "" {
		body["conversation_id"] = session.ConversationID
	}
	return body
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schema.ErrSessionActive),
		errors.Is(err, schema.ErrSessionNotActive),
		errors.Is(err, schema.ErrSessionPaused):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, schema.ErrInvalidInstanceKind),
		errors.Is(err, schema.ErrInvalidTool),
		errors.Is(err, schema.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, schema.ErrEndpointUnavailable),
		errors.Is(err, schema.ErrRemoteFailure):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(io.LimitReader(body, 1<<20))
	if err := decoder.Decode(target); err != nil {
		return schema.ErrInvalidRequest
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
