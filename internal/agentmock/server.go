package agentmock

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

// Config controls mock endpoint behavior.
type Config struct {
	// Scenario selects a canned behavior: echo, failure, flaky, slow.
	// Empty picks per-prompt based on a seed hash.
	Scenario string
	// Delay is applied before answering command requests.
	Delay time.Duration
	// FlakyEvery makes every Nth status check fail when the flaky
	// scenario is active.
	FlakyEvery int
	// LiveBrowser navigates a headless Chrome for "open <url>" prompts
	// and serves real screenshots.
	LiveBrowser bool
}

// Server is an in-process mock of the remote agent endpoint. It implements
// the same wire contract the HTTP client speaks, for development and
// integration testing.
type Server struct {
	cfg     Config
	log     pslog.Logger
	browser *browserSession

	mu           sync.Mutex
	active       bool
	kind         schema.InstanceKind
	streamURL    string
	conversation string
	statusCalls  int
}

// NewServer constructs a mock endpoint server.
func NewServer(cfg Config, logger pslog.Logger) (*Server, error) {
	if cfg.Scenario != "" {
		switch cfg.Scenario {
		case "echo", "failure", "flaky", "slow":
		default:
			return nil, fmt.Errorf("unknown scenario: %s", cfg.Scenario)
		}
	}
	if cfg.FlakyEvery <= 0 {
		cfg.FlakyEvery = 3
	}
	s := &Server{cfg: cfg, log: logger}
	if cfg.LiveBrowser {
		browser, err := newBrowserSession(logger)
		if err != nil {
			return nil, err
		}
		s.browser = browser
	}
	return s, nil
}

// Close releases the live browser if one was started.
func (s *Server) Close() {
	if s.browser != nil {
		s.browser.Close()
	}
}

// Handler returns the mock endpoint routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/instance/start", s.handleStart)
	mux.HandleFunc("/v1/instance/stop", s.handleStop)
	mux.HandleFunc("/v1/instance/status", s.handleStatus)
	mux.HandleFunc("/v1/instance/command", s.handleCommand)
	mux.HandleFunc("/v1/instance/screenshot", s.handleScreenshot)
	return mux
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		InstanceKind schema.InstanceKind `json:"instance_kind"`
		TimeoutHours int                 `json:"timeout_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "malformed request"})
		return
	}
	if !payload.InstanceKind.Valid() {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": fmt.Sprintf("unknown instance kind %q", payload.InstanceKind)})
		return
	}
	if s.cfg.Scenario == "failure" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "mock failure: no capacity"})
		return
	}
	s.mu.Lock()
	s.active = true
	s.kind = payload.InstanceKind
	s.streamURL = "https://stream.example/" + uuid.NewString()[:8]
	s.statusCalls = 0
	streamURL := s.streamURL
	s.mu.Unlock()
	if s.log != nil {
		s.log.Info("mock instance started", "kind", payload.InstanceKind, "timeout_hours", payload.TimeoutHours)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "instance running",
		"stream_url": streamURL,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.streamURL = ""
	s.mu.Unlock()
	if !wasActive {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "no instance running"})
		return
	}
	if s.log != nil {
		s.log.Info("mock instance stopped")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "instance stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.statusCalls++
	calls := s.statusCalls
	active := s.active
	streamURL := s.streamURL
	s.mu.Unlock()
	if s.cfg.Scenario == "flaky" && calls%s.cfg.FlakyEvery == 0 {
		http.Error(w, "mock flake", http.StatusBadGateway)
		return
	}
	message := "no instance"
	if active {
		message = "instance healthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":     active,
		"message":    message,
		"stream_url": streamURL,
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Prompt         string            `json:"prompt"`
		Tools          []schema.ToolKind `json:"tools"`
		ConversationID string            `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "malformed request"})
		return
	}
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "no instance running"})
		return
	}
	scenario := s.cfg.Scenario
	if scenario == "" {
		scenario = pickScenario(payload.Prompt)
	}
	if s.cfg.Delay > 0 || scenario == "slow" {
		delay := s.cfg.Delay
		if scenario == "slow" && delay < 2*time.Second {
			delay = 2 * time.Second
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}
	if scenario == "failure" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "mock failure: simulated command error"})
		return
	}
	conversation := payload.ConversationID
	if conversation == "" {
		conversation = uuid.NewString()
	}
	s.mu.Lock()
	s.conversation = conversation
	s.mu.Unlock()

	result := mockResult(payload.Prompt, payload.Tools)
	if s.browser != nil {
		if url, ok := browseTarget(payload.Prompt); ok {
			title, err := s.browser.Navigate(r.Context(), url)
			if err != nil {
				writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": fmt.Sprintf("browse failed: %v", err)})
				return
			}
			result = fmt.Sprintf("Opened %s (%s)", url, title)
		}
	}
	if s.log != nil {
		s.log.Debug("mock command handled", "scenario", scenario, "conversation", conversation)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"result_text":     result,
		"conversation_id": conversation,
	})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "no instance running"})
		return
	}
	image := placeholderPNG()
	if s.browser != nil {
		shot, err := s.browser.Screenshot(r.Context())
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": fmt.Sprintf("screenshot failed: %v", err)})
			return
		}
		image = shot
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"image_base64": base64.StdEncoding.EncodeToString(image),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pickScenario(prompt string) string {
	scenarios := []string{"echo", "echo", "echo", "failure"}
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(prompt))
	return scenarios[hasher.Sum64()%uint64(len(scenarios))]
}

func mockResult(prompt string, tools []schema.ToolKind) string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, string(tool))
	}
	if len(names) == 0 {
		return fmt.Sprintf("Mock agent handled %q.", prompt)
	}
	return fmt.Sprintf("Mock agent handled %q using [%s].", prompt, strings.Join(names, ", "))
}

func browseTarget(prompt string) (string, bool) {
	fields := strings.Fields(prompt)
	for _, field := range fields {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return field, true
		}
	}
	return "", false
}
