package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pkt.systems/deskpilot/internal/eventbus"
	"pkt.systems/deskpilot/schema"
)

type fakeService struct {
	startFn    func(schema.StartSessionRequest) (schema.StartSessionResponse, error)
	stopFn     func(schema.StopSessionRequest) (schema.StopSessionResponse, error)
	dispatchFn func(schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error)
	captureFn  func(schema.CaptureRequest) (schema.CaptureResponse, error)
	pauseFn    func(schema.TogglePauseRequest) (schema.TogglePauseResponse, error)
	session    schema.SessionSnapshot
	history    schema.HistorySnapshot
}

func (f *fakeService) StartSession(_ context.Context, req schema.StartSessionRequest) (schema.StartSessionResponse, error) {
	if f.startFn != nil {
		return f.startFn(req)
	}
	return schema.StartSessionResponse{Session: f.session}, nil
}

func (f *fakeService) StopSession(_ context.Context, req schema.StopSessionRequest) (schema.StopSessionResponse, error) {
	if f.stopFn != nil {
		return f.stopFn(req)
	}
	return schema.StopSessionResponse{Session: f.session}, nil
}

func (f *fakeService) DispatchCommand(_ context.Context, req schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error) {
	if f.dispatchFn != nil {
		return f.dispatchFn(req)
	}
	return schema.DispatchCommandResponse{Accepted: true, Session: f.session}, nil
}

func (f *fakeService) Capture(_ context.Context, req schema.CaptureRequest) (schema.CaptureResponse, error) {
	if f.captureFn != nil {
		return f.captureFn(req)
	}
	return schema.CaptureResponse{}, nil
}

func (f *fakeService) TogglePause(_ context.Context, req schema.TogglePauseRequest) (schema.TogglePauseResponse, error) {
	if f.pauseFn != nil {
		return f.pauseFn(req)
	}
	return schema.TogglePauseResponse{Session: f.session}, nil
}

func (f *fakeService) GetSession(_ context.Context, _ schema.GetSessionRequest) (schema.GetSessionResponse, error) {
	return schema.GetSessionResponse{Session: f.session}, nil
}

func (f *fakeService) GetHistory(_ context.Context, _ schema.GetHistoryRequest) (schema.GetHistoryResponse, error) {
	return schema.GetHistoryResponse{History: f.history}, nil
}

func newTestAPI(t *testing.T, cfg Config, service *fakeService) *httptest.Server {
	t.Helper()
	server := NewServer(cfg, service, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestGetSessionReturnsSnapshot(t *testing.T) {
	service := &fakeService{session: schema.SessionSnapshot{
		Phase:     schema.PhaseActive,
		Message:   "Agent started successfully",
		StreamURL: "https://stream.example/abc",
	}}
	ts := newTestAPI(t, Config{}, service)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/session", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["phase"] != "active" || body["stream_url"] != "https://stream.example/abc" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetHistoryReturnsEntries(t *testing.T) {
	service := &fakeService{history: schema.HistorySnapshot{Entries: []schema.HistoryEntry{
		{Sequence: 1, Origin: schema.OriginOperator, Text: "do it"},
		{Sequence: 2, Origin: schema.OriginAgent, Text: "done"},
	}}}
	ts := newTestAPI(t, Config{}, service)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/history", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 2 {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestStartConflictMapsTo409(t *testing.T) {
	service := &fakeService{
		startFn: func(schema.StartSessionRequest) (schema.StartSessionResponse, error) {
			return schema.StartSessionResponse{}, schema.ErrSessionActive
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/session/start", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestStartInvalidKindMapsTo400(t *testing.T) {
	service := &fakeService{
		startFn: func(schema.StartSessionRequest) (schema.StartSessionResponse, error) {
			return schema.StartSessionResponse{}, schema.ErrInvalidInstanceKind
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/session/start", map[string]any{"instance_kind": "amiga"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStartEndpointFailureMapsTo502(t *testing.T) {
	service := &fakeService{
		startFn: func(schema.StartSessionRequest) (schema.StartSessionResponse, error) {
			return schema.StartSessionResponse{}, schema.ErrEndpointUnavailable
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/session/start", map[string]any{})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestCommandEmptyPromptIsSilentlyDropped(t *testing.T) {
	service := &fakeService{
		dispatchFn: func(schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error) {
			return schema.DispatchCommandResponse{}, schema.ErrEmptyPrompt
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/command", map[string]any{"prompt": "   "})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["accepted"] != false {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, present := body["error"]; present {
		t.Fatalf("blank prompt must not surface an error: %v", body)
	}
}

func TestCommandAcceptedFailureStaysOK(t *testing.T) {
	service := &fakeService{
		dispatchFn: func(schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error) {
			return schema.DispatchCommandResponse{Accepted: true}, schema.ErrRemoteFailure
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/command", map[string]any{"prompt": "do it"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["accepted"] != true || body["success"] != false {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["message"] == "" || body["message"] == nil {
		t.Fatalf("expected failure message: %v", body)
	}
}

func TestCommandPausedMapsTo409(t *testing.T) {
	service := &fakeService{
		dispatchFn: func(schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error) {
			return schema.DispatchCommandResponse{}, schema.ErrSessionPaused
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/command", map[string]any{"prompt": "do it"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCommandForwardsPayload(t *testing.T) {
	var got schema.DispatchCommandRequest
	service := &fakeService{
		dispatchFn: func(req schema.DispatchCommandRequest) (schema.DispatchCommandResponse, error) {
			got = req
			return schema.DispatchCommandResponse{Accepted: true, ResultText: "done"}, nil
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/command", map[string]any{
		"prompt":          "check mail",
		"tools":           []string{"browser", "computer"},
		"conversation_id": "conv-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got.Prompt != "check mail" || got.ConversationID != "conv-1" || len(got.Tools) != 2 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if body["result_text"] != "done" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCaptureServesPNG(t *testing.T) {
	image := []byte{0x89, 0x50, 0x4e, 0x47}
	service := &fakeService{
		captureFn: func(schema.CaptureRequest) (schema.CaptureResponse, error) {
			return schema.CaptureResponse{Image: image}, nil
		},
	}
	ts := newTestAPI(t, Config{}, service)

	resp, err := http.Get(ts.URL + "/api/capture")
	if err != nil {
		t.Fatalf("get capture: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestTokenAuthGuardsRoutes(t *testing.T) {
	service := &fakeService{session: schema.SessionSnapshot{Phase: schema.PhaseInactive}}
	ts := newTestAPI(t, Config{APIToken: "hunter2"}, service)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/session", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/session", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	_ = authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
}

func TestBasePathPrefixesRoutes(t *testing.T) {
	service := &fakeService{session: schema.SessionSnapshot{Phase: schema.PhaseInactive}}
	ts := newTestAPI(t, Config{BasePath: "/deskpilot"}, service)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/deskpilot/api/session", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["phase"] != "inactive" {
		t.Fatalf("unexpected body: %v", body)
	}

	bare, _ := doJSON(t, http.MethodGet, ts.URL+"/api/session", nil)
	if bare.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", bare.StatusCode)
	}
}

func TestEventStreamDeliversUpdates(t *testing.T) {
	bus := eventbus.New(nil)
	service := &fakeService{session: schema.SessionSnapshot{Phase: schema.PhaseInactive, Message: "No active session"}}
	server := NewServer(Config{}, service, bus)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	go bus.OnHistoryEvent(schema.HistoryEvent{Entry: schema.HistoryEntry{
		Sequence: 1, Origin: schema.OriginSystem, Text: "Agent started successfully",
	}})

	scanner := bufio.NewScanner(resp.Body)
	var sawSnapshot, sawHistory bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: session" {
			sawSnapshot = true
		}
		if line == "event: history" {
			sawHistory = true
		}
		if sawSnapshot && sawHistory {
			return
		}
	}
	t.Fatalf("missing events: snapshot=%v history=%v (%v)", sawSnapshot, sawHistory, scanner.Err())
}

func TestMalformedJSONMapsTo400(t *testing.T) {
	service := &fakeService{}
	ts := newTestAPI(t, Config{}, service)

	resp, err := http.Post(ts.URL+"/api/command", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
