package agentmock

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	server, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(server.Close)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) map[string]any {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post %s: status %d", url, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return body
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return body
}

func TestNewServerRejectsUnknownScenario(t *testing.T) {
	if _, err := NewServer(Config{Scenario: "chaos"}, nil); err == nil {
		t.Fatalf("expected error for unknown scenario")
	}
}

func TestStartStatusStopFlow(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "echo"})

	status := getJSON(t, ts.URL+"/v1/instance/status")
	if status["active"] != false {
		t.Fatalf("expected inactive before start: %v", status)
	}

	started := postJSON(t, ts.URL+"/v1/instance/start", map[string]any{
		"instance_kind": "ubuntu",
		"timeout_hours": 1,
	})
	if started["success"] != true {
		t.Fatalf("expected successful start: %v", started)
	}
	if started["stream_url"] == "" || started["stream_url"] == nil {
		t.Fatalf("expected stream url: %v", started)
	}

	status = getJSON(t, ts.URL+"/v1/instance/status")
	if status["active"] != true {
		t.Fatalf("expected active after start: %v", status)
	}

	stopped := postJSON(t, ts.URL+"/v1/instance/stop", nil)
	if stopped["success"] != true {
		t.Fatalf("expected successful stop: %v", stopped)
	}
	status = getJSON(t, ts.URL+"/v1/instance/status")
	if status["active"] != false {
		t.Fatalf("expected inactive after stop: %v", status)
	}
}

func TestStartRejectsUnknownInstanceKind(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "echo"})
	reply := postJSON(t, ts.URL+"/v1/instance/start", map[string]any{"instance_kind": "amiga"})
	if reply["success"] != false {
		t.Fatalf("expected refusal: %v", reply)
	}
}

func TestStopWithoutInstanceFails(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "echo"})
	reply := postJSON(t, ts.URL+"/v1/instance/stop", nil)
	if reply["success"] != false {
		t.Fatalf("expected refusal: %v", reply)
	}
}

func TestCommandEchoesPromptAndIssuesConversation(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "echo"})
	postJSON(t, ts.URL+"/v1/instance/start", map[string]any{"instance_kind": "ubuntu"})

	reply := postJSON(t, ts.URL+"/v1/instance/command", map[string]any{
		"prompt": "check the weather",
		"tools":  []string{"browser"},
	})
	if reply["success"] != true {
		t.Fatalf("expected successful command: %v", reply)
	}
	if reply["conversation_id"] == "" || reply["conversation_id"] == nil {
		t.Fatalf("expected a conversation id: %v", reply)
	}
	result, _ := reply["result_text"].(string)
	if result == "" {
		t.Fatalf("expected a result text: %v", reply)
	}

	// A supplied conversation id is carried back verbatim.
	reply = postJSON(t, ts.URL+"/v1/instance/command", map[string]any{
		"prompt":          "again",
		"conversation_id": "conv-7",
	})
	if reply["conversation_id"] != "conv-7" {
		t.Fatalf("expected conversation conv-7, got %v", reply["conversation_id"])
	}
}

func TestCommandWithoutInstanceFails(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "echo"})
	reply := postJSON(t, ts.URL+"/v1/instance/command", map[string]any{"prompt": "hello"})
	if reply["success"] != false {
		t.Fatalf("expected refusal: %v", reply)
	}
}

func TestFailureScenarioRefusesCommands(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "failure"})
	reply := postJSON(t, ts.URL+"/v1/instance/start", map[string]any{"instance_kind": "ubuntu"})
	if reply["success"] != false {
		t.Fatalf("failure scenario must refuse start: %v", reply)
	}
}

func TestFlakyScenarioFailsEveryNthStatus(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "flaky", FlakyEvery: 2})
	postJSON(t, ts.URL+"/v1/instance/start", map[string]any{"instance_kind": "ubuntu"})

	resp, err := http.Get(ts.URL + "/v1/instance/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first status check should pass, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/v1/instance/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("second status check should flake, got %d", resp.StatusCode)
	}
}

func TestScreenshotReturnsPlaceholderPNG(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "echo"})
	postJSON(t, ts.URL+"/v1/instance/start", map[string]any{"instance_kind": "browser"})

	reply := getJSON(t, ts.URL+"/v1/instance/screenshot")
	if reply["success"] != true {
		t.Fatalf("expected screenshot: %v", reply)
	}
	encoded, _ := reply["image_base64"].(string)
	if encoded == "" {
		t.Fatalf("expected image payload: %v", reply)
	}
}

func TestScreenshotWithoutInstanceFails(t *testing.T) {
	ts := newTestServer(t, Config{Scenario: "echo"})
	reply := getJSON(t, ts.URL+"/v1/instance/screenshot")
	if reply["success"] != false {
		t.Fatalf("expected refusal: %v", reply)
	}
}

func TestPickScenarioIsStable(t *testing.T) {
	first := pickScenario("some prompt")
	for i := 0; i < 5; i++ {
		if pickScenario("some prompt") != first {
			t.Fatalf("scenario selection must be deterministic per prompt")
		}
	}
}

func TestBrowseTargetExtractsURL(t *testing.T) {
	url, ok := browseTarget("open https://example.org and report the title")
	if !ok || url != "https://example.org" {
		t.Fatalf("unexpected target %q ok=%v", url, ok)
	}
	if _, ok := browseTarget("no links here"); ok {
		t.Fatalf("expected no target")
	}
}
