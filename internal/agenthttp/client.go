package agenthttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/deskpilot/core"
	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

// Config defines the remote agent endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds start, stop, status, and capture calls.
	Timeout time.Duration
	// CommandTimeout bounds command calls, which can run much longer.
	CommandTimeout time.Duration
}

// DefaultTimeout bounds short control calls.
const DefaultTimeout = 15 * time.Second

// DefaultCommandTimeout bounds command round trips.
const DefaultCommandTimeout = 5 * time.Minute

// Client talks JSON over HTTP to the remote agent endpoint. It satisfies
// core.Endpoint. Commands are never retried; every other call relies on the
// poller cadence instead of inline retries.
type Client struct {
	base           string
	apiKey         string
	httpClient     *http.Client
	timeout        time.Duration
	commandTimeout time.Duration
	log            pslog.Logger
}

// NewClient constructs an endpoint client.
func NewClient(cfg Config, logger pslog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("endpoint base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("endpoint base url must include scheme and host (got %q)", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	commandTimeout := cfg.CommandTimeout
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}
	if logger != nil {
		logger = logger.With("endpoint", base)
	}
	return &Client{
		base:           base,
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{},
		timeout:        timeout,
		commandTimeout: commandTimeout,
		log:            logger,
	}, nil
}

type startPayload struct {
	InstanceKind schema.InstanceKind `json:"instance_kind"`
	TimeoutHours int                 `json:"timeout_hours"`
}

type startReply struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	StreamURL string `json:"stream_url,omitempty"`
}

type stopReply struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type statusReply struct {
	Active    bool   `json:"active"`
	Message   string `json:"message,omitempty"`
	StreamURL string `json:"stream_url,omitempty"`
}

type commandPayload struct {
	Prompt         string                `json:"prompt"`
	Tools          []schema.ToolKind     `json:"tools"`
	ConversationID schema.ConversationID `json:"conversation_id,omitempty"`
}

type commandReply struct {
	Success        bool   `json:"success"`
	ResultText     string `json:"result_text,omitempty"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type captureReply struct {
	Success     bool   `json:"success"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Start provisions a remote instance.
func (c *Client) Start(ctx context.Context, req core.StartRequest) (core.StartResult, error) {
	var reply startReply
	err := c.call(ctx, http.MethodPost, "/v1/instance/start", startPayload{
		InstanceKind: req.InstanceKind,
		TimeoutHours: req.TimeoutHours,
	}, &reply, 0)
	if err != nil {
		return core.StartResult{}, err
	}
	return core.StartResult{
		OK:        reply.Success,
		Message:   reply.Message,
		StreamURL: schema.StreamURL(reply.StreamURL),
	}, nil
}

// Stop tears down the remote instance.
func (c *Client) Stop(ctx context.Context) (core.StopResult, error) {
	var reply stopReply
	err := c.call(ctx, http.MethodPost, "/v1/instance/stop", nil, &reply, 0)
	if err != nil {
		return core.StopResult{}, err
	}
	return core.StopResult{OK: reply.Success, Message: reply.Message}, nil
}

// Status reports remote instance liveness.
func (c *Client) Status(ctx context.Context) (core.StatusResult, error) {
	var reply statusReply
	err := c.call(ctx, http.MethodGet, "/v1/instance/status", nil, &reply, 0)
	if err != nil {
		return core.StatusResult{}, err
	}
	return core.StatusResult{
		Active:    reply.Active,
		Message:   reply.Message,
		StreamURL: schema.StreamURL(reply.StreamURL),
	}, nil
}

// Command sends a prompt to the remote agent and waits for the result.
func (c *Client) Command(ctx context.Context, req core.CommandRequest) (core.CommandResult, error) {
	var reply commandReply
	err := c.call(ctx, http.MethodPost, "/v1/instance/command", commandPayload{
		Prompt:         req.Prompt,
		Tools:          req.Tools,
		ConversationID: req.ConversationID,
	}, &reply, c.commandTimeout)
	if err != nil {
		return core.CommandResult{}, err
	}
	return core.CommandResult{
		OK:             reply.Success,
		ResultText:     reply.ResultText,
		Message:        reply.Message,
		ConversationID: schema.ConversationID(reply.ConversationID),
	}, nil
}

// Capture fetches a one-shot screenshot.
func (c *Client) Capture(ctx context.Context) (core.CaptureResult, error) {
	var reply captureReply
	err := c.call(ctx, http.MethodGet, "/v1/instance/screenshot", nil, &reply, 0)
	if err != nil {
		return core.CaptureResult{}, err
	}
	result := core.CaptureResult{OK: reply.Success, Message: reply.Message}
	if reply.ImageBase64 != "" {
		image, err := base64.StdEncoding.DecodeString(reply.ImageBase64)
		if err != nil {
			return core.CaptureResult{}, fmt.Errorf("%w: malformed screenshot payload: %v", schema.ErrEndpointUnavailable, err)
		}
		result.Image = image
	}
	return result, nil
}

// call performs one round trip and decodes the JSON reply. A timeout of zero
// uses the client's default short timeout.
func (c *Client) call(ctx context.Context, method, path string, payload any, reply any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.timeout
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = callCtx
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.Warn("endpoint call failed", "method", method, "path", path, "err", err)
		}
		return fmt.Errorf("%w: %v", schema.ErrEndpointUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if c.log != nil {
			c.log.Warn("endpoint call rejected", "method", method, "path", path, "status", resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d: %s", schema.ErrEndpointUnavailable, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		if c.log != nil {
			c.log.Warn("endpoint reply decode failed", "method", method, "path", path, "err", err)
		}
		return fmt.Errorf("%w: malformed reply: %v", schema.ErrEndpointUnavailable, err)
	}
	if c.log != nil {
		c.log.Debug("endpoint call ok", "method", method, "path", path, "duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}
