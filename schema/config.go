package schema

import (
	"errors"
	"time"
)

// ServiceConfig defines defaults and limits for the session controller.
type ServiceConfig struct {
	DefaultInstanceKind InstanceKind
	DefaultTimeoutHours int
	DefaultTools        []ToolKind
	HistoryCapacity     int
	PollInterval        time.Duration
	PollFailureInterval time.Duration
	// PauseBlocksDispatch rejects command dispatch while the session is paused.
	PauseBlocksDispatch bool
	StateDir            string
}

// DefaultHistoryCapacity is the default interaction log bound.
const DefaultHistoryCapacity = 50

// DefaultPollInterval is the status poll delay after a successful check.
const DefaultPollInterval = 10 * time.Second

// DefaultPollFailureInterval is the status poll delay after a failed check.
const DefaultPollFailureInterval = 15 * time.Second

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.DefaultInstanceKind == "" {
		cfg.DefaultInstanceKind = InstanceUbuntu
	}
	if !cfg.DefaultInstanceKind.Valid() {
		return ServiceConfig{}, ErrInvalidInstanceKind
	}
	if cfg.DefaultTimeoutHours <= 0 {
		cfg.DefaultTimeoutHours = 1
	}
	if len(cfg.DefaultTools) == 0 {
		cfg.DefaultTools = AllTools()
	}
	for _, tool := range cfg.DefaultTools {
		if !tool.Valid() {
			return ServiceConfig{}, ErrInvalidTool
		}
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollFailureInterval <= 0 {
		cfg.PollFailureInterval = DefaultPollFailureInterval
	}
	if cfg.PollFailureInterval < cfg.PollInterval {
		return ServiceConfig{}, errors.New("poll failure interval must not be shorter than poll interval")
	}
	return cfg, nil
}
