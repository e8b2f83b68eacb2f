package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/deskpilot/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	Endpoint      EndpointConfig `mapstructure:"endpoint" yaml:"endpoint"`
	Session       SessionConfig  `mapstructure:"session" yaml:"session"`
	Poll          PollConfig     `mapstructure:"poll" yaml:"poll"`
	HTTP          HTTPConfig     `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EndpointConfig configures the remote agent endpoint client.
type EndpointConfig struct {
	BaseURL               string `mapstructure:"base_url" yaml:"base_url"`
	APIKey                string `mapstructure:"api_key" yaml:"api_key"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds" yaml:"command_timeout_seconds"`
}

// SessionConfig controls session controller defaults.
type SessionConfig struct {
	InstanceKind        string   `mapstructure:"instance_kind" yaml:"instance_kind"`
	TimeoutHours        int      `mapstructure:"timeout_hours" yaml:"timeout_hours"`
	HistoryCapacity     int      `mapstructure:"history_capacity" yaml:"history_capacity"`
	PauseBlocksDispatch bool     `mapstructure:"pause_blocks_dispatch" yaml:"pause_blocks_dispatch"`
	Tools               []string `mapstructure:"tools" yaml:"tools"`
}

// PollConfig controls status poll cadence.
type PollConfig struct {
	IntervalSeconds        int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
	FailureIntervalSeconds int `mapstructure:"failure_interval_seconds" yaml:"failure_interval_seconds"`
}

// HTTPConfig configures the control API server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
	APIToken string `mapstructure:"api_token" yaml:"api_token"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".deskpilot", "state"),
		Endpoint: EndpointConfig{
			BaseURL:               "http://127.0.0.1:27520",
			APIKey:                "",
			TimeoutSeconds:        15,
			CommandTimeoutSeconds: 300,
		},
		Session: SessionConfig{
			InstanceKind:        string(schema.InstanceUbuntu),
			TimeoutHours:        1,
			HistoryCapacity:     schema.DefaultHistoryCapacity,
			PauseBlocksDispatch: true,
			Tools:               toolNames(schema.AllTools()),
		},
		Poll: PollConfig{
			IntervalSeconds:        10,
			FailureIntervalSeconds: 15,
		},
		HTTP: HTTPConfig{
			Addr:     ":27510",
			BasePath: "",
			APIToken: "",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".deskpilot", "config.yaml"), nil
}

func toolNames(tools []schema.ToolKind) []string {
	out := make([]string, 0, len(tools))
	for _, tool := range tools {
		out = append(out, string(tool))
	}
	return out
}
