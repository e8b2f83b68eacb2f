package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/deskpilot/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("endpoint.base_url", cfg.Endpoint.BaseURL)
	v.SetDefault("endpoint.api_key", cfg.Endpoint.APIKey)
	v.SetDefault("endpoint.timeout_seconds", cfg.Endpoint.TimeoutSeconds)
	v.SetDefault("endpoint.command_timeout_seconds", cfg.Endpoint.CommandTimeoutSeconds)
	v.SetDefault("session.instance_kind", cfg.Session.InstanceKind)
	v.SetDefault("session.timeout_hours", cfg.Session.TimeoutHours)
	v.SetDefault("session.history_capacity", cfg.Session.HistoryCapacity)
	v.SetDefault("session.pause_blocks_dispatch", cfg.Session.PauseBlocksDispatch)
	v.SetDefault("session.tools", cfg.Session.Tools)
	v.SetDefault("poll.interval_seconds", cfg.Poll.IntervalSeconds)
	v.SetDefault("poll.failure_interval_seconds", cfg.Poll.FailureIntervalSeconds)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.api_token", cfg.HTTP.APIToken)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.IsSet("endpoint.base_url") {
			return Config{}, fmt.Errorf("endpoint.base_url is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	baseURL := strings.TrimSpace(cfg.Endpoint.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("endpoint.base_url must include scheme and host (e.g. https://agent.example.com)")
	}
	if !schema.InstanceKind(cfg.Session.InstanceKind).Valid() {
		return fmt.Errorf("session.instance_kind must be one of ubuntu, browser, windows (got %q)", cfg.Session.InstanceKind)
	}
	for _, tool := range cfg.Session.Tools {
		if !schema.ToolKind(tool).Valid() {
			return fmt.Errorf("session.tools contains unknown tool %q", tool)
		}
	}
	if cfg.Session.TimeoutHours <= 0 {
		return fmt.Errorf("session.timeout_hours must be greater than zero")
	}
	if cfg.Session.HistoryCapacity <= 0 {
		return fmt.Errorf("session.history_capacity must be greater than zero")
	}
	if cfg.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("poll.interval_seconds must be greater than zero")
	}
	if cfg.Poll.FailureIntervalSeconds < cfg.Poll.IntervalSeconds {
		return fmt.Errorf("poll.failure_interval_seconds must not be shorter than poll.interval_seconds")
	}
	basePath := strings.TrimSpace(cfg.HTTP.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Endpoint.BaseURL = expandEnv(cfg.Endpoint.BaseURL)
	cfg.Endpoint.APIKey = expandEnv(cfg.Endpoint.APIKey)
	cfg.HTTP.APIToken = expandEnv(cfg.HTTP.APIToken)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
