// Package config loads runtime configuration from TOML, layering the file's
// values over built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoopConfig tunes the autonomous work loop.
type LoopConfig struct {
	MaxPerHour      int      `toml:"max_per_hour"`
	PollInterval    Duration `toml:"poll_interval"`
	BackoffInterval Duration `toml:"backoff_interval"`
	BaseDelay       Duration `toml:"base_delay"`
	CapDelay        Duration `toml:"cap_delay"`
	ItemTimeout     Duration `toml:"item_timeout"`
	WatchDir        string   `toml:"watch_dir"`
}

// ModelConfig selects the completion provider for parameter strategies.
type ModelConfig struct {
	// Provider is "anthropic", "openai", or "" for no model.
	Provider string `toml:"provider"`
	Name     string `toml:"name"`
}

// ToolSource describes one external tool-protocol server to spawn.
type ToolSource struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Config is the full runtime configuration.
type Config struct {
	AgentID     string       `toml:"agent_id"`
	DBPath      string       `toml:"db_path"`
	MetricsAddr string       `toml:"metrics_addr"`
	Loop        LoopConfig   `toml:"loop"`
	Model       ModelConfig  `toml:"model"`
	ToolSources []ToolSource `toml:"tool_sources"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AgentID:     "agent-1",
		DBPath:      "swarm.db",
		MetricsAddr: "127.0.0.1:9090",
		Loop: LoopConfig{
			MaxPerHour:      10,
			PollInterval:    Duration(30 * time.Second),
			BackoffInterval: Duration(5 * time.Minute),
			BaseDelay:       Duration(30 * time.Second),
			CapDelay:        Duration(300 * time.Second),
		},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// validate rejects configurations the runtime cannot honor.
func (c Config) validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("agent_id must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	switch c.Model.Provider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	seen := make(map[string]bool)
	for _, src := range c.ToolSources {
		if src.Name == "" || src.Command == "" {
			return fmt.Errorf("tool source needs both name and command")
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate tool source %q", src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}
