// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/fleetstate/lib/bus"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "FLEETSTATE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the configuration shared by the fleetstate binaries.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Root is the base directory for sockets and the journal. It is
	// available to other path fields as ${FLEETSTATE_ROOT}.
	Root string `yaml:"root"`

	Log        LogConfig        `yaml:"log"`
	Broker     BrokerConfig     `yaml:"broker"`
	Controller ControllerConfig `yaml:"controller"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that can be overridden per environment.
type Overrides struct {
	Log        *LogConfig        `yaml:"log,omitempty"`
	Broker     *BrokerConfig     `yaml:"broker,omitempty"`
	Controller *ControllerConfig `yaml:"controller,omitempty"`
}

// LogConfig configures the service loggers.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`

	// Format is text or json. Default: text (development), json
	// (production).
	Format string `yaml:"format"`
}

// BrokerConfig configures fleetstate-broker and where clients find it.
type BrokerConfig struct {
	// SocketPath is the Unix socket the broker serves on.
	// Default: ${FLEETSTATE_ROOT}/bus.sock
	SocketPath string `yaml:"socket_path"`

	// JournalPath is the SQLite journal holding the retained stream.
	// Default: ${FLEETSTATE_ROOT}/journal.db
	JournalPath string `yaml:"journal_path"`

	// Retain lists the subject patterns the broker sequences and
	// journals. Default: ["state.>"]
	Retain []string `yaml:"retain"`

	// MetricsAddress is the HTTP listen address for /metrics. Empty
	// disables the endpoint.
	MetricsAddress string `yaml:"metrics_address"`
}

// ControllerConfig configures fleetstate-controller.
type ControllerConfig struct {
	// ListenAddress serves /metrics and /healthz. Default: 127.0.0.1:9464
	ListenAddress string `yaml:"listen_address"`

	// ReplayTimeout bounds the initial replay of the state stream.
	// Default: 30s
	ReplayTimeout time.Duration `yaml:"replay_timeout"`

	// HeartbeatInterval is the expected drone heartbeat period.
	// Default: 30s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// ChangeWindow is how many recent changes the state loop keeps
	// for request handlers. Default: 4096
	ChangeWindow int `yaml:"change_window"`
}

// Default returns the default configuration. LoadFile merges the file
// over it.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".cache", "fleetstate")

	return &Config{
		Environment: Development,
		Root:        root,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Broker: BrokerConfig{
			SocketPath:  "${FLEETSTATE_ROOT}/bus.sock",
			JournalPath: "${FLEETSTATE_ROOT}/journal.db",
			Retain:      append([]string(nil), bus.DefaultRetainPatterns...),
		},
		Controller: ControllerConfig{
			ListenAddress:     "127.0.0.1:9464",
			ReplayTimeout:     30 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			ChangeWindow:      4096,
		},
	}
}

// Load loads configuration from the file named by FLEETSTATE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your fleetstate.yaml config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// Resolve loads the file at path when it is non-empty, otherwise the
// file named by FLEETSTATE_CONFIG when that is set, otherwise the
// defaults. The result is validated.
func Resolve(path string) (*Config, error) {
	var cfg *Config
	var err error
	switch {
	case path != "":
		cfg, err = LoadFile(path)
	case os.Getenv(EnvironmentVariable) != "":
		cfg, err = Load()
	default:
		cfg = Default()
		cfg.Finalize()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads configuration from path, applies the matching
// environment section, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.Finalize()
	return cfg, nil
}

// Finalize expands path variables. LoadFile calls it; callers that
// start from Default and change fields call it themselves.
func (c *Config) Finalize() {
	c.expandVariables()
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Log: &LogConfig{Format: "json"}}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}

	if overrides.Broker != nil {
		if overrides.Broker.SocketPath != "" {
			c.Broker.SocketPath = overrides.Broker.SocketPath
		}
		if overrides.Broker.JournalPath != "" {
			c.Broker.JournalPath = overrides.Broker.JournalPath
		}
		if overrides.Broker.Retain != nil {
			c.Broker.Retain = overrides.Broker.Retain
		}
		if overrides.Broker.MetricsAddress != "" {
			c.Broker.MetricsAddress = overrides.Broker.MetricsAddress
		}
	}

	if overrides.Controller != nil {
		if overrides.Controller.ListenAddress != "" {
			c.Controller.ListenAddress = overrides.Controller.ListenAddress
		}
		if overrides.Controller.ReplayTimeout != 0 {
			c.Controller.ReplayTimeout = overrides.Controller.ReplayTimeout
		}
		if overrides.Controller.HeartbeatInterval != 0 {
			c.Controller.HeartbeatInterval = overrides.Controller.HeartbeatInterval
		}
		if overrides.Controller.ChangeWindow != 0 {
			c.Controller.ChangeWindow = overrides.Controller.ChangeWindow
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"FLEETSTATE_ROOT": c.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["FLEETSTATE_ROOT"] = c.Root

	c.Broker.SocketPath = expandVars(c.Broker.SocketPath, vars)
	c.Broker.JournalPath = expandVars(c.Broker.JournalPath, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if c.Broker.SocketPath == "" {
		errs = append(errs, errors.New("broker.socket_path is required"))
	}
	if c.Broker.JournalPath == "" {
		errs = append(errs, errors.New("broker.journal_path is required"))
	}
	for _, pattern := range c.Broker.Retain {
		if err := bus.ValidatePattern(pattern); err != nil {
			errs = append(errs, fmt.Errorf("broker.retain: %w", err))
		}
	}
	if c.Broker.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(c.Broker.MetricsAddress); err != nil {
			errs = append(errs, fmt.Errorf("broker.metrics_address: %w", err))
		}
	}

	if _, _, err := net.SplitHostPort(c.Controller.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("controller.listen_address: %w", err))
	}
	if c.Controller.ReplayTimeout <= 0 {
		errs = append(errs, errors.New("controller.replay_timeout must be positive"))
	}
	if c.Controller.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("controller.heartbeat_interval must be positive"))
	}
	if c.Controller.ChangeWindow <= 0 {
		errs = append(errs, errors.New("controller.change_window must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds a service logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", l.Format)
	}
}

// EnsurePaths creates the directories holding the broker socket and
// journal.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Root, filepath.Dir(c.Broker.SocketPath), filepath.Dir(c.Broker.JournalPath)} {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
