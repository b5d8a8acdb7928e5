// Package config loads node settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultReadBuffer  = 1024
	DefaultMaxMessage  = 1024
	DefaultRelayWindow = 30 * time.Second
)

var ErrInvalidPort = errors.New("config: port must be an integer in 1-65535")

// Config holds everything a node needs besides its listening port.
type Config struct {
	// ReadBuffer is the size of a single socket read.
	ReadBuffer int `yaml:"read_buffer"`
	// MaxMessage caps outgoing messages. Keeping it at or below the peer's
	// read buffer keeps one send within one read on the other side.
	MaxMessage int `yaml:"max_message"`
	// DialTimeout of zero means the OS default.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// Relay forwards every received message to all other peers.
	Relay       bool          `yaml:"relay"`
	RelayWindow time.Duration `yaml:"relay_window"`
	LogLevel    string        `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ReadBuffer:  DefaultReadBuffer,
		MaxMessage:  DefaultMaxMessage,
		RelayWindow: DefaultRelayWindow,
		LogLevel:    "info",
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.FillDefaults()
	return cfg, cfg.Validate()
}

// FillDefaults replaces zero-valued fields with their defaults.
func (c *Config) FillDefaults() {
	d := Default()
	if c.ReadBuffer == 0 {
		c.ReadBuffer = d.ReadBuffer
	}
	if c.MaxMessage == 0 {
		c.MaxMessage = d.MaxMessage
	}
	if c.RelayWindow == 0 {
		c.RelayWindow = d.RelayWindow
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate rejects settings a node cannot run with.
func (c Config) Validate() error {
	if c.ReadBuffer < 1 {
		return fmt.Errorf("config: read_buffer must be positive, got %d", c.ReadBuffer)
	}
	if c.MaxMessage < 1 {
		return fmt.Errorf("config: max_message must be positive, got %d", c.MaxMessage)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("config: dial_timeout must not be negative, got %s", c.DialTimeout)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// ParsePort validates a listening or destination port given as text.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return port, nil
}
