// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads shiplog-relay's configuration.
//
// Configuration is loaded from a single file specified by:
//   - SHIPLOG_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiplog-dev/shiplog/lib/sockaddr"
)

// Mode selects between the two composition shapes shipper offers.
type Mode string

const (
	// Buffered runs an asynchronous BufferedLogger.
	Buffered Mode = "buffered"
	// Synchronous runs a SocketLogger.
	Synchronous Mode = "synchronous"
)

// Config is the configuration for a shiplog-relay process.
type Config struct {
	// SocketPath is the Unix domain socket path to connect to. Mutually
	// exclusive with TCPPort; exactly one must be set.
	SocketPath string `yaml:"socket_path"`

	// TCPPort is a loopback TCP port to connect to instead of a Unix
	// domain socket.
	TCPPort int `yaml:"tcp_port"`

	// AckTimeoutMS is the maximum time, in milliseconds, to wait for an
	// ack before a cached record is evicted. Zero disables caching and
	// the resender entirely.
	AckTimeoutMS int `yaml:"ack_timeout_ms"`

	// ResendIntervalMS is the resend loop period, in milliseconds. Must
	// be positive when AckTimeoutMS is nonzero.
	ResendIntervalMS int `yaml:"resend_interval_ms"`

	// ConnectRetryTimeoutMS bounds a single connect-retry budget, in
	// milliseconds. Must be positive.
	ConnectRetryTimeoutMS int `yaml:"connect_retry_timeout_ms"`

	// BufferLimit caps the ingestion queue length. Zero means
	// unbounded. Only meaningful in Buffered mode.
	BufferLimit int `yaml:"buffer_limit"`

	// Mode selects buffered (asynchronous) or synchronous delivery.
	Mode Mode `yaml:"mode"`

	// Source is the default source name attached to records this
	// process produces.
	Source string `yaml:"source"`
}

// Default returns a Config with the field values used when the config
// file omits them. Defaults exist to give every field a sensible
// zero-value, not as a substitute for the config file, which is
// required.
func Default() *Config {
	return &Config{
		AckTimeoutMS:          5000,
		ResendIntervalMS:      1000,
		ConnectRetryTimeoutMS: 60000,
		BufferLimit:           0,
		Mode:                  Buffered,
	}
}

// Load loads configuration from the SHIPLOG_CONFIG environment
// variable. There is no fallback: if the variable is unset, this
// fails. The --config flag is handled by the caller, which uses
// LoadFile instead when the flag is given.
func Load() (*Config, error) {
	path := os.Getenv("SHIPLOG_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: SHIPLOG_CONFIG environment variable not set; " +
			"set it to the path of your shiplog.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.SocketPath == "" && c.TCPPort == 0 {
		return fmt.Errorf("config: exactly one of socket_path or tcp_port is required")
	}
	if c.SocketPath != "" && c.TCPPort != 0 {
		return fmt.Errorf("config: socket_path and tcp_port are mutually exclusive")
	}
	if c.ConnectRetryTimeoutMS <= 0 {
		return fmt.Errorf("config: connect_retry_timeout_ms must be positive")
	}
	if c.AckTimeoutMS > 0 && c.ResendIntervalMS <= 0 {
		return fmt.Errorf("config: resend_interval_ms must be positive when ack_timeout_ms is nonzero")
	}
	if c.Mode != Buffered && c.Mode != Synchronous {
		return fmt.Errorf("config: mode must be %q or %q, got %q", Buffered, Synchronous, c.Mode)
	}
	if c.Source == "" {
		return fmt.Errorf("config: source is required")
	}
	return nil
}

// Addr resolves the configured destination into a connect-ready
// sockaddr.Addr.
func (c *Config) Addr() (sockaddr.Addr, error) {
	if c.SocketPath != "" {
		return sockaddr.Unix(c.SocketPath)
	}
	return sockaddr.TCP(c.TCPPort)
}

// AckTimeout returns AckTimeoutMS as a time.Duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMS) * time.Millisecond
}

// ResendInterval returns ResendIntervalMS as a time.Duration.
func (c *Config) ResendInterval() time.Duration {
	return time.Duration(c.ResendIntervalMS) * time.Millisecond
}

// ConnectRetryTimeout returns ConnectRetryTimeoutMS as a time.Duration.
func (c *Config) ConnectRetryTimeout() time.Duration {
	return time.Duration(c.ConnectRetryTimeoutMS) * time.Millisecond
}
