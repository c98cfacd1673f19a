// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shiplog.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "socket_path: /run/shiplog.sock\nsource: myapp\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error = %v", err)
	}
	if cfg.Mode != Buffered {
		t.Fatalf("Mode = %q, want %q", cfg.Mode, Buffered)
	}
	if cfg.AckTimeoutMS != 5000 {
		t.Fatalf("AckTimeoutMS = %d, want 5000", cfg.AckTimeoutMS)
	}
	if cfg.ConnectRetryTimeoutMS != 60000 {
		t.Fatalf("ConnectRetryTimeoutMS = %d, want 60000", cfg.ConnectRetryTimeoutMS)
	}
}

func TestLoadFileRejectsMissingDestination(t *testing.T) {
	path := writeConfig(t, "source: myapp\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error when neither socket_path nor tcp_port is set")
	}
}

func TestLoadFileRejectsBothDestinations(t *testing.T) {
	path := writeConfig(t, "socket_path: /run/shiplog.sock\ntcp_port: 9999\nsource: myapp\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error when both socket_path and tcp_port are set")
	}
}

func TestLoadFileRejectsMissingSource(t *testing.T) {
	path := writeConfig(t, "socket_path: /run/shiplog.sock\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error when source is missing")
	}
}

func TestLoadFileRejectsZeroResendIntervalWithCaching(t *testing.T) {
	path := writeConfig(t, "socket_path: /run/shiplog.sock\nsource: myapp\nack_timeout_ms: 1000\nresend_interval_ms: 0\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error when ack_timeout_ms is nonzero but resend_interval_ms is zero")
	}
}

func TestLoadFileRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, "socket_path: /run/shiplog.sock\nsource: myapp\nmode: bogus\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error for an unrecognized mode")
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("SHIPLOG_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when SHIPLOG_CONFIG is unset")
	}
}

func TestLoadUsesEnvVar(t *testing.T) {
	path := writeConfig(t, "tcp_port: 9999\nsource: myapp\n")
	t.Setenv("SHIPLOG_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.TCPPort != 9999 {
		t.Fatalf("TCPPort = %d, want 9999", cfg.TCPPort)
	}
}

func TestAddrResolvesUnixOrTCP(t *testing.T) {
	unixCfg := &Config{SocketPath: "/run/shiplog.sock"}
	addr, err := unixCfg.Addr()
	if err != nil {
		t.Fatalf("Addr error = %v", err)
	}
	if addr.Network != "unix" {
		t.Fatalf("Network = %q, want unix", addr.Network)
	}

	tcpCfg := &Config{TCPPort: 9999}
	addr, err = tcpCfg.Addr()
	if err != nil {
		t.Fatalf("Addr error = %v", err)
	}
	if addr.Network != "tcp" {
		t.Fatalf("Network = %q, want tcp", addr.Network)
	}
}
