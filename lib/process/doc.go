// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for shiplog
// command binaries. It centralizes the one legitimate raw I/O pattern
// that exists before the structured logger is constructed: fatal error
// reporting to stderr followed by process exit.
package process
