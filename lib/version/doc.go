// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for shiplog
// binaries: cmd/shiplog-relay and any other command built against this
// module.
//
// # Build information
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// When not injected, which occurs during development builds and test
// runs, GitCommit and BuildTime default to "unknown", GitDirty to
// "false", and Version to "0.1.0-dev".
//
// Formatting functions produce human-readable version strings:
//
//   - [Info] -- "0.1.0-dev (abc1234, 2026-02-10T...)" for --version
//   - [Full] -- Info plus Go version and GOOS/GOARCH
//   - [Short] -- just the version number
//   - [Commit] -- just the git SHA
package version
