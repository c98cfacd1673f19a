// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package sockaddr resolves a destination descriptor — a Unix domain
// socket path or a TCP loopback port — into a connect-ready network
// address for lib/socketclient.
package sockaddr

import (
	"fmt"
)

// maxUnixPathLength is the size of the sun_path field in struct
// sockaddr_un on Linux. A path longer than this cannot be bound into a
// Unix domain socket address.
const maxUnixPathLength = 108

// Addr describes a connect-ready destination: a "network" value
// suitable for net.Dialer.DialContext ("unix" or "tcp") and the
// corresponding address string.
type Addr struct {
	Network string
	Address string
}

// Unix resolves a filesystem path into a Unix domain socket address.
// The path must be non-empty and no longer than the platform's
// sockaddr_un.sun_path capacity.
func Unix(path string) (Addr, error) {
	if path == "" {
		return Addr{}, fmt.Errorf("sockaddr: unix socket path must not be empty")
	}
	if len(path) > maxUnixPathLength {
		return Addr{}, fmt.Errorf("sockaddr: unix socket path %q exceeds max length %d", path, maxUnixPathLength)
	}
	return Addr{Network: "unix", Address: path}, nil
}

// TCP resolves a loopback port into a TCP socket address. The port must
// be in the valid non-zero range.
func TCP(port int) (Addr, error) {
	if port <= 0 || port > 65535 {
		return Addr{}, fmt.Errorf("sockaddr: invalid TCP port %d", port)
	}
	return Addr{Network: "tcp", Address: fmt.Sprintf("127.0.0.1:%d", port)}, nil
}

// String returns a human-readable form suitable for logging.
func (a Addr) String() string {
	return fmt.Sprintf("%s:%s", a.Network, a.Address)
}
