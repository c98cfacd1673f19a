// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package socketclient implements a persistent, transparently
// reconnecting connection to a single remote address, with cooperative
// cancellation of any blocked operation.
package socketclient

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/shiplog-dev/shiplog/lib/clock"
	"github.com/shiplog-dev/shiplog/lib/sockaddr"
)

// Client presents a single connection whose lifetime is transparently
// re-established on loss. At most one descriptor is open at a time; a
// read and a send may proceed concurrently, but two sends may not.
type Client struct {
	addr             sockaddr.Addr
	connRetryTimeout time.Duration
	clk              clock.Clock
	logger           *slog.Logger

	mu    sync.Mutex // guards conn, raw, ready (the fd mutex)
	conn  net.Conn
	raw   syscall.RawConn
	ready chan struct{}

	sendMu sync.Mutex // serializes writes

	connectCount atomic.Int64
	stopped      atomic.Bool
	stopOnce     sync.Once
	stopCh       chan struct{}
}

// Option configures a Client at construction.
type Option func(*Client)

// WithClock overrides the clock used for backoff sleeps. Defaults to
// clock.Real().
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clk = c }
}

// WithLogger overrides the structured logger used for connect warnings.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New constructs a Client targeting addr. connRetryTimeout bounds each
// call to Connect and must be positive.
func New(addr sockaddr.Addr, connRetryTimeout time.Duration, opts ...Option) (*Client, error) {
	if connRetryTimeout <= 0 {
		return nil, fmt.Errorf("socketclient: connRetryTimeout must be positive")
	}
	c := &Client{
		addr:             addr,
		connRetryTimeout: connRetryTimeout,
		clk:              clock.Real(),
		logger:           slog.Default(),
		ready:            make(chan struct{}),
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ConnectCount returns the number of connect attempts made so far, for
// tests and diagnostics.
func (c *Client) ConnectCount() int64 {
	return c.connectCount.Load()
}

// Connect ensures a valid descriptor exists. If one already exists, it
// returns immediately. Otherwise it repeatedly attempts to dial,
// sleeping with backoff between attempts, until either it succeeds, the
// retry-timeout budget expires, or Stop is observed. Failure to connect
// within the budget is not itself an error: a subsequent Send or Read
// will report a socket error.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	deadline := c.clk.Now().Add(c.connRetryTimeout)
	for {
		if c.stopped.Load() {
			return nil
		}

		conn, err := c.dial()
		if err == nil {
			c.adoptConnLocked(conn)
			return nil
		}
		c.logger.Warn("socketclient: connect attempt failed", "addr", c.addr.String(), "error", err)

		remaining := deadline.Sub(c.clk.Now())
		if remaining <= 0 {
			return nil
		}
		c.sleepBackoff(remaining)
		if c.clk.Now().After(deadline) {
			return nil
		}
	}
}

func (c *Client) dial() (net.Conn, error) {
	c.connectCount.Add(1)
	dialer := net.Dialer{}
	conn, err := dialer.Dial(c.addr.Network, c.addr.Address)
	if err != nil {
		return nil, &SocketError{Kind: KindConnect, Err: err}
	}
	return conn, nil
}

// adoptConnLocked stores a newly-dialed connection and signals fd-ready
// to waiters. Callers must hold c.mu.
func (c *Client) adoptConnLocked(conn net.Conn) {
	raw, err := conn.(syscall.Conn).SyscallConn()
	if err != nil {
		// Cannot obtain a raw fd from this connection type; treat as
		// connect failure by closing and leaving the client
		// disconnected.
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.raw = raw
	close(c.ready)
}

// sleepBackoff sleeps for the computed backoff delay, in chunks no
// longer than backoffChunk, so Stop is observed within that bound.
func (c *Client) sleepBackoff(remaining time.Duration) {
	delay := backoffDelay(c.connectCount.Load(), remaining)
	for delay > 0 {
		if c.stopped.Load() {
			return
		}
		step := delay
		if step > backoffChunk {
			step = backoffChunk
		}
		c.clk.Sleep(step)
		delay -= step
	}
}

// Send writes the entirety of data, calling Connect first. A
// zero-length send is a no-op. Partial writes are fully drained before
// returning. Any non-retryable error closes the descriptor and returns
// a *SocketError.
func (c *Client) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if c.stopped.Load() {
		return ErrStopped
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.Connect(); err != nil {
		return err
	}

	remaining := data
	for len(remaining) > 0 {
		if c.stopped.Load() {
			return ErrStopped
		}

		conn, raw := c.snapshotConn()
		if conn == nil {
			return &SocketError{Kind: KindWrite, Err: fmt.Errorf("not connected")}
		}

		revents, err := c.pollFd(raw, unix.POLLOUT)
		if err != nil {
			c.closeConn()
			return err
		}
		if revents&unix.POLLHUP != 0 {
			c.closeConn()
			return &SocketError{Kind: KindHangup, Err: fmt.Errorf("peer hung up")}
		}

		n, err := conn.Write(remaining)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				continue
			}
			c.closeConn()
			return &SocketError{Kind: KindWrite, Err: err}
		}
		remaining = remaining[n:]
	}
	return nil
}

// Read waits up to timeout for a connection to become available, then
// waits for readability and reads once into buf. Zero bytes with a nil
// error means either the peer half-closed the connection (the
// descriptor is then closed) or the read reported EAGAIN. ErrStopped is
// returned once Stop has been observed.
func (c *Client) Read(buf []byte, timeout time.Duration) (int, error) {
	if c.stopped.Load() {
		return 0, ErrStopped
	}

	ready, hasConn := c.waitState()
	if !hasConn {
		select {
		case <-ready:
		case <-c.stopCh:
		case <-c.clk.After(timeout):
		}
	}
	if c.stopped.Load() {
		return 0, ErrStopped
	}

	conn, raw := c.snapshotConn()
	if conn == nil {
		return 0, &SocketError{Kind: KindRead, Err: fmt.Errorf("not connected")}
	}

	revents, err := c.pollFd(raw, unix.POLLIN)
	if err != nil {
		c.closeConn()
		return 0, err
	}
	if revents&unix.POLLHUP != 0 {
		c.closeConn()
		return 0, &SocketError{Kind: KindHangup, Err: fmt.Errorf("peer hung up")}
	}

	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return 0, nil
		}
		c.closeConn()
		if errors.Is(err, io.EOF) {
			// Peer half-closed the connection: reported as zero bytes,
			// not an error, matching the poll contract's read() semantics.
			return 0, nil
		}
		return 0, &SocketError{Kind: KindRead, Err: err}
	}
	return n, nil
}

func (c *Client) waitState() (ready chan struct{}, hasConn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready, c.conn != nil
}

func (c *Client) snapshotConn() (net.Conn, syscall.RawConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.raw
}

// pollFd polls fd for events in bounded slices, rechecking the stopped
// flag between them so a concurrent Stop is observed within one slice.
func (c *Client) pollFd(raw syscall.RawConn, events int16) (int16, error) {
	for {
		if c.stopped.Load() {
			return 0, ErrStopped
		}

		var revents int16
		var pollErr error
		ctrlErr := raw.Control(func(fd uintptr) {
			descriptors := []unix.PollFd{{Fd: int32(fd), Events: events}}
			for {
				n, err := unix.Poll(descriptors, int(backoffChunk/time.Millisecond))
				if err != nil {
					if err == unix.EINTR {
						continue
					}
					pollErr = &SocketError{Kind: KindPoll, Err: err}
					return
				}
				if n == 0 {
					return
				}
				revents = descriptors[0].Revents
				return
			}
		})
		if ctrlErr != nil {
			return 0, &SocketError{Kind: KindPoll, Err: ctrlErr}
		}
		if pollErr != nil {
			return 0, pollErr
		}
		if revents == 0 {
			continue
		}
		if revents&unix.POLLHUP != 0 {
			return revents, nil
		}
		if revents&events == 0 {
			return 0, &SocketError{Kind: KindPoll, Err: fmt.Errorf("poll returned unrequested revents %d", revents)}
		}
		return revents, nil
	}
}

// closeConn shuts down and closes the current descriptor, if any, and
// arms a fresh ready channel for the next connection generation.
// Idempotent.
func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if c.raw != nil {
		_ = c.raw.Control(func(fd uintptr) {
			_ = unix.Shutdown(int(fd), unix.SHUT_RDWR)
		})
	}
	_ = c.conn.Close()
	c.conn = nil
	c.raw = nil
	c.ready = make(chan struct{})
}

// Stop sets the cancellation flag and closes the descriptor. Idempotent
// and safe to call from any goroutine at any time. After Stop, no
// further descriptor is ever opened.
func (c *Client) Stop() {
	c.stopped.Store(true)
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.closeConn()
}

// Stopped reports whether Stop has been called.
func (c *Client) Stopped() bool {
	return c.stopped.Load()
}
