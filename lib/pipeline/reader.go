// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shiplog-dev/shiplog/lib/ackcache"
	"github.com/shiplog-dev/shiplog/lib/socketclient"
	"github.com/shiplog-dev/shiplog/lib/wire"
	"github.com/shiplog-dev/shiplog/metrics"
)

// readBufferSize matches the original implementation's read chunk size.
const readBufferSize = 512

// Reader consumes newline-delimited ack frames from the socket client
// and removes the matching entries from the pending-ack cache.
type Reader struct {
	client      *socketclient.Client
	cache       *ackcache.Cache[string, wire.Record] // nil: caching disabled, acks are discarded
	logger      *slog.Logger
	readTimeout time.Duration
	ackCounter  metrics.Counter1D // labeled by ack status name, "success" for status 0

	stopped  atomic.Bool
	tagsRead atomic.Int64
}

// ReaderOption configures a Reader at construction.
type ReaderOption func(*Reader)

// WithReaderLogger overrides the structured logger.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// WithReadTimeout overrides how long a single Read call waits for a
// connection to become available before returning a socket error and
// retrying. Defaults to one second.
func WithReadTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) { r.readTimeout = d }
}

// WithReaderMetrics supplies a counter incremented once per ack frame
// processed, labeled by status name ("success" for status 0). Defaults
// to a no-op.
func WithReaderMetrics(c metrics.Counter1D) ReaderOption {
	return func(r *Reader) { r.ackCounter = c }
}

// NewReader constructs a Reader. cache may be nil, in which case acks
// are still consumed off the wire (to drain the stream and keep tag
// counters accurate) but no cache entry is ever removed.
func NewReader(client *socketclient.Client, cache *ackcache.Cache[string, wire.Record], opts ...ReaderOption) *Reader {
	r := &Reader{
		client:      client,
		cache:       cache,
		logger:      slog.Default(),
		readTimeout: time.Second,
		ackCounter:  metrics.NoOp1D(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads ack frames until the socket client reports it has been
// stopped. Any other socket error is logged and the loop continues,
// relying on the socket client to reconnect on the next send.
func (r *Reader) Run() {
	buf := make([]byte, readBufferSize)
	var partial strings.Builder

	for {
		if r.stopped.Load() {
			return
		}

		n, err := r.client.Read(buf, r.readTimeout)
		if errors.Is(err, socketclient.ErrStopped) {
			return
		}
		if err != nil {
			r.logger.Warn("reader: read failed, retrying", "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		partial.Write(buf[:n])
		r.processBuffered(&partial)
	}
}

// processBuffered splits the accumulated partial buffer on the last
// newline, processes every complete line, and retains the trailing
// partial line for the next read.
func (r *Reader) processBuffered(partial *strings.Builder) {
	data := partial.String()
	lastNL := strings.LastIndexByte(data, '\n')
	if lastNL < 0 {
		return
	}

	complete, remainder := data[:lastNL], data[lastNL+1:]
	partial.Reset()
	partial.WriteString(remainder)

	for _, line := range strings.Split(complete, "\n") {
		if line == "" {
			continue
		}
		r.processLine(line)
	}
}

// processLine parses one ack frame, either "<tag>" or
// "<tag>:<statusCode>", and removes the matching cache entry.
func (r *Reader) processLine(line string) {
	tag, status, hasStatus := strings.Cut(line, ":")
	r.tagsRead.Add(1)
	if tag == "" {
		r.logger.Warn("reader: empty ack tag")
		r.ackCounter.Add(1, "empty_tag")
		return
	}

	if hasStatus && status != "0" {
		r.logger.Error("reader: ack reported failure", "tag", tag, "status", ackStatusName(status))
		r.ackCounter.Add(1, ackStatusName(status))
	} else {
		r.ackCounter.Add(1, "success")
	}

	if r.cache == nil {
		return
	}
	if !r.cache.Erase(tag) {
		r.logger.Warn("reader: ack for unknown or already-resolved tag", "tag", tag)
	}
}

// Stop requests the loop exit at its next interrupt point. The socket
// client is normally stopped first by the composition layer, which
// unblocks any in-flight Read with ErrStopped directly.
func (r *Reader) Stop() {
	r.stopped.Store(true)
}

// TagsRead returns the total number of ack frames processed.
func (r *Reader) TagsRead() int64 {
	return r.tagsRead.Load()
}
