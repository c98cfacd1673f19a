// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/shiplog-dev/shiplog/lib/ackcache"
	"github.com/shiplog-dev/shiplog/lib/queue"
	"github.com/shiplog-dev/shiplog/lib/socketclient"
	"github.com/shiplog-dev/shiplog/lib/wire"
	"github.com/shiplog-dev/shiplog/metrics"
)

// Sender drains the ingestion queue and hands each record's encoded
// bytes to the socket client, optionally tracking it in the pending-ack
// cache first.
type Sender struct {
	queue   *queue.Queue[wire.Record]
	cache   *ackcache.Cache[string, wire.Record] // nil: caching disabled
	client  *socketclient.Client
	logger  *slog.Logger
	counter metrics.Counter1D // labeled "success" or "failure"

	stopped    atomic.Bool
	numSend    atomic.Int64
	numSuccess atomic.Int64
}

// SenderOption configures a Sender at construction.
type SenderOption func(*Sender)

// WithSenderLogger overrides the structured logger. Defaults to
// slog.Default().
func WithSenderLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) { s.logger = l }
}

// WithSenderMetrics supplies a counter incremented once per send
// attempt, labeled "success" or "failure". Defaults to a no-op.
func WithSenderMetrics(c metrics.Counter1D) SenderOption {
	return func(s *Sender) { s.counter = c }
}

// NewSender constructs a Sender. cache may be nil, which disables
// pending-ack tracking entirely: records are sent and forgotten.
func NewSender(q *queue.Queue[wire.Record], cache *ackcache.Cache[string, wire.Record], client *socketclient.Client, opts ...SenderOption) *Sender {
	s := &Sender{
		queue:   q,
		cache:   cache,
		client:  client,
		logger:  slog.Default(),
		counter: metrics.NoOp1D(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run pops records until the queue reports drained or Stop is
// observed, sending each one. It returns once the loop exits.
func (s *Sender) Run() {
	for {
		item, ok := s.queue.WaitAndPop()
		if !ok {
			return
		}
		if err := checkStopped(&s.stopped); errors.Is(err, errStopped) {
			return
		}
		s.send(item)
	}
}

func (s *Sender) send(item wire.Record) {
	if s.cache != nil {
		item.Touch()
		s.cache.Add(item.Tag(), item)
		// Re-fetch before sending: establishes a happens-before edge
		// between cache insertion and the reader's view, so an ack
		// arriving right after the send is guaranteed to find the
		// entry already cached.
		if _, err := s.cache.Get(item.Tag()); err != nil {
			s.logger.Error("sender: just-inserted tag missing from cache", "tag", item.Tag(), "error", err)
		}
	}

	bytes, err := item.Bytes()
	if err != nil {
		s.logger.Error("sender: encode failed", "tag", item.Tag(), "error", err)
		return
	}

	s.numSend.Add(1)
	if err := s.client.Send(bytes); err != nil {
		s.logger.Warn("sender: send failed, leaving cached entry for resender", "tag", item.Tag(), "error", err)
		s.counter.Add(1, "failure")
		return
	}
	s.numSuccess.Add(1)
	s.counter.Add(1, "success")
}

// Stop requests the loop exit at its next interrupt point. It does not
// itself unblock a pending WaitAndPop; the composition layer must also
// stop-once-drain the queue for that.
func (s *Sender) Stop() {
	s.stopped.Store(true)
}

// NumSend returns the total number of send attempts.
func (s *Sender) NumSend() int64 {
	return s.numSend.Load()
}

// NumSuccess returns the total number of successful sends.
func (s *Sender) NumSuccess() int64 {
	return s.numSuccess.Load()
}
