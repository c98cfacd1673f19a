// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiplog-dev/shiplog/lib/ackcache"
	"github.com/shiplog-dev/shiplog/lib/clock"
	"github.com/shiplog-dev/shiplog/lib/socketclient"
	"github.com/shiplog-dev/shiplog/lib/wire"
	"github.com/shiplog-dev/shiplog/metrics"
)

// Resender periodically scans the pending-ack cache: entries older than
// the ack deadline are evicted as lost, and the remainder are
// retransmitted.
type Resender struct {
	cache          *ackcache.Cache[string, wire.Record]
	client         *socketclient.Client
	clk            clock.Clock
	ackTimeout     time.Duration
	resendInterval time.Duration
	logger         *slog.Logger
	counter        metrics.Counter0D

	stopOnce  sync.Once
	stopCh    chan struct{}
	stopped   atomic.Bool
	totalSend atomic.Int64
}

// ResenderOption configures a Resender at construction.
type ResenderOption func(*Resender)

// WithResenderClock overrides the clock used for the resend ticker.
// Defaults to clock.Real().
func WithResenderClock(c clock.Clock) ResenderOption {
	return func(r *Resender) { r.clk = c }
}

// WithResenderLogger overrides the structured logger.
func WithResenderLogger(l *slog.Logger) ResenderOption {
	return func(r *Resender) { r.logger = l }
}

// WithResenderMetrics supplies a counter incremented once per
// successful resend. Defaults to a no-op.
func WithResenderMetrics(c metrics.Counter0D) ResenderOption {
	return func(r *Resender) { r.counter = c }
}

// NewResender constructs a Resender. Both ackTimeout and resendInterval
// must be positive; NewResender is only ever called when caching (and
// therefore resending) is enabled.
func NewResender(cache *ackcache.Cache[string, wire.Record], client *socketclient.Client, ackTimeout, resendInterval time.Duration, opts ...ResenderOption) (*Resender, error) {
	if ackTimeout <= 0 {
		return nil, fmt.Errorf("pipeline: ackTimeout must be positive")
	}
	if resendInterval <= 0 {
		return nil, fmt.Errorf("pipeline: resendInterval must be positive")
	}
	r := &Resender{
		cache:          cache,
		client:         client,
		clk:            clock.Real(),
		ackTimeout:     ackTimeout,
		resendInterval: resendInterval,
		logger:         slog.Default(),
		counter:        metrics.NoOp0D(),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run waits on the resend interval or cancellation; on each interval it
// runs a pass over the cache if non-empty. It returns the total number
// of passes executed, for tests.
func (r *Resender) Run() int {
	ticker := r.clk.NewTicker(r.resendInterval)
	defer ticker.Stop()

	passes := 0
	for {
		select {
		case <-r.stopCh:
			return passes
		case <-ticker.C:
			if r.stopped.Load() {
				return passes
			}
			if r.cache.Size() > 0 {
				r.resendOnce()
				passes++
			}
		}
	}
}

// resendOnce implements the pass algorithm: snapshot, compute aged-out
// tags, evict them from the live cache, snapshot again, then send the
// survivors. Decoupling scan from send avoids holding the cache lock
// during network I/O; the two snapshots bracket the eviction so a
// concurrent ack that removes an entry between them simply skips the
// resend for that entry.
func (r *Resender) resendOnce() {
	before := ackcache.Snapshot(r.cache)
	var expired []string
	before.ForEachUnsafe(func(tag string, item wire.Record) {
		if item.Age() > r.ackTimeout {
			expired = append(expired, tag)
		}
	})
	r.cache.EraseAll(expired)

	after := ackcache.Snapshot(r.cache)
	var sendErr error
	after.ForEachUnsafe(func(tag string, item wire.Record) {
		if sendErr != nil {
			return
		}
		bytes, err := item.Bytes()
		if err != nil {
			r.logger.Error("resender: encode failed", "tag", tag, "error", err)
			return
		}
		if err := r.client.Send(bytes); err != nil {
			sendErr = err
			r.logger.Warn("resender: send failed, pass aborted", "tag", tag, "error", err)
			return
		}
		r.totalSend.Add(1)
		r.counter.Add(1)
	})
}

// Stop signals the resend loop to exit at its next wake. Idempotent.
func (r *Resender) Stop() {
	r.stopped.Store(true)
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// TotalSend returns the cumulative number of item resends performed,
// distinct from Run's returned pass count.
func (r *Resender) TotalSend() int64 {
	return r.totalSend.Load()
}
