// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package shipper composes the queue, cache, sender, resender, and
// reader packages into the two client-facing logger shapes: a
// buffered, asynchronous BufferedLogger and a synchronous SocketLogger.
package shipper

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shiplog-dev/shiplog/lib/ackcache"
	"github.com/shiplog-dev/shiplog/lib/pipeline"
	"github.com/shiplog-dev/shiplog/lib/queue"
	"github.com/shiplog-dev/shiplog/lib/sockaddr"
	"github.com/shiplog-dev/shiplog/lib/socketclient"
	"github.com/shiplog-dev/shiplog/lib/wire"
	"github.com/shiplog-dev/shiplog/metrics"
)

// Metrics groups the counters shipper's workers increment as they
// send, resend, and ack records. Any field left nil defaults to a
// no-op, so callers may supply only the counters they care about.
type Metrics struct {
	Send   metrics.Counter1D // labeled "success" or "failure"
	Resend metrics.Counter0D
	Ack    metrics.Counter1D // labeled by ack status name, "success" for status 0
}

func (m *Metrics) send() metrics.Counter1D {
	if m == nil || m.Send == nil {
		return metrics.NoOp1D()
	}
	return m.Send
}

func (m *Metrics) resend() metrics.Counter0D {
	if m == nil || m.Resend == nil {
		return metrics.NoOp0D()
	}
	return m.Resend
}

func (m *Metrics) ack() metrics.Counter1D {
	if m == nil || m.Ack == nil {
		return metrics.NoOp1D()
	}
	return m.Ack
}

// Config selects the durations and limits shared by both logger
// shapes. AckTimeout of zero disables the pending-ack cache and the
// resender entirely: records are sent fire-and-forget.
type Config struct {
	Addr             sockaddr.Addr
	AckTimeout       time.Duration
	ResendInterval   time.Duration
	ConnRetryTimeout time.Duration
	BufferLimit      int // BufferedLogger only; 0 means unbounded.
	Logger           *slog.Logger
	Metrics          *Metrics // nil: every counter is a no-op.
}

func (c Config) caches() bool { return c.AckTimeout > 0 }

// BufferedLogger accepts records onto an internal queue and returns
// immediately; a sender goroutine drains the queue to the socket
// server, an optional resender goroutine retries unacknowledged
// records, and a reader goroutine applies acks as they arrive.
type BufferedLogger struct {
	client   *socketclient.Client
	cache    *ackcache.Cache[string, wire.Record]
	incoming *queue.Queue[wire.Record]

	sender   *pipeline.Sender
	resender *pipeline.Resender
	reader   *pipeline.Reader

	logger *slog.Logger

	startOnce sync.Once
	senderWg  sync.WaitGroup // sender only; WaitUntilAllSend waits on this.
	wg        sync.WaitGroup // sender, reader, and resender; Stop waits on this.

	stopOnce sync.Once
}

// NewBufferedLogger constructs a BufferedLogger. Worker goroutines do
// not start until the first call to AddData.
func NewBufferedLogger(cfg Config) (*BufferedLogger, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := socketclient.New(cfg.Addr, cfg.ConnRetryTimeout, socketclient.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var cache *ackcache.Cache[string, wire.Record]
	if cfg.caches() {
		cache = ackcache.New[string, wire.Record]()
	}

	incoming := queue.New[wire.Record](cfg.BufferLimit)
	sender := pipeline.NewSender(incoming, cache, client, pipeline.WithSenderLogger(logger), pipeline.WithSenderMetrics(cfg.Metrics.send()))
	reader := pipeline.NewReader(client, cache, pipeline.WithReaderLogger(logger), pipeline.WithReaderMetrics(cfg.Metrics.ack()))

	var resender *pipeline.Resender
	if cfg.caches() {
		resender, err = pipeline.NewResender(cache, client, cfg.AckTimeout, cfg.ResendInterval, pipeline.WithResenderLogger(logger), pipeline.WithResenderMetrics(cfg.Metrics.resend()))
		if err != nil {
			return nil, err
		}
	}

	return &BufferedLogger{
		client:   client,
		cache:    cache,
		incoming: incoming,
		sender:   sender,
		resender: resender,
		reader:   reader,
		logger:   logger,
	}, nil
}

// startWorkers launches the sender, reader, and (if configured)
// resender goroutines exactly once.
func (b *BufferedLogger) startWorkers() {
	b.startOnce.Do(func() {
		b.senderWg.Add(1)
		b.wg.Add(2)
		go func() { defer b.wg.Done(); defer b.senderWg.Done(); b.sender.Run() }()
		go func() { defer b.wg.Done(); b.reader.Run() }()
		if b.resender != nil {
			b.wg.Add(1)
			go func() { defer b.wg.Done(); b.resender.Run() }()
		}
	})
}

// AddData enqueues item for delivery. Returns immediately; delivery
// happens on the sender goroutine.
func (b *BufferedLogger) AddData(item wire.Record) error {
	if item == nil {
		return errors.New("shipper: AddData called with a nil record")
	}
	b.startWorkers()
	b.incoming.Push(item)
	return nil
}

// WaitUntilAllSend marks the queue stop-once-drained (AddData still
// enqueues afterwards, but the sender exits once the queue is empty)
// and waits up to timeout for the sender goroutine — only the
// sender, not the reader or resender, which keep running until Stop —
// to observe the drained queue and return. Reports whether the sender
// exited within the deadline.
func (b *BufferedLogger) WaitUntilAllSend(timeout time.Duration) bool {
	b.incoming.StopOnceDrained()

	done := make(chan struct{})
	go func() {
		b.senderWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop tears down every worker goroutine in the order the original
// endpoint logger used: socket client first (so blocked reads and
// writes unblock), then the queue, then each worker, then a final wait
// for every goroutine to exit. Safe to call multiple times.
func (b *BufferedLogger) Stop() {
	b.stopOnce.Do(func() {
		b.client.Stop()
		b.incoming.StopOnceDrained()

		b.sender.Stop()
		if b.resender != nil {
			b.resender.Stop()
		}
		b.reader.Stop()

		b.startWorkers() // in case AddData was never called; ensures wg is well-formed.
		b.wg.Wait()
	})
}

// GetNumTagsRead returns the total number of ack tags the reader
// goroutine has processed.
func (b *BufferedLogger) GetNumTagsRead() int64 { return b.reader.TagsRead() }

// GetTotalSend returns the total number of Send calls issued by the
// sender plus the number of successful resends by the resender.
func (b *BufferedLogger) GetTotalSend() int64 {
	total := b.sender.NumSend()
	if b.resender != nil {
		total += b.resender.TotalSend()
	}
	return total
}

// GetTotalSendSuccess returns the number of Send calls the sender
// goroutine completed without error.
func (b *BufferedLogger) GetTotalSendSuccess() int64 { return b.sender.NumSuccess() }

// GetTotalResend returns the number of successful resends by the
// resender goroutine. Zero if AckTimeout was configured as zero.
func (b *BufferedLogger) GetTotalResend() int64 {
	if b.resender == nil {
		return 0
	}
	return b.resender.TotalSend()
}

// GetNumItemsInCache returns the number of records awaiting an ack or
// a resend attempt. Always zero if AckTimeout was configured as zero.
func (b *BufferedLogger) GetNumItemsInCache() int {
	if b.cache == nil {
		return 0
	}
	return b.cache.Size()
}

// SocketLogger sends records synchronously on the caller's goroutine.
// A reader goroutine (and, if caching is enabled, a resender
// goroutine) still run in the background to process acks and retry
// unacknowledged records.
type SocketLogger struct {
	client *socketclient.Client
	cache  *ackcache.Cache[string, wire.Record]

	reader   *pipeline.Reader
	resender *pipeline.Resender

	logger  *slog.Logger
	counter metrics.Counter1D // labeled "success" or "failure"

	startOnce sync.Once
	wg        sync.WaitGroup
	stopOnce  sync.Once

	totalSend int64
	sendMu    sync.Mutex
}

// NewSocketLogger constructs a SocketLogger. Worker goroutines do not
// start until the first call to SendDjson or Send.
func NewSocketLogger(cfg Config) (*SocketLogger, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := socketclient.New(cfg.Addr, cfg.ConnRetryTimeout, socketclient.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var cache *ackcache.Cache[string, wire.Record]
	if cfg.caches() {
		cache = ackcache.New[string, wire.Record]()
	}

	reader := pipeline.NewReader(client, cache, pipeline.WithReaderLogger(logger), pipeline.WithReaderMetrics(cfg.Metrics.ack()))

	var resender *pipeline.Resender
	if cfg.caches() {
		resender, err = pipeline.NewResender(cache, client, cfg.AckTimeout, cfg.ResendInterval, pipeline.WithResenderLogger(logger), pipeline.WithResenderMetrics(cfg.Metrics.resend()))
		if err != nil {
			return nil, err
		}
	}

	return &SocketLogger{
		client:   client,
		cache:    cache,
		reader:   reader,
		resender: resender,
		logger:   logger,
		counter:  cfg.Metrics.send(),
	}, nil
}

func (s *SocketLogger) startWorkers() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); s.reader.Run() }()
		if s.resender != nil {
			s.wg.Add(1)
			go func() { defer s.wg.Done(); s.resender.Run() }()
		}
	})
}

// SendDjson builds a DjsonLogItem from sourceName and the given fields
// and sends it synchronously. Returns false (with the reason logged)
// on any error, matching the original library's swallow-and-log
// contract rather than propagating errors to the caller.
func (s *SocketLogger) SendDjson(sourceName string, fields map[string]any) bool {
	if sourceName == "" {
		s.logger.Error("SendDjson: unexpected empty source name")
		return false
	}
	if len(fields) == 0 {
		s.logger.Error("SendDjson: unexpected empty field set")
		return false
	}

	item := wire.NewDjsonLogItem(sourceName)
	for name, value := range fields {
		if err := item.AddData(name, value); err != nil {
			s.logger.Error("SendDjson: AddData failed", "field", name, "error", err)
			return false
		}
	}

	if err := s.Send(item); err != nil {
		s.logger.Error("SendDjson: send failed", "error", err)
		return false
	}
	return true
}

// Send delivers item to the socket server on the calling goroutine.
// When caching is enabled, item is inserted into the pending-ack cache
// before the send attempt so the reader goroutine can find it as soon
// as an ack arrives; the entry is removed again if the send itself
// fails, since the caller is expected to retry.
func (s *SocketLogger) Send(item wire.Record) error {
	if item == nil {
		return errors.New("shipper: Send called with a nil record")
	}
	s.startWorkers()

	if s.cache == nil {
		data, err := item.Bytes()
		if err != nil {
			s.counter.Add(1, "failure")
			return err
		}
		s.addSend()
		if err := s.client.Send(data); err != nil {
			s.counter.Add(1, "failure")
			return err
		}
		s.counter.Add(1, "success")
		return nil
	}

	item.Touch()
	tag := item.Tag()
	s.cache.Add(tag, item)

	data, err := item.Bytes()
	if err != nil {
		s.cache.Erase(tag)
		s.counter.Add(1, "failure")
		return err
	}
	s.addSend()
	if err := s.client.Send(data); err != nil {
		s.cache.Erase(tag)
		s.counter.Add(1, "failure")
		return err
	}
	s.counter.Add(1, "success")
	return nil
}

func (s *SocketLogger) addSend() {
	s.sendMu.Lock()
	s.totalSend++
	s.sendMu.Unlock()
}

// Stop tears down the reader and resender goroutines. Safe to call
// multiple times.
func (s *SocketLogger) Stop() {
	s.stopOnce.Do(func() {
		s.client.Stop()
		if s.resender != nil {
			s.resender.Stop()
		}
		s.reader.Stop()
		s.startWorkers()
		s.wg.Wait()
	})
}

// GetNumTagsRead returns the total number of ack tags the reader
// goroutine has processed.
func (s *SocketLogger) GetNumTagsRead() int64 { return s.reader.TagsRead() }

// GetTotalSend returns the total number of Send calls issued on the
// caller's goroutine plus every successful resend.
func (s *SocketLogger) GetTotalSend() int64 {
	s.sendMu.Lock()
	total := s.totalSend
	s.sendMu.Unlock()
	return total + s.GetTotalResend()
}

// GetTotalResend returns the number of successful resends by the
// resender goroutine. Zero if AckTimeout was configured as zero.
func (s *SocketLogger) GetTotalResend() int64 {
	if s.resender == nil {
		return 0
	}
	return s.resender.TotalSend()
}

// GetNumItemsInCache returns the number of records awaiting an ack or
// a resend attempt. Always zero if AckTimeout was configured as zero.
func (s *SocketLogger) GetNumItemsInCache() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Size()
}
