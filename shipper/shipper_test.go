// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package shipper

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	goccyjson "github.com/goccy/go-json"

	"github.com/shiplog-dev/shiplog/internal/collectortest"
	"github.com/shiplog-dev/shiplog/lib/sockaddr"
	"github.com/shiplog-dev/shiplog/lib/wire"
)

// testSocketPath returns a fresh Unix domain socket path scoped to
// t.TempDir(), mirroring lib/service/socket_test.go's testSocketPath
// helper in the teacher repo.
func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "buflog-e2e")
}

func newTestConfig(t *testing.T, collector *collectortest.Collector) Config {
	t.Helper()
	return Config{
		Addr:             sockaddr.Addr{Network: "tcp", Address: collector.Addr()},
		AckTimeout:       time.Second,
		ResendInterval:   200 * time.Millisecond,
		ConnRetryTimeout: 500 * time.Millisecond,
	}
}

// TestBufferedLoggerHappyPath is spec.md §8 Scenario 1: a buffered
// logger sends 1000 DJSON records plus a trailing "ENDOFTEST" marker
// over the Unix domain socket transport spec.md §1 names as primary,
// against a collector that acks immediately. It expects the reader to
// process every ack, the cache to drain back to empty, and the
// collector to observe every distinct payload including the marker.
func TestBufferedLoggerHappyPath(t *testing.T) {
	socketPath := testSocketPath(t)
	collector, err := collectortest.ListenUnix(socketPath)
	if err != nil {
		t.Fatalf("ListenUnix error = %v", err)
	}
	defer collector.Close()

	logger, err := NewBufferedLogger(Config{
		Addr:             sockaddr.Addr{Network: "unix", Address: socketPath},
		AckTimeout:       1_000_000 * time.Millisecond,
		ResendInterval:   100 * time.Millisecond,
		ConnRetryTimeout: 100 * time.Millisecond,
		BufferLimit:      2000,
	})
	if err != nil {
		t.Fatalf("NewBufferedLogger error = %v", err)
	}
	defer logger.Stop()

	const count = 1000
	wantPayloads := make(map[string]bool, count+1)
	for i := 0; i < count; i++ {
		payload := fmt.Sprintf("TestMsg-%d", i)
		wantPayloads[payload] = true
		item := wire.NewDjsonLogItem("testsource")
		if err := item.AddData("message", payload); err != nil {
			t.Fatalf("item.AddData error = %v", err)
		}
		if err := logger.AddData(item); err != nil {
			t.Fatalf("AddData error = %v", err)
		}
	}
	endItem := wire.NewDjsonLogItem("testsource")
	if err := endItem.AddData("message", "ENDOFTEST"); err != nil {
		t.Fatalf("item.AddData error = %v", err)
	}
	wantPayloads["ENDOFTEST"] = true
	if err := logger.AddData(endItem); err != nil {
		t.Fatalf("AddData error = %v", err)
	}
	const want = count + 1

	if !logger.WaitUntilAllSend(10 * time.Second) {
		t.Fatal("WaitUntilAllSend timed out")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	records := collector.WaitForRecords(ctx, want)

	deadline := time.Now().Add(5 * time.Second)
	for logger.GetNumItemsInCache() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := logger.GetNumItemsInCache(); got != 0 {
		t.Fatalf("GetNumItemsInCache() = %d, want 0 after every ack arrives", got)
	}
	if got := logger.GetTotalSendSuccess(); int64(want) != got {
		t.Fatalf("GetTotalSendSuccess() = %d, want %d", got, want)
	}
	if got := logger.GetNumTagsRead(); got < int64(want) {
		t.Fatalf("GetNumTagsRead() = %d, want >= %d", got, want)
	}
	if got := len(records); got != want {
		t.Fatalf("collector received %d records, want %d", got, want)
	}

	gotPayloads := make(map[string]bool, len(records))
	for _, r := range records {
		var data []string
		if err := goccyjson.Unmarshal([]byte(r.Data), &data); err != nil {
			t.Fatalf("decode record data %q: %v", r.Data, err)
		}
		if len(data) != 1 {
			t.Fatalf("record data %q: want 1 field, got %d", r.Data, len(data))
		}
		gotPayloads[data[0]] = true
	}
	if len(gotPayloads) != len(wantPayloads) {
		t.Fatalf("collector saw %d distinct payloads, want %d", len(gotPayloads), len(wantPayloads))
	}
	for payload := range wantPayloads {
		if !gotPayloads[payload] {
			t.Fatalf("collector never saw payload %q", payload)
		}
	}
	if !gotPayloads["ENDOFTEST"] {
		t.Fatal("collector never saw the ENDOFTEST marker")
	}
}

// TestBufferedLoggerCollectorDown is spec.md §8 Scenario 2: a buffered
// logger targeting a socket path nothing is listening on, with a
// one-millisecond connect-retry budget, enqueues 100 records. Every
// send attempt fails to connect, so none are ever acknowledged or
// successfully sent, but every one is attempted exactly once and
// retained in the pending-ack cache rather than lost.
func TestBufferedLoggerCollectorDown(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "nosuchfile")
	addr := sockaddr.Addr{Network: "unix", Address: socketPath}

	logger, err := NewBufferedLogger(Config{
		Addr:             addr,
		AckTimeout:       100_000 * time.Millisecond,
		ResendInterval:   10 * time.Second, // long enough not to fire before assertions run
		ConnRetryTimeout: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewBufferedLogger error = %v", err)
	}

	const count = 100
	for i := 0; i < count; i++ {
		item := wire.NewDjsonLogItem("testsource")
		if err := item.AddData("message", fmt.Sprintf("hello-%d", i)); err != nil {
			t.Fatalf("item.AddData error = %v", err)
		}
		if err := logger.AddData(item); err != nil {
			t.Fatalf("AddData error = %v", err)
		}
	}

	// The sender should not crash or hang; it retries connecting and
	// gives up per its retry budget, then moves on to drain the queue.
	if !logger.WaitUntilAllSend(10 * time.Second) {
		t.Fatal("WaitUntilAllSend timed out while collector was unreachable")
	}

	if got := logger.GetNumTagsRead(); got != 0 {
		t.Fatalf("GetNumTagsRead() = %d, want 0", got)
	}
	if got := logger.GetTotalSendSuccess(); got != 0 {
		t.Fatalf("GetTotalSendSuccess() = %d, want 0", got)
	}
	if got := logger.GetTotalSend(); got != count {
		t.Fatalf("GetTotalSend() = %d, want %d", got, count)
	}
	if got := logger.GetNumItemsInCache(); got != count {
		t.Fatalf("GetNumItemsInCache() = %d, want %d", got, count)
	}

	done := make(chan struct{})
	go func() {
		logger.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop() did not return promptly when the collector was never reachable")
	}
}

// TestBufferedLoggerMidStreamRestart sends a record to a collector
// that withholds acks, so the resender resends and then ages the
// unacknowledged entry out of the cache, then has the collector
// resume acking and expects the reader to process the late ack. The
// collector is not stopped or restarted; only its acks are withheld.
func TestBufferedLoggerMidStreamRestart(t *testing.T) {
	collector, err := collectortest.Listen()
	if err != nil {
		t.Fatalf("Listen error = %v", err)
	}
	collector.SetAutoAck(false)

	logger, err := NewBufferedLogger(Config{
		Addr:             sockaddr.Addr{Network: "tcp", Address: collector.Addr()},
		AckTimeout:       300 * time.Millisecond,
		ResendInterval:   100 * time.Millisecond,
		ConnRetryTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewBufferedLogger error = %v", err)
	}
	defer logger.Stop()

	item := wire.NewDjsonLogItem("testsource")
	item.AddData("message", "hello")
	if err := logger.AddData(item); err != nil {
		t.Fatalf("AddData error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	collector.WaitForRecords(ctx, 1)
	cancel()

	// Simulate a collector that vanishes without acking: it is still
	// listening, just withholding acks, so the resender's cache scan
	// eventually ages the entry out or resends it until an ack lands.
	time.Sleep(500 * time.Millisecond)

	collector.SetAutoAck(true)
	collector.Ack(item.Tag(), "0")

	deadline := time.Now().Add(3 * time.Second)
	for logger.GetNumTagsRead() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	collector.Close()

	if got := logger.GetNumTagsRead(); got == 0 {
		t.Fatal("GetNumTagsRead() = 0, expected the reader to process at least one ack")
	}
}
