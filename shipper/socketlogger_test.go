// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package shipper

import (
	"context"
	"testing"
	"time"

	"github.com/shiplog-dev/shiplog/internal/collectortest"
)

func TestSocketLoggerSendDjsonSynchronous(t *testing.T) {
	collector, err := collectortest.Listen()
	if err != nil {
		t.Fatalf("Listen error = %v", err)
	}
	defer collector.Close()

	logger, err := NewSocketLogger(newTestConfig(t, collector))
	if err != nil {
		t.Fatalf("NewSocketLogger error = %v", err)
	}
	defer logger.Stop()

	ok := logger.SendDjson("testsource", map[string]any{"message": "hello"})
	if !ok {
		t.Fatal("SendDjson returned false, want true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	records := collector.WaitForRecords(ctx, 1)
	if len(records) != 1 {
		t.Fatalf("collector received %d records, want 1", len(records))
	}

	if got := logger.GetTotalSend(); got != 1 {
		t.Fatalf("GetTotalSend() = %d, want 1", got)
	}
}

func TestSocketLoggerSendDjsonRejectsEmptySource(t *testing.T) {
	collector, err := collectortest.Listen()
	if err != nil {
		t.Fatalf("Listen error = %v", err)
	}
	defer collector.Close()

	logger, err := NewSocketLogger(newTestConfig(t, collector))
	if err != nil {
		t.Fatalf("NewSocketLogger error = %v", err)
	}
	defer logger.Stop()

	if logger.SendDjson("", map[string]any{"message": "hello"}) {
		t.Fatal("SendDjson with empty source should return false")
	}
	if logger.SendDjson("testsource", nil) {
		t.Fatal("SendDjson with no fields should return false")
	}
}
