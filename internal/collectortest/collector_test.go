// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package collectortest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shiplog-dev/shiplog/lib/sockaddr"
	"github.com/shiplog-dev/shiplog/lib/socketclient"
	"github.com/shiplog-dev/shiplog/lib/wire"
)

func TestCollectorDecodesRecordAndAutoAcks(t *testing.T) {
	collector, err := Listen()
	if err != nil {
		t.Fatalf("Listen error = %v", err)
	}
	defer collector.Close()

	addr := sockaddr.Addr{Network: "tcp", Address: collector.Addr()}
	client, err := socketclient.New(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("socketclient.New error = %v", err)
	}
	defer client.Stop()

	item := wire.NewDjsonLogItem("testsource")
	item.AddData("message", "hello")
	data, err := item.Bytes()
	if err != nil {
		t.Fatalf("Bytes error = %v", err)
	}
	if err := client.Send(data); err != nil {
		t.Fatalf("Send error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	records := collector.WaitForRecords(ctx, 1)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Source != "testsource" {
		t.Fatalf("Source = %q, want testsource", records[0].Source)
	}
	if records[0].Tag != item.Tag() {
		t.Fatalf("Tag = %q, want %q", records[0].Tag, item.Tag())
	}

	buf := make([]byte, 64)
	n, err := client.Read(buf, 2*time.Second)
	if err != nil {
		t.Fatalf("Read error = %v", err)
	}
	if got := string(buf[:n]); got != item.Tag()+":0\n" {
		t.Fatalf("ack frame = %q, want %q", got, item.Tag()+":0\n")
	}
}

func TestCollectorListenUnixDecodesRecordAndAutoAcks(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "buflog-e2e")
	collector, err := ListenUnix(socketPath)
	if err != nil {
		t.Fatalf("ListenUnix error = %v", err)
	}
	defer collector.Close()

	addr := sockaddr.Addr{Network: "unix", Address: socketPath}
	client, err := socketclient.New(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("socketclient.New error = %v", err)
	}
	defer client.Stop()

	item := wire.NewDjsonLogItem("testsource")
	if err := item.AddData("message", "hello"); err != nil {
		t.Fatalf("AddData error = %v", err)
	}
	data, err := item.Bytes()
	if err != nil {
		t.Fatalf("Bytes error = %v", err)
	}
	if err := client.Send(data); err != nil {
		t.Fatalf("Send error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	records := collector.WaitForRecords(ctx, 1)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Tag != item.Tag() {
		t.Fatalf("Tag = %q, want %q", records[0].Tag, item.Tag())
	}

	buf := make([]byte, 64)
	n, err := client.Read(buf, 2*time.Second)
	if err != nil {
		t.Fatalf("Read error = %v", err)
	}
	if got := string(buf[:n]); got != item.Tag()+":0\n" {
		t.Fatalf("ack frame = %q, want %q", got, item.Tag()+":0\n")
	}
}

func TestCollectorWithheldAckLeavesNoAck(t *testing.T) {
	collector, err := Listen()
	if err != nil {
		t.Fatalf("Listen error = %v", err)
	}
	defer collector.Close()
	collector.SetAutoAck(false)

	addr := sockaddr.Addr{Network: "tcp", Address: collector.Addr()}
	client, err := socketclient.New(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("socketclient.New error = %v", err)
	}
	defer client.Stop()

	item := wire.NewDjsonLogItem("testsource")
	item.AddData("message", "hello")
	data, _ := item.Bytes()
	if err := client.Send(data); err != nil {
		t.Fatalf("Send error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	collector.WaitForRecords(ctx, 1)

	type readResult struct {
		n   int
		err error
	}
	results := make(chan readResult, 1)
	buf := make([]byte, 64)
	go func() {
		n, err := client.Read(buf, 2*time.Second)
		results <- readResult{n, err}
	}()

	select {
	case r := <-results:
		t.Fatalf("Read returned before an ack was sent: n=%d err=%v", r.n, r.err)
	case <-time.After(50 * time.Millisecond):
	}

	collector.Ack(item.Tag(), "0")
	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("Read error = %v", r.err)
		}
		if got := string(buf[:r.n]); got != item.Tag()+":0\n" {
			t.Fatalf("ack frame = %q, want %q", got, item.Tag()+":0\n")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Ack")
	}
}
