// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package collectortest provides an in-memory mock collector for
// exercising the shipper and pipeline packages end to end without a
// real mdsd-compatible server. It accepts the DJSON wire protocol on
// a net.Listener, stores every record it decodes, and can be told to
// ack or refuse to ack on demand — the same in-memory-store-plus-query
// shape used elsewhere in this codebase's own test collectors, pared
// down to the one wire protocol this repository speaks.
package collectortest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	goccyjson "github.com/goccy/go-json"
)

// Record is one decoded DJSON frame: [sourceJSON, tag, schemaID, schemaEncoding, dataArray].
type Record struct {
	Source   string
	Tag      string
	SchemaID int64
	Schema   string
	Data     string
}

// Collector accepts connections on a net.Listener and decodes each
// length-prefixed DJSON frame it receives. By default it acks every
// tag with status "0" (ACK_SUCCESS) as soon as the frame is decoded;
// call SetAutoAck(false) to withhold acks and drive them manually with
// Ack, simulating a collector that has fallen behind or is refusing a
// particular record.
type Collector struct {
	listener net.Listener

	mu      sync.Mutex
	records []Record
	conns   []net.Conn
	autoAck bool

	closeOnce sync.Once
}

// Listen starts a mock collector on a TCP loopback address (used in
// tests in place of the production Unix domain socket path, since
// tests need a fresh, collision-free address per run).
func Listen() (*Collector, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("collectortest: listen: %w", err)
	}
	c := &Collector{listener: listener, autoAck: true}
	go c.acceptLoop()
	return c, nil
}

// ListenUnix starts a mock collector on the Unix domain socket at
// path, the transport spec.md names as primary. Callers typically
// derive path from t.TempDir() so each test run gets a fresh,
// collision-free socket file.
func ListenUnix(path string) (*Collector, error) {
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("collectortest: listen unix %q: %w", path, err)
	}
	c := &Collector{listener: listener, autoAck: true}
	go c.acceptLoop()
	return c, nil
}

// Addr returns the address string the collector is listening on:
// "host:port" for Listen, the socket path for ListenUnix.
func (c *Collector) Addr() string { return c.listener.Addr().String() }

// SetAutoAck controls whether the collector acks tags automatically as
// it decodes them. Disabling it lets a test hold off acking to
// exercise resend and ack-timeout eviction behavior.
func (c *Collector) SetAutoAck(enabled bool) {
	c.mu.Lock()
	c.autoAck = enabled
	c.mu.Unlock()
}

// Ack writes an ack frame with the given status code ("0" through "5")
// for tag on every currently open connection.
func (c *Collector) Ack(tag, status string) {
	c.mu.Lock()
	conns := append([]net.Conn(nil), c.conns...)
	c.mu.Unlock()

	frame := []byte(tag + ":" + status + "\n")
	for _, conn := range conns {
		conn.Write(frame)
	}
}

// Records returns a snapshot of every record decoded so far.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// Close stops accepting connections and closes every connection
// currently held open. Safe to call more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.listener.Close()
		c.mu.Lock()
		conns := append([]net.Conn(nil), c.conns...)
		c.mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})
}

func (c *Collector) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.conns = append(c.conns, conn)
		c.mu.Unlock()
		go c.handleConn(conn)
	}
}

func (c *Collector) handleConn(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		lenLine, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		lenLine = strings.TrimSuffix(lenLine, "\n")
		bodyLen, err := strconv.Atoi(lenLine)
		if err != nil || bodyLen < 0 {
			return
		}

		body := make([]byte, bodyLen)
		if _, err := readFull(reader, body); err != nil {
			return
		}

		record, err := decodeRecord(body)
		if err != nil {
			continue
		}

		c.mu.Lock()
		c.records = append(c.records, record)
		autoAck := c.autoAck
		c.mu.Unlock()

		if autoAck {
			conn.Write([]byte(record.Tag + ":0\n"))
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// decodeRecord parses a DJSON body of the form
// [source,tag,schemaID,schemaEncoding,data]. The tag and schemaID are
// unquoted numeric literals on the wire; schemaEncoding and data are
// kept as their raw JSON text as received rather than decoded field
// by field, since tests generally only need to see the source, tag,
// and schema id.
func decodeRecord(body []byte) (Record, error) {
	var raw []goccyjson.RawMessage
	if err := goccyjson.Unmarshal(body, &raw); err != nil {
		return Record{}, fmt.Errorf("collectortest: decode frame: %w", err)
	}
	if len(raw) != 5 {
		return Record{}, fmt.Errorf("collectortest: expected 5 elements, got %d", len(raw))
	}

	var source string
	if err := goccyjson.Unmarshal(raw[0], &source); err != nil {
		return Record{}, fmt.Errorf("collectortest: decode source: %w", err)
	}

	tag := strings.TrimSpace(string(raw[1]))

	schemaID, err := strconv.ParseInt(strings.TrimSpace(string(raw[2])), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("collectortest: decode schema id: %w", err)
	}

	return Record{
		Source:   source,
		Tag:      tag,
		SchemaID: schemaID,
		Schema:   string(raw[3]),
		Data:     string(raw[4]),
	}, nil
}

// WaitForRecords blocks until the collector has decoded at least n
// records or ctx is done, returning the current snapshot either way.
func (c *Collector) WaitForRecords(ctx context.Context, n int) []Record {
	for {
		records := c.Records()
		if len(records) >= n {
			return records
		}
		select {
		case <-ctx.Done():
			return records
		case <-time.After(time.Millisecond):
		}
	}
}
