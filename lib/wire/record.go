// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the record model (the Record interface,
// DjsonLogItem, and the NewEtwLogItem constructor) and the DJSON
// on-wire encoding shared by the sender, resender, and reader.
package wire

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiplog-dev/shiplog/lib/clock"
)

// Record is the capability set common to every record shape: a tag
// assigned once at construction, a last-touch instant that can be
// refreshed, an age accessor, and a stable encoded form.
type Record interface {
	Tag() string
	Touch()
	Age() time.Duration
	Bytes() ([]byte, error)
}

var tagCounter atomic.Int64

// nextTag returns the next value of the process-wide monotonic tag
// counter, rendered as a decimal string. Tags are assigned once per
// record and never reused.
func nextTag() string {
	n := tagCounter.Add(1)
	return strconv.FormatInt(n, 10)
}

// base carries the fields common to every record shape: the tag, the
// clock used for last-touch bookkeeping, and the last-touch instant
// itself.
type base struct {
	tag   string
	clock clock.Clock

	mu        sync.Mutex
	lastTouch time.Time
}

func newBase(clk clock.Clock) base {
	if clk == nil {
		clk = clock.Real()
	}
	now := clk.Now()
	return base{
		tag:       nextTag(),
		clock:     clk,
		lastTouch: now,
	}
}

// Tag returns the record's process-wide unique decimal tag.
func (b *base) Tag() string {
	return b.tag
}

// Touch refreshes the last-touch instant to the current time.
func (b *base) Touch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastTouch = b.clock.Now()
}

// Age returns the elapsed time since the last Touch (or since
// construction, if never touched).
func (b *base) Age() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock.Now().Sub(b.lastTouch)
}
