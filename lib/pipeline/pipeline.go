// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the three worker loops that move records
// between the ingestion queue, the pending-ack cache, and the socket
// client: Sender, Resender, and Reader.
package pipeline

import (
	"errors"
	"sync/atomic"
)

// errStopped is the internal sentinel checked at Sender's interrupt
// point; Reader and Resender test their stop flags directly. It never
// crosses a public API boundary; callers
// observe cooperative shutdown through Stop and the worker's own
// termination, not through this error.
var errStopped = errors.New("pipeline: stopped")

// checkStopped is the interrupt-point helper: it returns errStopped if
// flag is set, nil otherwise.
func checkStopped(flag *atomic.Bool) error {
	if flag.Load() {
		return errStopped
	}
	return nil
}

// ackStatusNames maps the wire status codes DataReader observes to
// their names, for logging.
var ackStatusNames = map[string]string{
	"0": "ACK_SUCCESS",
	"1": "ACK_FAILED",
	"2": "ACK_UNKNOWN_SCHEMA_ID",
	"3": "ACK_DECODE_ERROR",
	"4": "ACK_INVALID_SOURCE",
	"5": "ACK_DUPLICATE_SCHEMA_ID",
}

func ackStatusName(code string) string {
	if name, ok := ackStatusNames[code]; ok {
		return name
	}
	return "ACK_UNKNOWN_STATUS(" + code + ")"
}
