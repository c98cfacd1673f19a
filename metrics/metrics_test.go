// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import "testing"

func TestNoOp0DAddDoesNotPanic(t *testing.T) {
	c := NoOp0D()
	c.Add(1)
	c.Add(-5)
}

func TestNoOp1DAddDoesNotPanic(t *testing.T) {
	c := NoOp1D()
	c.Add(1, "success")
	c.Add(2, "failure")
}

func TestNoOp2DAddDoesNotPanic(t *testing.T) {
	c := NoOp2D()
	c.Add(1, "sender", "success")
}
