// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the counter interfaces shipper components
// increment through. shiplog never talks to a measurement backend
// itself; callers supply an implementation, or rely on the no-op
// default.
package metrics

// Counter0D is a counter with no label dimensions.
type Counter0D interface {
	Add(delta int64)
}

// Counter1D is a counter with one label dimension.
type Counter1D interface {
	Add(delta int64, label string)
}

// Counter2D is a counter with two label dimensions.
type Counter2D interface {
	Add(delta int64, label1, label2 string)
}

// noop0D, noop1D, and noop2D each satisfy exactly one counter
// interface: a single type cannot implement all three Add signatures
// at once since Go dispatches by exact method signature.
type noop0D struct{}

func (noop0D) Add(delta int64) {}

type noop1D struct{}

func (noop1D) Add(delta int64, label string) {}

type noop2D struct{}

func (noop2D) Add(delta int64, label1, label2 string) {}

// NoOp0D returns a Counter0D that discards every increment.
func NoOp0D() Counter0D { return noop0D{} }

// NoOp1D returns a Counter1D that discards every increment.
func NoOp1D() Counter1D { return noop1D{} }

// NoOp2D returns a Counter2D that discards every increment.
func NoOp2D() Counter2D { return noop2D{} }
