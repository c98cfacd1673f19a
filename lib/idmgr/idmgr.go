// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

// Package idmgr implements the process-wide schema interner: a
// mutex-guarded mapping from schema key to a dense id plus the
// canonical on-wire encoding first stored for that key.
package idmgr

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSchemaConflict is returned by FindOrInsert when a key already
// exists with a stored encoding that differs from the one supplied —
// the same schema key must always denote the same shape.
var ErrSchemaConflict = errors.New("idmgr: schema key stored with conflicting encoding")

// Entry is the (id, canonical encoding) pair stored per schema key.
type Entry struct {
	ID       int64
	Encoding string
}

// IdMgr is a process-wide, mutex-guarded schema interner. The zero
// value is not usable; construct with New.
type IdMgr struct {
	mu    sync.Mutex
	items map[string]Entry
}

// New constructs an empty interner.
func New() *IdMgr {
	return &IdMgr{items: make(map[string]Entry)}
}

var (
	sharedOnce sync.Once
	shared     *IdMgr
)

// Shared returns the process-wide interner, lazily initialised on first
// use. Most callers should use this rather than constructing their own,
// since schema ids must be dense and unique across the whole process;
// tests that need isolation should call New instead.
func Shared() *IdMgr {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}

// Get returns the entry stored for key and whether it was found. It
// returns an error only if key is empty.
func (m *IdMgr) Get(key string) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, fmt.Errorf("idmgr: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.items[key]
	return entry, ok, nil
}

// FindOrInsert returns the id already associated with key if the stored
// encoding matches the supplied one. If key is unknown, it assigns a
// new id as size+1 and stores (id, encoding). If key is known with a
// different encoding, it returns ErrSchemaConflict.
func (m *IdMgr) FindOrInsert(key, encoding string) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("idmgr: key must not be empty")
	}
	if encoding == "" {
		return 0, fmt.Errorf("idmgr: encoding must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.items[key]; ok {
		if existing.Encoding != encoding {
			return 0, fmt.Errorf("%w: key %q", ErrSchemaConflict, key)
		}
		return existing.ID, nil
	}

	id := int64(len(m.items) + 1)
	m.items[key] = Entry{ID: id, Encoding: encoding}
	return id, nil
}

// Insert stores (id, encoding) at key only if key is currently absent.
// If key already exists, Insert is a silent no-op.
func (m *IdMgr) Insert(key string, entry Entry) error {
	if key == "" {
		return fmt.Errorf("idmgr: key must not be empty")
	}
	if entry.Encoding == "" {
		return fmt.Errorf("idmgr: encoding must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; ok {
		return nil
	}
	m.items[key] = entry
	return nil
}

// Size returns the number of distinct schema keys interned.
func (m *IdMgr) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
