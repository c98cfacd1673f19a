// Copyright 2026 The Shiplog Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goccyjson "github.com/goccy/go-json"

	"github.com/shiplog-dev/shiplog/lib/clock"
	"github.com/shiplog-dev/shiplog/lib/idmgr"
)

// FieldType is one of the closed set of DJSON scalar type tokens.
type FieldType string

const (
	FTBool   FieldType = "FT_BOOL"
	FTInt32  FieldType = "FT_INT32"
	FTInt64  FieldType = "FT_INT64"
	FTDouble FieldType = "FT_DOUBLE"
	FTTime   FieldType = "FT_TIME"
	FTString FieldType = "FT_STRING"
)

type field struct {
	name  string
	typ   FieldType
	value any
}

// Option configures a DjsonLogItem at construction.
type Option func(*DjsonLogItem)

// WithIdMgr overrides the schema interner used to resolve this record's
// schema id. Defaults to idmgr.Shared().
func WithIdMgr(m *idmgr.IdMgr) Option {
	return func(d *DjsonLogItem) { d.idMgr = m }
}

// WithClock overrides the clock used for last-touch bookkeeping.
// Defaults to clock.Real().
func WithClock(c clock.Clock) Option {
	return func(d *DjsonLogItem) {
		d.base.clock = c
		d.base.lastTouch = c.Now()
	}
}

// DjsonLogItem is a Record that accumulates typed fields and encodes
// itself into the DJSON wire format on first call to Bytes.
type DjsonLogItem struct {
	base

	source string
	idMgr  *idmgr.IdMgr

	mu          sync.Mutex
	fields      []field
	materialize bool
	cached      []byte
	cacheErr    error
}

// NewDjsonLogItem constructs a record for source, ready to accumulate
// fields via AddData.
func NewDjsonLogItem(source string, opts ...Option) *DjsonLogItem {
	d := &DjsonLogItem{
		base:   newBase(nil),
		source: source,
		idMgr:  idmgr.Shared(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewEtwLogItem constructs a DjsonLogItem with two mandatory fields
// pre-populated in order: GUID (string) and EventId (int32). Additional
// fields may be added via AddData before the first call to Bytes.
func NewEtwLogItem(source, guid string, eventID int32, opts ...Option) (*DjsonLogItem, error) {
	d := NewDjsonLogItem(source, opts...)
	if err := d.AddData("GUID", guid); err != nil {
		return nil, err
	}
	if err := d.AddData("EventId", eventID); err != nil {
		return nil, err
	}
	return d, nil
}

// AddData appends a typed field. The field's on-wire type is inferred
// from value's Go type: bool, int32, int64, float64, time.Time, and
// string are supported. AddData returns an error once Bytes has already
// materialized the record, since the schema and encoding are then
// fixed.
func (d *DjsonLogItem) AddData(name string, value any) error {
	var typ FieldType
	switch value.(type) {
	case bool:
		typ = FTBool
	case int32:
		typ = FTInt32
	case int64:
		typ = FTInt64
	case float64:
		typ = FTDouble
	case time.Time:
		typ = FTTime
	case string:
		typ = FTString
	default:
		return fmt.Errorf("wire: unsupported field type %T for %q", value, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.materialize {
		return fmt.Errorf("wire: AddData(%q) called after Bytes() has materialized the record", name)
	}
	d.fields = append(d.fields, field{name: name, typ: typ, value: value})
	return nil
}

// Bytes materializes the full DJSON-encoded record on first call and
// caches the result (and any error) for subsequent calls.
func (d *DjsonLogItem) Bytes() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.materialize {
		return d.cached, d.cacheErr
	}
	d.materialize = true
	d.cached, d.cacheErr = d.compose()
	return d.cached, d.cacheErr
}

// compose runs the schema lookup algorithm and builds the on-wire line.
// Callers must hold d.mu.
func (d *DjsonLogItem) compose() ([]byte, error) {
	unsortedKey := schemaKey(d.fields)
	schemaID, wireEncoding, err := d.resolveSchema(unsortedKey)
	if err != nil {
		return nil, err
	}

	dataArray, err := encodeDataArray(d.fields)
	if err != nil {
		return nil, err
	}

	sourceJSON, err := goccyjson.Marshal(d.source)
	if err != nil {
		return nil, fmt.Errorf("wire: encode source: %w", err)
	}

	var body strings.Builder
	body.WriteByte('[')
	body.Write(sourceJSON)
	body.WriteByte(',')
	body.WriteString(d.tag)
	body.WriteByte(',')
	body.WriteString(strconv.FormatInt(schemaID, 10))
	body.WriteByte(',')
	body.WriteString(wireEncoding)
	body.WriteByte(',')
	body.WriteString(dataArray)
	body.WriteByte(']')

	bodyStr := body.String()
	var line strings.Builder
	line.WriteString(strconv.Itoa(len(bodyStr)))
	line.WriteByte('\n')
	line.WriteString(bodyStr)
	return []byte(line.String()), nil
}

// resolveSchema implements the five-step schema lookup algorithm: an
// unsorted key hits the fast path when a prior record with the same
// field order has already been interned; otherwise a sorted key is
// used to share ids across permutations of the same field multiset,
// while the wire encoding always reflects this record's own field
// order.
func (d *DjsonLogItem) resolveSchema(unsortedKey string) (id int64, wireEncoding string, err error) {
	if entry, ok, err := d.idMgr.Get(unsortedKey); err != nil {
		return 0, "", err
	} else if ok {
		return entry.ID, entry.Encoding, nil
	}

	unsortedEncoding := schemaEncoding(d.fields)

	sortedFields := make([]field, len(d.fields))
	copy(sortedFields, d.fields)
	sort.Slice(sortedFields, func(i, j int) bool { return sortedFields[i].name < sortedFields[j].name })
	sortedKey := schemaKey(sortedFields)

	if entry, ok, err := d.idMgr.Get(sortedKey); err != nil {
		return 0, "", err
	} else if ok {
		if insertErr := d.idMgr.Insert(unsortedKey, idmgr.Entry{ID: entry.ID, Encoding: unsortedEncoding}); insertErr != nil {
			return 0, "", insertErr
		}
		return entry.ID, unsortedEncoding, nil
	}

	sortedEncoding := schemaEncoding(sortedFields)
	newID, err := d.idMgr.FindOrInsert(sortedKey, sortedEncoding)
	if err != nil {
		return 0, "", err
	}
	if insertErr := d.idMgr.Insert(unsortedKey, idmgr.Entry{ID: newID, Encoding: unsortedEncoding}); insertErr != nil {
		return 0, "", insertErr
	}
	return newID, unsortedEncoding, nil
}

// schemaKey composes the interner lookup key from a field list: the
// concatenation of name+type pairs in the order given.
func schemaKey(fields []field) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.name)
		b.WriteByte(':')
		b.WriteString(string(f.typ))
		b.WriteByte(';')
	}
	return b.String()
}

// schemaEncoding composes the on-wire schema array for a field list, in
// the order given: [["name","type"],...].
func schemaEncoding(fields []field) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		pair, err := goccyjson.Marshal([2]string{f.name, string(f.typ)})
		if err != nil {
			// Field names are plain Go strings; goccy's Marshal on a
			// [2]string cannot fail.
			panic(err)
		}
		b.Write(pair)
	}
	b.WriteByte(']')
	return b.String()
}

// encodeDataArray encodes a field list's values, in the order given,
// as the on-wire data array.
func encodeDataArray(fields []field) (string, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		encoded, err := encodeValue(f)
		if err != nil {
			return "", err
		}
		b.WriteString(encoded)
	}
	b.WriteByte(']')
	return b.String(), nil
}

func encodeValue(f field) (string, error) {
	switch f.typ {
	case FTBool:
		v, ok := f.value.(bool)
		if !ok {
			return "", fmt.Errorf("wire: field %q: expected bool, got %T", f.name, f.value)
		}
		if v {
			return "true", nil
		}
		return "false", nil
	case FTInt32:
		v, ok := f.value.(int32)
		if !ok {
			return "", fmt.Errorf("wire: field %q: expected int32, got %T", f.name, f.value)
		}
		return strconv.FormatInt(int64(v), 10), nil
	case FTInt64:
		v, ok := f.value.(int64)
		if !ok {
			return "", fmt.Errorf("wire: field %q: expected int64, got %T", f.name, f.value)
		}
		return strconv.FormatInt(v, 10), nil
	case FTDouble:
		v, ok := f.value.(float64)
		if !ok {
			return "", fmt.Errorf("wire: field %q: expected float64, got %T", f.name, f.value)
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case FTTime:
		v, ok := f.value.(time.Time)
		if !ok {
			return "", fmt.Errorf("wire: field %q: expected time.Time, got %T", f.name, f.value)
		}
		return fmt.Sprintf("[%d,%d]", v.Unix(), v.Nanosecond()), nil
	case FTString:
		v, ok := f.value.(string)
		if !ok {
			return "", fmt.Errorf("wire: field %q: expected string, got %T", f.name, f.value)
		}
		quoted, err := goccyjson.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("wire: field %q: %w", f.name, err)
		}
		return string(quoted), nil
	default:
		return "", fmt.Errorf("wire: field %q: unknown field type %q", f.name, f.typ)
	}
}
