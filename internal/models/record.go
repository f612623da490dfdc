// Package models provides data model definitions for the TillSync engine.
package models

import (
	"time"
)

// Well-known record field names.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Record is an open-ended mapping from field name to value. Every record
// carries an opaque unique "id" plus ISO-8601 "created_at"/"updated_at"
// recency timestamps; all other fields are collection-specific.
type Record map[string]interface{}

// ID returns the record's id field, or "" if absent or not a string.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// CreatedAt returns the parsed created_at timestamp.
// Returns the zero time if the field is absent or malformed.
func (r Record) CreatedAt() time.Time {
	return parseTimestamp(r[FieldCreatedAt])
}

// UpdatedAt returns the parsed updated_at timestamp.
// Returns the zero time if the field is absent or malformed.
func (r Record) UpdatedAt() time.Time {
	return parseTimestamp(r[FieldUpdatedAt])
}

// Timestamp returns the record's recency for conflict comparison:
// updated_at, falling back to created_at when updated_at is absent
// or unparseable. A record with neither reports the zero time.
func (r Record) Timestamp() time.Time {
	if ts := r.UpdatedAt(); !ts.IsZero() {
		return ts
	}
	return r.CreatedAt()
}

// Clone returns a shallow copy of the record. Field values are shared;
// only the top-level map is copied, which is enough for components that
// rename or drop fields without mutating their input.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// timestampLayouts are tried in order when parsing a timestamp field.
// Remote rows use RFC 3339; older local rows may lack a zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp converts a raw field value to time.Time. Malformed or
// missing values yield the zero time so that a record with a broken
// timestamp always loses conflict resolution to a well-formed one.
func parseTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
