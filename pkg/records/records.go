// Package records defines the record repository contract the backup and
// restore subsystem operates against. The host application supplies the real
// implementation; a memory-backed one is provided for standalone use and
// tests.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Record is a single logical record as an ordered-by-key field map.
type Record map[string]interface{}

// Snapshot maps a logical model name to its records.
type Snapshot map[string][]Record

// Repository is the host application's keyed-record store. Lookups use a
// natural/business key field rather than storage-internal ids, since ids may
// differ across environments.
type Repository interface {
	// Models lists the logical model names the repository holds.
	Models(ctx context.Context) ([]string, error)

	// FetchAll returns every record of a model.
	FetchAll(ctx context.Context, model string) ([]Record, error)

	// FindByNaturalKey returns the record whose keyField equals keyValue.
	FindByNaturalKey(ctx context.Context, model, keyField string, keyValue interface{}) (Record, bool, error)

	// Upsert inserts the record, or replaces the record with the same
	// natural key.
	Upsert(ctx context.Context, model, keyField string, rec Record) error

	// Delete removes the record with the given natural key.
	Delete(ctx context.Context, model, keyField string, keyValue interface{}) error

	// RunInTransaction executes fn against a transactional view of one
	// model's records. If fn returns an error, every mutation of that
	// model made inside fn is rolled back.
	RunInTransaction(ctx context.Context, model string, fn func(tx Repository) error) error
}

// Clone returns a deep-enough copy of the record. Field values are copied by
// assignment, which is sufficient for JSON-scalar field maps.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// KeyValue extracts the natural key value from the record.
func KeyValue(rec Record, keyField string) (interface{}, error) {
	v, ok := rec[keyField]
	if !ok || IsEmpty(v) {
		return nil, fmt.Errorf("record is missing natural key field %q", keyField)
	}
	return normalize(v), nil
}

// IsEmpty reports whether a field value counts as empty for merge purposes:
// nil, absent, or a zero-length string.
func IsEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// ValuesEqual compares two field values after numeric normalization, so that
// an int written by the host and a float64 read back from JSON compare equal.
// Composite values (JSON arrays and objects) compare by their canonical JSON
// encoding, which normalizes nested numbers the same way.
func ValuesEqual(a, b interface{}) bool {
	na, nb := normalize(a), normalize(b)
	if isComparable(na) && isComparable(nb) {
		return na == nb
	}

	ja, errA := json.Marshal(na)
	jb, errB := json.Marshal(nb)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(na, nb)
	}
	return bytes.Equal(ja, jb)
}

// isComparable reports whether == is safe on the value's dynamic type.
func isComparable(v interface{}) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}

// normalize collapses the numeric types JSON decoding can produce.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return v
}
