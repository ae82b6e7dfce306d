// Package job validates JobSpy listing records and normalizes them into rows
// for the jobs table.
package job

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is a validated listing keyed by canonical camelCase names. Fields
// the schema does not declare are kept on Extra and never persisted.
type Record struct {
	fields map[string]any
	Extra  map[string]any
}

// NewRecord wraps already-canonical fields without validation. Tests and
// callers that build records by hand use it.
func NewRecord(fields map[string]any) Record {
	return Record{fields: fields, Extra: map[string]any{}}
}

// Value returns the raw value of a known field.
func (r Record) Value(key string) any {
	return r.fields[key]
}

// Has reports whether a known field is present and non-null.
func (r Record) Has(key string) bool {
	return r.fields[key] != nil
}

// String returns a text field. Numbers are rendered without a trailing
// fraction and string arrays are joined with ", ".
func (r Record) String(key string) *string {
	switch v := r.fields[key].(type) {
	case nil:
		return nil
	case string:
		return &v
	case []string:
		s := strings.Join(v, ", ")
		return &s
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		s := strings.Join(parts, ", ")
		return &s
	default:
		if f, ok := toFloat(v); ok {
			s := strconv.FormatFloat(f, 'f', -1, 64)
			return &s
		}
		return nil
	}
}

// Float returns a numeric field.
func (r Record) Float(key string) *float64 {
	f, ok := toFloat(r.fields[key])
	if !ok {
		return nil
	}
	return &f
}

// Bool returns a boolean field.
func (r Record) Bool(key string) *bool {
	b, ok := r.fields[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

// Strings returns an array-of-string field, or nil when the field is absent
// or not an array.
func (r Record) Strings(key string) []string {
	switch v := r.fields[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders the canonical fields merged with Extra.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.fields)+len(r.Extra))
	for k, v := range r.Extra {
		out[k] = v
	}
	for k, v := range r.fields {
		out[k] = v
	}
	return json.Marshal(out)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
