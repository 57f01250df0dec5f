package condition

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Scalar is a configured comparison value. It keeps the original form so it
// can be coerced to whatever type the snapshot field turns out to have.
type Scalar struct {
	raw any
}

// NewScalar accepts strings, numbers and booleans.
func NewScalar(v any) (Scalar, bool) {
	switch v.(type) {
	case string, bool, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return Scalar{raw: v}, true
	}
	return Scalar{}, false
}

// String renders the scalar as text.
func (s Scalar) String() string {
	switch v := s.raw.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	if n, ok := toNumber(s.raw); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// equalTo compares the scalar with a snapshot value after coercing the
// scalar to the value's apparent type. comparable is false when coercion is
// impossible or the value is not a scalar.
func (s Scalar) equalTo(field any) (equal bool, comparable bool) {
	switch f := field.(type) {
	case string:
		return f == s.String(), true
	case bool:
		b, ok := toBool(s.raw)
		if !ok {
			return false, false
		}
		return f == b, true
	case time.Time:
		d, ok := toDate(s.raw)
		if !ok {
			return false, false
		}
		return f.Equal(d), true
	}

	if n, ok := toNumber(field); ok {
		c, ok := toNumber(s.raw)
		if !ok {
			return false, false
		}
		return n == c, true
	}
	return false, false
}

// toNumber accepts native numeric types, json.Number and numeric strings.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	return false, false
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// toDate accepts time.Time and RFC3339 or YYYY-MM-DD strings.
func toDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		trimmed := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func toSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
