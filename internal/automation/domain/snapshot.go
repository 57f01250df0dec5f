package domain

import (
	"reflect"
	"strconv"
	"strings"
)

// Snapshot is a transient, relation-expanded view of one entity, keyed by
// column name. Relations are nested snapshots (for example "project" holding
// a map with its own "company").
type Snapshot map[string]any

// Lookup resolves a dotted path through nested maps and slices (numeric
// segments index into slices). It fails when any segment is missing or nil.
func (s Snapshot) Lookup(path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" || s == nil {
		return nil, false
	}

	var current any = map[string]any(s)
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, false
		}
		next, ok := step(current, segment)
		if !ok {
			return nil, false
		}
		if next, ok = deref(next); !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func step(current any, segment string) (any, bool) {
	switch typed := current.(type) {
	case Snapshot:
		v, ok := typed[segment]
		return v, ok
	case map[string]any:
		v, ok := typed[segment]
		return v, ok
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}

// deref unwraps pointers and reports false for nil values.
func deref(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}
