package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Fingerprint returns a content hash of a flow payload (or any other value),
// suitable as a cache key. Two structurally identical values always hash
// identically, regardless of map key insertion order: maps are canonicalized
// into sorted key/value sequences before hashing.
func Fingerprint(v any) (string, error) {
	canonical, err := toCanonicalValue(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshal canonical payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// kv is one canonical map entry. Entries are sorted by key so marshaling is
// deterministic.
type kv struct {
	K string `json:"k"`
	V any    `json:"v"`
}

// toCanonicalValue converts an arbitrary value into a form that produces
// deterministic JSON: maps become sorted key/value sequences, slices are
// canonicalized element-wise, and structs are canonicalized through their
// JSON encoding.
func toCanonicalValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		entries := make([]kv, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cv, err := toCanonicalValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			entries = append(entries, kv{
				K: fmt.Sprintf("%v", iter.Key().Interface()),
				V: cv,
			})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].K < entries[j].K })
		return entries, nil

	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make([]any, n)
		for i := 0; i < n; i++ {
			cv, err := toCanonicalValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil

	case reflect.Struct:
		// Round-trip through JSON so field tags and omitempty apply, then
		// canonicalize the resulting map.
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, err
		}
		var m any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return toCanonicalValue(m)

	default:
		return rv.Interface(), nil
	}
}
