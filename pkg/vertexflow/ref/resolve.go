package ref

import (
	"fmt"
	"reflect"
	"strings"
)

// deniedAttributes lists attribute names that traversal always rejects on
// object access, on top of the underscore-prefix rule. They cover the
// reflective accessor surface of systems this engine exchanges payloads
// with; keys of plain maps are deliberately not subject to this list.
var deniedAttributes = map[string]struct{}{
	"__dict__":         {},
	"__class__":        {},
	"__globals__":      {},
	"__getattr__":      {},
	"__getattribute__": {},
	"__subclasses__":   {},
	"__import__":       {},
	"__builtins__":     {},
	"__code__":         {},
}

// Resolve resolves the expression against the given outputs map. The value is
// returned with its original type: no string coercion happens here.
//
// Map values are traversed by key lookup with no name restrictions, sequences
// by integer index, and structs by exported field only. Attribute access to
// underscore-prefixed or unexported names fails with ForbiddenAccessError.
func (e *Expr) Resolve(outputs map[string]any) (any, error) {
	current, ok := outputs[e.Output]
	if !ok {
		return nil, &OutputNotFoundError{Slug: e.Slug, Output: e.Output}
	}

	for i, seg := range e.Path {
		next, err := traverse(current, seg)
		if err != nil {
			if ferr, isForbidden := err.(*ForbiddenAccessError); isForbidden {
				ferr.Expr = e.raw
				return nil, ferr
			}
			return nil, &PathNotFoundError{
				Expr:    e.raw,
				Segment: seg.String(),
				Depth:   i,
				Reason:  err.Error(),
			}
		}
		current = next
	}
	return current, nil
}

// traverse applies one path segment to a value.
func traverse(v any, seg Segment) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot traverse into nil value")
	}

	// Fast paths for the shapes decoded JSON produces.
	switch val := v.(type) {
	case map[string]any:
		if seg.IsIndex {
			return nil, fmt.Errorf("cannot index a mapping")
		}
		got, ok := val[seg.Key]
		if !ok {
			return nil, fmt.Errorf("key %q not found", seg.Key)
		}
		return got, nil
	case []any:
		if !seg.IsIndex {
			return nil, fmt.Errorf("cannot access field %q on a sequence", seg.Key)
		}
		if seg.Index < 0 || seg.Index >= len(val) {
			return nil, fmt.Errorf("index %d out of range (len %d)", seg.Index, len(val))
		}
		return val[seg.Index], nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("cannot traverse into nil value")
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if seg.IsIndex {
			return nil, fmt.Errorf("cannot index a mapping")
		}
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("mapping has non-string keys")
		}
		got := rv.MapIndex(reflect.ValueOf(seg.Key).Convert(rv.Type().Key()))
		if !got.IsValid() {
			return nil, fmt.Errorf("key %q not found", seg.Key)
		}
		return got.Interface(), nil

	case reflect.Slice, reflect.Array:
		if !seg.IsIndex {
			return nil, fmt.Errorf("cannot access field %q on a sequence", seg.Key)
		}
		if seg.Index < 0 || seg.Index >= rv.Len() {
			return nil, fmt.Errorf("index %d out of range (len %d)", seg.Index, rv.Len())
		}
		return rv.Index(seg.Index).Interface(), nil

	case reflect.Struct:
		if seg.IsIndex {
			return nil, fmt.Errorf("cannot index an object")
		}
		return structField(rv, seg.Key)

	default:
		return nil, fmt.Errorf("cannot traverse into %s value", rv.Kind())
	}
}

// structField reads one exported field. Denied and non-public names return
// ForbiddenAccessError rather than not-found, so the caller cannot probe for
// their existence.
func structField(rv reflect.Value, name string) (any, error) {
	if forbiddenAttribute(name) {
		return nil, &ForbiddenAccessError{Name: name}
	}
	field := rv.FieldByName(name)
	if !field.IsValid() {
		return nil, fmt.Errorf("field %q not found", name)
	}
	return field.Interface(), nil
}

// forbiddenAttribute reports whether an attribute name is outside the public
// surface: underscore-prefixed, unexported, or denylisted.
func forbiddenAttribute(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	if _, denied := deniedAttributes[name]; denied {
		return true
	}
	first := name[0]
	return first < 'A' || first > 'Z'
}
