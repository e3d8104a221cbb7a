package weft

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// resolve walks a dotted token against the merged context. A local binding
// always wins for the leading segment, and that lookup itself never fails.
// Each remaining segment resolves with a fixed precedence: keyed lookup for
// values with mapping semantics, then attribute lookup (zero-argument methods
// are invoked, fields used directly). Attribute resolution is never attempted
// on a value that supports keyed lookup. Any failure along the walk reports
// the full dotted token.
func resolve(token string, parts []string, context, locals map[string]any) (any, error) {
	var current any
	if v, ok := locals[parts[0]]; ok {
		current = v
	} else if v, ok := context[parts[0]]; ok {
		current = v
	} else {
		return nil, unknownValue(token)
	}

	for _, name := range parts[1:] {
		next, err := step(current, name)
		if err != nil {
			return nil, unknownValue(token)
		}
		current = next
	}
	return current, nil
}

func unknownValue(token string) error {
	return fmt.Errorf("%w: unknown context variable '%s'", ErrUnknownValue, token)
}

// step resolves a single path segment against the current value.
func step(current any, name string) (any, error) {
	if current == nil {
		return nil, fmt.Errorf("cannot resolve '%s' on nil value", name)
	}
	v := reflect.ValueOf(current)

	// Mapping semantics take absolute precedence over attributes.
	mv := v
	for mv.Kind() == reflect.Pointer && !mv.IsNil() {
		mv = mv.Elem()
	}
	if mv.Kind() == reflect.Map {
		return mapLookup(mv, name)
	}

	// Zero-argument methods count as attributes and are invoked.
	for _, attr := range []string{name, exported(name)} {
		if m := v.MethodByName(attr); m.IsValid() && m.Type().NumIn() == 0 {
			return callZeroArg(m)
		}
	}

	sv := v
	for sv.Kind() == reflect.Pointer {
		if sv.IsNil() {
			return nil, fmt.Errorf("cannot resolve '%s' on nil pointer", name)
		}
		sv = sv.Elem()
	}
	if sv.Kind() == reflect.Struct {
		for _, attr := range []string{name, exported(name)} {
			f := sv.FieldByName(attr)
			if !f.IsValid() || !f.CanInterface() {
				continue
			}
			if f.Kind() == reflect.Func && !f.IsNil() && f.Type().NumIn() == 0 {
				return callZeroArg(f)
			}
			return f.Interface(), nil
		}
	}

	return nil, fmt.Errorf("value of type %T has no attribute '%s'", current, name)
}

func mapLookup(m reflect.Value, name string) (any, error) {
	kt := m.Type().Key()
	var key reflect.Value
	switch kt.Kind() {
	case reflect.String:
		key = reflect.ValueOf(name).Convert(kt)
	case reflect.Interface:
		key = reflect.ValueOf(name)
	default:
		return nil, fmt.Errorf("map key type %s cannot index '%s'", kt, name)
	}
	mv := m.MapIndex(key)
	if !mv.IsValid() {
		return nil, fmt.Errorf("missing key '%s'", name)
	}
	return mv.Interface(), nil
}

func callZeroArg(f reflect.Value) (any, error) {
	out := f.Call(nil)
	if len(out) == 0 {
		return nil, nil
	}
	// A trailing error return fails the resolution.
	if last := out[len(out)-1]; last.Type() == errType && !last.IsNil() {
		return nil, last.Interface().(error)
	}
	return out[0].Interface(), nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// exported maps a template attribute name onto Go's exported naming, so
// {{person.name}} finds a Name field or method.
func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
