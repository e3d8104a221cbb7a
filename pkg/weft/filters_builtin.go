package weft

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// The built-in filters every registry starts with. All of them carry a
// compile-time argument check, so a bad argument shape fails the template
// compile rather than the render.
func registerBuiltins(r *FilterRegistry) {
	r.RegisterChecked("len", filterLen, checkNoArgs)
	r.RegisterChecked("split", filterSplit, checkAtMostOneArg)
	r.RegisterChecked("cut", filterCut, checkExactlyOneArg)
	r.RegisterChecked("upper", filterUpper, checkNoArgs)
	r.RegisterChecked("lower", filterLower, checkNoArgs)
	r.RegisterChecked("title", filterTitle, checkNoArgs)
	r.RegisterChecked("trim", filterTrim, checkNoArgs)
	r.RegisterChecked("center", filterCenter, checkOneIntArg)
	r.RegisterChecked("truncate", filterTruncate, checkOneIntArg)
	r.RegisterChecked("default", filterDefault, checkExactlyOneArg)
}

func checkNoArgs(args []string, kwargs map[string]string) error {
	if len(args) > 0 || len(kwargs) > 0 {
		return ErrFilterArgs
	}
	return nil
}

func checkAtMostOneArg(args []string, kwargs map[string]string) error {
	if len(args) > 1 || len(kwargs) > 0 {
		return ErrFilterArgs
	}
	return nil
}

func checkExactlyOneArg(args []string, kwargs map[string]string) error {
	if len(args) != 1 || len(kwargs) > 0 {
		return ErrFilterArgs
	}
	return nil
}

func checkOneIntArg(args []string, kwargs map[string]string) error {
	if len(args) != 1 || len(kwargs) > 0 {
		return ErrFilterArgs
	}
	if _, err := strconv.Atoi(args[0]); err != nil {
		return ErrFilterArgs
	}
	return nil
}

// filterLen returns the element count of strings, slices, arrays, maps and
// channels.
func filterLen(value any, _ []string, _ map[string]string) (any, error) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("value of type %T has no length", value)
	}
}

// filterSplit splits the stringified value on the given separator, or on
// whitespace runs when no separator is given.
func filterSplit(value any, args []string, _ map[string]string) (any, error) {
	s := stringify(value)
	if len(args) == 0 {
		return strings.Fields(s), nil
	}
	return strings.Split(s, args[0]), nil
}

// filterCut removes every occurrence of the argument from the value.
func filterCut(value any, args []string, _ map[string]string) (any, error) {
	return strings.ReplaceAll(stringify(value), args[0], ""), nil
}

func filterUpper(value any, _ []string, _ map[string]string) (any, error) {
	return strings.ToUpper(stringify(value)), nil
}

func filterLower(value any, _ []string, _ map[string]string) (any, error) {
	return strings.ToLower(stringify(value)), nil
}

// filterTitle upper-cases the first letter of every word.
func filterTitle(value any, _ []string, _ map[string]string) (any, error) {
	return cases.Title(language.Und).String(stringify(value)), nil
}

func filterTrim(value any, _ []string, _ map[string]string) (any, error) {
	return strings.TrimSpace(stringify(value)), nil
}

// filterCenter pads the value with spaces on both sides up to the given
// width. Values already at least that wide are returned unchanged. The odd
// padding column goes on the right.
func filterCenter(value any, args []string, _ map[string]string) (any, error) {
	width, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, ErrFilterArgs
	}
	s := stringify(value)
	pad := width - len([]rune(s))
	if pad <= 0 {
		return s, nil
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left), nil
}

// filterTruncate keeps the first N runes of the value.
func filterTruncate(value any, args []string, _ map[string]string) (any, error) {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return nil, ErrFilterArgs
	}
	runes := []rune(stringify(value))
	if len(runes) <= n {
		return string(runes), nil
	}
	return string(runes[:n]), nil
}

// filterDefault substitutes the argument when the value is nil or
// stringifies to the empty string.
func filterDefault(value any, args []string, _ map[string]string) (any, error) {
	if value == nil || stringify(value) == "" {
		return args[0], nil
	}
	return value, nil
}
