package weft

import (
	"errors"
	"fmt"
)

// FilterFunc transforms a resolved value at render time. args and kwargs are
// the positional and keyword arguments parsed from the template's filter
// invocation, both quote-stripped. A filter that cannot accept the given
// argument shape returns ErrFilterArgs.
type FilterFunc func(value any, args []string, kwargs map[string]string) (any, error)

// ArgCheck validates a filter's argument shape at compile time. Filters
// registered without one are only validated when they run.
type ArgCheck func(args []string, kwargs map[string]string) error

type filterEntry struct {
	fn    FilterFunc
	check ArgCheck
}

// FilterRegistry is a named set of value transforms available through the |
// pipeline syntax. Each Renderer owns the registry it was constructed with;
// there is no process-global state. Registration must complete before any
// dependent render begins: the registry is not safe for mutation while
// renders are in flight.
type FilterRegistry struct {
	filters map[string]filterEntry
}

// NewFilterRegistry returns a registry seeded with the built-in filters.
func NewFilterRegistry() *FilterRegistry {
	r := &FilterRegistry{filters: make(map[string]filterEntry)}
	registerBuiltins(r)
	return r
}

// Register adds a filter under the given name, replacing any prior entry.
// Its argument shape is validated only when the filter runs.
func (r *FilterRegistry) Register(name string, fn FilterFunc) {
	r.filters[name] = filterEntry{fn: fn}
}

// RegisterChecked adds a filter together with a compile-time argument check,
// replacing any prior entry under the same name.
func (r *FilterRegistry) RegisterChecked(name string, fn FilterFunc, check ArgCheck) {
	r.filters[name] = filterEntry{fn: fn, check: check}
}

// Has reports whether a filter is registered under name.
func (r *FilterRegistry) Has(name string) bool {
	_, ok := r.filters[name]
	return ok
}

// check runs a filter's compile-time argument check, if it has one.
func (r *FilterRegistry) check(name string, args []string, kwargs map[string]string) error {
	if e, ok := r.filters[name]; ok && e.check != nil {
		return e.check(args, kwargs)
	}
	return nil
}

// invoke runs the named filter on value. token is the full original pipeline
// text, attached to argument errors. A registered argument check is enforced
// here as well, so a filter body never sees a shape its check rejects.
func (r *FilterRegistry) invoke(name, token string, value any, args []string, kwargs map[string]string) (any, error) {
	e, ok := r.filters[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown filter '%s'", ErrUnknownFilter, name)
	}
	if e.check != nil {
		if err := e.check(args, kwargs); err != nil {
			return nil, fmt.Errorf("%w in '%s'", ErrFilterArgs, token)
		}
	}
	out, err := e.fn(value, args, kwargs)
	if err != nil {
		if errors.Is(err, ErrFilterArgs) {
			return nil, fmt.Errorf("%w in '%s'", ErrFilterArgs, token)
		}
		return nil, fmt.Errorf("filter '%s' failed on '%s': %w", name, token, err)
	}
	return out, nil
}
