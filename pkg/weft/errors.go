package weft

import "errors"

// Error kinds reported by compilation and rendering. Concrete errors wrap
// these sentinels with detail, so callers match them with errors.Is.
var (
	// ErrSyntax reports a malformed or misordered directive at compile time.
	ErrSyntax = errors.New("template syntax error")

	// ErrUnknownFilter reports a |name pipeline that references a filter
	// missing from the registry. Raised as soon as the pipeline is parsed.
	ErrUnknownFilter = errors.New("unrecognised filter")

	// ErrFilterArgs reports filter arguments that the named filter does not
	// accept. The wrapped message carries the full original token text.
	ErrFilterArgs = errors.New("unexpected filter arguments")

	// ErrUnknownValue reports a context variable that could not be resolved
	// under the strict error policy.
	ErrUnknownValue = errors.New("unknown context value")

	// ErrEmptyTemplate is returned when construction resolves to empty
	// template text.
	ErrEmptyTemplate = errors.New("template text is empty")
)
