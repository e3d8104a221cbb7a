package weft

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
)

// Renderer compiles a template once at construction and renders it against
// caller-supplied context maps. A Renderer is immutable after construction
// and safe for concurrent Render calls, provided its filter registry is not
// mutated while renders are in flight.
type Renderer struct {
	logger  *slog.Logger
	filters *FilterRegistry
	prog    *program

	strict      bool
	defaultText string
	hasDefault  bool
	strip       bool
}

// Option configures a Renderer at construction.
type Option func(*Renderer)

// WithStrictErrors makes an unresolved context value fail the render instead
// of falling back to the default text or echoing the original token.
func WithStrictErrors() Option {
	return func(r *Renderer) { r.strict = true }
}

// WithDefault sets the text substituted for an unresolved value under the
// lenient policy. Without it, the original token is echoed with its
// delimiters, e.g. {{name}}.
func WithDefault(text string) Option {
	return func(r *Renderer) {
		r.defaultText = text
		r.hasDefault = true
	}
}

// WithKeepIndentation disables whitespace stripping, so literal text renders
// byte-identical to the template. Use it for indentation-significant output
// such as source code; the default strips the left margin, which suits HTML.
func WithKeepIndentation() Option {
	return func(r *Renderer) { r.strip = false }
}

// WithFilters sets the filter registry consulted at compile and render time.
// Registrations should be complete before the Renderer is constructed, since
// filter names are checked during compilation.
func WithFilters(reg *FilterRegistry) Option {
	return func(r *Renderer) { r.filters = reg }
}

// WithLogger sets the structured logger. The default discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) { r.logger = logger }
}

// New compiles the given template text into a Renderer. Empty template text
// is an error.
func New(templateStr string, opts ...Option) (*Renderer, error) {
	if templateStr == "" {
		return nil, ErrEmptyTemplate
	}

	r := &Renderer{
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
		strip:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.filters == nil {
		r.filters = NewFilterRegistry()
	}

	prog, err := newCompiler(r.strip, r.filters).compile(tokenize(templateStr))
	if err != nil {
		return nil, err
	}
	r.prog = prog

	r.logger.Debug("template compiled",
		slog.Int("template_len", len(templateStr)),
		slog.Int("context_refs", len(prog.contextRefs)),
	)
	return r, nil
}

// NewFromReader reads the full template text from rd and compiles it.
func NewFromReader(rd io.Reader, opts ...Option) (*Renderer, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return New(string(data), opts...)
}

// NewFromFile reads the template text from the file at path and compiles it.
func NewFromFile(path string, opts ...Option) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return New(string(data), opts...)
}

// ContextRefs returns the context names the compiled template refers to.
// Under the strict policy each must be present in the merged context.
func (r *Renderer) ContextRefs() []string {
	refs := make([]string, len(r.prog.contextRefs))
	copy(refs, r.prog.contextRefs)
	return refs
}
