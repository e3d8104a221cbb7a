package weft

// A compiled template is an immutable tree of tagged nodes interpreted at
// render time. Compilation never generates or evaluates source text, and the
// program keeps no reference to the template it was compiled from.

// program is the executable artifact bound one-to-one to a Renderer.
type program struct {
	nodes []node
	// contextRefs are the leading path segments of every variable reference
	// that was not shadowed by a for-loop local at compile time. Under the
	// strict policy each must be present in the merged context before
	// rendering begins.
	contextRefs []string
}

type node interface{ isNode() }

// outputNode is a batched run of consecutive literal text and substitution
// segments, emitted in order into the render buffer. Runs are flushed at
// every directive boundary and at program end.
type outputNode struct {
	segments []segment
}

type segment interface{ isSegment() }

// textSegment is literal template text. Indentation stripping, when active,
// is applied once at compile time.
type textSegment string

// substSegment stringifies one resolved, optionally filtered, value.
type substSegment struct {
	sub substitution
}

// ifNode is an if/elif/else chain. Branches are tried in order and the first
// truthy condition selects the body; the else body runs when none match.
type ifNode struct {
	branches []branch
	elseBody []node
}

type branch struct {
	cond *exprProgram
	body []node
}

// forNode iterates an iterable expression, binding its targets as locals for
// the duration of the loop. The else body runs only when the loop body never
// executed a break.
type forNode struct {
	targets  []string
	iter     *exprProgram
	body     []node
	elseBody []node
}

type breakNode struct{}

type continueNode struct{}

func (*outputNode) isNode()   {}
func (*ifNode) isNode()       {}
func (*forNode) isNode()      {}
func (*breakNode) isNode()    {}
func (*continueNode) isNode() {}

func (textSegment) isSegment()  {}
func (substSegment) isSegment() {}

// substitution describes one {{ ... }} span: a single variable token,
// optionally piped through a filter with arguments.
type substitution struct {
	// token is the full trimmed payload, e.g. "person.name|len 193". Kept
	// for error messages.
	token string
	// varToken is the variable portion before any filter separator.
	varToken string
	// parts is varToken split on dots.
	parts []string
	// filter is the registered filter name, empty when the payload has none.
	filter string
	args   []string
	kwargs map[string]string
}
