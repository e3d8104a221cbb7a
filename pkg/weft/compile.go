package weft

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// frameKind is the kind of an open directive block.
type frameKind int

const (
	frameRoot frameKind = iota
	frameIf
	frameElif
	frameFor
)

// closer returns the directive expected to close a frame of this kind.
func (k frameKind) closer() string {
	if k == frameFor {
		return "endfor"
	}
	return "endif"
}

// blockFrame tracks one open block during compilation. The frame stack must
// be empty (root only) when compilation ends.
type blockFrame struct {
	kind       frameKind
	elseTagged bool
	buf        []node // nodes of the currently open body

	ifn  *ifNode  // set for if/elif frames
	forn *forNode // set for for frames
}

// compiler is the directive state machine plus the emission assembler. It
// batches consecutive literal/substitution segments into one output node,
// flushing at every directive boundary and at program end.
type compiler struct {
	strip   bool
	filters *FilterRegistry

	frames  []*blockFrame
	pending []segment
	locals  map[string]int
	refs    map[string]struct{}
}

func newCompiler(strip bool, filters *FilterRegistry) *compiler {
	return &compiler{
		strip:   strip,
		filters: filters,
		frames:  []*blockFrame{{kind: frameRoot}},
		locals:  make(map[string]int),
		refs:    make(map[string]struct{}),
	}
}

var forStmtRe = regexp.MustCompile(`(?s)^(.+)\s+in\s+(.+)$`)

func (c *compiler) compile(tokens []Token) (*program, error) {
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenComment:
			// Comments render as nothing and do not break emission batching.
		case TokenText:
			c.text(tok)
		case TokenExpression:
			sub, err := c.compileSubstitution(tok.Body)
			if err != nil {
				return nil, err
			}
			c.pending = append(c.pending, substSegment{sub: sub})
		case TokenDirective:
			if err := c.directive(tok.Body); err != nil {
				return nil, err
			}
		}
	}

	if len(c.frames) > 1 {
		top := c.frames[len(c.frames)-1]
		return nil, fmt.Errorf("%w: missing directive '{%% %s %%}'", ErrSyntax, top.kind.closer())
	}
	c.flush()

	refs := make([]string, 0, len(c.refs))
	for name := range c.refs {
		refs = append(refs, name)
	}
	sort.Strings(refs)

	return &program{nodes: c.frames[0].buf, contextRefs: refs}, nil
}

func (c *compiler) top() *blockFrame {
	return c.frames[len(c.frames)-1]
}

// flush closes the pending emission run into the currently open body.
func (c *compiler) flush() {
	if len(c.pending) == 0 {
		return
	}
	top := c.top()
	top.buf = append(top.buf, &outputNode{segments: c.pending})
	c.pending = nil
}

func (c *compiler) text(tok Token) {
	s := tok.Raw
	if c.strip {
		s = stripIndent(s, tok.LineStart)
	}
	if s == "" {
		return
	}
	c.pending = append(c.pending, textSegment(s))
}

// stripIndent removes leading spaces and tabs from every line of s. The
// first line is stripped only when the text actually begins a source line,
// so text following a substitution mid-line keeps its spacing.
func stripIndent(s string, atLineStart bool) string {
	var b strings.Builder
	i := 0
	if atLineStart {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}
	for i < len(s) {
		j := strings.IndexByte(s[i:], '\n')
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+j+1])
		i += j + 1
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}
	return b.String()
}

// recordRef notes a leading path segment for render-time context validation,
// unless a for-loop local shadows it at this point of the compile.
func (c *compiler) recordRef(name string) {
	if c.locals[name] > 0 {
		return
	}
	c.refs[name] = struct{}{}
}

// compileSubstitution parses a {{ ... }} payload into a substitution. An
// unregistered filter fails immediately; a built-in filter's argument shape
// is checked here as well, so argument errors surface at compile time
// whenever arity is statically known.
func (c *compiler) compileSubstitution(payload string) (substitution, error) {
	sub := substitution{token: payload, varToken: payload}

	if k := strings.IndexByte(payload, '|'); k >= 0 {
		sub.varToken = strings.TrimSpace(payload[:k])
		rest := payload[k+1:]
		name, argStr := rest, ""
		if sp := strings.IndexByte(rest, ' '); sp >= 0 {
			name, argStr = rest[:sp], rest[sp+1:]
		}
		sub.filter = name
		if !c.filters.Has(name) {
			return sub, fmt.Errorf("%w: unknown filter '%s'", ErrUnknownFilter, name)
		}
		if argStr != "" {
			sub.args, sub.kwargs = splitFilterArgs(argStr)
		}
		if err := c.filters.check(name, sub.args, sub.kwargs); err != nil {
			return sub, fmt.Errorf("%w in '%s'", ErrFilterArgs, payload)
		}
	}

	sub.parts = strings.Split(sub.varToken, ".")
	c.recordRef(sub.parts[0])
	return sub, nil
}

// directive dispatches one {% ... %} body through the block state machine.
func (c *compiler) directive(body string) error {
	keyword, rest := body, ""
	if i := strings.IndexAny(body, " \t"); i >= 0 {
		keyword, rest = body[:i], strings.TrimSpace(body[i+1:])
	}

	switch keyword {
	case "if":
		return c.compileIf(body, rest)
	case "elif":
		return c.compileElif(body, rest)
	case "else":
		if rest == "" {
			return c.compileElse()
		}
	case "endif":
		if rest == "" {
			return c.compileEndif()
		}
	case "endfor":
		if rest == "" {
			return c.compileEndfor()
		}
	case "for":
		return c.compileFor(body, rest)
	case "break", "continue":
		if rest == "" {
			return c.compileLoopControl(keyword)
		}
	}
	return fmt.Errorf("%w: unexpected directive: %s", ErrSyntax, body)
}

func (c *compiler) compileIf(body, rest string) error {
	if rest == "" {
		return fmt.Errorf("%w: invalid if statement '{%% %s %%}'", ErrSyntax, body)
	}
	cond, err := c.compileExpression(rest)
	if err != nil {
		return err
	}
	c.flush()
	n := &ifNode{branches: []branch{{cond: cond}}}
	top := c.top()
	top.buf = append(top.buf, n)
	c.frames = append(c.frames, &blockFrame{kind: frameIf, ifn: n})
	return nil
}

func (c *compiler) compileElif(body, rest string) error {
	top := c.top()
	if top.kind != frameIf && top.kind != frameElif {
		return fmt.Errorf("%w: unexpected directive - found '{%% elif %%}' expected '{%% if %%}'", ErrSyntax)
	}
	if top.elseTagged {
		return fmt.Errorf("%w: unexpected directive - found '{%% elif %%}' expected '{%% endif %%}'", ErrSyntax)
	}
	if rest == "" {
		return fmt.Errorf("%w: invalid elif statement '{%% %s %%}'", ErrSyntax, body)
	}
	cond, err := c.compileExpression(rest)
	if err != nil {
		return err
	}
	c.flush()
	top.ifn.branches[len(top.ifn.branches)-1].body = top.buf
	top.buf = nil
	top.ifn.branches = append(top.ifn.branches, branch{cond: cond})
	top.kind = frameElif
	return nil
}

func (c *compiler) compileElse() error {
	top := c.top()
	if top.kind == frameRoot {
		return fmt.Errorf("%w: unexpected directive - found '{%% else %%}' without if or for", ErrSyntax)
	}
	if top.elseTagged {
		return fmt.Errorf("%w: unexpected directive - found '{%% else %%}' expected '{%% %s %%}'", ErrSyntax, top.kind.closer())
	}
	c.flush()
	if top.kind == frameFor {
		top.forn.body = top.buf
	} else {
		top.ifn.branches[len(top.ifn.branches)-1].body = top.buf
	}
	top.buf = nil
	top.elseTagged = true
	return nil
}

func (c *compiler) compileEndif() error {
	top := c.top()
	switch top.kind {
	case frameRoot:
		return fmt.Errorf("%w: unexpected directive - found '{%% endif %%}' without '{%% if %%}'", ErrSyntax)
	case frameFor:
		return fmt.Errorf("%w: unexpected directive - found '{%% endif %%}' expected '{%% endfor %%}'", ErrSyntax)
	}
	c.flush()
	if top.elseTagged {
		top.ifn.elseBody = top.buf
	} else {
		top.ifn.branches[len(top.ifn.branches)-1].body = top.buf
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

func (c *compiler) compileFor(body, rest string) error {
	m := forStmtRe.FindStringSubmatch(rest)
	if m == nil {
		return fmt.Errorf("%w: invalid for statement '{%% %s %%}'", ErrSyntax, body)
	}

	var targets []string
	for _, target := range strings.Split(m[1], ",") {
		target = strings.TrimSpace(target)
		if target == "" || strings.ContainsAny(target, ".|") {
			return fmt.Errorf("%w: invalid target in for loop '%s'", ErrSyntax, target)
		}
		targets = append(targets, target)
	}

	// Targets are bound before the iterable compiles, so they stay visible
	// to iterables of nested loops.
	for _, t := range targets {
		c.locals[t]++
	}
	iter, err := c.compileExpression(m[2])
	if err != nil {
		return err
	}

	c.flush()
	n := &forNode{targets: targets, iter: iter}
	top := c.top()
	top.buf = append(top.buf, n)
	c.frames = append(c.frames, &blockFrame{kind: frameFor, forn: n})
	return nil
}

func (c *compiler) compileEndfor() error {
	top := c.top()
	switch top.kind {
	case frameRoot:
		return fmt.Errorf("%w: unexpected directive - found '{%% endfor %%}' without '{%% for %%}'", ErrSyntax)
	case frameIf, frameElif:
		return fmt.Errorf("%w: unexpected directive - found '{%% endfor %%}' expected '{%% endif %%}'", ErrSyntax)
	}
	c.flush()
	if top.elseTagged {
		top.forn.elseBody = top.buf
	} else {
		top.forn.body = top.buf
	}
	for _, t := range top.forn.targets {
		if c.locals[t]--; c.locals[t] <= 0 {
			delete(c.locals, t)
		}
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

func (c *compiler) compileLoopControl(keyword string) error {
	// Legal only while a loop body is open: a for frame already closed off
	// by its else clause does not count.
	inLoop := false
	for _, f := range c.frames {
		if f.kind == frameFor && !f.elseTagged {
			inLoop = true
			break
		}
	}
	if !inLoop {
		return fmt.Errorf("%w: '{%% %s %%}' directive found outside a for block", ErrSyntax, keyword)
	}
	c.flush()
	top := c.top()
	if keyword == "break" {
		top.buf = append(top.buf, &breakNode{})
	} else {
		top.buf = append(top.buf, &continueNode{})
	}
	return nil
}
