package weft

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprVar is one variable reference rewritten out of an expression fragment.
// At render time the reference is resolved against the context and bound to
// the synthetic identifier before the program runs.
type exprVar struct {
	ident    string
	token    string   // full original token text, e.g. "person.name|len"
	varToken string   // token without the filter suffix
	parts    []string // varToken split on dots
	filter   string   // optional filter name
}

// exprProgram is a condition or iterable compiled once, at template compile
// time, into an expr program whose variable references have been replaced by
// synthetic identifiers.
type exprProgram struct {
	src     string
	program *vm.Program
	vars    []exprVar
}

// Host keywords pass through the rewrite untouched. True and False are
// normalized to the evaluator's boolean literals.
var exprKeywords = map[string]string{
	"in":    "in",
	"is":    "is",
	"not":   "not",
	"and":   "and",
	"or":    "or",
	"xor":   "xor",
	"True":  "true",
	"False": "false",
	"true":  "true",
	"false": "false",
	"nil":   "nil",
}

// compileExpression rewrites a raw fragment (an if/elif condition or a for
// iterable) so that bare variable references become render-time resolver
// bindings, then compiles the result. The scan is lexical: it matches
// name(.name)*(|filtername)? at word boundaries and skips quoted-string
// content. Quoted strings are taken to end at the next identical quote, so a
// variable-shaped token inside a nested quoted string with escaped quotes can
// be misread; templates may rely on that matching, so it stays as is.
func (c *compiler) compileExpression(fragment string) (*exprProgram, error) {
	p := &exprProgram{src: fragment}
	seen := make(map[string]string)

	var out strings.Builder
	i := 0
	for i < len(fragment) {
		ch := fragment[i]

		if ch == '\'' || ch == '"' {
			rel := strings.IndexByte(fragment[i+1:], ch)
			if rel < 0 {
				out.WriteString(fragment[i:])
				break
			}
			out.WriteString(fragment[i : i+rel+2])
			i += rel + 2
			continue
		}

		if !isAlpha(ch) || (i > 0 && isWordByte(fragment[i-1])) {
			out.WriteByte(ch)
			i++
			continue
		}

		start := i
		i = scanName(fragment, i)
		for i+1 < len(fragment) && fragment[i] == '.' && isAlpha(fragment[i+1]) {
			i = scanName(fragment, i+1)
		}
		if i+1 < len(fragment) && fragment[i] == '|' && isAlpha(fragment[i+1]) {
			i = scanName(fragment, i+1)
		}
		token := fragment[start:i]

		if kw, ok := exprKeywords[token]; ok {
			out.WriteString(kw)
			continue
		}

		ident, ok := seen[token]
		if !ok {
			varToken, filter := token, ""
			if k := strings.IndexByte(token, '|'); k >= 0 {
				varToken, filter = token[:k], token[k+1:]
				if !c.filters.Has(filter) {
					return nil, fmt.Errorf("%w: unknown filter '%s'", ErrUnknownFilter, filter)
				}
				// Pipelines inside expressions cannot carry arguments, so a
				// filter that requires them can never run here.
				if err := c.filters.check(filter, nil, nil); err != nil {
					return nil, fmt.Errorf("%w in '%s'", ErrFilterArgs, token)
				}
			}
			parts := strings.Split(varToken, ".")
			c.recordRef(parts[0])
			ident = fmt.Sprintf("v%d", len(p.vars))
			p.vars = append(p.vars, exprVar{
				ident:    ident,
				token:    token,
				varToken: varToken,
				parts:    parts,
				filter:   filter,
			})
			seen[token] = ident
		}
		out.WriteString(ident)
	}

	compiled, err := expr.Compile(out.String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expression '%s': %v", ErrSyntax, fragment, err)
	}
	p.program = compiled
	return p, nil
}

// splitFilterArgs parses a filter argument string. Tokens of the form
// key:value become keyword arguments; every other token is positional.
// Quoted values may contain spaces and arrive quote-stripped.
func splitFilterArgs(s string) ([]string, map[string]string) {
	var args []string
	var kwargs map[string]string

	i := 0
	for i < len(s) {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			break
		}

		key := ""
		if isAlpha(s[i]) {
			j := scanName(s, i)
			if j < len(s) && s[j] == ':' {
				key = s[i:j]
				i = j + 1
			}
		}

		var val string
		if i < len(s) && (s[i] == '\'' || s[i] == '"') {
			q := s[i]
			rel := strings.IndexByte(s[i+1:], q)
			if rel >= 0 {
				val = s[i+1 : i+1+rel]
				i += rel + 2
			} else {
				val = s[i+1:]
				i = len(s)
			}
		} else {
			j := i
			for j < len(s) && s[j] != ' ' {
				j++
			}
			val = s[i:j]
			i = j
		}

		if key != "" {
			if kwargs == nil {
				kwargs = make(map[string]string)
			}
			kwargs[key] = val
		} else {
			args = append(args, val)
		}
	}
	return args, kwargs
}

// scanName consumes an identifier run ([A-Za-z]\w*) starting at i and returns
// the index past its end.
func scanName(s string, i int) int {
	i++ // caller guarantees s[i] is alphabetic
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	return i
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isWordByte(b byte) bool {
	return isAlpha(b) || (b >= '0' && b <= '9') || b == '_'
}
