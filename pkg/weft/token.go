package weft

import "strings"

// TokenKind identifies the type of a template span.
type TokenKind int

const (
	// TokenText is literal template text, preserved verbatim and in order.
	TokenText TokenKind = iota
	// TokenComment is a {# ... #} span. Comments render as nothing.
	TokenComment
	// TokenDirective is a {% ... %} control-flow span.
	TokenDirective
	// TokenExpression is a {{ ... }} substitution span.
	TokenExpression
)

// Token is one typed span of template source. Tokens are immutable and
// produced once per compile.
type Token struct {
	// Kind is the span type.
	Kind TokenKind
	// Raw is the exact source span, delimiters included.
	Raw string
	// Body is the trimmed payload between the delimiters. Empty for text
	// spans, whose content lives in Raw.
	Body string
	// Pos is the byte offset of the span within the template source.
	Pos int
	// LineStart reports whether the span begins at the start of a source
	// line. Only meaningful for text spans, where it drives indentation
	// stripping.
	LineStart bool
}

// tokenize splits template source into an ordered sequence of typed spans at
// the exact boundaries of {{...}}, {%...%} and {#...#}. Everything else,
// newlines included, is preserved verbatim. A directive that occupies its own
// source line absorbs its leading indentation and the single newline that
// follows it, so directive lines never inject blank output lines. The split
// is purely lexical and never fails: unmatched open sequences are left as
// ordinary text.
func tokenize(src string) []Token {
	var tokens []Token

	flushText := func(start, end int) {
		if start >= end {
			return
		}
		tokens = append(tokens, Token{
			Kind:      TokenText,
			Raw:       src[start:end],
			Pos:       start,
			LineStart: start == 0 || src[start-1] == '\n',
		})
	}

	i, textStart := 0, 0
	for i < len(src) {
		if src[i] != '{' || i+1 >= len(src) {
			i++
			continue
		}

		var kind TokenKind
		var closer string
		switch src[i+1] {
		case '{':
			kind, closer = TokenExpression, "}}"
		case '%':
			kind, closer = TokenDirective, "%}"
		case '#':
			kind, closer = TokenComment, "#}"
		default:
			i++
			continue
		}

		rel := strings.Index(src[i+2:], closer)
		if rel < 0 {
			// No closer anywhere ahead: the open sequence is ordinary text.
			i += 2
			continue
		}

		spanStart := i
		spanEnd := i + 2 + rel + 2
		body := strings.TrimSpace(src[i+2 : i+2+rel])

		if kind == TokenDirective {
			// A directive alone on its line swallows the indentation before
			// it and the newline after it.
			ws := spanStart
			for ws > textStart && (src[ws-1] == ' ' || src[ws-1] == '\t') {
				ws--
			}
			ownLine := (ws == 0 || src[ws-1] == '\n') &&
				(spanEnd == len(src) || src[spanEnd] == '\n')
			if ownLine {
				spanStart = ws
				if spanEnd < len(src) {
					spanEnd++
				}
			}
		}

		flushText(textStart, spanStart)
		tokens = append(tokens, Token{
			Kind: kind,
			Raw:  src[spanStart:spanEnd],
			Body: body,
			Pos:  spanStart,
		})
		textStart = spanEnd
		i = spanEnd
	}
	flushText(textStart, len(src))

	return tokens
}
