package weft

import "testing"

func TestTokenize(t *testing.T) {
	type span struct {
		kind TokenKind
		raw  string
		body string
	}
	testCases := []struct {
		name string
		src  string
		want []span
	}{
		{
			name: "plain text",
			src:  "Hello World",
			want: []span{{TokenText, "Hello World", ""}},
		},
		{
			name: "substitution boundaries",
			src:  "a{{x}}b",
			want: []span{
				{TokenText, "a", ""},
				{TokenExpression, "{{x}}", "x"},
				{TokenText, "b", ""},
			},
		},
		{
			name: "payload whitespace trimmed",
			src:  "{{  person.name  }}",
			want: []span{{TokenExpression, "{{  person.name  }}", "person.name"}},
		},
		{
			name: "comment",
			src:  "a{# note #}b",
			want: []span{
				{TokenText, "a", ""},
				{TokenComment, "{# note #}", "note"},
				{TokenText, "b", ""},
			},
		},
		{
			name: "inline directive keeps surrounding text",
			src:  "a {% if x %}b",
			want: []span{
				{TokenText, "a ", ""},
				{TokenDirective, "{% if x %}", "if x"},
				{TokenText, "b", ""},
			},
		},
		{
			name: "own-line directive absorbs indentation and newline",
			src:  "a\n  {% if x %}\nb",
			want: []span{
				{TokenText, "a\n", ""},
				{TokenDirective, "  {% if x %}\n", "if x"},
				{TokenText, "b", ""},
			},
		},
		{
			name: "own-line directive at end of source",
			src:  "a\n  {% endif %}",
			want: []span{
				{TokenText, "a\n", ""},
				{TokenDirective, "  {% endif %}", "endif"},
			},
		},
		{
			name: "directive at start of source",
			src:  "{% if x %}\nb",
			want: []span{
				{TokenDirective, "{% if x %}\n", "if x"},
				{TokenText, "b", ""},
			},
		},
		{
			name: "unmatched expression open is text",
			src:  "a {{ b",
			want: []span{{TokenText, "a {{ b", ""}},
		},
		{
			name: "unmatched directive open is text",
			src:  "a {% b",
			want: []span{{TokenText, "a {% b", ""}},
		},
		{
			name: "lone brace is text",
			src:  "a { b } c",
			want: []span{{TokenText, "a { b } c", ""}},
		},
		{
			name: "empty source",
			src:  "",
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := tokenize(tc.src)
			if len(tokens) != len(tc.want) {
				t.Fatalf("got %d tokens, want %d: %+v", len(tokens), len(tc.want), tokens)
			}
			for i, w := range tc.want {
				if tokens[i].Kind != w.kind {
					t.Errorf("token %d: got kind %v, want %v", i, tokens[i].Kind, w.kind)
				}
				if tokens[i].Raw != w.raw {
					t.Errorf("token %d: got raw %q, want %q", i, tokens[i].Raw, w.raw)
				}
				if w.kind != TokenText && tokens[i].Body != w.body {
					t.Errorf("token %d: got body %q, want %q", i, tokens[i].Body, w.body)
				}
			}
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens := tokenize("ab{{x}}cd")
	wantPos := []int{0, 2, 7}
	if len(tokens) != len(wantPos) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(wantPos))
	}
	for i, want := range wantPos {
		if tokens[i].Pos != want {
			t.Errorf("token %d: got pos %d, want %d", i, tokens[i].Pos, want)
		}
	}
}

func TestTokenizeLineStart(t *testing.T) {
	tokens := tokenize("ab\ncd{{x}}ef")
	// "ab\ncd" begins the source, "ef" follows a substitution mid-line.
	if !tokens[0].LineStart {
		t.Error("first text token should be at line start")
	}
	if tokens[2].LineStart {
		t.Error("text after a mid-line substitution should not be at line start")
	}
}
