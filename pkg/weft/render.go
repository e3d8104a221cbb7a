package weft

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/expr-lang/expr/vm"
)

// Loop control signals, propagated up through nested blocks until the
// enclosing for node consumes them.
var (
	errLoopBreak    = errors.New("loop break")
	errLoopContinue = errors.New("loop continue")
)

// renderState is the per-render mutable state. Every render call allocates
// its own, so concurrent renders of one Renderer never share buffers.
type renderState struct {
	out     strings.Builder
	context map[string]any
	locals  map[string]any
}

// Render merges the given context maps (later maps win on key collision) and
// renders the compiled program into a string. Under the strict policy every
// context name recorded at compile time must be present in the merged
// context, checked before rendering begins. A render either completes fully
// or returns an error; there is no partial output.
func (r *Renderer) Render(contexts ...map[string]any) (string, error) {
	merged := make(map[string]any)
	for _, ctx := range contexts {
		for k, v := range ctx {
			merged[k] = v
		}
	}

	if r.strict {
		for _, name := range r.prog.contextRefs {
			if _, ok := merged[name]; !ok {
				return "", unknownValue(name)
			}
		}
	}

	st := &renderState{
		context: merged,
		locals:  make(map[string]any),
	}
	if err := r.execNodes(r.prog.nodes, st); err != nil {
		return "", err
	}
	return st.out.String(), nil
}

func (r *Renderer) execNodes(nodes []node, st *renderState) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case *outputNode:
			for _, seg := range n.segments {
				switch seg := seg.(type) {
				case textSegment:
					st.out.WriteString(string(seg))
				case substSegment:
					s, err := r.evalSubstitution(seg.sub, st)
					if err != nil {
						return err
					}
					st.out.WriteString(s)
				}
			}
		case *ifNode:
			if err := r.execIf(n, st); err != nil {
				return err
			}
		case *forNode:
			if err := r.execFor(n, st); err != nil {
				return err
			}
		case *breakNode:
			return errLoopBreak
		case *continueNode:
			return errLoopContinue
		}
	}
	return nil
}

func (r *Renderer) execIf(n *ifNode, st *renderState) error {
	for _, br := range n.branches {
		v, err := r.evalExpr(br.cond, st)
		if err != nil {
			return err
		}
		if truthy(v) {
			return r.execNodes(br.body, st)
		}
	}
	return r.execNodes(n.elseBody, st)
}

func (r *Renderer) execFor(n *forNode, st *renderState) error {
	iter, err := r.evalExpr(n.iter, st)
	if err != nil {
		return err
	}
	items, err := iterate(iter)
	if err != nil {
		return err
	}

	// Save shadowed bindings so nested loops restore the outer scope.
	saved := make(map[string]any, len(n.targets))
	bound := make(map[string]bool, len(n.targets))
	for _, t := range n.targets {
		if v, ok := st.locals[t]; ok {
			saved[t] = v
			bound[t] = true
		}
	}

	broke := false
	for _, item := range items {
		if err := bindTargets(st.locals, n.targets, item); err != nil {
			return err
		}
		err := r.execNodes(n.body, st)
		switch {
		case errors.Is(err, errLoopContinue):
			continue
		case errors.Is(err, errLoopBreak):
			broke = true
		case err != nil:
			return err
		}
		if broke {
			break
		}
	}

	if !broke {
		if err := r.execNodes(n.elseBody, st); err != nil {
			return err
		}
	}

	for _, t := range n.targets {
		if bound[t] {
			st.locals[t] = saved[t]
		} else {
			delete(st.locals, t)
		}
	}
	return nil
}

// evalSubstitution resolves one {{ ... }} segment to its output text,
// applying the error policy for unresolved values. Under the lenient policy
// a miss yields the configured default or the original token echoed with its
// delimiters; the filter pipeline is skipped in that case.
func (r *Renderer) evalSubstitution(sub substitution, st *renderState) (string, error) {
	v, err := resolve(sub.varToken, sub.parts, st.context, st.locals)
	if err != nil {
		if errors.Is(err, ErrUnknownValue) && !r.strict {
			if r.hasDefault {
				return r.defaultText, nil
			}
			return "{{" + sub.varToken + "}}", nil
		}
		return "", err
	}

	if sub.filter != "" {
		v, err = r.filters.invoke(sub.filter, sub.token, v, sub.args, sub.kwargs)
		if err != nil {
			return "", err
		}
	}
	return stringify(v), nil
}

// evalExpr binds every variable reference of a compiled condition/iterable
// and runs the program. Under the lenient policy an unresolved reference
// becomes nil, since there is no textual slot to echo into.
func (r *Renderer) evalExpr(p *exprProgram, st *renderState) (any, error) {
	env := make(map[string]any, len(p.vars))
	for _, ev := range p.vars {
		val, err := resolve(ev.varToken, ev.parts, st.context, st.locals)
		if err != nil {
			if !errors.Is(err, ErrUnknownValue) || r.strict {
				return nil, err
			}
			env[ev.ident] = nil
			continue
		}
		if ev.filter != "" {
			val, err = r.filters.invoke(ev.filter, ev.token, val, nil, nil)
			if err != nil {
				return nil, err
			}
		}
		env[ev.ident] = val
	}

	out, err := vm.Run(p.program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression '%s': %w", p.src, err)
	}
	return out, nil
}

// iterate materializes an iterable value into its elements. Maps iterate
// their keys in a deterministic order so repeated renders of one program are
// identical; strings iterate their characters. A nil iterable yields nothing.
func iterate(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items, nil
	case reflect.Map:
		items := make([]any, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			items = append(items, k.Interface())
		}
		sort.Slice(items, func(i, j int) bool {
			return fmt.Sprint(items[i]) < fmt.Sprint(items[j])
		})
		return items, nil
	case reflect.String:
		s := rv.String()
		items := make([]any, 0, len(s))
		for _, r := range s {
			items = append(items, string(r))
		}
		return items, nil
	case reflect.Chan:
		var items []any
		for {
			item, ok := rv.Recv()
			if !ok {
				return items, nil
			}
			items = append(items, item.Interface())
		}
	default:
		return nil, fmt.Errorf("cannot iterate value of type %T", v)
	}
}

// bindTargets binds one iteration element to the loop targets, unpacking the
// element when the loop names more than one.
func bindTargets(locals map[string]any, targets []string, item any) error {
	if len(targets) == 1 {
		locals[targets[0]] = item
		return nil
	}
	elems, err := iterate(item)
	if err != nil {
		return fmt.Errorf("cannot unpack loop element: %w", err)
	}
	if len(elems) != len(targets) {
		return fmt.Errorf("cannot unpack %d values into %d loop targets", len(elems), len(targets))
	}
	for i, t := range targets {
		locals[t] = elems[i]
	}
	return nil
}

// truthy reports template truth: nil, false, zero numbers and empty
// strings/collections are false, everything else true.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan, reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// stringify converts a resolved value to output text. nil renders empty.
func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
