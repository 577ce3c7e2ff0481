package chain

import (
	"strconv"

	"github.com/soundbench/soundbench/pkg/param"
)

// Flatten walks a composed tree once and returns the full parameter
// list with instance-qualified ids. The first instance of a repeated
// node type keeps its base identity; later instances are suffixed
// ("gain", "gain_2", "gain_3"), so unrelated edits never renumber
// existing parameters.
func Flatten(root Node) ([]param.Spec, error) {
	f := &flattener{counts: make(map[string]int)}
	specs := f.walk(root, "")
	if err := param.ValidateList(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

type flattener struct {
	counts map[string]int
}

// instance assigns the next instance id for a type stem within a scope.
func (f *flattener) instance(scope, stem string) string {
	key := scope + "/" + stem
	f.counts[key]++
	if n := f.counts[key]; n > 1 {
		return stem + "_" + strconv.Itoa(n)
	}
	return stem
}

func (f *flattener) walk(n Node, scope string) []param.Spec {
	switch v := n.(type) {
	case *Chain:
		var specs []param.Spec
		for _, child := range v.nodes {
			specs = append(specs, f.walk(child, scope)...)
		}
		return specs

	case *Bypass:
		// The injected bypass belongs to the wrapped node's
		// instance id, so the wrapper and its inner node share one
		// identity.
		id := join(scope, f.instance(scope, v.inner.TypeID()))
		specs := make([]param.Spec, 0, v.ParamCount())
		specs = append(specs, qualify(param.New(BypassParamID, "Bypass").Toggle().Build(), id))
		return append(specs, f.emit(v.inner, id)...)

	default:
		id := join(scope, f.instance(scope, n.TypeID()))
		return f.emit(n, id)
	}
}

// emit produces the specs of a node under an already-assigned instance
// id. Composite inners keep nesting: their children receive their own
// instances scoped below the id.
func (f *flattener) emit(n Node, id string) []param.Spec {
	if c, ok := n.(*Chain); ok {
		var specs []param.Spec
		for _, child := range c.nodes {
			specs = append(specs, f.walk(child, id)...)
		}
		return specs
	}

	bare := n.ParamSpecs()
	specs := make([]param.Spec, 0, len(bare))
	for _, s := range bare {
		specs = append(specs, qualify(s, id))
	}
	return specs
}

// qualify rewrites a bare spec id into its instance-qualified form.
func qualify(s param.Spec, instanceID string) param.Spec {
	s.ID = instanceID + "_" + s.ID
	return s
}

func join(scope, id string) string {
	if scope == "" {
		return id
	}
	return scope + "_" + id
}
