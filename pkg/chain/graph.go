package chain

import (
	"fmt"

	"github.com/soundbench/soundbench/pkg/param"
)

// Graph binds a composed tree to its flattened parameter list. A Graph
// satisfies the binary-module contract the host loader expects, so a
// module's entry point typically returns one.
type Graph struct {
	root  Node
	specs []param.Spec
}

// NewGraph flattens the tree and validates parameter identity.
func NewGraph(root Node) (*Graph, error) {
	specs, err := Flatten(root)
	if err != nil {
		return nil, fmt.Errorf("compose graph: %w", err)
	}
	return &Graph{root: root, specs: specs}, nil
}

// ParamSpecs returns the flattened, instance-qualified parameter list.
func (g *Graph) ParamSpecs() []param.Spec { return g.specs }

// Prepare sizes the tree for the session format.
func (g *Graph) Prepare(sampleRate float64, maxFrames, channels int) {
	g.root.Prepare(sampleRate, maxFrames, channels)
}

// ProcessBlock renders one buffer. values must hold one element per
// flattened parameter, in ParamSpecs order.
func (g *Graph) ProcessBlock(in, out [][]float32, frames int, values []float64) {
	if len(values) < len(g.specs) {
		// Short value slice means the host and module disagree on
		// the parameter set; passing through is the safe rendition.
		copyBuffers(out, in, frames)
		return
	}
	g.root.Process(in, out, frames, values)
}

// Reset clears time-dependent state in the whole tree.
func (g *Graph) Reset() { g.root.Reset() }

// Close releases the graph. Present to complete the module contract.
func (g *Graph) Close() error { return nil }
