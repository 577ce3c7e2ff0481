package chain

import (
	"github.com/soundbench/soundbench/pkg/param"
)

// Chain processes audio through a sequence of nodes.
type Chain struct {
	nodes []Node
	count int
}

// Serial composes nodes into a chain, in processing order.
func Serial(nodes ...Node) *Chain {
	c := &Chain{nodes: nodes}
	for _, n := range nodes {
		c.count += n.ParamCount()
	}
	return c
}

// TypeID implements Node.
func (c *Chain) TypeID() string { return "chain" }

// ParamSpecs implements Node. The returned ids are bare; Flatten
// qualifies them per instance.
func (c *Chain) ParamSpecs() []param.Spec {
	specs := make([]param.Spec, 0, c.count)
	for _, n := range c.nodes {
		specs = append(specs, n.ParamSpecs()...)
	}
	return specs
}

// ParamCount implements Node. The count is fixed at composition time so
// the processing path never re-derives the spec list.
func (c *Chain) ParamCount() int { return c.count }

// Prepare implements Node.
func (c *Chain) Prepare(sampleRate float64, maxFrames, channels int) {
	for _, n := range c.nodes {
		n.Prepare(sampleRate, maxFrames, channels)
	}
}

// Process implements Node. The first node reads from in; every node
// after it processes out in place.
func (c *Chain) Process(in, out [][]float32, frames int, values []float64) {
	if len(c.nodes) == 0 {
		copyBuffers(out, in, frames)
		return
	}

	offset := 0
	for i, n := range c.nodes {
		count := n.ParamCount()
		vals := values[offset : offset+count]
		if i == 0 {
			n.Process(in, out, frames, vals)
		} else {
			n.Process(out, out, frames, vals)
		}
		offset += count
	}
}

// Reset implements Node.
func (c *Chain) Reset() {
	for _, n := range c.nodes {
		n.Reset()
	}
}

// Nodes returns the children in processing order.
func (c *Chain) Nodes() []Node { return c.nodes }
