package chain

import (
	"testing"

	"github.com/soundbench/soundbench/pkg/param"
)

// scaleNode multiplies the signal by its single parameter.
type scaleNode struct {
	typeID string
	seen   []float64
}

func (s *scaleNode) TypeID() string { return s.typeID }

func (s *scaleNode) ParamSpecs() []param.Spec {
	return []param.Spec{param.New("amount", "Amount").Range(0, 4).Default(1).Build()}
}

func (s *scaleNode) ParamCount() int { return 1 }

func (s *scaleNode) Prepare(sampleRate float64, maxFrames, channels int) {}

func (s *scaleNode) Process(in, out [][]float32, frames int, values []float64) {
	s.seen = append(s.seen, values[0])
	f := float32(values[0])
	for ch := range out {
		for i := 0; i < frames; i++ {
			out[ch][i] = in[ch][i] * f
		}
	}
}

func (s *scaleNode) Reset() {}

// panicSpecNode reports a parameter count but panics if anything on the
// processing path asks for the full spec list.
type panicSpecNode struct {
	scaleNode
}

func (p *panicSpecNode) ParamSpecs() []param.Spec {
	panic("spec list derived on the processing path")
}

func buffers(channels, frames int) [][]float32 {
	return allocBuffers(channels, frames)
}

func fill(buf [][]float32, v float32) {
	for ch := range buf {
		for i := range buf[ch] {
			buf[ch][i] = v
		}
	}
}

func TestFlattenIdentity(t *testing.T) {
	t.Run("RepeatedTypeSuffixed", func(t *testing.T) {
		root := Serial(
			Wrap(&scaleNode{typeID: "gain"}),
			Wrap(&scaleNode{typeID: "delay"}),
			Wrap(&scaleNode{typeID: "gain"}),
		)
		specs, err := Flatten(root)
		if err != nil {
			t.Fatalf("flatten: %v", err)
		}

		ids := make([]string, len(specs))
		for i, s := range specs {
			ids[i] = s.ID
		}
		want := []string{
			"gain_bypass", "gain_amount",
			"delay_bypass", "delay_amount",
			"gain_2_bypass", "gain_2_amount",
		}
		if len(ids) != len(want) {
			t.Fatalf("expected %d specs, got %v", len(want), ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("spec %d: expected id %q, got %q", i, want[i], ids[i])
			}
		}
	})

	t.Run("UnwrappedLeaf", func(t *testing.T) {
		specs, err := Flatten(Serial(&scaleNode{typeID: "gain"}))
		if err != nil {
			t.Fatalf("flatten: %v", err)
		}
		if len(specs) != 1 || specs[0].ID != "gain_amount" {
			t.Errorf("unexpected specs: %+v", specs)
		}
	})

	t.Run("WrappedSubchain", func(t *testing.T) {
		sub := Serial(&scaleNode{typeID: "gain"}, &scaleNode{typeID: "gain"})
		specs, err := Flatten(Serial(Wrap(sub)))
		if err != nil {
			t.Fatalf("flatten: %v", err)
		}
		ids := make([]string, len(specs))
		for i, s := range specs {
			ids[i] = s.ID
		}
		want := []string{"chain_bypass", "chain_gain_amount", "chain_gain_2_amount"}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("spec %d: expected id %q, got %q", i, want[i], ids[i])
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		build := func() []param.Spec {
			specs, err := Flatten(Serial(
				Wrap(&scaleNode{typeID: "gain"}),
				Wrap(&scaleNode{typeID: "gain"}),
			))
			if err != nil {
				t.Fatalf("flatten: %v", err)
			}
			return specs
		}
		a, b := build(), build()
		for i := range a {
			if a[i].ID != b[i].ID {
				t.Errorf("flattening not deterministic at %d: %q vs %q", i, a[i].ID, b[i].ID)
			}
		}
	})
}

func TestChainValueSplit(t *testing.T) {
	first := &scaleNode{typeID: "a"}
	second := &scaleNode{typeID: "b"}
	root := Serial(first, second)
	root.Prepare(48000, 8, 1)

	in := buffers(1, 8)
	out := buffers(1, 8)
	fill(in, 1)

	root.Process(in, out, 8, []float64{2, 3})

	if len(first.seen) != 1 || first.seen[0] != 2 {
		t.Errorf("first node saw %v, expected [2]", first.seen)
	}
	if len(second.seen) != 1 || second.seen[0] != 3 {
		t.Errorf("second node saw %v, expected [3]", second.seen)
	}
	if out[0][0] != 6 {
		t.Errorf("expected serial product 6, got %f", out[0][0])
	}
}

func TestSplitWithoutSpecList(t *testing.T) {
	// The split must rely on ParamCount alone: a node whose spec-list
	// accessor panics still processes correctly.
	n := &panicSpecNode{scaleNode{typeID: "x"}}
	root := Serial(n, &scaleNode{typeID: "y"})
	root.Prepare(48000, 4, 1)

	in := buffers(1, 4)
	out := buffers(1, 4)
	fill(in, 1)

	root.Process(in, out, 4, []float64{2, 2})
	if out[0][0] != 4 {
		t.Errorf("expected 4, got %f", out[0][0])
	}
}

func TestEmptyChainPassesThrough(t *testing.T) {
	root := Serial()
	in := buffers(1, 4)
	out := buffers(1, 4)
	fill(in, 0.5)

	root.Process(in, out, 4, nil)
	for i := 0; i < 4; i++ {
		if out[0][i] != 0.5 {
			t.Errorf("sample %d: expected passthrough 0.5, got %f", i, out[0][i])
		}
	}
}

func TestGraph(t *testing.T) {
	root := Serial(Wrap(&scaleNode{typeID: "gain"}))
	g, err := NewGraph(root)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	if len(g.ParamSpecs()) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(g.ParamSpecs()))
	}

	g.Prepare(48000, 4, 1)
	in := buffers(1, 4)
	out := buffers(1, 4)
	fill(in, 1)

	// Short value slice: host/module mismatch degrades to passthrough.
	g.ProcessBlock(in, out, 4, []float64{0})
	if out[0][0] != 1 {
		t.Errorf("expected passthrough on short values, got %f", out[0][0])
	}

	g.ProcessBlock(in, out, 4, []float64{0, 2})
	if out[0][0] != 2 {
		t.Errorf("expected gain 2 applied, got %f", out[0][0])
	}
}
