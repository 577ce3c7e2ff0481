package param

import "fmt"

// Info is the wire-level runtime view of one parameter: its static spec
// plus the live value, as sent to control clients.
type Info struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Value   float64  `json:"value"`
	Default float64  `json:"default"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Unit    string   `json:"unit,omitempty"`
	Group   string   `json:"group,omitempty"`
	Labels  []string `json:"labels,omitempty"`
}

// InfoFor derives the wire view of a spec with the given live value.
func InfoFor(s Spec, value float64) Info {
	info := Info{
		ID:      s.ID,
		Name:    s.Name,
		Type:    s.Range.Kind.String(),
		Value:   s.Range.Clamp(value),
		Default: s.Default,
		Min:     s.Range.Min,
		Max:     s.Range.Max,
		Unit:    s.Unit,
		Group:   s.Group,
	}
	if s.Range.Kind == Enumerated {
		info.Labels = s.Range.Labels
	}
	return info
}

// ValidateList checks every spec in the list and rejects duplicate ids.
// Unique ids are a session-wide invariant; a list that fails here must
// never reach the bridge or the wire.
func ValidateList(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate parameter id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Defaults returns the default plain values of the list in order.
func Defaults(specs []Spec) []float64 {
	values := make([]float64, len(specs))
	for i, s := range specs {
		values[i] = s.Default
	}
	return values
}
