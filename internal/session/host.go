package session

import (
	"github.com/soundbench/soundbench/internal/rpc"
	"github.com/soundbench/soundbench/pkg/param"
)

// The session is the parameter host the RPC server talks to. Values
// live in the atomic bridge; the spec list held here is the logical
// view used to derive wire-level Info and to clamp writes.

// ListParameters returns the current flattened parameter list with live
// values.
func (s *Session) ListParameters() []param.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]param.Info, 0, len(s.specs))
	for _, spec := range s.specs {
		value := spec.Default
		if v, ok := s.br.Get(spec.ID); ok {
			value = v
		}
		out = append(out, param.InfoFor(spec, value))
	}
	return out
}

// GetParameter returns the live view of one parameter.
func (s *Session) GetParameter(id string) (param.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec, ok := s.index[id]
	if !ok {
		return param.Info{}, rpc.ErrParameterNotFound
	}
	value := spec.Default
	if v, ok := s.br.Get(id); ok {
		value = v
	}
	return param.InfoFor(spec, value), nil
}

// SetParameter clamps value to the parameter's range and publishes it
// to the bridge. The audio thread observes it within one buffer.
func (s *Session) SetParameter(id string, value float64) (param.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec, ok := s.index[id]
	if !ok {
		return param.Info{}, rpc.ErrParameterNotFound
	}
	clamped := spec.Range.Clamp(value)
	s.br.Set(id, clamped)
	return param.InfoFor(spec, clamped), nil
}

// MeterFrame returns the latest meter data from the audio engine. ok is
// false when audio is disabled or nothing has rendered yet.
func (s *Session) MeterFrame() (rpc.MeterFrame, bool) {
	if s.engine == nil {
		return rpc.MeterFrame{}, false
	}
	m, ok := s.engine.Meter()
	if !ok {
		return rpc.MeterFrame{}, false
	}
	return rpc.MeterFrame{PeakL: m.PeakL, RmsL: m.RmsL, PeakR: m.PeakR, RmsR: m.RmsR}, true
}

// SpectrumFrame returns the latest analyzer frame, best-effort.
func (s *Session) SpectrumFrame() (rpc.SpectrumFrame, bool) {
	if s.analyzer == nil {
		return rpc.SpectrumFrame{}, false
	}
	fr, ok := s.analyzer.Frame()
	if !ok {
		return rpc.SpectrumFrame{}, false
	}
	return rpc.SpectrumFrame{Bins: fr.Bins, BinHz: fr.BinHz}, true
}
