// Package trigger implements the hysteresis pulse detectors that watch the
// instrument's trigger, azimuth-tick, and revolution-index lines, plus the
// exponential conditioning filter in front of each detector.
package trigger

import "github.com/lingx107/digdar/internal/adc"

// Smoother is an exponential filter whose accumulator holds eight times
// the smoothed value. Each tick computes acc' = 8s - s + raw with sign
// extension and emits acc' >> 3 using an arithmetic shift, so truncation
// is toward negative infinity exactly as the instrument does it. The
// filter always advances; bypass only muxes the raw sample to the output.
type Smoother struct {
	acc    int32
	bypass bool
}

// Reset seeds the accumulator from the current raw sample so the output
// starts with no warm-up transient.
func (s *Smoother) Reset(raw adc.Sample) {
	s.acc = int32(raw) << 3
}

// SetBypass routes raw samples straight to the output.
func (s *Smoother) SetBypass(bypass bool) {
	s.bypass = bypass
}

// Step advances the filter one tick and returns the conditioned value.
func (s *Smoother) Step(raw adc.Sample) adc.Sample {
	s.acc += int32(raw) - (s.acc >> 3)
	if s.bypass {
		return raw
	}
	return adc.Sample(s.acc >> 3)
}
