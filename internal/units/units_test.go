package units

import (
	"math"
	"testing"
)

func TestRangePerSample(t *testing.T) {
	// One 8 ns tick covers about 1.2 m of two-way range.
	got := RangePerSample(1, 125_000_000)
	if math.Abs(got-1.19917) > 0.0001 {
		t.Errorf("RangePerSample(1) = %v, want ~1.19917", got)
	}

	// Decimation scales the span linearly.
	if r8 := RangePerSample(8, 125_000_000); math.Abs(r8-8*got) > 1e-9 {
		t.Errorf("RangePerSample(8) = %v, want %v", r8, 8*got)
	}
}

func TestAzimuthDegrees(t *testing.T) {
	cases := []struct{ frac, want float64 }{
		{0, 0},
		{0.25, 90},
		{0.5, 180},
		{0.75, 270},
	}
	for _, tc := range cases {
		if got := AzimuthDegrees(tc.frac); got != tc.want {
			t.Errorf("AzimuthDegrees(%v) = %v, want %v", tc.frac, got, tc.want)
		}
	}
}
