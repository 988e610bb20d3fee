// Package units converts digitizer sample geometry to physical radar units
package units

// SpeedOfLight in meters per second
const SpeedOfLight = 299792458.0

// RangePerSample returns the radial distance in meters spanned by one
// decimated video sample at the given tick rate. Echoes travel out and
// back, so one tick covers half the distance light travels in it.
func RangePerSample(decim int, tickHz int64) float64 {
	return SpeedOfLight * float64(decim) / float64(tickHz) / 2
}

// AzimuthDegrees converts a fractional azimuth in [0,1) to degrees.
func AzimuthDegrees(frac float64) float64 {
	return frac * 360
}
