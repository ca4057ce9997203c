// Package affect implements the transcript segmentation and
// timeline-alignment engine: flattening nested prediction payloads into
// uniform time-stamped records, grouping them into readable segments,
// max-pooling emotion scores per category, and tracking the segment under an
// audio playback position. Everything here is a pure function of the latest
// payload snapshot; there is no I/O.
package affect

import "math"

// Normalize maps an arbitrary confidence value onto [0, 1]. The upstream API
// is inconsistent about scale across model families: values above 1 are
// assumed to be percentages and divided by 100. NaN and infinities map to 0,
// small negative noise clamps to 0.
func Normalize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
