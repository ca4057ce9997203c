package affect

import "github.com/rezkysantika/Expression-Measurement/internal/domain"

// NoActiveSegment is returned when no segment contains the playback position:
// before the first segment, inside a silence gap, or past the end.
const NoActiveSegment = -1

// seekEpsilon nudges a seek past the segment boundary so that a float compare
// at t == begin cannot land in the previous segment.
const seekEpsilon = 0.01

// ActiveSegmentIndex finds the segment whose half-open range [begin, end)
// contains t. Segments are ordered by begin and never overlap, so the scan
// can stop at the first segment starting after t.
func ActiveSegmentIndex(segments []domain.Segment, t float64) int {
	for i, s := range segments {
		if s.Begin > t {
			break
		}
		if t >= s.Begin && t < s.End {
			return i
		}
	}
	return NoActiveSegment
}

// SeekTime is the playback position to jump to when the user selects a
// segment.
func SeekTime(s domain.Segment) float64 {
	return s.Begin + seekEpsilon
}

// Tracker follows playback time across a fixed segment list and reports each
// change of active segment exactly once. It is driven by media time updates
// and does no I/O; rebuild it whenever the segment list changes.
type Tracker struct {
	segments []domain.Segment
	last     int
}

func NewTracker(segments []domain.Segment) *Tracker {
	return &Tracker{segments: segments, last: NoActiveSegment}
}

// Update recomputes the active segment for playback position t. changed is
// true only when the index differs from the previous update, never on
// re-entry of the same segment.
func (tr *Tracker) Update(t float64) (index int, changed bool) {
	index = ActiveSegmentIndex(tr.segments, t)
	if index == tr.last {
		return index, false
	}
	tr.last = index
	return index, true
}

// Active returns the index reported by the most recent Update.
func (tr *Tracker) Active() int {
	return tr.last
}
