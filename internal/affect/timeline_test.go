package affect

import (
	"testing"

	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

var syncSegments = []domain.Segment{
	{Text: "first", Begin: 0, End: 2},
	{Text: "second", Begin: 3, End: 5},
}

func TestActiveSegmentIndex(t *testing.T) {
	cases := []struct {
		t    float64
		want int
	}{
		{0, 0},
		{1.99, 0},
		{2, NoActiveSegment},   // half-open upper bound
		{2.5, NoActiveSegment}, // silence gap
		{3, 1},
		{4.999, 1},
		{5, NoActiveSegment},
		{-1, NoActiveSegment},
		{100, NoActiveSegment},
	}

	for _, c := range cases {
		if got := ActiveSegmentIndex(syncSegments, c.t); got != c.want {
			t.Errorf("ActiveSegmentIndex(t=%v) = %d, want %d", c.t, got, c.want)
		}
	}
}

func TestActiveSegmentIndexEmpty(t *testing.T) {
	if got := ActiveSegmentIndex(nil, 1); got != NoActiveSegment {
		t.Fatalf("no segments means no active segment, got %d", got)
	}
}

func TestTrackerReportsChangesOnce(t *testing.T) {
	tr := NewTracker(syncSegments)

	idx, changed := tr.Update(0.5)
	if idx != 0 || !changed {
		t.Fatalf("entering segment 0: got (%d, %v)", idx, changed)
	}

	if _, changed = tr.Update(1.0); changed {
		t.Fatal("staying inside segment 0 must not report a change")
	}
	if _, changed = tr.Update(1.8); changed {
		t.Fatal("staying inside segment 0 must not report a change")
	}

	idx, changed = tr.Update(2.5)
	if idx != NoActiveSegment || !changed {
		t.Fatalf("entering the gap: got (%d, %v)", idx, changed)
	}

	idx, changed = tr.Update(3.2)
	if idx != 1 || !changed {
		t.Fatalf("entering segment 1: got (%d, %v)", idx, changed)
	}
	if tr.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", tr.Active())
	}
}

func TestTrackerStartsOutsideAnySegment(t *testing.T) {
	tr := NewTracker(syncSegments)
	if _, changed := tr.Update(2.5); changed {
		t.Fatal("starting in silence matches the initial no-segment state")
	}
}

func TestSeekTimeAvoidsBoundary(t *testing.T) {
	seg := domain.Segment{Begin: 3, End: 5}
	seek := SeekTime(seg)
	if seek <= seg.Begin {
		t.Fatalf("seek time %v must land strictly inside the segment", seek)
	}
	if idx := ActiveSegmentIndex(syncSegments, seek); idx != 1 {
		t.Fatalf("seeking to a segment must activate it, got index %d", idx)
	}
}
