package affect

import "github.com/rezkysantika/Expression-Measurement/internal/domain"

const (
	// perSegmentTop bounds the emotion list shown next to each transcript
	// segment; jobTop bounds the job-wide summary.
	perSegmentTop = 3
	jobTop        = 10
)

// BuildAnalysis turns one raw predictions payload into the display digest:
// segments built from the preferred record stream, per-segment emotions
// pooled from every model family overlapping the segment's window, and a
// job-wide summary over all records. An empty or malformed payload yields an
// empty analysis, never an error.
func BuildAnalysis(jobID string, payload []byte) domain.Analysis {
	ex := Extract(payload)
	segments := BuildSegments(ex)

	analysis := domain.Analysis{
		JobID:       jobID,
		Segments:    make([]domain.SegmentAnalysis, 0, len(segments)),
		TopEmotions: []domain.EmotionItem{},
	}

	for _, seg := range segments {
		window := RecordsInWindow(ex.LanguageTokens, seg.Begin, seg.End)
		window = append(window, RecordsInWindow(ex.ProsodyUtterances, seg.Begin, seg.End)...)
		window = append(window, RecordsInWindow(ex.BurstEvents, seg.Begin, seg.End)...)

		emotions := Aggregate(window, perSegmentTop)
		if emotions == nil {
			emotions = []domain.EmotionItem{}
		}
		analysis.Segments = append(analysis.Segments, domain.SegmentAnalysis{
			Segment:  seg,
			Emotions: emotions,
		})
	}

	all := make([]domain.PredictionRecord, 0,
		len(ex.LanguageTokens)+len(ex.ProsodyUtterances)+len(ex.BurstEvents))
	all = append(all, ex.LanguageTokens...)
	all = append(all, ex.ProsodyUtterances...)
	all = append(all, ex.BurstEvents...)
	if top := Aggregate(all, jobTop); top != nil {
		analysis.TopEmotions = top
	}

	return analysis
}
