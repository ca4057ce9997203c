package affect

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

// TokenParams controls word-level segmentation. A new segment starts when the
// silence before a token exceeds Gap seconds (strictly greater; an exact
// boundary does not break), when the previous token ends a sentence, or when
// the open segment already holds MaxTokens tokens.
type TokenParams struct {
	Gap       float64
	MaxTokens int
}

// UtteranceParams controls the fallback merge of utterance-level spans: a
// following utterance is absorbed only while the silence stays within Gap and
// the merged span stays within MaxDuration seconds.
type UtteranceParams struct {
	Gap         float64
	MaxDuration float64
}

func DefaultTokenParams() TokenParams {
	return TokenParams{Gap: 0.7, MaxTokens: 40}
}

func DefaultUtteranceParams() UtteranceParams {
	return UtteranceParams{Gap: 0.6, MaxDuration: 8}
}

var sentenceEnd = regexp.MustCompile(`[.!?]$`)

// BuildSegments picks the segmentation source: word-level tokens whenever any
// exist, else prosody utterances. Both paths use default parameters.
func BuildSegments(ex Extraction) []domain.Segment {
	if len(ex.LanguageTokens) > 0 {
		return SegmentTokens(ex.LanguageTokens, DefaultTokenParams())
	}
	return MergeUtterances(ex.ProsodyUtterances, DefaultUtteranceParams())
}

// SegmentTokens groups word-level tokens into readable segments. Every token
// lands in exactly one segment; segments come out in the order their first
// token was encountered.
func SegmentTokens(tokens []domain.PredictionRecord, p TokenParams) []domain.Segment {
	if len(tokens) == 0 {
		return nil
	}
	sorted := sortedByBegin(tokens)

	var segments []domain.Segment
	var words []string
	var current domain.Segment

	flush := func() {
		current.Text = joinTokenTexts(words)
		segments = append(segments, current)
	}

	for i, tok := range sorted {
		startNew := i == 0 ||
			tok.Begin-sorted[i-1].End > p.Gap ||
			sentenceEnd.MatchString(strings.TrimSpace(sorted[i-1].Text)) ||
			len(words) >= p.MaxTokens

		if startNew {
			if i > 0 {
				flush()
			}
			current = domain.Segment{Begin: tok.Begin, End: tok.End}
			words = []string{tok.Text}
			continue
		}
		current.End = tok.End
		words = append(words, tok.Text)
	}
	flush()
	return segments
}

var punctuationSpace = strings.NewReplacer(" ,", ",", " .", ".", " ;", ";", " !", "!", " ?", "?")

// joinTokenTexts joins token texts with single spaces and drops any space
// that immediately precedes a punctuation mark, so "hello ," renders as
// "hello,".
func joinTokenTexts(words []string) string {
	return punctuationSpace.Replace(strings.Join(words, " "))
}

// MergeUtterances is the fallback segmentation for jobs without language
// tokens: adjacent prosody utterances are merged while the gap/duration
// heuristics hold, otherwise a new segment starts.
func MergeUtterances(utterances []domain.PredictionRecord, p UtteranceParams) []domain.Segment {
	if len(utterances) == 0 {
		return nil
	}
	sorted := sortedByBegin(utterances)

	var segments []domain.Segment
	current := domain.Segment{Text: sorted[0].Text, Begin: sorted[0].Begin, End: sorted[0].End}

	for _, u := range sorted[1:] {
		silence := u.Begin - current.End
		wouldBeDuration := u.End - current.Begin
		if silence <= p.Gap && wouldBeDuration <= p.MaxDuration {
			if u.Text != "" {
				if current.Text != "" {
					current.Text += " "
				}
				current.Text += u.Text
			}
			if u.End > current.End {
				current.End = u.End
			}
			continue
		}
		segments = append(segments, current)
		current = domain.Segment{Text: u.Text, Begin: u.Begin, End: u.End}
	}
	return append(segments, current)
}

// RecordsInWindow returns the records whose span overlaps [begin, end], used
// to gather per-segment evidence from every model family.
func RecordsInWindow(records []domain.PredictionRecord, begin, end float64) []domain.PredictionRecord {
	var out []domain.PredictionRecord
	for _, r := range records {
		if r.End >= begin && r.Begin <= end {
			out = append(out, r)
		}
	}
	return out
}

func sortedByBegin(records []domain.PredictionRecord) []domain.PredictionRecord {
	if sort.SliceIsSorted(records, func(i, j int) bool { return records[i].Begin < records[j].Begin }) {
		return records
	}
	sorted := make([]domain.PredictionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })
	return sorted
}
