package domain

// JobStatus is the lifecycle state of a remote inference job as seen by this
// client. StatusResultsReady is synthesized locally the first time a non-empty
// predictions payload is observed; the vendor never reports it.
type JobStatus string

const (
	StatusQueued       JobStatus = "QUEUED"
	StatusInProgress   JobStatus = "IN_PROGRESS"
	StatusCompleted    JobStatus = "COMPLETED"
	StatusFailed       JobStatus = "FAILED"
	StatusUnknown      JobStatus = "UNKNOWN"
	StatusResultsReady JobStatus = "RESULTS_READY"
)

// ParseJobStatus maps a raw vendor status string onto the enum, falling back
// to StatusUnknown for anything unrecognized.
func ParseJobStatus(raw string) JobStatus {
	switch JobStatus(raw) {
	case StatusQueued, StatusInProgress, StatusCompleted, StatusFailed:
		return JobStatus(raw)
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the remote job itself has finished, successfully
// or not.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusResultsReady
}

// EmotionScore is one (name, score) pair as delivered by the vendor. Score
// may be on a 0-1 or 0-100 scale depending on the model family.
type EmotionScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// PredictionRecord is the uniform flattened unit extracted from any of the
// three model families (word-level language, utterance-level prosody,
// discrete burst). Begin and End are seconds from media start. Text is empty
// for burst events.
type PredictionRecord struct {
	Text     string         `json:"text,omitempty"`
	Begin    float64        `json:"begin"`
	End      float64        `json:"end"`
	Emotions []EmotionScore `json:"emotions"`
}

// Segment is a readable grouping of consecutive prediction records. Segments
// partition the timeline in order, never overlap, and may leave silence gaps
// between one another.
type Segment struct {
	Text  string  `json:"text"`
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
}

// EmotionItem is one aggregated category for display: at most one per
// canonical category per aggregation scope, confidence already normalized to
// [0, 1].
type EmotionItem struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Color      string  `json:"color"`
}

// SegmentAnalysis pairs a segment with the strongest emotions observed in its
// time window across all model families.
type SegmentAnalysis struct {
	Segment
	Emotions []EmotionItem `json:"emotions"`
}

// Analysis is the digest served to presentation layers for one job, rebuilt
// wholesale from the latest predictions payload.
type Analysis struct {
	JobID       string            `json:"jobId"`
	Segments    []SegmentAnalysis `json:"segments"`
	TopEmotions []EmotionItem     `json:"topEmotions"`
}

// Job is the local record for a submitted job: what was uploaded, where its
// cached blob lives and the content hash used for duplicate detection.
type Job struct {
	ID         string `json:"jobId"`
	Label      string `json:"label"`
	SourceType string `json:"sourceType"`
	Filename   string `json:"filename,omitempty"`
	Blake3Hash string `json:"blake3Hash,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

const (
	SourceTypeUpload  = "upload"
	SourceTypeURL     = "url"
	SourceTypeArchive = "archive"
)
