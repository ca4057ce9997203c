package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

// ReportService renders a job's analysis to a printable PDF: the transcript
// segment by segment with time ranges and top emotions, plus the job-wide
// summary.
type ReportService struct{}

func NewReportService() *ReportService {
	return &ReportService{}
}

func (s *ReportService) Generate(job domain.Job, analysis domain.Analysis, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Expression report %s", job.ID), false)
	pdf.SetAuthor("Expression Measurement", false)
	pdf.AddPage()

	title := job.Label
	if strings.TrimSpace(title) == "" {
		title = job.ID
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Job: %s", job.ID))
	pdf.Ln(6)
	if job.CreatedAt > 0 {
		createdAt := time.Unix(job.CreatedAt, 0).Local()
		pdf.Cell(0, 6, fmt.Sprintf("Submitted: %s", createdAt.Format("2006-01-02 15:04")))
		pdf.Ln(6)
	}
	pdf.Ln(6)

	s.writeSummary(pdf, analysis.TopEmotions)
	pdf.Ln(8)
	s.writeTranscript(pdf, analysis.Segments)

	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write report pdf: %w", err)
	}
	return nil
}

func (s *ReportService) writeSummary(pdf *gofpdf.Fpdf, top []domain.EmotionItem) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Strongest expressions")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	if len(top) == 0 {
		pdf.MultiCell(0, 6, "No expression data found.", "", "L", false)
		return
	}
	for _, item := range top {
		pdf.MultiCell(0, 6, fmt.Sprintf("%s  %.0f%%", item.Name, item.Confidence*100), "", "L", false)
	}
}

func (s *ReportService) writeTranscript(pdf *gofpdf.Fpdf, segments []domain.SegmentAnalysis) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Transcript")
	pdf.Ln(10)

	if len(segments) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No transcript segments.", "", "L", false)
		return
	}

	for _, seg := range segments {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 5, fmt.Sprintf("%s - %s", formatTimestamp(seg.Begin), formatTimestamp(seg.End)))
		pdf.Ln(6)

		pdf.SetFont("Helvetica", "", 11)
		text := seg.Text
		if strings.TrimSpace(text) == "" {
			text = "(no speech)"
		}
		pdf.MultiCell(0, 6, text, "", "L", false)

		if len(seg.Emotions) > 0 {
			labels := make([]string, 0, len(seg.Emotions))
			for _, e := range seg.Emotions {
				labels = append(labels, fmt.Sprintf("%s %.0f%%", e.Name, e.Confidence*100))
			}
			pdf.SetFont("Helvetica", "I", 9)
			pdf.MultiCell(0, 5, strings.Join(labels, "   "), "", "L", false)
		}
		pdf.Ln(3)
	}
}

func formatTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
