package http

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rezkysantika/Expression-Measurement/internal/affect"
	"github.com/rezkysantika/Expression-Measurement/internal/archive"
	"github.com/rezkysantika/Expression-Measurement/internal/config"
	"github.com/rezkysantika/Expression-Measurement/internal/domain"
	"github.com/rezkysantika/Expression-Measurement/internal/hume"
	"github.com/rezkysantika/Expression-Measurement/internal/jobs"
	"github.com/rezkysantika/Expression-Measurement/internal/services"
	"github.com/rezkysantika/Expression-Measurement/internal/storage"
)

type API struct {
	cfg    config.Config
	store  *storage.AudioStore
	hume   *hume.Client
	jobs   *jobs.Manager
	report *services.ReportService
	share  *services.ShareService
}

func NewAPI(cfg config.Config, store *storage.AudioStore, client *hume.Client, manager *jobs.Manager, report *services.ReportService, share *services.ShareService) *API {
	return &API{cfg: cfg, store: store, hume: client, jobs: manager, report: report, share: share}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		apiGroup.GET("/jobs", api.handleListJobs)
		apiGroup.POST("/jobs", api.handleSubmitJob)
		apiGroup.POST("/jobs/archive", api.handleSubmitArchive)

		apiGroup.GET("/jobs/:id", api.handleJobStatus)
		apiGroup.DELETE("/jobs/:id", api.handleDeleteJob)
		apiGroup.GET("/jobs/:id/analysis", api.handleAnalysis)
		apiGroup.GET("/jobs/:id/audio", api.handleAudio)
		apiGroup.GET("/jobs/:id/sync", api.handleSync)
		apiGroup.POST("/jobs/:id/report", api.handleGenerateReport)
		apiGroup.POST("/jobs/:id/share", api.handleShareReport)
	}

	r.GET("/report/:id", api.handleServeReport)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListJobs(c *gin.Context) {
	jobList, err := a.store.ListJobs()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if jobList == nil {
		jobList = []domain.Job{}
	}
	c.JSON(http.StatusOK, jobList)
}

// handleSubmitJob accepts either a multipart audio upload or a JSON body with
// a media URL. Input is validated before any network call.
func (a *API) handleSubmitJob(c *gin.Context) {
	if fileHeader, err := c.FormFile("file"); err == nil {
		a.submitUpload(c, fileHeader)
		return
	}

	var payload struct {
		URL   string `json:"url"`
		Label string `json:"label"`
	}
	if bindErr := c.ShouldBindJSON(&payload); bindErr != nil || strings.TrimSpace(payload.URL) == "" {
		respondMessage(c, http.StatusBadRequest, "provide an audio file or a media url")
		return
	}

	jobID, err := a.hume.SubmitURL(c.Request.Context(), payload.URL)
	if err != nil {
		respondVendorError(c, err)
		return
	}

	label := payload.Label
	if label == "" {
		label = payload.URL
	}
	job, err := a.store.RecordJob(jobID, label, domain.SourceTypeURL)
	if err != nil {
		log.Printf("job %s: index record failed: %v", jobID, err)
	}
	a.jobs.Watch(jobID)

	c.JSON(http.StatusCreated, gin.H{"jobId": jobID, "job": job})
}

func (a *API) submitUpload(c *gin.Context, fileHeader *multipart.FileHeader) {
	filename := fileHeader.Filename
	if !archive.IsAudioFilename(filename) {
		respondMessage(c, http.StatusBadRequest, "unsupported file extension")
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	label := c.PostForm("label")
	if label == "" {
		label = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	job, dupOf, err := a.submitAudioStream(c, filename, label, domain.SourceTypeUpload, upload)
	if err != nil {
		return // response already written
	}

	resp := gin.H{"jobId": job.ID, "job": job}
	if dupOf != "" {
		resp["duplicateOf"] = dupOf
	}
	c.JSON(http.StatusCreated, resp)
}

// submitAudioStream stages the audio locally, submits it to the vendor,
// commits the blob under the returned job id and starts a watcher. On error
// it writes the HTTP response itself.
func (a *API) submitAudioStream(c *gin.Context, filename, label, sourceType string, r io.Reader) (domain.Job, string, error) {
	staged, err := a.store.Stage(filename, r)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return domain.Job{}, "", err
	}

	duplicateOf := ""
	if dup, ok := a.store.LookupByHash(staged.Hash); ok {
		log.Printf("upload %s matches cached content of job %s", filename, dup.ID)
		duplicateOf = dup.ID
	}

	blob, err := os.Open(staged.Path)
	if err != nil {
		a.store.Discard(staged)
		respondMessage(c, http.StatusInternalServerError, "unable to read staged audio")
		return domain.Job{}, "", err
	}
	jobID, err := a.hume.SubmitFile(c.Request.Context(), filename, blob)
	blob.Close()
	if err != nil {
		a.store.Discard(staged)
		respondVendorError(c, err)
		return domain.Job{}, "", err
	}

	job, err := a.store.Commit(jobID, label, sourceType, staged)
	if err != nil {
		log.Printf("job %s: blob commit failed: %v", jobID, err)
		job = domain.Job{ID: jobID, Label: label, SourceType: sourceType}
	}
	a.jobs.Watch(jobID)

	return job, duplicateOf, nil
}

// handleSubmitArchive submits every audio entry of an uploaded ZIP as its own
// job.
func (a *API) handleSubmitArchive(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing archive file")
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".zip") {
		respondMessage(c, http.StatusBadRequest, "archive must be a zip file")
		return
	}

	tmp, err := os.CreateTemp("", "archive-*.zip")
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to buffer archive")
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	upload, err := fileHeader.Open()
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded archive")
		return
	}
	size, err := io.Copy(tmp, upload)
	upload.Close()
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to buffer archive")
		return
	}

	entries, err := archive.ExtractAudio(tmp, size)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if len(entries) == 0 {
		respondMessage(c, http.StatusBadRequest, "archive contains no audio files")
		return
	}

	type result struct {
		Name  string `json:"name"`
		JobID string `json:"jobId,omitempty"`
		Error string `json:"error,omitempty"`
	}
	results := make([]result, 0, len(entries))
	submitted := 0

	for _, entry := range entries {
		rc, err := entry.Open()
		if err != nil {
			results = append(results, result{Name: entry.Name, Error: err.Error()})
			continue
		}

		label := strings.TrimSuffix(entry.Name, filepath.Ext(entry.Name))
		job, _, err := a.submitArchiveEntry(c, entry.Name, label, rc)
		rc.Close()
		if err != nil {
			results = append(results, result{Name: entry.Name, Error: err.Error()})
			continue
		}
		results = append(results, result{Name: entry.Name, JobID: job.ID})
		submitted++
	}

	status := http.StatusCreated
	if submitted == 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"batchId": uuid.NewString(), "jobs": results})
}

// submitArchiveEntry is the non-responding variant of submitAudioStream used
// for batch entries: one failing entry must not abort the rest.
func (a *API) submitArchiveEntry(c *gin.Context, filename, label string, r io.Reader) (domain.Job, string, error) {
	staged, err := a.store.Stage(filename, r)
	if err != nil {
		return domain.Job{}, "", err
	}

	duplicateOf := ""
	if dup, ok := a.store.LookupByHash(staged.Hash); ok {
		duplicateOf = dup.ID
	}

	blob, err := os.Open(staged.Path)
	if err != nil {
		a.store.Discard(staged)
		return domain.Job{}, "", err
	}
	jobID, err := a.hume.SubmitFile(c.Request.Context(), filename, blob)
	blob.Close()
	if err != nil {
		a.store.Discard(staged)
		return domain.Job{}, "", err
	}

	job, err := a.store.Commit(jobID, label, domain.SourceTypeArchive, staged)
	if err != nil {
		log.Printf("job %s: blob commit failed: %v", jobID, err)
		job = domain.Job{ID: jobID, Label: label, SourceType: domain.SourceTypeArchive}
	}
	a.jobs.Watch(jobID)

	return job, duplicateOf, nil
}

func (a *API) handleJobStatus(c *gin.Context) {
	jobID := c.Param("id")

	if w, ok := a.jobs.Get(jobID); ok {
		snap := w.Snapshot()
		resp := gin.H{"jobId": jobID, "status": snap.Status}
		if snap.Err != "" {
			resp["error"] = snap.Err
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	// Not watched by this process: probe the vendor directly.
	status, err := a.hume.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		respondVendorError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "status": status})
}

func (a *API) handleDeleteJob(c *gin.Context) {
	jobID := c.Param("id")

	a.jobs.Remove(jobID)
	if err := a.store.Delete(jobID); err != nil {
		status := http.StatusNotFound
		if !strings.Contains(err.Error(), "not found") {
			status = http.StatusInternalServerError
		}
		respondMessage(c, status, err.Error())
		return
	}
	_ = os.Remove(a.store.ReportPath(jobID))

	c.Status(http.StatusNoContent)
}

func (a *API) handleAnalysis(c *gin.Context) {
	jobID := c.Param("id")

	payload, err := a.loadPayload(c, jobID)
	if err != nil {
		respondVendorError(c, err)
		return
	}

	c.JSON(http.StatusOK, affect.BuildAnalysis(jobID, payload))
}

// loadPayload returns the latest predictions payload for a job: the watcher's
// latched snapshot when this process submitted the job, else one direct
// vendor fetch. An empty payload is valid (no results yet).
func (a *API) loadPayload(c *gin.Context, jobID string) ([]byte, error) {
	if w, ok := a.jobs.Get(jobID); ok {
		if snap := w.Snapshot(); snap.HasResults() {
			return snap.Payload, nil
		}
		return nil, nil
	}

	payload, ok, err := a.hume.GetPredictions(c.Request.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return payload, nil
}

func (a *API) handleAudio(c *gin.Context) {
	jobID := c.Param("id")

	path, ok := a.store.Get(jobID)
	if !ok {
		respondMessage(c, http.StatusNotFound, "no cached audio for this job")
		return
	}

	c.Header("Content-Type", storage.ContentTypeForExt(filepath.Ext(path)))
	c.File(path)
}

func (a *API) handleGenerateReport(c *gin.Context) {
	jobID := c.Param("id")

	job, ok := a.store.GetJob(jobID)
	if !ok {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}

	payload, err := a.loadPayload(c, jobID)
	if err != nil {
		respondVendorError(c, err)
		return
	}
	if len(payload) == 0 {
		respondMessage(c, http.StatusBadRequest, "no results available for this job yet")
		return
	}

	analysis := affect.BuildAnalysis(jobID, payload)
	outPath := a.store.ReportPath(jobID)
	if err := a.report.Generate(job, analysis, outPath); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reportPath": outPath})
}

func (a *API) handleShareReport(c *gin.Context) {
	jobID := c.Param("id")

	if _, ok := a.store.GetJob(jobID); !ok {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}
	if _, err := os.Stat(a.store.ReportPath(jobID)); err != nil {
		respondMessage(c, http.StatusBadRequest, "no report generated for this job")
		return
	}

	url, expiresAt, err := a.share.Generate(jobID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "expiresAt": expiresAt.UTC()})
}

func (a *API) handleServeReport(c *gin.Context) {
	jobID := c.Param("id")
	expiresParam := c.Query("exp")
	signature := c.Query("sig")

	if expiresParam == "" || signature == "" {
		respondMessage(c, http.StatusBadRequest, "missing signature")
		return
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid expiration")
		return
	}

	if expires < time.Now().Unix() {
		respondMessage(c, http.StatusGone, "link expired")
		return
	}

	path := c.Request.URL.Path
	if !a.share.Validate(path, expires, signature) {
		respondMessage(c, http.StatusForbidden, "invalid signature")
		return
	}

	reportPath := a.store.ReportPath(jobID)
	if _, err := os.Stat(reportPath); err != nil {
		respondMessage(c, http.StatusNotFound, "report not found")
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(reportPath, filepath.Base(reportPath))
}

// respondVendorError maps client errors onto HTTP statuses: a missing API key
// is a configuration problem (500), anything the vendor rejected keeps its
// message behind a 502.
func respondVendorError(c *gin.Context, err error) {
	if errors.Is(err, hume.ErrMissingAPIKey) {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	var apiErr *hume.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}
	respondError(c, http.StatusBadGateway, err)
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
