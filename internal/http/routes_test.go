package http

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rezkysantika/Expression-Measurement/internal/config"
	"github.com/rezkysantika/Expression-Measurement/internal/hume"
	"github.com/rezkysantika/Expression-Measurement/internal/jobs"
	"github.com/rezkysantika/Expression-Measurement/internal/services"
	"github.com/rezkysantika/Expression-Measurement/internal/storage"
)

const vendorPayload = `[{"results": {"predictions": [{"models": {"language": {"grouped_predictions": [{"predictions": [
	{"text": "Hi", "time": {"begin": 0, "end": 0.3}, "emotions": [{"name": "Joy", "score": 0.8}]},
	{"text": "there.", "time": {"begin": 0.35, "end": 0.7}, "emotions": [{"name": "Calmness", "score": 0.4}]}
]}]}}}]}}]`

// vendorStub fakes the remote inference API: every submission gets a fresh
// job id, statuses stay IN_PROGRESS, predictions return the configured
// payload.
type vendorStub struct {
	mu          sync.Mutex
	submissions int
	payload     string
}

func (v *vendorStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			v.mu.Lock()
			v.submissions++
			n := v.submissions
			v.mu.Unlock()
			fmt.Fprintf(w, `{"job_id": "job-%d"}`, n)
		case strings.HasSuffix(r.URL.Path, "/predictions"):
			v.mu.Lock()
			payload := v.payload
			v.mu.Unlock()
			w.Write([]byte(payload))
		default:
			w.Write([]byte(`{"state": {"status": "IN_PROGRESS"}}`))
		}
	})
}

func setupTestServer(t *testing.T, apiKey string) (*gin.Engine, *vendorStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stub := &vendorStub{payload: vendorPayload}
	vendor := httptest.NewServer(stub.handler())
	t.Cleanup(vendor.Close)

	cfg := config.Config{
		Port:           "8080",
		HumeAPIKey:     apiKey,
		HumeAPIBase:    vendor.URL,
		PollInterval:   5 * time.Millisecond,
		MaxUploadBytes: 1 * 1024 * 1024,
		DataDir:        t.TempDir(),
		BaseURL:        "http://localhost:8080",
		ShareSecret:    "secret",
		ShareTTL:       time.Minute,
	}

	store, err := storage.NewAudioStore(cfg.DataDir, cfg.MaxUploadBytes)
	if err != nil {
		t.Fatalf("audio store: %v", err)
	}

	client := hume.NewClient(cfg)
	manager := jobs.NewManager(client, cfg.PollInterval)
	t.Cleanup(func() {
		manager.StopAll()
		store.Close()
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	api := NewAPI(cfg, store, client, manager, services.NewReportService(), services.NewShareService(cfg))
	registerRoutes(engine, api)

	return engine, stub
}

func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doJSON(t *testing.T, engine *gin.Engine, method, target string, want int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != want {
		t.Fatalf("%s %s: expected %d, got %d (%s)", method, target, want, rec.Code, rec.Body.String())
	}

	var body map[string]any
	if len(rec.Body.Bytes()) > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return body
}

func TestHealthHandler(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	body := doJSON(t, engine, http.MethodGet, "/api/health", http.StatusOK)
	if ok, exists := body["ok"].(bool); !exists || !ok {
		t.Fatalf("expected ok=true, body=%v", body)
	}
}

func TestSubmitRequiresInput(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	body := doJSON(t, engine, http.MethodPost, "/api/jobs", http.StatusBadRequest)
	if body["error"] == nil {
		t.Fatal("expected error message")
	}
}

func TestSubmitRejectsUnsupportedExtension(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	req := uploadRequest(t, "/api/jobs", "notes.txt", []byte("hello"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitWithoutAPIKeyIsConfigError(t *testing.T) {
	engine, _ := setupTestServer(t, "")

	req := uploadRequest(t, "/api/jobs", "clip.wav", []byte("RIFFaudio"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("missing api key must be a 500, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSubmitUploadFlow(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	req := uploadRequest(t, "/api/jobs", "clip.wav", []byte("RIFFaudio"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.JobID == "" {
		t.Fatal("expected a job id")
	}

	// Cached blob is served back.
	audioReq := httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.JobID+"/audio", nil)
	audioRec := httptest.NewRecorder()
	engine.ServeHTTP(audioRec, audioReq)
	if audioRec.Code != http.StatusOK || audioRec.Body.String() != "RIFFaudio" {
		t.Fatalf("audio: %d %q", audioRec.Code, audioRec.Body.String())
	}

	// The watcher latches the stubbed payload; analysis follows.
	deadline := time.Now().Add(2 * time.Second)
	for {
		analysisReq := httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.JobID+"/analysis", nil)
		analysisRec := httptest.NewRecorder()
		engine.ServeHTTP(analysisRec, analysisReq)
		if analysisRec.Code != http.StatusOK {
			t.Fatalf("analysis: %d", analysisRec.Code)
		}

		var analysis struct {
			Segments []struct {
				Text string `json:"text"`
			} `json:"segments"`
		}
		if err := json.Unmarshal(analysisRec.Body.Bytes(), &analysis); err != nil {
			t.Fatalf("decode analysis: %v", err)
		}
		if len(analysis.Segments) > 0 {
			if analysis.Segments[0].Text != "Hi there." {
				t.Fatalf("segment text = %q", analysis.Segments[0].Text)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("analysis never produced segments")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Status reflects the latched results.
	body := doJSON(t, engine, http.MethodGet, "/api/jobs/"+created.JobID, http.StatusOK)
	if body["status"] != "RESULTS_READY" {
		t.Fatalf("status = %v", body["status"])
	}
}

func TestDeleteJobDropsWatcherState(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	req := uploadRequest(t, "/api/jobs", "clip.wav", []byte("RIFFaudio"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	var created struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		body := doJSON(t, engine, http.MethodGet, "/api/jobs/"+created.JobID, http.StatusOK)
		if body["status"] == "RESULTS_READY" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("results never latched")
		}
		time.Sleep(5 * time.Millisecond)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/jobs/"+created.JobID, nil)
	delRec := httptest.NewRecorder()
	engine.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", delRec.Code)
	}

	// Deletion must drop the latched snapshot: the status lookup now probes
	// the vendor, which still reports the job in progress.
	body := doJSON(t, engine, http.MethodGet, "/api/jobs/"+created.JobID, http.StatusOK)
	if body["status"] != "IN_PROGRESS" {
		t.Fatalf("status after delete = %v, want the vendor probe result", body["status"])
	}

	audioReq := httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.JobID+"/audio", nil)
	audioRec := httptest.NewRecorder()
	engine.ServeHTTP(audioRec, audioReq)
	if audioRec.Code != http.StatusNotFound {
		t.Fatalf("audio after delete: expected 404, got %d", audioRec.Code)
	}
}

func TestSubmitByURL(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	payload := strings.NewReader(`{"url": "https://example.com/a.mp3", "label": "remote"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSubmitDuplicateContentIsFlagged(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	first := uploadRequest(t, "/api/jobs", "one.wav", []byte("same-bytes"))
	firstRec := httptest.NewRecorder()
	engine.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusCreated {
		t.Fatalf("first submit: %d", firstRec.Code)
	}

	second := uploadRequest(t, "/api/jobs", "two.wav", []byte("same-bytes"))
	secondRec := httptest.NewRecorder()
	engine.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusCreated {
		t.Fatalf("second submit: %d", secondRec.Code)
	}

	var body struct {
		DuplicateOf string `json:"duplicateOf"`
	}
	if err := json.Unmarshal(secondRec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DuplicateOf == "" {
		t.Fatal("expected duplicateOf for identical content")
	}
}

func TestSubmitArchive(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, content := range map[string]string{
		"a.wav":     "RIFFa",
		"b.mp3":     "ID3b",
		"notes.txt": "skip me",
	} {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		fw.Write([]byte(content))
	}
	zw.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, _ := w.CreateFormFile("file", "batch.zip")
	fw.Write(buf.Bytes())
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/archive", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		BatchID string `json:"batchId"`
		Jobs    []struct {
			Name  string `json:"name"`
			JobID string `json:"jobId"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BatchID == "" {
		t.Fatal("expected a batch id")
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 submitted entries, got %+v", resp.Jobs)
	}
}

func TestAnalysisForUnwatchedJob(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	// Job unknown to this process: analysis falls back to a direct vendor
	// fetch.
	body := doJSON(t, engine, http.MethodGet, "/api/jobs/job-elsewhere/analysis", http.StatusOK)
	segments, ok := body["segments"].([]any)
	if !ok || len(segments) == 0 {
		t.Fatalf("expected segments from direct fetch, body=%v", body)
	}
}

func TestReportAndShareFlow(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	req := uploadRequest(t, "/api/jobs", "clip.wav", []byte("RIFFaudio"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	var created struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Wait for the watcher to latch results so the report has content.
	deadline := time.Now().Add(2 * time.Second)
	for {
		body := doJSON(t, engine, http.MethodGet, "/api/jobs/"+created.JobID, http.StatusOK)
		if body["status"] == "RESULTS_READY" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("results never latched")
		}
		time.Sleep(5 * time.Millisecond)
	}

	reportBody := doJSON(t, engine, http.MethodPost, "/api/jobs/"+created.JobID+"/report", http.StatusOK)
	reportPath, _ := reportBody["reportPath"].(string)
	if reportPath == "" {
		t.Fatal("expected a report path")
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Fatalf("report file missing: %v", err)
	}

	shareBody := doJSON(t, engine, http.MethodPost, "/api/jobs/"+created.JobID+"/share", http.StatusOK)
	shareURL, _ := shareBody["url"].(string)
	if shareURL == "" {
		t.Fatal("expected a share url")
	}

	parsed, err := url.Parse(shareURL)
	if err != nil {
		t.Fatalf("parse share url: %v", err)
	}
	signedReq := httptest.NewRequest(http.MethodGet, parsed.Path+"?"+parsed.RawQuery, nil)
	signedRec := httptest.NewRecorder()
	engine.ServeHTTP(signedRec, signedReq)
	if signedRec.Code != http.StatusOK {
		t.Fatalf("signed link: expected 200, got %d", signedRec.Code)
	}

	invalid := doJSON(t, engine, http.MethodGet, "/report/"+created.JobID+"?exp=9999999999&sig=bogus", http.StatusForbidden)
	if invalid["error"] == nil {
		t.Fatal("expected error for invalid signature")
	}

	doJSON(t, engine, http.MethodGet, "/report/"+created.JobID+"?exp=1&sig=whatever", http.StatusGone)
}

func TestSyncWebsocket(t *testing.T) {
	engine, _ := setupTestServer(t, "test-key")

	srv := httptest.NewServer(engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/job-anywhere/sync"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(msg any) {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	read := func() map[string]any {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var reply map[string]any
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read: %v", err)
		}
		return reply
	}

	// Stubbed payload yields one segment [0, 0.7).
	send(map[string]any{"time": 0.1})
	reply := read()
	if idx, ok := reply["index"].(float64); !ok || idx != 0 {
		t.Fatalf("expected index 0, got %v", reply)
	}

	// Staying inside the segment produces no reply; the next message read
	// must be the gap notification.
	send(map[string]any{"time": 0.2})
	send(map[string]any{"time": 5.0})
	reply = read()
	if idx, ok := reply["index"].(float64); !ok || idx != -1 {
		t.Fatalf("expected index -1 after leaving the segment, got %v", reply)
	}

	send(map[string]any{"seek": 0})
	reply = read()
	if seekTime, ok := reply["time"].(float64); !ok || seekTime <= 0 || seekTime >= 0.7 {
		t.Fatalf("expected seek time just inside the segment, got %v", reply)
	}

	send(map[string]any{"seek": 42})
	reply = read()
	if reply["error"] == nil {
		t.Fatalf("expected out-of-range error, got %v", reply)
	}
}
