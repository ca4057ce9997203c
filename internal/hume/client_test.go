package hume

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rezkysantika/Expression-Measurement/internal/config"
	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{HumeAPIKey: "test-key", HumeAPIBase: srv.URL})
}

func TestSubmitFile(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Hume-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if !strings.Contains(r.FormValue("json"), "language") {
			t.Errorf("model config missing: %q", r.FormValue("json"))
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part: %v", err)
		}
		w.Write([]byte(`{"job_id": "job-123"}`))
	}))

	jobID, err := c.SubmitFile(context.Background(), "clip.wav", strings.NewReader("RIFFdata"))
	if err != nil {
		t.Fatalf("SubmitFile: %v", err)
	}
	if jobID != "job-123" {
		t.Fatalf("jobID = %q", jobID)
	}
}

func TestSubmitWithoutAPIKey(t *testing.T) {
	c := NewClient(config.Config{HumeAPIBase: "http://unused"})

	_, err := c.SubmitFile(context.Background(), "clip.wav", strings.NewReader("x"))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGetStatusFieldNames(t *testing.T) {
	cases := []struct {
		body string
		want domain.JobStatus
	}{
		{`{"state": {"status": "IN_PROGRESS"}}`, domain.StatusInProgress},
		{`{"status": "COMPLETED"}`, domain.StatusCompleted},
		{`{"state": {"status": "QUEUED"}, "status": "ignored"}`, domain.StatusQueued},
		{`{"status": "something-new"}`, domain.StatusUnknown},
		{`{}`, domain.StatusUnknown},
	}

	for _, tc := range cases {
		body := tc.body
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		got, err := c.GetStatus(context.Background(), "job-123")
		if err != nil {
			t.Fatalf("GetStatus(%q): %v", body, err)
		}
		if got != tc.want {
			t.Errorf("GetStatus(%q) = %q, want %q", body, got, tc.want)
		}
	}
}

func TestGetPredictionsEmptyForms(t *testing.T) {
	for _, body := range []string{"", "{}", "[]", "null", "  [] "} {
		b := body
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(b))
		}))

		_, ok, err := c.GetPredictions(context.Background(), "job-123")
		if err != nil {
			t.Fatalf("GetPredictions: %v", err)
		}
		if ok {
			t.Errorf("body %q should count as no content yet", b)
		}
	}
}

func TestGetPredictionsContent(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/job-123/predictions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"results": {}}]`))
	}))

	payload, ok, err := c.GetPredictions(context.Background(), "job-123")
	if err != nil {
		t.Fatalf("GetPredictions: %v", err)
	}
	if !ok {
		t.Fatal("non-empty payload should set ok")
	}
	if len(payload) == 0 {
		t.Fatal("payload missing")
	}
}

func TestAPIErrorMessageExtraction(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "job is still running"}`))
	}))

	_, _, err := c.GetPredictions(context.Background(), "job-123")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "job is still running" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestAPIErrorRawBodyFallback(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))

	_, err := c.GetStatus(context.Background(), "job-123")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "upstream exploded" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}
