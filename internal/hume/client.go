// Package hume is the HTTP client for the remote batch expression-measurement
// API: submit an audio file or URL, poll job status, fetch predictions. The
// vendor processes jobs asynchronously; all methods here are single requests.
package hume

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rezkysantika/Expression-Measurement/internal/config"
	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

const requestTimeout = 2 * time.Minute

// ErrMissingAPIKey is a configuration error: surfaced as a 500 at the API
// boundary, never a crash.
var ErrMissingAPIKey = errors.New("hume api key is not configured")

// APIError carries the vendor's status code plus whatever message could be
// extracted from the response body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hume api error: status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		apiKey:     cfg.HumeAPIKey,
		baseURL:    strings.TrimSuffix(cfg.HumeAPIBase, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// modelConfig requests the three model families the engine consumes:
// word-granularity language, utterance-level prosody and discrete bursts.
var modelConfig = map[string]any{
	"models": map[string]any{
		"language": map[string]any{"granularity": "word"},
		"prosody":  map[string]any{},
		"burst":    map[string]any{},
	},
}

// SubmitFile uploads one audio file for analysis and returns the vendor's
// job id.
func (c *Client) SubmitFile(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := c.ensureAPIKey(); err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	cfgJSON, err := json.Marshal(modelConfig)
	if err != nil {
		return "", fmt.Errorf("encode model config: %w", err)
	}
	if err := writer.WriteField("json", string(cfgJSON)); err != nil {
		return "", fmt.Errorf("write json field: %w", err)
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", body)
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.doSubmit(req)
}

// SubmitURL asks the vendor to fetch and analyze a remote media URL.
func (c *Client) SubmitURL(ctx context.Context, mediaURL string) (string, error) {
	if err := c.ensureAPIKey(); err != nil {
		return "", err
	}

	payload := map[string]any{"urls": []string{mediaURL}}
	for k, v := range modelConfig {
		payload[k] = v
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode submit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", buf)
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doSubmit(req)
}

func (c *Client) doSubmit(req *http.Request) (string, error) {
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", c.decodeAPIError(resp)
	}

	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if payload.JobID == "" {
		return "", errors.New("submit response carried no job id")
	}
	return payload.JobID, nil
}

// GetStatus fetches the remote job state. The status string has moved between
// two field names across API revisions, so both are checked.
func (c *Client) GetStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	if err := c.ensureAPIKey(); err != nil {
		return domain.StatusUnknown, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return domain.StatusUnknown, fmt.Errorf("create status request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return domain.StatusUnknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return domain.StatusUnknown, c.decodeAPIError(resp)
	}

	var payload struct {
		Status string `json:"status"`
		State  struct {
			Status string `json:"status"`
		} `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.StatusUnknown, fmt.Errorf("decode status response: %w", err)
	}

	raw := payload.State.Status
	if raw == "" {
		raw = payload.Status
	}
	return domain.ParseJobStatus(raw), nil
}

// GetPredictions fetches the raw predictions payload. "No content yet" comes
// back as an empty object or array, not absence; the second return value is
// false until real content shows up.
func (c *Client) GetPredictions(ctx context.Context, jobID string) ([]byte, bool, error) {
	if err := c.ensureAPIKey(); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/predictions", nil)
	if err != nil {
		return nil, false, fmt.Errorf("create predictions request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, false, c.decodeAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read predictions response: %w", err)
	}

	return body, !payloadIsEmpty(body), nil
}

func payloadIsEmpty(body []byte) bool {
	switch strings.TrimSpace(string(body)) {
	case "", "{}", "[]", "null":
		return true
	}
	return false
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Hume-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hume request failed: %w", err)
	}
	return resp, nil
}

// decodeAPIError extracts a message from the JSON error body when there is
// one, else keeps the raw text.
func (c *Client) decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Message string `json:"message"`
		Fault   struct {
			FaultString string `json:"faultstring"`
		} `json:"fault"`
	}

	message := ""
	if err := json.Unmarshal(body, &apiErr); err == nil {
		message = apiErr.Message
		if message == "" {
			message = apiErr.Fault.FaultString
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

func (c *Client) ensureAPIKey() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}
