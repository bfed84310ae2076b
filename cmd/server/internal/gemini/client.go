package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	defaultModel     = "gemini-2.0-flash"
	defaultPollEvery = 5 * time.Second
	defaultPollLimit = 10 * time.Minute

	// Fallback wait when the API signals quota exhaustion without a
	// usable retry hint.
	defaultQuotaRetry = 60 * time.Second
)

// MediaKind selects the prompt used for file-based summarization.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// QuotaError reports API quota exhaustion. RetryAfter carries the
// provider-suggested wait before the next attempt.
type QuotaError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("gemini quota exhausted (retry after %s): %s", e.RetryAfter, e.Message)
}

// SummarizerError reports a non-quota failure from the summarization
// backend, including file processing failures.
type SummarizerError struct {
	Op      string
	Message string
}

func (e *SummarizerError) Error() string {
	return fmt.Sprintf("gemini %s: %s", e.Op, e.Message)
}

// Client talks to the Gemini REST API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	prompts    Prompts
	usage      *UsageTracker
	httpClient *http.Client
	log        *slog.Logger

	pollEvery time.Duration
	pollLimit time.Duration
}

// NewClient builds a Gemini client. model == "" selects the default
// model; usage may be nil to disable budget tracking.
func NewClient(apiKey, model string, prompts Prompts, usage *UsageTracker, log *slog.Logger) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		prompts:    prompts,
		usage:      usage,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		log:        log,
		pollEvery:  defaultPollEvery,
		pollLimit:  defaultPollLimit,
	}
}

// checkBudget logs the daily budget state before a call. The counter
// is advisory, the provider itself is the authority on quota, so an
// exhausted-looking budget warns instead of blocking.
func (c *Client) checkBudget() {
	if c.usage == nil {
		return
	}
	ok, count, limit := c.usage.CanUse(c.model)
	if !ok {
		c.log.Warn("daily budget looks exhausted, attempting anyway", "model", c.model, "count", count, "limit", limit)
		return
	}
	c.log.Info("daily budget", "model", c.model, "count", count, "limit", limit)
}

// SummarizeTranscript generates meeting minutes from transcript text.
func (c *Client) SummarizeTranscript(ctx context.Context, transcript string) (string, error) {
	c.checkBudget()

	req := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: c.prompts.Transcript},
				{Text: "Transcript:\n\n" + transcript},
			},
		}},
	}
	return c.generate(ctx, req)
}

// SummarizeMedia uploads a recording file, waits for it to become
// ACTIVE, generates minutes from it, and deletes the uploaded file.
// Deletion is best effort.
func (c *Client) SummarizeMedia(ctx context.Context, path string, kind MediaKind) (string, error) {
	c.checkBudget()

	uploaded, err := c.uploadFile(ctx, path)
	if err != nil {
		return "", err
	}
	defer c.deleteFile(uploaded.Name)

	active, err := c.waitActive(ctx, uploaded.Name)
	if err != nil {
		return "", err
	}

	prompt := c.prompts.Media
	if kind == MediaAudio {
		prompt = c.prompts.Media + "\n\nNote: this recording is audio only."
	}

	req := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{FileData: &fileData{MIMEType: active.MIMEType, FileURI: active.URI}},
			},
		}},
	}
	return c.generate(ctx, req)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type fileInfo struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

func (c *Client) generate(ctx context.Context, payload generateRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError("generateContent", resp.StatusCode, data)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", &SummarizerError{Op: "generateContent", Message: "no candidates in response"}
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &SummarizerError{Op: "generateContent", Message: "empty summary text"}
	}

	if c.usage != nil {
		// Save failures already logged by the tracker; the summary
		// itself is not at risk.
		_ = c.usage.RecordUse(c.model)
	}
	return text, nil
}

func (c *Client) uploadFile(ctx context.Context, path string) (*fileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("Content-Type", mimeTypeFor(path))

	c.log.Info("uploading media to gemini", "file", filepath.Base(path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini upload: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("upload", resp.StatusCode, data)
	}

	var out struct {
		File fileInfo `json:"file"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if out.File.Name == "" {
		return nil, &SummarizerError{Op: "upload", Message: "upload response missing file name"}
	}
	return &out.File, nil
}

// waitActive polls the uploaded file until it leaves PROCESSING.
func (c *Client) waitActive(ctx context.Context, name string) (*fileInfo, error) {
	deadline := time.Now().Add(c.pollLimit)
	for {
		info, err := c.getFile(ctx, name)
		if err != nil {
			return nil, err
		}
		switch info.State {
		case "ACTIVE":
			return info, nil
		case "FAILED":
			return nil, &SummarizerError{Op: "processing", Message: "file processing failed on the backend"}
		}
		if time.Now().After(deadline) {
			return nil, &SummarizerError{Op: "processing", Message: fmt.Sprintf("file not active after %s", c.pollLimit)}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollEvery):
		}
	}
}

func (c *Client) getFile(ctx context.Context, name string) (*fileInfo, error) {
	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, name, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini file status: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("getFile", resp.StatusCode, data)
	}

	var info fileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode file status: %w", err)
	}
	return &info, nil
}

func (c *Client) deleteFile(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, name, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("failed to delete uploaded file", "name", name, "error", err)
		return
	}
	resp.Body.Close()
}

// apiError converts a non-200 response into a typed error. Quota
// exhaustion carries the retry delay the API suggests.
func apiError(op string, status int, body []byte) error {
	var payload struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	msg := payload.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}

	if status == http.StatusTooManyRequests || payload.Error.Status == "RESOURCE_EXHAUSTED" {
		retry := defaultQuotaRetry
		for _, d := range payload.Error.Details {
			if d.RetryDelay == "" {
				continue
			}
			if parsed, err := time.ParseDuration(d.RetryDelay); err == nil && parsed > 0 {
				retry = parsed
				break
			}
		}
		return &QuotaError{Message: msg, RetryAfter: retry}
	}
	return &SummarizerError{Op: op, Message: fmt.Sprintf("status %d: %s", status, msg)}
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
