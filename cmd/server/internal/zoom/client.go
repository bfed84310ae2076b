package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultBaseURL = "https://api.zoom.us/v2"

// maxPageSize is the provider's hard limit for list endpoints.
const maxPageSize = 300

// recordingFetchConcurrency bounds the fan-out when hydrating
// per-meeting recording lists during a sweep.
const recordingFetchConcurrency = 10

// Meeting is one entry from the past-meetings listing. Recordings is
// populated by RecentMeetingsWithRecordings; RecordingError carries a
// truncated fetch error when recordings could not be listed.
type Meeting struct {
	ID             json.Number     `json:"id"`
	Topic          string          `json:"topic"`
	StartTime      time.Time       `json:"start_time"`
	Duration       int             `json:"duration"`
	Recordings     []RecordingFile `json:"recordings,omitempty"`
	RecordingError string          `json:"recording_error,omitempty"`
}

// MeetingID returns the meeting identifier as an opaque string.
func (m *Meeting) MeetingID() string { return m.ID.String() }

// RecordingFile is one artifact attached to a cloud recording.
type RecordingFile struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	FileExtension string `json:"file_extension"`
	Status        string `json:"status"`
	DownloadURL   string `json:"download_url"`
	FileSize      int64  `json:"file_size"`
}

// Completed reports whether the recording artifact is ready to fetch.
func (f *RecordingFile) Completed() bool { return f.Status == "completed" }

// Client talks to the Zoom REST API. Every request authenticates with
// Strategy A first; a 401 is retried once with Strategy B when an
// account ID is configured (the strategy decision is made here, at the
// call boundary, not per endpoint).
type Client struct {
	baseURL    string
	broker     *CredentialBroker
	httpClient *http.Client
	dlClient   *http.Client // recording downloads can run long
	log        *slog.Logger
}

// NewClient creates a Zoom API client around the given broker.
func NewClient(broker *CredentialBroker, log *slog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		broker:     broker,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dlClient:   &http.Client{Timeout: 5 * time.Minute},
		log:        log,
	}
}

// doWithAuthRetry issues the request with Strategy-A headers and, on a
// 401, retries the identical call once with Strategy-B headers. The
// caller owns the returned body.
func (c *Client) doWithAuthRetry(ctx context.Context, method, rawURL string) (*http.Response, error) {
	resp, err := c.doOnce(ctx, method, rawURL, false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.broker.HasAccountID() {
		resp.Body.Close()
		c.log.Info("self-signed auth rejected, retrying with exchanged token", "url", rawURL)
		retryResp, retryErr := c.doOnce(ctx, method, rawURL, true)
		if retryErr != nil {
			return nil, fmt.Errorf("both auth strategies failed: self-signed got 401, exchange: %w", retryErr)
		}
		return retryResp, nil
	}

	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, preferExchanged bool) (*http.Response, error) {
	headers, err := c.broker.Headers(ctx, preferExchanged)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = headers

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zoom api request: %w", err)
	}
	return resp, nil
}

// apiError drains the body and produces a readable error for non-2xx
// responses.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return fmt.Errorf("zoom api returned %d for %s: %s", resp.StatusCode, resp.Request.URL.Path, msg)
}

// ListMeetings fetches past meetings for a user. from/to are optional
// YYYY-MM-DD bounds; empty strings mean an unbounded window.
func (c *Client) ListMeetings(ctx context.Context, userID string, pageSize int, from, to string) ([]Meeting, error) {
	if userID == "" {
		userID = "me"
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	q := url.Values{}
	q.Set("page_size", fmt.Sprint(pageSize))
	q.Set("type", "past")
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}

	rawURL := fmt.Sprintf("%s/users/%s/meetings?%s", c.baseURL, url.PathEscape(userID), q.Encode())
	resp, err := c.doWithAuthRetry(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var data struct {
		Meetings []Meeting `json:"meetings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("parse meetings response: %w", err)
	}
	return data.Meetings, nil
}

// GetMeetingRecordings lists the recording files of one meeting.
func (c *Client) GetMeetingRecordings(ctx context.Context, meetingID string) ([]RecordingFile, error) {
	rawURL := fmt.Sprintf("%s/meetings/%s/recordings", c.baseURL, url.PathEscape(meetingID))
	resp, err := c.doWithAuthRetry(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var data struct {
		RecordingFiles []RecordingFile `json:"recording_files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("parse recordings response: %w", err)
	}
	return data.RecordingFiles, nil
}

// DownloadRecording streams a recording file to disk. Download URLs
// sometimes embed their own access token; only token-less URLs get an
// Authorization header. A 401 flips to the other strategy once, the
// same policy as API calls.
func (c *Client) DownloadRecording(ctx context.Context, downloadURL, filePath string) error {
	hasToken := strings.Contains(downloadURL, "access_token")

	resp, err := c.download(ctx, downloadURL, !hasToken, true)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.log.Warn("download rejected with exchanged token, retrying with self-signed token", "url_path", urlPathOnly(downloadURL))
		resp, err = c.download(ctx, downloadURL, true, false)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	out, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(filePath)
		return fmt.Errorf("write download: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, downloadURL string, withAuth, preferExchanged bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	if withAuth {
		headers, err := c.broker.Headers(ctx, preferExchanged)
		if err != nil {
			return nil, err
		}
		// Download hosts differ from the API host; send only the
		// Authorization header.
		req.Header.Set("Authorization", headers.Get("Authorization"))
	}
	resp, err := c.dlClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	return resp, nil
}

func urlPathOnly(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	return ""
}

// GetRecordingFile downloads the best recording artifact of a meeting
// into outputDir and returns the local path, or "" when the meeting
// has no completed recording. The compact M4A audio track is preferred
// over the MP4 video because it keeps the summarizer payload small;
// any completed file is the last resort.
func (c *Client) GetRecordingFile(ctx context.Context, meetingID, outputDir string) (string, error) {
	recordings, err := c.GetMeetingRecordings(ctx, meetingID)
	if err != nil {
		return "", err
	}
	if len(recordings) == 0 {
		return "", nil
	}

	chosen := pickRecording(recordings)
	if chosen == nil || chosen.DownloadURL == "" {
		return "", nil
	}

	ext := chosen.FileExtension
	if ext == "" {
		ext = "mp4"
	}
	id := chosen.ID
	if id == "" {
		id = "recording"
	}
	fileName := fmt.Sprintf("%s_%s.%s", meetingID, id, strings.ToLower(ext))
	filePath := filepath.Join(outputDir, fileName)

	if err := c.DownloadRecording(ctx, chosen.DownloadURL, filePath); err != nil {
		return "", err
	}
	return filePath, nil
}

// pickRecording applies the fixed format preference: M4A, then MP4,
// then the first completed file of any type.
func pickRecording(recordings []RecordingFile) *RecordingFile {
	for _, want := range []string{"M4A", "MP4"} {
		for i := range recordings {
			r := &recordings[i]
			if strings.EqualFold(r.FileType, want) && r.Completed() {
				return r
			}
		}
	}
	for i := range recordings {
		if recordings[i].Completed() {
			return &recordings[i]
		}
	}
	return nil
}

// GetTranscript fetches the meeting's transcript artifact
// (TRANSCRIPT/VTT/TXT) as plain text, stripping VTT cue headers and
// timestamps. Returns "" when no completed transcript exists.
func (c *Client) GetTranscript(ctx context.Context, meetingID string) (string, error) {
	recordings, err := c.GetMeetingRecordings(ctx, meetingID)
	if err != nil {
		return "", err
	}

	var transcript *RecordingFile
	for i := range recordings {
		r := &recordings[i]
		switch strings.ToUpper(r.FileType) {
		case "TRANSCRIPT", "VTT", "TXT":
			if r.Completed() {
				transcript = r
			}
		}
		if transcript != nil {
			break
		}
	}
	if transcript == nil || transcript.DownloadURL == "" {
		return "", nil
	}

	hasToken := strings.Contains(transcript.DownloadURL, "access_token")
	resp, err := c.download(ctx, transcript.DownloadURL, !hasToken, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}

	text := string(body)
	if strings.EqualFold(transcript.FileType, "VTT") {
		text = stripVTT(text)
	}
	return text, nil
}

// stripVTT removes WEBVTT headers, cue numbers, and timestamp lines.
func stripVTT(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "WEBVTT") || strings.Contains(line, "-->") || isDigits(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RecentMeetingsWithRecordings lists recent past meetings and hydrates
// each with its completed recording files. hours=nil means an
// unbounded time window. With includeWithout=true, meetings whose
// recordings are missing or unfetchable are still returned (with an
// empty Recordings slice), which the sweep uses for visibility.
//
// Per-meeting recording lookups fan out concurrently, bounded to
// recordingFetchConcurrency; one meeting's failure never fails the
// sweep.
func (c *Client) RecentMeetingsWithRecordings(ctx context.Context, hours *int, includeWithout bool) ([]Meeting, error) {
	from := ""
	if hours != nil {
		from = time.Now().Add(-time.Duration(*hours) * time.Hour).Format("2006-01-02")
	}

	meetings, err := c.ListMeetings(ctx, "me", maxPageSize, from, "")
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		result []Meeting
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recordingFetchConcurrency)

	for i := range meetings {
		meeting := meetings[i]
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, 15*time.Second)
			defer cancel()

			recordings, err := c.GetMeetingRecordings(callCtx, meeting.MeetingID())
			if err != nil {
				if !includeWithout {
					return nil // most commonly a 404: meeting simply has no recording
				}
				msg := err.Error()
				if len(msg) > 100 {
					msg = msg[:100] + "..."
				}
				meeting.RecordingError = msg
				meeting.Recordings = []RecordingFile{}
			} else {
				completed := make([]RecordingFile, 0, len(recordings))
				for _, r := range recordings {
					if r.Completed() {
						completed = append(completed, r)
					}
				}
				if len(completed) == 0 && !includeWithout {
					return nil
				}
				meeting.Recordings = completed
			}

			mu.Lock()
			result = append(result, meeting)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
