package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(baseURL string) *Client {
	c := NewClient("test-key", "test-model", DefaultPrompts(), nil, testLogger())
	c.baseURL = baseURL
	c.pollEvery = 5 * time.Millisecond
	c.pollLimit = time.Second
	return c
}

func writeCandidate(w http.ResponseWriter, text string) {
	resp := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestSummarizeTranscript(t *testing.T) {
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeCandidate(w, "  minutes text  ")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	got, err := c.SummarizeTranscript(context.Background(), "hello from the meeting")
	require.NoError(t, err)
	assert.Equal(t, "minutes text", got)

	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 2)
	assert.Contains(t, gotBody.Contents[0].Parts[1].Text, "hello from the meeting")
}

func TestSummarizeMediaUploadsPollsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "rec.m4a")
	require.NoError(t, os.WriteFile(mediaPath, []byte("audio-bytes"), 0o644))

	var polls, deletes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "raw", r.Header.Get("X-Goog-Upload-Protocol"))
		assert.Equal(t, "audio/mp4", r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]any{
				"name": "files/abc", "uri": "https://files/abc",
				"mimeType": "audio/mp4", "state": "PROCESSING",
			},
		})
	})
	mux.HandleFunc("GET /v1beta/files/abc", func(w http.ResponseWriter, r *http.Request) {
		state := "PROCESSING"
		if polls.Add(1) >= 2 {
			state = "ACTIVE"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "files/abc", "uri": "https://files/abc",
			"mimeType": "audio/mp4", "state": state,
		})
	})
	mux.HandleFunc("DELETE /v1beta/files/abc", func(w http.ResponseWriter, r *http.Request) {
		deletes.Add(1)
	})
	mux.HandleFunc("POST /v1beta/models/test-model:generateContent", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents[0].Parts, 2)
		require.NotNil(t, req.Contents[0].Parts[1].FileData)
		assert.Equal(t, "https://files/abc", req.Contents[0].Parts[1].FileData.FileURI)
		writeCandidate(w, "media minutes")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	got, err := c.SummarizeMedia(context.Background(), mediaPath, MediaAudio)
	require.NoError(t, err)
	assert.Equal(t, "media minutes", got)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
	assert.Equal(t, int32(1), deletes.Load())
}

func TestSummarizeMediaFailedProcessing(t *testing.T) {
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "rec.mp4")
	require.NoError(t, os.WriteFile(mediaPath, []byte("video"), 0o644))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]any{"name": "files/bad", "state": "PROCESSING"},
		})
	})
	mux.HandleFunc("GET /v1beta/files/bad", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "files/bad", "state": "FAILED"})
	})
	mux.HandleFunc("DELETE /v1beta/files/bad", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SummarizeMedia(context.Background(), mediaPath, MediaVideo)
	var serr *SummarizerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "processing", serr.Op)
}

func TestQuotaErrorCarriesRetryDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"quota hit","details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"39s"}]}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SummarizeTranscript(context.Background(), "text")
	var qerr *QuotaError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 39*time.Second, qerr.RetryAfter)
	assert.Contains(t, qerr.Message, "quota hit")
}

func TestQuotaErrorDefaultRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"quota hit"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SummarizeTranscript(context.Background(), "text")
	var qerr *QuotaError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, defaultQuotaRetry, qerr.RetryAfter)
}

func TestGenerateNonQuotaErrorIsSummarizerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SummarizeTranscript(context.Background(), "text")
	var serr *SummarizerError
	require.ErrorAs(t, err, &serr)
	var qerr *QuotaError
	assert.False(t, errors.As(err, &qerr))
}

func TestLoadPromptsOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transcript: custom transcript prompt\n"), 0o644))

	p, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "custom transcript prompt", p.Transcript)
	assert.Equal(t, DefaultPrompts().Media, p.Media)
}

func TestLoadPromptsMissingFileKeepsDefaults(t *testing.T) {
	p, err := LoadPrompts(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, DefaultPrompts(), p)
}
