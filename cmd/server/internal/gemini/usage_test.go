package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*UsageTracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.json")
	return LoadUsageTracker(path, testLogger()), path
}

func TestUsageTrackerCountsAndPersists(t *testing.T) {
	tr, path := newTestTracker(t)

	ok, count, limit := tr.CanUse("gemini-2.5-pro")
	assert.True(t, ok)
	assert.Equal(t, 0, count)
	assert.Equal(t, 100, limit)

	require.NoError(t, tr.RecordUse("gemini-2.5-pro"))
	require.NoError(t, tr.RecordUse("gemini-2.5-pro"))

	reloaded := LoadUsageTracker(path, testLogger())
	_, count, _ = reloaded.CanUse("gemini-2.5-pro")
	assert.Equal(t, 2, count)
}

func TestUsageTrackerPerModelAndDefaultLimit(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.RecordUse("gemini-1.5-flash"))

	_, count, limit := tr.CanUse("gemini-1.5-flash")
	assert.Equal(t, 1, count)
	assert.Equal(t, 1500, limit)

	_, count, limit = tr.CanUse("gemini-2.5-pro")
	assert.Equal(t, 0, count, "counters are per model")
	assert.Equal(t, 100, limit)

	_, _, limit = tr.CanUse("some-future-model")
	assert.Equal(t, defaultDailyLimit, limit)
}

func TestUsageTrackerExhaustion(t *testing.T) {
	tr, _ := newTestTracker(t)
	key := tr.todayKey("gemini-2.5-pro")
	tr.counts[key] = 100

	ok, count, limit := tr.CanUse("gemini-2.5-pro")
	assert.False(t, ok)
	assert.Equal(t, 100, count)
	assert.Equal(t, 100, limit)

	s := tr.Summary("gemini-2.5-pro")
	assert.False(t, s.CanUse)
	assert.Equal(t, 0, s.Remaining)
	assert.Equal(t, 100.0, s.Percentage)
}

func TestUsageTrackerDayRollover(t *testing.T) {
	tr, _ := newTestTracker(t)
	current := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return current }

	require.NoError(t, tr.RecordUse("gemini-2.5-pro"))
	_, count, _ := tr.CanUse("gemini-2.5-pro")
	require.Equal(t, 1, count)

	current = current.Add(2 * time.Hour)
	_, count, _ = tr.CanUse("gemini-2.5-pro")
	assert.Equal(t, 0, count, "a new day starts a fresh counter")
}

func TestUsageTrackerPrunesOldCounters(t *testing.T) {
	tr, path := newTestTracker(t)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return current }

	tr.counts["gemini-2.5-pro_2025-04-01"] = 50
	tr.counts["gemini-2.5-pro_2025-05-20"] = 7

	require.NoError(t, tr.RecordUse("gemini-2.5-pro"))

	assert.NotContains(t, tr.counts, "gemini-2.5-pro_2025-04-01")
	assert.Contains(t, tr.counts, "gemini-2.5-pro_2025-05-20")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "2025-04-01")
}

func TestUsageTrackerUnreadableFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	tr := LoadUsageTracker(path, testLogger())
	_, count, _ := tr.CanUse("gemini-2.5-pro")
	assert.Equal(t, 0, count)
}

func TestSummarizeRecordsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCandidate(w, "minutes")
	}))
	defer srv.Close()

	tr, _ := newTestTracker(t)
	c := NewClient("test-key", "gemini-2.5-pro", DefaultPrompts(), tr, testLogger())
	c.baseURL = srv.URL

	_, err := c.SummarizeTranscript(context.Background(), "text")
	require.NoError(t, err)
	_, err = c.SummarizeTranscript(context.Background(), "more text")
	require.NoError(t, err)

	_, count, _ := tr.CanUse("gemini-2.5-pro")
	assert.Equal(t, 2, count)
}

func TestSummarizeFailureDoesNotRecordUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"INVALID_ARGUMENT","message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tr, _ := newTestTracker(t)
	c := NewClient("test-key", "gemini-2.5-pro", DefaultPrompts(), tr, testLogger())
	c.baseURL = srv.URL

	_, err := c.SummarizeTranscript(context.Background(), "text")
	require.Error(t, err)

	_, count, _ := tr.CanUse("gemini-2.5-pro")
	assert.Equal(t, 0, count)
}
