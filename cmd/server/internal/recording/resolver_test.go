package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestResolver builds a resolver whose only search root is the
// Downloads directory under a temp home.
func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	home := t.TempDir()
	downloads := filepath.Join(home, "Downloads")
	if err := os.MkdirAll(downloads, 0o755); err != nil {
		t.Fatal(err)
	}
	s := &Scanner{home: home, goos: "linux", log: testLogger()}
	return NewResolver(s, testLogger()), downloads
}

func TestFindByMeetingIDPrefersFilenameMatch(t *testing.T) {
	r, dir := newTestResolver(t)
	base := time.Now()

	// The unmatched file is both larger and newer; the filename match
	// must still win.
	writeFile(t, filepath.Join(dir, "recording_555_part.mp4"), 2*mb, base.Add(-time.Hour))
	writeFile(t, filepath.Join(dir, "other.mp4"), 5*mb, base)

	got := r.FindByMeetingID("555")
	if got == nil {
		t.Fatal("expected a match")
	}
	if got.Name != "recording_555_part.mp4" {
		t.Errorf("expected filename match, got %s", got.Name)
	}
	if got.Match != MatchExact {
		t.Errorf("expected MatchExact, got %s", got.Match)
	}
}

func TestFindByMeetingIDFallsBackToNewest(t *testing.T) {
	r, dir := newTestResolver(t)
	base := time.Now()
	writeFile(t, filepath.Join(dir, "older.mp4"), 2*mb, base.Add(-time.Hour))
	writeFile(t, filepath.Join(dir, "newest.mp4"), 2*mb, base)

	got := r.FindByMeetingID("does-not-appear")
	if got == nil {
		t.Fatal("expected fallback candidate")
	}
	if got.Name != "newest.mp4" {
		t.Errorf("expected newest file, got %s", got.Name)
	}
	if got.Match != MatchLatestFallback {
		t.Errorf("expected MatchLatestFallback, got %s", got.Match)
	}
}

func TestFindByMeetingIDNoCandidates(t *testing.T) {
	r, _ := newTestResolver(t)
	if got := r.FindByMeetingID("555"); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestFindLatestWindow(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "ancient.mp4"), 2*mb, time.Now().Add(-72*time.Hour))

	window := 24
	if got := r.FindLatest(&window, 1.0); got != nil {
		t.Errorf("expected nil within 24h window, got %+v", got)
	}
	got := r.FindLatest(nil, 1.0)
	if got == nil || got.Name != "ancient.mp4" {
		t.Errorf("unbounded lookup should find the file, got %+v", got)
	}
}

func TestCountAll(t *testing.T) {
	r, dir := newTestResolver(t)
	writeFile(t, filepath.Join(dir, "a.mp4"), 2*mb, time.Now())
	writeFile(t, filepath.Join(dir, "b.m4a"), 2*mb, time.Now())
	writeFile(t, filepath.Join(dir, "too-small.mp4"), mb/2, time.Now())

	if got := r.CountAll(); got != 2 {
		t.Errorf("expected 2 candidates, got %d", got)
	}
}
