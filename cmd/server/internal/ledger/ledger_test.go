package ledger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	return Load(path, testLogger()), path
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	l, _ := newTestLedger(t)
	if got := l.All(); len(got) != 0 {
		t.Errorf("expected empty ledger, got %v", got)
	}
}

func TestLoadCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := Load(path, testLogger())
	if got := l.All(); len(got) != 0 {
		t.Errorf("corrupt file must degrade to empty ledger, got %v", got)
	}
}

func TestAddMappingPersistsAndReloads(t *testing.T) {
	l, path := newTestLedger(t)
	if err := l.AddMapping("m-1", "room-9", "Sprint Planning"); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}

	reloaded := Load(path, testLogger())
	if reloaded.GetRoomID("m-1") != "room-9" {
		t.Errorf("mapping lost across reload")
	}
	entry := reloaded.All()["m-1"]
	if entry.MeetingTopic != "Sprint Planning" {
		t.Errorf("topic lost: %+v", entry)
	}
	if entry.Processed {
		t.Error("fresh mapping must not be processed")
	}
}

func TestAddMappingOverwriteResetsProcessed(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddMapping("m-1", "room-1", "")
	l.MarkProcessed("m-1")

	if !l.IsProcessed("m-1") {
		t.Fatal("expected processed before remap")
	}

	// Re-mapping implies reprocessing intent.
	l.AddMapping("m-1", "room-2", "")

	all := l.All()
	if len(all) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(all))
	}
	if all["m-1"].RoomID != "room-2" {
		t.Errorf("expected second room to win, got %s", all["m-1"].RoomID)
	}
	if l.IsProcessed("m-1") {
		t.Error("remap must reset processed to false")
	}
}

func TestMarkProcessedUnknownIsNoOp(t *testing.T) {
	l, path := newTestLedger(t)
	if err := l.MarkProcessed("ghost"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(l.All()) != 0 {
		t.Error("no-op mark must not create an entry")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no-op mark must not write the file")
	}
}

func TestMarkProcessedStampsTime(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddMapping("m-1", "room-1", "")
	l.MarkProcessed("m-1")

	entry := l.All()["m-1"]
	if !entry.Processed || entry.ProcessedAt == nil {
		t.Errorf("expected processed with timestamp, got %+v", entry)
	}
}

func TestIsProcessedUnknownIsFalse(t *testing.T) {
	l, _ := newTestLedger(t)
	if l.IsProcessed("unknown") {
		t.Error("unknown meeting must not be processed")
	}
}

func TestRemoveMapping(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddMapping("m-1", "room-1", "")
	l.RemoveMapping("m-1")
	if l.GetRoomID("m-1") != "" {
		t.Error("mapping survived removal")
	}
	// Removing again is a no-op.
	if err := l.RemoveMapping("m-1"); err != nil {
		t.Errorf("unexpected error on double remove: %v", err)
	}
}

func TestPendingMeetings(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddMapping("m-1", "room-1", "")
	l.AddMapping("m-2", "room-2", "")
	l.MarkProcessed("m-2")

	pending := l.PendingMeetings()
	if len(pending) != 1 || pending[0] != "m-1" {
		t.Errorf("expected only m-1 pending, got %v", pending)
	}
}

func TestFileIsPlainJSONObject(t *testing.T) {
	l, path := newTestLedger(t)
	l.AddMapping("m-1", "room-1", "Weekly")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("ledger file is not a JSON object keyed by meeting ID: %v", err)
	}
	if _, ok := raw["m-1"]; !ok {
		t.Errorf("expected m-1 key in file, got %v", raw)
	}
}

func TestConcurrentMutations(t *testing.T) {
	l, _ := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%4))
			l.AddMapping(id, "room", "")
			l.MarkProcessed(id)
			l.IsProcessed(id)
		}(i)
	}
	wg.Wait()

	// All four IDs must exist and be processed; no writes lost.
	for _, id := range []string{"a", "b", "c", "d"} {
		if l.GetRoomID(id) != "room" {
			t.Errorf("mapping for %s lost", id)
		}
	}
}
