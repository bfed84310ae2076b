package gemini

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// dailyLimits is the per-model request budget for one calendar day.
// Models not listed fall back to defaultDailyLimit (the tightest tier).
var dailyLimits = map[string]int{
	"gemini-2.5-pro":        100,
	"gemini-2.5-flash-exp":  1500,
	"gemini-2.0-flash-exp":  1500,
	"gemini-1.5-pro":        1500,
	"gemini-1.5-flash":      1500,
}

const defaultDailyLimit = 100

// usageRetention is how long per-day counters are kept before pruning.
const usageRetention = 30 * 24 * time.Hour

// UsageSummary is the point-in-time view of one model's daily budget.
type UsageSummary struct {
	Model      string  `json:"model"`
	TodayCount int     `json:"today_count"`
	Limit      int     `json:"limit"`
	Remaining  int     `json:"remaining"`
	CanUse     bool    `json:"can_use"`
	Percentage float64 `json:"usage_percentage"`
}

// UsageTracker counts summarization calls per model per day in a JSON
// file. The counter is advisory: callers log when the budget looks
// exhausted but still let the provider make the final call, so a stale
// or lost file never blocks a delivery.
type UsageTracker struct {
	mu     sync.Mutex
	path   string
	counts map[string]int
	log    *slog.Logger
	now    func() time.Time
}

// LoadUsageTracker opens the counter file at path. A missing file is a
// first run and an unreadable one degrades to empty counts with a
// logged warning; undercounting is the safe direction.
func LoadUsageTracker(path string, log *slog.Logger) *UsageTracker {
	t := &UsageTracker{
		path:   path,
		counts: map[string]int{},
		log:    log,
		now:    time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("usage file unreadable, starting empty", "path", path, "error", err)
		}
		return t
	}
	if err := json.Unmarshal(data, &t.counts); err != nil {
		log.Warn("usage file corrupt, starting empty", "path", path, "error", err)
		t.counts = map[string]int{}
	}
	return t
}

// save rewrites the backing file through a temp file + rename. Caller
// must hold t.mu.
func (t *UsageTracker) save() error {
	data, err := json.MarshalIndent(t.counts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp usage: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("rename tmp usage: %w", err)
	}
	return nil
}

// todayKey builds the counter key for model on the current day.
func (t *UsageTracker) todayKey(model string) string {
	return model + "_" + t.now().Format("2006-01-02")
}

func limitFor(model string) int {
	if limit, ok := dailyLimits[model]; ok {
		return limit
	}
	return defaultDailyLimit
}

// CanUse reports whether model still has budget today, with the
// current count and limit for logging.
func (t *UsageTracker) CanUse(model string) (bool, int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit := limitFor(model)
	count := t.counts[t.todayKey(model)]
	return count < limit, count, limit
}

// RecordUse increments today's counter for model, prunes counters
// older than the retention window and persists the file. Save failures
// are logged and returned but callers treat them as non-fatal.
func (t *UsageTracker) RecordUse(model string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[t.todayKey(model)]++
	t.prune()

	if err := t.save(); err != nil {
		t.log.Error("usage save failed", "model", model, "error", err)
		return err
	}

	limit := limitFor(model)
	count := t.counts[t.todayKey(model)]
	if count >= limit {
		t.log.Error("daily budget exhausted", "model", model, "count", count, "limit", limit)
	} else if float64(count) >= float64(limit)*0.8 {
		t.log.Warn("daily budget nearly exhausted", "model", model, "count", count, "limit", limit)
	}
	return nil
}

// prune drops counters older than the retention window. Caller must
// hold t.mu.
func (t *UsageTracker) prune() {
	cutoff := t.now().Add(-usageRetention)
	for key := range t.counts {
		idx := strings.LastIndex(key, "_")
		if idx < 0 {
			continue
		}
		day, err := time.Parse("2006-01-02", key[idx+1:])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			delete(t.counts, key)
		}
	}
}

// Summary returns the current budget view for model.
func (t *UsageTracker) Summary(model string) UsageSummary {
	canUse, count, limit := t.CanUse(model)

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	var pct float64
	if limit > 0 {
		pct = float64(count) / float64(limit) * 100
	}
	return UsageSummary{
		Model:      model,
		TodayCount: count,
		Limit:      limit,
		Remaining:  remaining,
		CanUse:     canUse,
		Percentage: pct,
	}
}
