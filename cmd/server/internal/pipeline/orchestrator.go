// Package pipeline runs the resolve, summarize, deliver sequence for a
// meeting and records its outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gijibot/gijibot/cmd/server/internal/audit"
	"github.com/gijibot/gijibot/cmd/server/internal/gemini"
	"github.com/gijibot/gijibot/cmd/server/internal/ledger"
	"github.com/gijibot/gijibot/cmd/server/internal/metrics"
	"github.com/gijibot/gijibot/cmd/server/internal/recording"
	"github.com/gijibot/gijibot/cmd/server/internal/zoom"
	"github.com/gijibot/gijibot/pkg/logger"
)

// Progress checkpoints reported while a task runs. Values are fixed so
// pollers can rely on them.
const (
	progressResolving   = 15
	progressResolved    = 30
	progressSummarizing = 50
	progressSummarized  = 80
	progressDelivering  = 90
)

// LocalResolver locates recordings on the local disk.
type LocalResolver interface {
	FindByMeetingID(meetingID string) *recording.Resolved
	CountAll() int
	SearchRoot() string
}

// MeetingSource fetches recordings and transcripts from the Zoom API.
type MeetingSource interface {
	GetRecordingFile(ctx context.Context, meetingID, outputDir string) (string, error)
	GetTranscript(ctx context.Context, meetingID string) (string, error)
	RecentMeetingsWithRecordings(ctx context.Context, hours *int, includeWithout bool) ([]zoom.Meeting, error)
}

// Summarizer turns a recording or transcript into meeting minutes.
type Summarizer interface {
	SummarizeTranscript(ctx context.Context, transcript string) (string, error)
	SummarizeMedia(ctx context.Context, path string, kind gemini.MediaKind) (string, error)
}

// Deliverer posts the finished summary to a room.
type Deliverer interface {
	SendMessage(ctx context.Context, roomID, body string) error
}

// Options wires an Orchestrator.
type Options struct {
	Local         LocalResolver
	Source        MeetingSource
	Summarizer    Summarizer
	Deliverer     Deliverer
	Ledger        *ledger.Ledger
	Registry      *Registry
	Audit         *audit.Logger
	TempDir       string
	DefaultRoomID string
	WorkerPool    int
	Log           *slog.Logger
}

// Orchestrator executes processing tasks with a bounded worker pool.
type Orchestrator struct {
	local         LocalResolver
	source        MeetingSource
	summarizer    Summarizer
	deliverer     Deliverer
	ledger        *ledger.Ledger
	registry      *Registry
	audit         *audit.Logger
	tempDir       string
	defaultRoomID string
	workers       *semaphore.Weighted
	log           *slog.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	pool := opts.WorkerPool
	if pool < 1 {
		pool = 1
	}
	return &Orchestrator{
		local:         opts.Local,
		source:        opts.Source,
		summarizer:    opts.Summarizer,
		deliverer:     opts.Deliverer,
		ledger:        opts.Ledger,
		registry:      opts.Registry,
		audit:         opts.Audit,
		tempDir:       opts.TempDir,
		defaultRoomID: opts.DefaultRoomID,
		workers:       semaphore.NewWeighted(int64(pool)),
		log:           opts.Log,
	}
}

// Registry exposes the task registry for status handlers.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Process runs the full pipeline for one meeting under the worker
// pool. roomID == "" falls back to the ledger mapping, then the
// default room. The meeting is marked processed only after the summary
// reached the room. trigger labels metrics ("api", "webhook",
// "sweep").
func (o *Orchestrator) Process(ctx context.Context, taskID, meetingID, roomID, trigger string) error {
	if err := o.workers.Acquire(ctx, 1); err != nil {
		o.registry.Fail(taskID, "cancelled before start: "+err.Error())
		return err
	}
	defer o.workers.Release(1)

	start := time.Now()
	err := o.run(ctx, taskID, meetingID, roomID)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		o.registry.Fail(taskID, err.Error())
		metrics.RecordTask(trigger, "failed")
		code := errorCode(err)
		logger.LogPipelineStage(o.log, stageFor(code), "error", taskID, elapsed, code)
		return err
	}
	metrics.RecordTask(trigger, "completed")
	logger.LogPipelineStage(o.log, "deliver", "success", taskID, elapsed, "")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, taskID, meetingID, roomID string) error {
	// Fail fast when no destination exists, before any download or
	// summarization spend.
	room := o.resolveRoom(meetingID, roomID)
	if room == "" {
		return ErrNoRoomConfigured
	}

	o.registry.Checkpoint(taskID, progressResolving, "locating recording")

	resolveStart := time.Now()
	mediaPath, transcript, source, err := o.resolveInput(ctx, meetingID)
	metrics.RecordStageDuration("resolve", time.Since(resolveStart).Seconds())
	if err != nil {
		metrics.RecordResolution("none")
		return err
	}
	metrics.RecordResolution(source)

	downloaded := source == "remote"
	if downloaded {
		defer func() {
			if rmErr := os.Remove(mediaPath); rmErr != nil {
				o.log.Warn("failed to remove downloaded recording", "path", mediaPath, "error", rmErr)
			}
		}()
	}

	o.registry.Checkpoint(taskID, progressResolved, "recording located ("+source+")")

	if mediaPath != "" && strings.EqualFold(filepath.Ext(mediaPath), ".zoom") {
		return &RawFormatError{Path: mediaPath}
	}

	o.registry.Checkpoint(taskID, progressSummarizing, "generating summary")

	summarizeStart := time.Now()
	var summary string
	if mediaPath != "" {
		summary, err = o.summarizer.SummarizeMedia(ctx, mediaPath, mediaKindFor(mediaPath))
	} else {
		summary, err = o.summarizer.SummarizeTranscript(ctx, transcript)
	}
	metrics.RecordStageDuration("summarize", time.Since(summarizeStart).Seconds())
	if err != nil {
		return err
	}
	o.registry.Checkpoint(taskID, progressSummarized, "summary generated")

	o.registry.Checkpoint(taskID, progressDelivering, "delivering summary")
	body := fmt.Sprintf("[info][title]Meeting summary (meeting %s)[/title]%s[/info]", meetingID, summary)

	deliverStart := time.Now()
	deliverErr := o.deliverer.SendMessage(ctx, room, body)
	metrics.RecordStageDuration("deliver", time.Since(deliverStart).Seconds())
	o.audit.LogDelivery(taskID, meetingID, room, source, len([]rune(summary)), deliverErr)
	if deliverErr != nil {
		return &DeliveryError{RoomID: room, Err: deliverErr}
	}

	if err := o.ledger.MarkProcessed(meetingID); err != nil {
		// Delivery succeeded; a ledger write failure must not fail the
		// task, only risk a duplicate next sweep.
		o.log.Error("failed to mark meeting processed", "meeting_id", meetingID, "error", err)
	}

	o.registry.Complete(taskID, summary)
	o.log.Info("task completed", "task_id", taskID, "meeting_id", meetingID, "room_id", room, "source", source)
	return nil
}

// resolveInput locates the summarizer input. Order: local filename
// match, local newest fallback, remote recording download, remote
// transcript. Exactly one of mediaPath and transcript is returned.
func (o *Orchestrator) resolveInput(ctx context.Context, meetingID string) (mediaPath, transcript, source string, err error) {
	if resolved := o.local.FindByMeetingID(meetingID); resolved != nil {
		source = "local_exact"
		if resolved.Match == recording.MatchLatestFallback {
			source = "local_fallback"
		}
		return resolved.Path, "", source, nil
	}

	remoteDetail := ""
	path, dlErr := o.source.GetRecordingFile(ctx, meetingID, o.tempDir)
	if dlErr != nil {
		remoteDetail = dlErr.Error()
		o.log.Warn("remote recording download failed", "meeting_id", meetingID, "error", dlErr)
	} else if path != "" {
		return path, "", "remote", nil
	}

	text, trErr := o.source.GetTranscript(ctx, meetingID)
	if trErr != nil {
		o.log.Warn("remote transcript fetch failed", "meeting_id", meetingID, "error", trErr)
	} else if text != "" {
		return "", text, "remote_transcript", nil
	}

	return "", "", "", &NotFoundError{
		MeetingID:       meetingID,
		SearchRoot:      o.local.SearchRoot(),
		CandidateCount:  o.local.CountAll(),
		RemoteAttempted: true,
		RemoteDetail:    remoteDetail,
	}
}

func (o *Orchestrator) resolveRoom(meetingID, roomID string) string {
	if roomID != "" {
		return roomID
	}
	if mapped := o.ledger.GetRoomID(meetingID); mapped != "" {
		return mapped
	}
	return o.defaultRoomID
}

// SweepResult summarizes one automatic sweep run.
type SweepResult struct {
	Examined  int
	Processed int
	Skipped   int
	Failed    int
}

// Sweep examines all past meetings with completed recordings and
// processes every one the ledger has not marked processed yet. Each
// meeting runs synchronously; a failure is counted and never stops the
// sweep. Finished tasks past retention are pruned at the end.
func (o *Orchestrator) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	meetings, err := o.source.RecentMeetingsWithRecordings(ctx, nil, true)
	if err != nil {
		return res, fmt.Errorf("list meetings: %w", err)
	}
	res.Examined = len(meetings)

	for _, m := range meetings {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		meetingID := m.MeetingID()

		if !hasCompletedRecording(m) {
			metrics.RecordSweepMeeting("skipped_no_recording")
			res.Skipped++
			continue
		}
		if o.ledger.IsProcessed(meetingID) {
			metrics.RecordSweepMeeting("skipped_processed")
			res.Skipped++
			continue
		}

		room := o.resolveRoom(meetingID, "")
		if room == "" {
			o.log.Warn("no room for meeting, skipping", "meeting_id", meetingID, "topic", m.Topic)
			metrics.RecordSweepMeeting("skipped_no_room")
			res.Skipped++
			continue
		}

		task := o.registry.Create(meetingID, room)
		if err := o.Process(ctx, task.ID, meetingID, room, "sweep"); err != nil {
			o.log.Error("sweep processing failed", "meeting_id", meetingID, "error", err)
			metrics.RecordSweepMeeting("failed")
			res.Failed++
			continue
		}
		metrics.RecordSweepMeeting("processed")
		res.Processed++
	}

	o.audit.LogSweep(res.Examined, res.Processed, res.Failed)
	if pruned := o.registry.Prune(); pruned > 0 {
		o.log.Info("pruned finished tasks", "count", pruned)
	}
	return res, nil
}

func hasCompletedRecording(m zoom.Meeting) bool {
	for _, r := range m.Recordings {
		if r.Completed() {
			return true
		}
	}
	return false
}

// mediaKindFor maps a file extension to the summarizer media kind.
// Unknown extensions are treated as video, the safer prompt.
func mediaKindFor(path string) gemini.MediaKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a", ".mp3":
		return gemini.MediaAudio
	default:
		return gemini.MediaVideo
	}
}

func errorCode(err error) string {
	var (
		notFound   *NotFoundError
		rawFormat  *RawFormatError
		delivery   *DeliveryError
		quota      *gemini.QuotaError
		summarizer *gemini.SummarizerError
	)
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &rawFormat):
		return "raw_format"
	case errors.As(err, &delivery):
		return "delivery"
	case errors.As(err, &quota):
		return "quota"
	case errors.As(err, &summarizer):
		return "summarizer"
	case errors.Is(err, ErrNoRoomConfigured):
		return "no_room"
	default:
		return "internal"
	}
}

// stageFor maps an error code back to the stage it came from, for the
// structured pipeline log.
func stageFor(code string) string {
	switch code {
	case "not_found", "raw_format":
		return "resolve"
	case "quota", "summarizer":
		return "summarize"
	case "delivery", "no_room":
		return "deliver"
	default:
		return "resolve"
	}
}
