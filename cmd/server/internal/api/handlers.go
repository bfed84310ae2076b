// Package api exposes the HTTP surface: manual processing, task
// status, room mappings, meeting listings, the Zoom webhook, and
// health probes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gijibot/gijibot/cmd/server/internal/chatwork"
	"github.com/gijibot/gijibot/cmd/server/internal/gemini"
	"github.com/gijibot/gijibot/cmd/server/internal/ledger"
	"github.com/gijibot/gijibot/cmd/server/internal/pipeline"
	"github.com/gijibot/gijibot/cmd/server/internal/zoom"
)

// Processor runs and tracks pipeline tasks.
type Processor interface {
	Process(ctx context.Context, taskID, meetingID, roomID, trigger string) error
	Sweep(ctx context.Context) (pipeline.SweepResult, error)
	Registry() *pipeline.Registry
}

// MeetingLister fetches past meetings from the provider.
type MeetingLister interface {
	RecentMeetingsWithRecordings(ctx context.Context, hours *int, includeWithout bool) ([]zoom.Meeting, error)
}

// RoomValidator checks that a room exists before a mapping to it is
// stored, and identifies the token owner for connectivity tests.
type RoomValidator interface {
	GetRoomInfo(ctx context.Context, roomID string) (*chatwork.RoomInfo, error)
	GetMyInfo(ctx context.Context) (*chatwork.Me, error)
}

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	Orchestrator  Processor
	Ledger        *ledger.Ledger
	Meetings      MeetingLister
	Rooms         RoomValidator
	Usage         *gemini.UsageTracker
	Model         string
	WebhookSecret string
	DefaultRoomID string
	Log           *slog.Logger
}

// RegisterRoutes attaches all API routes to the engine.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/meetings/:meeting_id/process", h.ProcessMeeting)
		v1.GET("/meetings/recent", h.RecentMeetings)
		v1.GET("/tasks/:task_id", h.TaskStatus)
		v1.GET("/tasks", h.ListTasks)
		v1.GET("/mappings", h.ListMappings)
		v1.POST("/mappings", h.AddMapping)
		v1.DELETE("/mappings/:meeting_id", h.RemoveMapping)
		v1.POST("/sweep", h.RunSweep)
		v1.GET("/test/chatwork", h.TestChatwork)
		v1.GET("/usage", h.UsageSummary)
	}

	r.POST("/webhook/zoom", h.ZoomWebhook)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}

// ProcessMeeting starts an asynchronous processing task for one
// meeting and returns its task ID. The optional body overrides the
// destination room.
func (h *Handlers) ProcessMeeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	if meetingID == "" {
		badRequestResponse(c, "meeting_id is required")
		return
	}

	var req struct {
		RoomID string `json:"room_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body: "+err.Error())
			return
		}
	}

	task := h.Orchestrator.Registry().Create(meetingID, req.RoomID)

	// The request context dies with the response; the task must not.
	go func() {
		if err := h.Orchestrator.Process(context.Background(), task.ID, meetingID, req.RoomID, "api"); err != nil {
			h.Log.Error("processing failed", "task_id", task.ID, "meeting_id", meetingID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID,
		"state":   task.State,
	})
}

// TaskStatus returns the current snapshot of a task. Unknown IDs
// report pending rather than 404, so pollers survive restarts and
// pruning.
func (h *Handlers) TaskStatus(c *gin.Context) {
	successResponse(c, h.Orchestrator.Registry().Get(c.Param("task_id")))
}

// ListTasks returns all tracked tasks, newest first.
func (h *Handlers) ListTasks(c *gin.Context) {
	successResponse(c, gin.H{"tasks": h.Orchestrator.Registry().List()})
}

// RunSweep triggers one synchronous sweep and reports its counts.
func (h *Handlers) RunSweep(c *gin.Context) {
	res, err := h.Orchestrator.Sweep(c.Request.Context())
	if err != nil {
		internalErrorResponse(c, err)
		return
	}
	successResponse(c, gin.H{
		"examined":  res.Examined,
		"processed": res.Processed,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
	})
}

// RecentMeetings lists past meetings with their recording state.
// ?hours bounds the window; ?include_without_recordings=true keeps
// meetings with no completed recording in the response.
func (h *Handlers) RecentMeetings(c *gin.Context) {
	var hours *int
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequestResponse(c, "hours must be a positive integer")
			return
		}
		hours = &n
	}
	includeWithout := c.Query("include_without_recordings") == "true"

	meetings, err := h.Meetings.RecentMeetingsWithRecordings(c.Request.Context(), hours, includeWithout)
	if err != nil {
		internalErrorResponse(c, err)
		return
	}

	type meetingView struct {
		MeetingID      string    `json:"meeting_id"`
		Topic          string    `json:"topic"`
		StartTime      time.Time `json:"start_time"`
		Duration       int       `json:"duration"`
		RecordingCount int       `json:"recording_count"`
		Processed      bool      `json:"processed"`
		RecordingError string    `json:"recording_error,omitempty"`
	}

	views := make([]meetingView, 0, len(meetings))
	for _, m := range meetings {
		id := m.MeetingID()
		views = append(views, meetingView{
			MeetingID:      id,
			Topic:          m.Topic,
			StartTime:      m.StartTime,
			Duration:       m.Duration,
			RecordingCount: len(m.Recordings),
			Processed:      h.Ledger.IsProcessed(id),
			RecordingError: m.RecordingError,
		})
	}
	successResponse(c, gin.H{"meetings": views})
}

// TestChatwork verifies the delivery token by fetching its owner.
func (h *Handlers) TestChatwork(c *gin.Context) {
	me, err := h.Rooms.GetMyInfo(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "chatwork connection failed: "+err.Error())
		return
	}
	successResponse(c, gin.H{
		"account_id": me.AccountID,
		"name":       me.Name,
	})
}

// UsageSummary reports today's summarizer budget for the active model.
func (h *Handlers) UsageSummary(c *gin.Context) {
	successResponse(c, h.Usage.Summary(h.Model))
}

// Health is the liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready is the readiness probe. The service has no hard startup
// dependencies beyond configuration, so ready follows alive.
func (h *Handlers) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
