package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// zoomWebhookEvent is the envelope Zoom posts for every event type.
type zoomWebhookEvent struct {
	Event   string `json:"event"`
	EventTS int64  `json:"event_ts"`
	Payload struct {
		PlainToken string `json:"plainToken"`
		Object     struct {
			ID    json.Number `json:"id"`
			Topic string      `json:"topic"`
		} `json:"object"`
	} `json:"payload"`
}

// ZoomWebhook handles Zoom event callbacks. It answers the
// endpoint.url_validation challenge and starts processing on
// recording.completed. All events are rejected when no webhook secret
// is configured.
func (h *Handlers) ZoomWebhook(c *gin.Context) {
	if h.WebhookSecret == "" {
		errorResponse(c, http.StatusForbidden, "webhook not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		badRequestResponse(c, "unreadable body")
		return
	}

	var event zoomWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		badRequestResponse(c, "invalid event payload")
		return
	}

	// The validation challenge arrives before Zoom starts signing, so
	// it is answered without a signature check.
	if event.Event == "endpoint.url_validation" {
		mac := hmac.New(sha256.New, []byte(h.WebhookSecret))
		mac.Write([]byte(event.Payload.PlainToken))
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     event.Payload.PlainToken,
			"encryptedToken": hex.EncodeToString(mac.Sum(nil)),
		})
		return
	}

	if !h.verifySignature(c, body) {
		errorResponse(c, http.StatusUnauthorized, "invalid signature")
		return
	}

	switch event.Event {
	case "meeting.created":
		meetingID := event.Payload.Object.ID.String()
		if meetingID == "" || meetingID == "0" {
			badRequestResponse(c, "event missing meeting id")
			return
		}
		if h.DefaultRoomID == "" {
			c.JSON(http.StatusOK, gin.H{"ignored": event.Event, "reason": "no default room"})
			return
		}
		if err := h.Ledger.AddMapping(meetingID, h.DefaultRoomID, event.Payload.Object.Topic); err != nil {
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"meeting_id": meetingID, "room_id": h.DefaultRoomID})
	case "recording.completed":
		meetingID := event.Payload.Object.ID.String()
		if meetingID == "" || meetingID == "0" {
			badRequestResponse(c, "event missing meeting id")
			return
		}
		if h.Ledger.IsProcessed(meetingID) {
			c.JSON(http.StatusOK, gin.H{"ignored": event.Event, "reason": "already processed"})
			return
		}
		task := h.Orchestrator.Registry().Create(meetingID, "")
		go func() {
			if err := h.Orchestrator.Process(context.Background(), task.ID, meetingID, "", "webhook"); err != nil {
				h.Log.Error("webhook processing failed", "task_id", task.ID, "meeting_id", meetingID, "error", err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
	default:
		// Acknowledge unhandled events so Zoom does not retry them.
		h.Log.Info("ignoring webhook event", "event", event.Event)
		c.JSON(http.StatusOK, gin.H{"ignored": event.Event})
	}
}

// verifySignature checks the x-zm-signature header:
// v0=HMAC_SHA256(secret, "v0:{timestamp}:{body}").
func (h *Handlers) verifySignature(c *gin.Context, body []byte) bool {
	signature := c.GetHeader("x-zm-signature")
	timestamp := c.GetHeader("x-zm-request-timestamp")
	if signature == "" || timestamp == "" {
		return false
	}

	var msg bytes.Buffer
	msg.WriteString("v0:")
	msg.WriteString(timestamp)
	msg.WriteString(":")
	msg.Write(body)

	mac := hmac.New(sha256.New, []byte(h.WebhookSecret))
	mac.Write(msg.Bytes())
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.TrimSpace(signature)), []byte(expected))
}
