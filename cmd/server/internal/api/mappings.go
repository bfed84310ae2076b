package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListMappings returns every meeting-to-room mapping with its
// processed state, plus the IDs still waiting for a summary.
func (h *Handlers) ListMappings(c *gin.Context) {
	successResponse(c, gin.H{
		"mappings": h.Ledger.All(),
		"pending":  h.Ledger.PendingMeetings(),
	})
}

// AddMapping stores a meeting-to-room mapping. The room is verified
// against the Chatwork API first so typos surface at mapping time, not
// at delivery time. Re-adding an existing meeting resets its processed
// flag.
func (h *Handlers) AddMapping(c *gin.Context) {
	var req struct {
		MeetingID string `json:"meeting_id" binding:"required"`
		RoomID    string `json:"room_id" binding:"required"`
		Topic     string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestResponse(c, "invalid request body: "+err.Error())
		return
	}

	room, err := h.Rooms.GetRoomInfo(c.Request.Context(), req.RoomID)
	if err != nil {
		badRequestResponse(c, "room verification failed: "+err.Error())
		return
	}

	topic := req.Topic
	if topic == "" {
		topic = room.Name
	}
	if err := h.Ledger.AddMapping(req.MeetingID, req.RoomID, topic); err != nil {
		internalErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"meeting_id": req.MeetingID,
		"room_id":    req.RoomID,
		"room_name":  room.Name,
	})
}

// RemoveMapping deletes a mapping. Removing an absent mapping is a
// no-op and still returns 200, matching the ledger semantics.
func (h *Handlers) RemoveMapping(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	if meetingID == "" {
		badRequestResponse(c, "meeting_id is required")
		return
	}
	if err := h.Ledger.RemoveMapping(meetingID); err != nil {
		internalErrorResponse(c, err)
		return
	}
	successResponse(c, gin.H{"meeting_id": meetingID, "removed": true})
}
