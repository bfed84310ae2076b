package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoRoomConfigured means neither the ledger nor the config names a
// Chatwork room for the meeting. Resolved before any heavy work.
var ErrNoRoomConfigured = errors.New("no chatwork room mapped for meeting and no default room configured")

// NotFoundError reports that no usable recording or transcript could
// be located. Its message carries enough diagnostics for an operator
// to act on without reading logs.
type NotFoundError struct {
	MeetingID       string
	SearchRoot      string
	CandidateCount  int
	RemoteAttempted bool
	RemoteDetail    string
}

func (e *NotFoundError) Error() string {
	remote := "remote lookup not attempted"
	if e.RemoteAttempted {
		remote = "remote lookup found nothing"
		if e.RemoteDetail != "" {
			remote = "remote lookup failed: " + e.RemoteDetail
		}
	}
	return fmt.Sprintf("no recording found for meeting %s: searched %s (%d local candidates), %s",
		e.MeetingID, e.SearchRoot, e.CandidateCount, remote)
}

// RawFormatError reports a recording still in Zoom's proprietary .zoom
// container. No summarizer accepts it; the Zoom client converts it on
// replay.
type RawFormatError struct {
	Path string
}

func (e *RawFormatError) Error() string {
	return fmt.Sprintf("recording %s is in the raw .zoom format and cannot be summarized; "+
		"open it once in the Zoom client to convert it to MP4/M4A, then retry", e.Path)
}

// DeliveryError wraps a failed summary post. The summary was generated
// but never reached the room, so the meeting stays unprocessed.
type DeliveryError struct {
	RoomID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver summary to room %s: %v", e.RoomID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
