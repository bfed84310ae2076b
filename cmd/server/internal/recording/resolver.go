package recording

import (
	"log/slog"
	"strings"
)

// Match describes how confident the resolver is that a candidate
// belongs to the requested meeting.
type Match string

const (
	// MatchExact means the filename contains the meeting ID verbatim.
	MatchExact Match = "exact"
	// MatchLatestFallback means no filename matched and the newest
	// candidate overall was returned as a best-effort guess.
	MatchLatestFallback Match = "latest-fallback"
)

// Resolved is a candidate plus the confidence of the match. Consumers
// must treat any result as "best available guess", not a guarantee.
type Resolved struct {
	Candidate
	Match Match
}

// defaultMinSizeMB filters out the tiny control files Zoom writes next
// to real recordings.
const defaultMinSizeMB = 1.0

// Resolver maps a logical meeting ID to a concrete local media file.
type Resolver struct {
	scanner *Scanner
	log     *slog.Logger
}

// NewResolver creates a resolver over the given scanner.
func NewResolver(scanner *Scanner, log *slog.Logger) *Resolver {
	return &Resolver{scanner: scanner, log: log}
}

// Scanner exposes the underlying scanner for diagnostics.
func (r *Resolver) Scanner() *Scanner { return r.scanner }

// SearchRoot reports the primary recording directory, for error
// messages when nothing is found.
func (r *Resolver) SearchRoot() string { return r.scanner.RecordingRoot() }

// FindByMeetingID searches all roots with no time bound and returns
// the first candidate whose filename contains meetingID verbatim.
// When no filename matches, the newest candidate overall is returned
// with MatchLatestFallback: a just-finished recording is very likely
// the intended one even when its name lacks the identifier. Returns
// nil when no candidate exists at all.
func (r *Resolver) FindByMeetingID(meetingID string) *Resolved {
	roots := r.scanner.ResolveSearchRoots()
	candidates := r.scanner.Scan(roots, nil, defaultMinSizeMB)

	for i := range candidates {
		if strings.Contains(candidates[i].Name, meetingID) {
			r.log.Info("recording matched by filename",
				"meeting_id", meetingID, "path", candidates[i].Path)
			return &Resolved{Candidate: candidates[i], Match: MatchExact}
		}
	}

	if len(candidates) > 0 {
		r.log.Info("no filename match, falling back to newest recording",
			"meeting_id", meetingID, "path", candidates[0].Path)
		return &Resolved{Candidate: candidates[0], Match: MatchLatestFallback}
	}

	return nil
}

// FindLatest returns the newest candidate within the window, or nil.
// sinceHours=nil means no time bound.
func (r *Resolver) FindLatest(sinceHours *int, minSizeMB float64) *Resolved {
	roots := r.scanner.ResolveSearchRoots()
	candidates := r.scanner.Scan(roots, sinceHours, minSizeMB)
	if len(candidates) == 0 {
		return nil
	}
	return &Resolved{Candidate: candidates[0], Match: MatchLatestFallback}
}

// CountAll returns how many candidates exist across all roots with no
// time bound, for the orchestrator's not-found diagnostics.
func (r *Resolver) CountAll() int {
	roots := r.scanner.ResolveSearchRoots()
	return len(r.scanner.Scan(roots, nil, defaultMinSizeMB))
}
