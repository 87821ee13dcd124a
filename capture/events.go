package capture

import "time"

// Phase is the fixed event vocabulary of a capture session.
type Phase string

const (
	PhaseBrowserStatus  Phase = "browser_status"
	PhaseSearchQuery    Phase = "search_query"
	PhaseSearchResult   Phase = "search_result"
	PhaseCitation       Phase = "citation"
	PhaseAssistantDelta Phase = "assistant_delta"
	PhaseError          Phase = "error"
	PhaseComplete       Phase = "capture_complete"
)

// Event is one entry in a session's ordered event stream.
type Event struct {
	CaptureID string         `json:"capture_id"`
	Phase     Phase          `json:"phase"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// subscriber is one live consumer. The dispatch loop is the only writer of
// ch; gone is closed by the consumer's cancel func and tells the loop to
// drop the subscriber instead of blocking on it.
type subscriber struct {
	ch   chan Event
	gone chan struct{}
}
