package capture

import "fmt"

// ErrCaptureActive is returned by Start while another session is in flight.
// There is no queuing: the caller retries after the active capture retires.
type ErrCaptureActive struct {
	ActiveID string
}

func (e *ErrCaptureActive) Error() string {
	return fmt.Sprintf("capture: session %s is already active", e.ActiveID)
}

// ErrNotFound is returned when a capture id matches neither a live session
// nor a persisted record.
type ErrNotFound struct {
	CaptureID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("capture: no session or record for %s", e.CaptureID)
}
