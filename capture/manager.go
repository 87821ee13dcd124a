// Package capture orchestrates live capture sessions: it selects an
// identity under quota, drives the browser collaborator on a dedicated
// goroutine (the collaborator blocks), reconstructs the captured traffic,
// and republishes progress as an ordered event stream to any number of
// consumers.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/sift/accounts"
)

// Submission is what the browser collaborator hands back for one prompt.
type Submission struct {
	RawFrames     string
	ExtractedText string
	ElapsedMS     int64
}

// Driver is the narrow browser-control contract the session manager
// consumes. Implementations block; the manager always calls them from the
// worker goroutine.
type Driver interface {
	Start(ctx context.Context, headless bool) error
	Authenticate(ctx context.Context, email, password string) (bool, error)
	Submit(ctx context.Context, prompt, model string) (*Submission, error)
	Stop() error
}

// Manager owns the session registry. At most one session is active
// process-wide; the rule is enforced by a guard on registry insertion.
type Manager struct {
	selector *accounts.Selector
	driver   Driver
	records  *RecordStore
	model    string
	provider string
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	activeID string
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Selector *accounts.Selector
	Driver   Driver
	Records  *RecordStore
	// Model is the model slug requested from the product and the fallback
	// when the stream does not name one.
	Model    string
	Provider string
	Logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Selector == nil || cfg.Driver == nil || cfg.Records == nil {
		return nil, fmt.Errorf("capture: selector, driver and records are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		selector: cfg.Selector,
		driver:   cfg.Driver,
		records:  cfg.Records,
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Start begins a capture session for the prompt. It fails immediately with
// *ErrCaptureActive while another session is in flight; there is no queue.
//
// The worker deliberately runs on a background context: once started, a
// capture has no cancellation path, and a disconnected consumer must not
// stop it.
func (m *Manager) Start(ctx context.Context, prompt string, headless bool) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := newSession(newCaptureID(), prompt, headless, m.model, m.provider)

	m.mu.Lock()
	if m.activeID != "" {
		active := m.activeID
		m.mu.Unlock()
		return nil, &ErrCaptureActive{ActiveID: active}
	}
	m.sessions[s.ID] = s
	m.activeID = s.ID
	m.mu.Unlock()

	// Identity selection happens before the worker exists so that quota
	// exhaustion reaches the caller as an error, not as a failed session.
	acct, err := m.selector.SelectAndRecord(ctx, time.Now())
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.activeID = ""
		m.mu.Unlock()
		// No dispatch goroutine ever runs for this session; close done
		// here so a racing subscriber falls back instead of blocking.
		close(s.done)
		return nil, err
	}

	m.logger.Info("capture: session starting",
		"capture_id", s.ID, "account_id", acct.ID, "headless", headless)

	go s.dispatch(func(events []Event) { m.retire(s, events) })
	go m.run(s, acct)

	return s, nil
}

// Events returns the event stream for a capture id. For a live session the
// channel carries every event from now on, in order, and is closed at
// end-of-stream; for a finished one it replays the persisted log. The
// cancel func detaches a live consumer without affecting the session.
func (m *Manager) Events(captureID string) (<-chan Event, func(), error) {
	m.mu.Lock()
	s := m.sessions[captureID]
	m.mu.Unlock()

	if s != nil {
		if ch, cancel, ok := s.subscribe(); ok {
			return ch, cancel, nil
		}
	}

	rec, err := m.records.Load(captureID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Event, len(rec.Events))
	for _, ev := range rec.Events {
		ch <- ev
	}
	close(ch)
	return ch, func() {}, nil
}

// Record returns the persisted record for a finished capture, or a snapshot
// (metadata plus events so far) for a live one.
func (m *Manager) Record(captureID string) (*Record, error) {
	m.mu.Lock()
	s := m.sessions[captureID]
	m.mu.Unlock()

	if s != nil {
		events := s.snapshot()
		meta := s.meta()
		meta.EventCount = len(events)
		return &Record{Meta: meta, Events: events}, nil
	}
	return m.records.Load(captureID)
}

// Quota reports per-account usage inside the current window.
func (m *Manager) Quota(ctx context.Context) ([]accounts.AccountUsage, error) {
	return m.selector.Usage(ctx, time.Now())
}

// retire persists the finished session and removes it from the registry.
// Runs on the session's dispatch goroutine as its last act.
func (m *Manager) retire(s *Session, events []Event) {
	meta := s.meta()
	meta.EventCount = len(events)

	rec := &Record{Meta: meta, Events: events}
	if err := m.records.Save(rec); err != nil {
		m.logger.Error("capture: persist record", "capture_id", s.ID, "error", err)
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	if m.activeID == s.ID {
		m.activeID = ""
	}
	m.mu.Unlock()

	m.logger.Info("capture: session retired",
		"capture_id", s.ID, "status", meta.Status, "events", meta.EventCount)
}

func newCaptureID() string {
	return "cap_" + uuid.Must(uuid.NewV7()).String()
}
