package capture

import (
	"sync"
	"time"
)

// Status is the session state machine: starting → running → completed|failed.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Session is one live capture run. The worker goroutine publishes onto emit;
// the dispatch goroutine is the sole owner of the event log and the
// subscriber set, so cross-goroutine delivery is always marshalled through
// it rather than touching consumer channels directly.
type Session struct {
	ID       string
	Prompt   string
	Headless bool

	emit chan Event
	sub  chan *subscriber
	snap chan chan []Event
	done chan struct{}

	mu         sync.Mutex
	status     Status
	model      string
	provider   string
	startedAt  time.Time
	finishedAt time.Time
	errMsg     string
}

func newSession(id, prompt string, headless bool, model, provider string) *Session {
	return &Session{
		ID:        id,
		Prompt:    prompt,
		Headless:  headless,
		emit:      make(chan Event, 64),
		sub:       make(chan *subscriber),
		snap:      make(chan chan []Event),
		done:      make(chan struct{}),
		status:    StatusStarting,
		model:     model,
		provider:  provider,
		startedAt: time.Now().UTC(),
	}
}

// publish sends an event to the dispatch loop. Called from the worker only.
func (s *Session) publish(phase Phase, data map[string]any) {
	s.emit <- Event{
		CaptureID: s.ID,
		Phase:     phase,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Session) setRunning() {
	s.mu.Lock()
	s.status = StatusRunning
	s.mu.Unlock()
}

func (s *Session) setModel(model string) {
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
}

// finish records the terminal status. The worker still emits the error and
// capture_complete events afterwards, then closes emit.
func (s *Session) finish(status Status, errMsg string) {
	s.mu.Lock()
	s.status = status
	s.errMsg = errMsg
	s.finishedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// meta snapshots the session into record metadata. EventCount is filled in
// by the dispatcher at persistence time.
func (s *Session) meta() RecordMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := RecordMeta{
		CaptureID: s.ID,
		Prompt:    s.Prompt,
		Model:     s.model,
		Provider:  s.provider,
		Status:    s.status,
		Headless:  s.Headless,
		StartedAt: s.startedAt,
		Error:     s.errMsg,
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		m.FinishedAt = &t
		m.DurationMS = s.finishedAt.Sub(s.startedAt).Milliseconds()
	}
	return m
}

// subscribe attaches a live consumer. The bool is false if the session has
// already retired; the caller falls back to the persisted record.
func (s *Session) subscribe() (<-chan Event, func(), bool) {
	sub := &subscriber{
		ch:   make(chan Event, 64),
		gone: make(chan struct{}),
	}
	select {
	case s.sub <- sub:
	case <-s.done:
		return nil, nil, false
	}

	var once sync.Once
	cancel := func() { once.Do(func() { close(sub.gone) }) }
	return sub.ch, cancel, true
}

// snapshot returns a copy of the event log so far.
func (s *Session) snapshot() []Event {
	resp := make(chan []Event, 1)
	select {
	case s.snap <- resp:
		return <-resp
	case <-s.done:
		return nil
	}
}

// dispatch is the session's event loop. It owns the event log and the
// subscriber set exclusively. Every consumer sees every event from its
// attachment forward, in emission order; a consumer that went away, or
// stalled long enough to fill its buffer, is dropped instead of blocking
// the loop. When the worker closes emit the loop hands the final log to
// onTerminal, signals end-of-stream and exits.
func (s *Session) dispatch(onTerminal func(events []Event)) {
	var log []Event
	subs := make(map[*subscriber]bool)

	for {
		select {
		case ev, ok := <-s.emit:
			if !ok {
				onTerminal(log)
				for sub := range subs {
					close(sub.ch)
				}
				close(s.done)
				return
			}
			log = append(log, ev)
			for sub := range subs {
				select {
				case <-sub.gone:
					delete(subs, sub)
					close(sub.ch)
					continue
				default:
				}
				select {
				case sub.ch <- ev:
				default:
					// Stalled with a full buffer and never cancelled.
					// Drop it so it can never block the worker or the
					// other consumers.
					delete(subs, sub)
					close(sub.ch)
				}
			}

		case sub := <-s.sub:
			select {
			case <-sub.gone:
				close(sub.ch)
			default:
				subs[sub] = true
			}

		case resp := <-s.snap:
			resp <- append([]Event(nil), log...)
		}
	}
}
