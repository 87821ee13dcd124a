package capture_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sift/accounts"
	"github.com/hazyhaar/sift/capture"
	"github.com/hazyhaar/sift/dbopen"
)

// fakeDriver satisfies the browser-control contract without a browser.
type fakeDriver struct {
	gate       chan struct{} // Start blocks on this when non-nil
	failAt     string        // "start", "auth", "submit"
	rejectAuth bool
	submission *capture.Submission
}

func (d *fakeDriver) Start(_ context.Context, _ bool) error {
	if d.gate != nil {
		<-d.gate
	}
	if d.failAt == "start" {
		return fmt.Errorf("chrome did not come up")
	}
	return nil
}

func (d *fakeDriver) Authenticate(_ context.Context, _, _ string) (bool, error) {
	if d.failAt == "auth" {
		return false, fmt.Errorf("login page changed")
	}
	return !d.rejectAuth, nil
}

func (d *fakeDriver) Submit(_ context.Context, _, _ string) (*capture.Submission, error) {
	if d.failAt == "submit" {
		return nil, fmt.Errorf("stream never arrived")
	}
	return d.submission, nil
}

func (d *fakeDriver) Stop() error { return nil }

const sampleFrames = `data: {"v":{"message":{"author":{"role":"tool"},"metadata":{"search_queries":[{"type":"search","q":"test query"}]}}}}
data: {"p":"/message/metadata/search_result_groups","o":"replace","v":[{"domain":"example.com","entries":[{"type":"search_result","url":"https://example.com/a","title":"A","ref_id":{"turn_index":0,"ref_type":"search","ref_index":0}}]}]}
data: {"p":"/message/content/parts/0","o":"append","v":"answer with turn0search0"}
data: [DONE]`

func newManager(t *testing.T, driver capture.Driver, limit int) *capture.Manager {
	t.Helper()

	db := dbopen.OpenMemory(t)
	store := accounts.NewStore(db)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	pool := []accounts.Account{
		{ID: accounts.AccountID("a@example.com"), Email: "a@example.com", Password: "pw"},
	}
	sel, err := accounts.NewSelector(store, pool, limit, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	records, err := capture.NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := capture.NewManager(capture.ManagerConfig{
		Selector: sel,
		Driver:   driver,
		Records:  records,
		Model:    "gpt-test",
		Provider: "chatgpt-web",
	})
	if err != nil {
		t.Fatal(err)
	}
	return mgr
}

func drain(t *testing.T, ch <-chan capture.Event) []capture.Event {
	t.Helper()
	var events []capture.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("event stream did not terminate; got %d events", len(events))
		}
	}
}

func phases(events []capture.Event) []capture.Phase {
	out := make([]capture.Phase, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Phase)
	}
	return out
}

func TestSuccessfulCapture(t *testing.T) {
	driver := &fakeDriver{
		gate: make(chan struct{}),
		submission: &capture.Submission{
			RawFrames: sampleFrames,
			ElapsedMS: 1234,
		},
	}
	mgr := newManager(t, driver, 10)

	s, err := mgr.Start(context.Background(), "what is up", true)
	if err != nil {
		t.Fatal(err)
	}

	ch, cancel, err := mgr.Events(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	close(driver.gate) // release the worker now that we're attached

	live := drain(t, ch)
	if len(live) == 0 || live[len(live)-1].Phase != capture.PhaseComplete {
		t.Fatalf("live stream must end with capture_complete, got %v", phases(live))
	}

	// The session has retired; the record replays the full log.
	rec, err := mgr.Record(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Meta.Status != capture.StatusCompleted {
		t.Errorf("status = %s, want completed", rec.Meta.Status)
	}
	if rec.Meta.EventCount != len(rec.Events) {
		t.Errorf("event_count = %d, events = %d", rec.Meta.EventCount, len(rec.Events))
	}
	if rec.Meta.FinishedAt == nil {
		t.Error("finished_at not set")
	}

	want := []capture.Phase{
		capture.PhaseBrowserStatus, // account_selected
		capture.PhaseBrowserStatus, // browser_started
		capture.PhaseBrowserStatus, // authenticated
		capture.PhaseBrowserStatus, // submitting
		capture.PhaseSearchQuery,
		capture.PhaseSearchResult,
		capture.PhaseCitation,
		capture.PhaseAssistantDelta,
		capture.PhaseComplete,
	}
	got := phases(rec.Events)
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phase[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	for _, ev := range rec.Events {
		if ev.CaptureID != s.ID {
			t.Errorf("event carries capture id %q", ev.CaptureID)
		}
	}

	// A consumer attaching after completion replays the persisted list.
	replay, cancel2, err := mgr.Events(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel2()
	replayed := drain(t, replay)
	if len(replayed) != len(rec.Events) {
		t.Errorf("replay = %d events, want %d", len(replayed), len(rec.Events))
	}
}

func TestFailedCaptureEndsWithErrorThenComplete(t *testing.T) {
	driver := &fakeDriver{failAt: "submit"}
	mgr := newManager(t, driver, 10)

	s, err := mgr.Start(context.Background(), "doomed", true)
	if err != nil {
		t.Fatal(err)
	}

	waitRetired(t, mgr, s.ID)

	rec, err := mgr.Record(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Meta.Status != capture.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Meta.Status)
	}
	if rec.Meta.Error == "" {
		t.Error("record carries no error message")
	}

	n := len(rec.Events)
	if n < 2 {
		t.Fatalf("events = %d, want at least error + capture_complete", n)
	}
	if rec.Events[n-2].Phase != capture.PhaseError || rec.Events[n-1].Phase != capture.PhaseComplete {
		t.Errorf("terminal pair = %s, %s", rec.Events[n-2].Phase, rec.Events[n-1].Phase)
	}
}

func TestAuthRejectionFailsSession(t *testing.T) {
	driver := &fakeDriver{rejectAuth: true}
	mgr := newManager(t, driver, 10)

	s, err := mgr.Start(context.Background(), "p", true)
	if err != nil {
		t.Fatal(err)
	}
	waitRetired(t, mgr, s.ID)

	rec, err := mgr.Record(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Meta.Status != capture.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Meta.Status)
	}
}

func TestSecondStartFailsWhileActive(t *testing.T) {
	driver := &fakeDriver{
		gate:       make(chan struct{}),
		submission: &capture.Submission{RawFrames: ""},
	}
	mgr := newManager(t, driver, 10)

	s, err := mgr.Start(context.Background(), "first", true)
	if err != nil {
		t.Fatal(err)
	}

	_, err = mgr.Start(context.Background(), "second", true)
	var busy *capture.ErrCaptureActive
	if !errors.As(err, &busy) {
		t.Fatalf("expected ErrCaptureActive, got %v", err)
	}
	if busy.ActiveID != s.ID {
		t.Errorf("busy error names %s, want %s", busy.ActiveID, s.ID)
	}

	close(driver.gate)
	waitRetired(t, mgr, s.ID)

	// After retirement a new session may start.
	driver.gate = nil
	third, err := mgr.Start(context.Background(), "third", true)
	if err != nil {
		t.Fatalf("start after retirement: %v", err)
	}
	waitRetired(t, mgr, third.ID)
}

func TestQuotaExhaustionSurfacesOnStart(t *testing.T) {
	driver := &fakeDriver{submission: &capture.Submission{RawFrames: ""}}
	mgr := newManager(t, driver, 1)

	s, err := mgr.Start(context.Background(), "first", true)
	if err != nil {
		t.Fatal(err)
	}
	waitRetired(t, mgr, s.ID)

	_, err = mgr.Start(context.Background(), "second", true)
	var qerr *accounts.ErrQuotaExceeded
	if !errors.As(err, &qerr) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

// waitRetired blocks until the session has persisted its record and left
// the registry. A live subscription's channel closes only after both have
// happened, and a replayed one was persisted before we got it.
func waitRetired(t *testing.T, mgr *capture.Manager, id string) {
	t.Helper()
	ch, cancel, err := mgr.Events(id)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	drain(t, ch)
}
