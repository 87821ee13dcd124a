package capture

import (
	"context"
	"fmt"

	"github.com/hazyhaar/sift/accounts"
	"github.com/hazyhaar/sift/reconstruct"
)

// run is the capture worker. It executes on its own goroutine because every
// Driver call blocks, and publishes progress through the session's emit
// channel only, never directly to consumers.
func (m *Manager) run(s *Session, acct accounts.Account) {
	defer close(s.emit)

	ctx := context.Background()
	s.setRunning()

	s.publish(PhaseBrowserStatus, map[string]any{
		"status":     "account_selected",
		"account_id": acct.ID,
	})

	if err := m.driver.Start(ctx, s.Headless); err != nil {
		m.fail(s, fmt.Errorf("start browser: %w", err))
		return
	}
	defer func() {
		if err := m.driver.Stop(); err != nil {
			m.logger.Warn("capture: browser stop", "capture_id", s.ID, "error", err)
		}
	}()
	s.publish(PhaseBrowserStatus, map[string]any{"status": "browser_started"})

	ok, err := m.driver.Authenticate(ctx, acct.Email, acct.Password)
	if err != nil {
		m.fail(s, fmt.Errorf("authenticate: %w", err))
		return
	}
	if !ok {
		m.fail(s, fmt.Errorf("authenticate: login rejected for %s", acct.ID))
		return
	}
	s.publish(PhaseBrowserStatus, map[string]any{"status": "authenticated"})

	s.publish(PhaseBrowserStatus, map[string]any{"status": "submitting"})
	sub, err := m.driver.Submit(ctx, s.Prompt, m.model)
	if err != nil {
		m.fail(s, fmt.Errorf("submit prompt: %w", err))
		return
	}

	res := reconstruct.Reconstruct(sub.RawFrames, reconstruct.Params{
		FallbackModel:  m.model,
		Provider:       m.provider,
		ResponseTimeMS: sub.ElapsedMS,
		ExtractedText:  sub.ExtractedText,
	})
	s.setModel(res.Model)

	m.fold(s, res)
	s.finish(StatusCompleted, "")
	s.publish(PhaseComplete, completeData(s, res))

	m.logger.Info("capture: completed",
		"capture_id", s.ID,
		"queries", len(res.Queries),
		"sources", len(res.Sources),
		"citations", len(res.Citations))
}

// fold republishes the structured result as ordered events.
func (m *Manager) fold(s *Session, res *reconstruct.CaptureResult) {
	for _, q := range res.Queries {
		s.publish(PhaseSearchQuery, map[string]any{
			"text":         q.Text,
			"order_index":  q.OrderIndex,
			"source_count": len(q.Sources),
		})
	}
	for _, src := range res.Sources {
		s.publish(PhaseSearchResult, map[string]any{
			"url":         src.URL,
			"title":       src.Title,
			"domain":      src.Domain,
			"rank":        src.Rank,
			"query_index": src.Meta.QueryIndex,
			"safe":        src.Meta.Safe,
		})
	}
	for _, c := range res.Citations {
		s.publish(PhaseCitation, map[string]any{
			"url":         c.URL,
			"title":       c.Title,
			"rank":        c.Rank,
			"marker":      c.Meta.Marker,
			"query_index": c.Meta.QueryIndex,
		})
	}
	s.publish(PhaseAssistantDelta, map[string]any{"text": res.ResponseText})
}

// fail marks the session failed and emits the terminal pair: an error event
// followed by capture_complete.
func (m *Manager) fail(s *Session, err error) {
	m.logger.Error("capture: failed", "capture_id", s.ID, "error", err)
	s.finish(StatusFailed, err.Error())
	s.publish(PhaseError, map[string]any{"error": err.Error()})
	s.publish(PhaseComplete, completeData(s, nil))
}

func completeData(s *Session, res *reconstruct.CaptureResult) map[string]any {
	meta := s.meta()
	data := map[string]any{
		"capture_id":  meta.CaptureID,
		"prompt":      meta.Prompt,
		"model":       meta.Model,
		"provider":    meta.Provider,
		"status":      meta.Status,
		"headless":    meta.Headless,
		"started_at":  meta.StartedAt,
		"duration_ms": meta.DurationMS,
	}
	if meta.FinishedAt != nil {
		data["finished_at"] = *meta.FinishedAt
	}
	if meta.Error != "" {
		data["error"] = meta.Error
	}
	if res != nil {
		data["query_count"] = len(res.Queries)
		data["source_count"] = len(res.Sources)
		data["citation_count"] = len(res.Citations)
		data["response_time_ms"] = res.ResponseTimeMS
		data["extra_link_count"] = res.Meta.ExtraLinkCount
	}
	return data
}
