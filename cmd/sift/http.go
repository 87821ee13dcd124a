package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sift/accounts"
	"github.com/hazyhaar/sift/capture"
)

func serveHTTP(ctx context.Context, logger *slog.Logger, cfg *Config, mgr *capture.Manager) error {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/captures", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt   string `json:"prompt"`
			Headless *bool  `json:"headless"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if req.Prompt == "" {
			writeError(w, 400, fmt.Errorf("prompt requis"))
			return
		}
		headless := cfg.HeadlessDefault()
		if req.Headless != nil {
			headless = *req.Headless
		}

		s, err := mgr.Start(r.Context(), req.Prompt, headless)
		if err != nil {
			var busy *capture.ErrCaptureActive
			var quota *accounts.ErrQuotaExceeded
			switch {
			case errors.As(err, &busy):
				writeJSON(w, 409, map[string]string{
					"error":     err.Error(),
					"active_id": busy.ActiveID,
				})
			case errors.As(err, &quota):
				resp := map[string]any{"error": err.Error()}
				if quota.KnownRetry {
					resp["retry_after_seconds"] = int(quota.RetryAfter.Seconds())
				}
				writeJSON(w, 429, resp)
			default:
				writeError(w, 500, err)
			}
			return
		}
		writeJSON(w, 202, map[string]any{
			"capture_id": s.ID,
			"status":     s.Status(),
		})
	})

	r.Get("/api/captures/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, err := mgr.Record(chi.URLParam(r, "id"))
		if err != nil {
			var notFound *capture.ErrNotFound
			if errors.As(err, &notFound) {
				writeError(w, 404, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, rec)
	})

	r.Get("/api/captures/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ch, cancel, err := mgr.Events(id)
		if err != nil {
			var notFound *capture.ErrNotFound
			if errors.As(err, &notFound) {
				writeError(w, 404, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		defer cancel()

		fl, ok := w.(http.Flusher)
		if !ok {
			writeError(w, 500, fmt.Errorf("streaming not supported"))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(200)
		fl.Flush()

		for {
			select {
			case ev, open := <-ch:
				if !open {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					logger.Warn("sift: marshal event", "capture_id", id, "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Phase, data)
				fl.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	r.Get("/api/quota", func(w http.ResponseWriter, r *http.Request) {
		usage, err := mgr.Quota(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, usage)
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("sift: server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("sift: server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("sift: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("sift: shutdown", "error", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
