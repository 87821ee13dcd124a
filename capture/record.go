package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RecordMeta describes a finished (or in-flight) capture.
type RecordMeta struct {
	CaptureID  string     `json:"capture_id"`
	Prompt     string     `json:"prompt"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
	Status     Status     `json:"status"`
	Headless   bool       `json:"headless"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	EventCount int        `json:"event_count"`
	DurationMS int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// Record is the persisted form of a capture: metadata plus the full ordered
// event log. One file per capture id.
type Record struct {
	Meta   RecordMeta `json:"metadata"`
	Events []Event    `json:"events"`
}

// RecordStore persists capture records as JSON files under a directory.
type RecordStore struct {
	dir string
}

// NewRecordStore creates the store, creating dir if needed.
func NewRecordStore(dir string) (*RecordStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: record dir: %w", err)
	}
	return &RecordStore{dir: dir}, nil
}

// Save writes a record atomically (tmp file + rename).
func (rs *RecordStore) Save(rec *Record) error {
	path, err := rs.path(rec.Meta.CaptureID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("capture: marshal record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("capture: rename record: %w", err)
	}
	return nil
}

// Load reads a persisted record. Returns *ErrNotFound when the file does
// not exist.
func (rs *RecordStore) Load(captureID string) (*Record, error) {
	path, err := rs.path(captureID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{CaptureID: captureID}
		}
		return nil, fmt.Errorf("capture: read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("capture: parse record %s: %w", captureID, err)
	}
	return &rec, nil
}

// path validates the id (it becomes a file name) and joins it to the dir.
func (rs *RecordStore) path(captureID string) (string, error) {
	if captureID == "" || strings.ContainsAny(captureID, `/\`) || strings.Contains(captureID, "..") {
		return "", fmt.Errorf("capture: invalid capture id %q", captureID)
	}
	return filepath.Join(rs.dir, captureID+".json"), nil
}
