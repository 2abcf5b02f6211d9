package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State tracks progress for resumable import runs. The store insert is
// idempotent on session ref, so state is a fast-path skip rather than a
// correctness mechanism.
type State struct {
	StartedAt       time.Time `json:"started_at"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	Imported        []string  `json:"imported"`
	Skipped         int       `json:"skipped"`
	Errors          []string  `json:"errors"`

	path string // not serialized
}

// LoadState loads the import state from disk, or creates a new one.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				StartedAt: time.Now().UTC(),
				path:      path,
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.path = path
	return &s, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// IsImported reports whether the complaint number has already been imported.
func (s *State) IsImported(number string) bool {
	for _, n := range s.Imported {
		if n == number {
			return true
		}
	}
	return false
}

// MarkImported records a complaint number as imported.
func (s *State) MarkImported(number string) {
	s.Imported = append(s.Imported, number)
}

// AddError records a processing error.
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}
