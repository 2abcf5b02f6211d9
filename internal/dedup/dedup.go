// Package dedup sweeps duplicate support records out of the store. The live
// write path is at-most-once per session, so duplicates only enter through
// imports that predate the unique constraint on session_ref. The sweep keeps
// the earliest record per session and removes the rest.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opuscare/sahayak/internal/store"
)

// Result summarizes one sweep.
type Result struct {
	Execute   bool          `json:"execute"`
	Groups    int           `json:"groups"`
	Total     int           `json:"total"`
	Survivors int           `json:"survivors"`
	Removed   int           `json:"removed"`
	Details   []GroupDetail `json:"details,omitempty"`
}

// GroupDetail describes one duplicated session.
type GroupDetail struct {
	SessionRef string      `json:"session_ref"`
	Survivor   string      `json:"survivor"`
	Removed    []string    `json:"removed"`
	RemovedIDs []uuid.UUID `json:"-"`
}

// Sweeper finds and removes duplicate records.
type Sweeper struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a sweeper.
func New(s *store.Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: s, logger: logger}
}

// Sweep removes every record beyond the first per session_ref. With execute
// false it only reports what would go.
func (s *Sweeper) Sweep(ctx context.Context, execute bool) (*Result, error) {
	s.logger.Info("starting duplicate record sweep", "execute", execute)

	records, err := s.store.ListDuplicateRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list duplicates: %w", err)
	}

	result := &Result{Execute: execute, Total: len(records)}
	groups := GroupBySession(records)
	result.Groups = len(groups)

	var removeIDs []uuid.UUID
	for _, g := range groups {
		result.Details = append(result.Details, g)
		removeIDs = append(removeIDs, g.RemovedIDs...)
	}
	result.Survivors = len(groups)
	result.Removed = len(removeIDs)

	if !execute || len(removeIDs) == 0 {
		s.logger.Info("sweep finished", "groups", result.Groups, "would_remove", result.Removed, "execute", execute)
		return result, nil
	}

	deleted, err := s.store.DeleteRecords(ctx, removeIDs)
	if err != nil {
		return nil, fmt.Errorf("delete duplicates: %w", err)
	}
	result.Removed = int(deleted)

	s.logger.Info("sweep finished", "groups", result.Groups, "removed", deleted)
	return result, nil
}

// GroupBySession groups duplicate records by session_ref and picks the
// earliest record in each group as the survivor. The input is expected
// ordered by session_ref then created_at, which is how the store lists
// duplicates; within a group the first row wins.
func GroupBySession(records []store.Record) []GroupDetail {
	var groups []GroupDetail
	byRef := make(map[string]int)

	for _, rec := range records {
		idx, seen := byRef[rec.SessionRef]
		if !seen {
			byRef[rec.SessionRef] = len(groups)
			groups = append(groups, GroupDetail{
				SessionRef: rec.SessionRef,
				Survivor:   rec.Number,
			})
			continue
		}
		groups[idx].Removed = append(groups[idx].Removed, rec.Number)
		groups[idx].RemovedIDs = append(groups[idx].RemovedIDs, rec.ID)
	}
	return groups
}
