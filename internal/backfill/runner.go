package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opuscare/sahayak/internal/store"
)

// Sink is the slice of the record store the import writes through.
type Sink interface {
	InsertRecord(ctx context.Context, in store.NewRecord) (*store.Record, bool, error)
}

// Config holds the backfill command configuration.
type Config struct {
	File      string // path to the legacy complaints.json
	StatePath string // path to the resumable state file
	DryRun    bool
	Source    string // source label for persisted records (default: "backfill")
}

// Runner imports a legacy complaints file into the record store.
type Runner struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
}

// NewRunner creates an import runner.
func NewRunner(cfg Config, sink Sink, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, sink: sink, logger: logger}
}

// sourceLabel returns the source string to use for persisted records.
func (r *Runner) sourceLabel() string {
	if r.cfg.Source != "" {
		return r.cfg.Source
	}
	return "backfill"
}

// Run executes the import. Entries already imported in a previous run are
// skipped via the state file; everything else goes through InsertRecord,
// which tolerates re-imports of the same legacy number.
func (r *Runner) Run(ctx context.Context) error {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	entries, skipped, err := ParseFile(r.cfg.File)
	if err != nil {
		return err
	}
	for _, reason := range skipped {
		r.logger.Warn("legacy entry skipped", "reason", reason)
		state.AddError(reason)
	}
	state.Skipped += len(skipped)

	r.logger.Info("legacy ledger parsed",
		"file", r.cfg.File,
		"entries", len(entries),
		"skipped", len(skipped),
	)

	imported, existing := 0, 0
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			r.logger.Info("import interrupted, saving state")
			_ = state.Save()
			return ctx.Err()
		default:
		}

		if state.IsImported(entry.Number) {
			continue
		}

		if r.cfg.DryRun {
			r.logger.Info("would import",
				"number", entry.Number,
				"type", entry.RecordType(),
				"intent", entry.Intent(),
			)
			imported++
			continue
		}

		rec, inserted, err := r.sink.InsertRecord(ctx, entry.ToRecord(r.sourceLabel()))
		if err != nil {
			r.logger.Error("import failed", "number", entry.Number, "error", err)
			state.AddError(fmt.Sprintf("import %s: %v", entry.Number, err))
			continue
		}
		if inserted {
			imported++
		} else {
			existing++
		}
		state.MarkImported(entry.Number)

		r.logger.Info("legacy record imported",
			"number", entry.Number,
			"record_number", rec.Number,
			"inserted", inserted,
		)
	}

	if !r.cfg.DryRun {
		if err := state.Save(); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}

	r.logger.Info("backfill complete",
		"imported", imported,
		"already_present", existing,
		"skipped", len(skipped),
		"errors", len(state.Errors),
		"dry_run", r.cfg.DryRun,
	)

	fmt.Printf("\n=== Backfill Summary ===\n")
	fmt.Printf("Imported: %d\n", imported)
	fmt.Printf("Already present: %d\n", existing)
	fmt.Printf("Skipped: %d\n", len(skipped))
	fmt.Printf("Errors: %d\n", len(state.Errors))
	if r.cfg.DryRun {
		fmt.Printf("Mode: DRY RUN (no DB writes)\n")
	}
	fmt.Printf("State file: %s\n", r.cfg.StatePath)

	return nil
}
