package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecordType discriminates complaints from enquiries.
type RecordType string

const (
	RecordComplaint RecordType = "COMPLAINT"
	RecordEnquiry   RecordType = "ENQUIRY"
)

// ErrRecordNotFound is returned when no record matches the lookup.
var ErrRecordNotFound = errors.New("record not found")

// Record is one persisted complaint or enquiry. Records are append-only;
// nothing in this service updates or deletes them outside the duplicate
// sweep.
type Record struct {
	ID            uuid.UUID  `json:"id"`
	Number        string     `json:"number"`
	Type          RecordType `json:"type"`
	SessionRef    string     `json:"session_ref"`
	Intent        string     `json:"intent"`
	CustomerRef   string     `json:"customer_ref"`
	CustomerName  string     `json:"customer_name"`
	Details       string     `json:"details"`
	Priority      string     `json:"priority"`
	ResolutionDue time.Time  `json:"resolution_due"`
	Source        string     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewRecord is the input to InsertRecord. Number, ID, and CreatedAt are
// assigned by the store.
type NewRecord struct {
	Type          RecordType
	SessionRef    string
	Intent        string
	CustomerRef   string
	CustomerName  string
	Details       string
	Priority      string
	ResolutionDue time.Time
	Source        string
}

// InsertRecord writes one record for a session, at most once. Concurrent
// attempts for the same session serialize on an advisory lock keyed by
// session_ref; the unique constraint backstops writers outside this
// process. The returned bool reports whether this call inserted the row.
func (s *Store) InsertRecord(ctx context.Context, in NewRecord) (*Record, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, in.SessionRef)
	if err != nil {
		return nil, false, fmt.Errorf("advisory lock: %w", err)
	}

	if existing, err := scanRecord(tx.QueryRow(ctx, selectRecord+` WHERE session_ref = $1`, in.SessionRef)); err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit: %w", err)
		}
		return existing, false, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("check existing record: %w", err)
	}

	number, err := s.nextNumber(ctx, tx, in.Type)
	if err != nil {
		return nil, false, err
	}

	rec := &Record{
		ID:            uuid.New(),
		Number:        number,
		Type:          in.Type,
		SessionRef:    in.SessionRef,
		Intent:        in.Intent,
		CustomerRef:   in.CustomerRef,
		CustomerName:  in.CustomerName,
		Details:       in.Details,
		Priority:      in.Priority,
		ResolutionDue: in.ResolutionDue,
		Source:        in.Source,
		CreatedAt:     time.Now().UTC(),
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO support_records
			(id, record_number, record_type, session_ref, intent, customer_ref,
			 customer_name, details, priority, resolution_due, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_ref) DO NOTHING`,
		rec.ID, rec.Number, rec.Type, rec.SessionRef, rec.Intent, rec.CustomerRef,
		rec.CustomerName, rec.Details, rec.Priority, rec.ResolutionDue, rec.Source, rec.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a race with a writer outside the advisory lock. Return the
		// winner's row.
		existing, err := scanRecord(tx.QueryRow(ctx, selectRecord+` WHERE session_ref = $1`, in.SessionRef))
		if err != nil {
			return nil, false, fmt.Errorf("fetch winning record: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit: %w", err)
		}
		return existing, false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return rec, true, nil
}

// nextNumber generates the day-scoped human-readable record number, e.g.
// KYC202608230007 for complaints and ENQ202608230007 for enquiries. Writers
// minting the same type on the same day serialize on an advisory lock keyed
// by type and day, so concurrent sessions can never compute the same
// sequence. The count window and the embedded date come from the same UTC
// clock; the DB server's local date plays no part.
func (s *Store) nextNumber(ctx context.Context, tx pgx.Tx, typ RecordType) (string, error) {
	prefix := "ENQ"
	if typ == RecordComplaint {
		prefix = "KYC"
	}
	now := time.Now().UTC()
	day := now.Format("20060102")
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(typ)+":"+day)
	if err != nil {
		return "", fmt.Errorf("sequence lock: %w", err)
	}

	var seq int
	err = tx.QueryRow(ctx, `
		SELECT count(*) + 1 FROM support_records
		WHERE record_type = $1 AND created_at >= $2 AND created_at < $3`,
		typ, dayStart, dayStart.AddDate(0, 0, 1)).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next record number: %w", err)
	}
	return fmt.Sprintf("%s%s%04d", prefix, day, seq), nil
}

// FindBySessionRef returns the record for a session, or ErrRecordNotFound.
func (s *Store) FindBySessionRef(ctx context.Context, sessionRef string) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectRecord+` WHERE session_ref = $1`, sessionRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record by session: %w", err)
	}
	return rec, nil
}

// GetByID returns one record, or ErrRecordNotFound.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectRecord+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListRecent returns the newest records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, selectRecord+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListDuplicateRecords returns every record whose session_ref appears more
// than once, ordered by session_ref then created_at. Duplicates can only
// enter through imports that predate the unique constraint; the sweep in
// the dedup package consumes this.
func (s *Store) ListDuplicateRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, selectRecord+`
		WHERE session_ref IN (
			SELECT session_ref FROM support_records
			GROUP BY session_ref HAVING count(*) > 1
		)
		ORDER BY session_ref, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list duplicate records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// DeleteRecords removes records by id and returns how many went away.
func (s *Store) DeleteRecords(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM support_records WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountBySource counts records tagged with an import source. The backfill
// command uses it for its summary line.
func (s *Store) CountBySource(ctx context.Context, source string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM support_records WHERE source = $1`, source).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records by source: %w", err)
	}
	return n, nil
}

const selectRecord = `
	SELECT id, record_number, record_type, session_ref, intent, customer_ref,
	       customer_name, details, priority, resolution_due, source, created_at
	FROM support_records`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Number, &rec.Type, &rec.SessionRef, &rec.Intent,
		&rec.CustomerRef, &rec.CustomerName, &rec.Details, &rec.Priority,
		&rec.ResolutionDue, &rec.Source, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
