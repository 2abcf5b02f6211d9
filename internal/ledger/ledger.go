// Package ledger enforces the at-most-one-record guarantee: every resolved
// session ends with exactly one complaint or enquiry record, and no session
// ever gets two. The classification of what to write is a pure function of
// the session's final intent and terminal outcome, never of free text.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/flow"
	"github.com/opuscare/sahayak/internal/metrics"
	"github.com/opuscare/sahayak/internal/policy"
	"github.com/opuscare/sahayak/internal/store"
)

// Sink is where records land. *store.Store satisfies it.
type Sink interface {
	InsertRecord(ctx context.Context, in store.NewRecord) (*store.Record, bool, error)
}

// Alerter is notified when a record cannot be written after all retries.
type Alerter interface {
	PostSinkFailure(ctx context.Context, sessionRef string, cause error)
}

// Request carries the session facts the ledger needs at terminal time.
type Request struct {
	SessionRef   string
	Intent       classifier.Intent
	Outcome      flow.Outcome
	CustomerRef  string
	CustomerName string
	Details      string
	Source       string
}

// Ledger writes at most one record per session, retrying transient sink
// failures with exponential backoff. A failure that survives every retry is
// alerted, never silently dropped, and never blocks the caller's reply.
type Ledger struct {
	sink        Sink
	alerter     Alerter
	logger      *slog.Logger
	maxAttempts int

	retryInterval time.Duration
	now           func() time.Time
}

func New(sink Sink, alerter Alerter, logger *slog.Logger, maxAttempts int) *Ledger {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Ledger{
		sink:          sink,
		alerter:       alerter,
		logger:        logger,
		maxAttempts:   maxAttempts,
		retryInterval: 200 * time.Millisecond,
		now:           time.Now,
	}
}

// RecordTypeFor is the pure classification: terminal outcome decides the
// record type. OutcomeNone means no record at all.
func RecordTypeFor(outcome flow.Outcome) (store.RecordType, bool) {
	switch outcome {
	case flow.OutcomeComplaint:
		return store.RecordComplaint, true
	case flow.OutcomeEnquiry:
		return store.RecordEnquiry, true
	default:
		return "", false
	}
}

// PriorityFor assigns the resolution priority. Account blocks lock the
// caller out of earning entirely, so their complaints get the short window.
func PriorityFor(typ store.RecordType, intent classifier.Intent) string {
	if typ == store.RecordComplaint && intent == classifier.IntentAccountBlock {
		return "high"
	}
	return "normal"
}

// EnsureRecord writes the session's record if its outcome calls for one.
// It is safe to call more than once per session; the sink deduplicates on
// session_ref. Returns the record, or nil when the outcome needs none.
func (l *Ledger) EnsureRecord(ctx context.Context, req Request) (*store.Record, error) {
	typ, needed := RecordTypeFor(req.Outcome)
	if !needed {
		return nil, nil
	}
	if req.CustomerRef == "" {
		// No verified customer means nothing to attach the record to.
		l.logger.Info("skipping record for unidentified session",
			"session_ref", req.SessionRef, "intent", req.Intent)
		return nil, nil
	}

	priority := PriorityFor(typ, req.Intent)
	in := store.NewRecord{
		Type:          typ,
		SessionRef:    req.SessionRef,
		Intent:        string(req.Intent),
		CustomerRef:   req.CustomerRef,
		CustomerName:  req.CustomerName,
		Details:       req.Details,
		Priority:      priority,
		ResolutionDue: l.now().UTC().AddDate(0, 0, policy.ResolutionDays(priority)),
		Source:        req.Source,
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = l.retryInterval
	attempts := uint64(l.maxAttempts - 1)

	var attempt int
	result, err := backoff.RetryNotifyWithData(
		func() (recordAttempt, error) {
			attempt++
			rec, ins, err := l.sink.InsertRecord(ctx, in)
			if err != nil {
				return recordAttempt{}, fmt.Errorf("insert record attempt %d: %w", attempt, err)
			}
			return recordAttempt{rec: rec, inserted: ins}, nil
		},
		backoff.WithContext(backoff.WithMaxRetries(expo, attempts), ctx),
		func(err error, next time.Duration) {
			l.logger.Warn("record sink failed, retrying",
				"session_ref", req.SessionRef, "retry_in", next, "error", err)
		},
	)
	if err != nil {
		metrics.RecordFailuresTotal.Inc()
		l.logger.Error("record sink failed after all retries",
			"session_ref", req.SessionRef, "attempts", attempt, "error", err)
		if l.alerter != nil {
			l.alerter.PostSinkFailure(ctx, req.SessionRef, err)
		}
		return nil, err
	}

	rec := result.rec
	if result.inserted {
		metrics.RecordsTotal.WithLabelValues(string(typ)).Inc()
		l.logger.Info("record written",
			"session_ref", req.SessionRef, "record_number", rec.Number,
			"type", rec.Type, "priority", rec.Priority)
	} else {
		l.logger.Info("record already present, skipped",
			"session_ref", req.SessionRef, "record_number", rec.Number)
	}
	return rec, nil
}

type recordAttempt struct {
	rec      *store.Record
	inserted bool
}
