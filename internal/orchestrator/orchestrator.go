// Package orchestrator drives the conversation state machine. It owns the
// two hard guarantees of the service: exactly one consolidated reply per
// caller turn no matter how many internal lookups run, and at most one
// persisted record per session no matter how the call ends.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/flow"
	"github.com/opuscare/sahayak/internal/gateway"
	"github.com/opuscare/sahayak/internal/ledger"
	"github.com/opuscare/sahayak/internal/metrics"
	"github.com/opuscare/sahayak/internal/session"
	"github.com/opuscare/sahayak/internal/store"
	"github.com/opuscare/sahayak/internal/tools"
)

// Publisher publishes consolidated replies. *gateway.Client satisfies it.
type Publisher interface {
	PublishReply(reply gateway.ReplyEvent) error
}

// ToolInvoker dispatches tool calls. *tools.Registry satisfies it.
type ToolInvoker interface {
	Invoke(ctx context.Context, name tools.Name, params tools.Params) tools.Result
}

// RecordWriter is the ledger surface the orchestrator needs.
type RecordWriter interface {
	EnsureRecord(ctx context.Context, req ledger.Request) (*store.Record, error)
}

// Escalator is notified when a session is handed to a human.
type Escalator interface {
	PostEscalation(ctx context.Context, sessionRef, intent string, failureStreak int)
}

type Orchestrator struct {
	classifier  *classifier.Classifier
	flows       *flow.Store
	tools       ToolInvoker
	sessions    *session.Repo
	ledger      RecordWriter
	publisher   Publisher
	escalator   Escalator
	logger      *slog.Logger
	toolTimeout time.Duration
}

// Config bundles the collaborators.
type Config struct {
	Classifier  *classifier.Classifier
	Flows       *flow.Store
	Tools       ToolInvoker
	Ledger      RecordWriter
	Publisher   Publisher
	Escalator   Escalator
	Logger      *slog.Logger
	SessionTTL  time.Duration
	ToolTimeout time.Duration
}

func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		classifier:  cfg.Classifier,
		flows:       cfg.Flows,
		tools:       cfg.Tools,
		ledger:      cfg.Ledger,
		publisher:   cfg.Publisher,
		escalator:   cfg.Escalator,
		logger:      cfg.Logger,
		toolTimeout: cfg.ToolTimeout,
	}
	o.sessions = session.NewRepo(cfg.SessionTTL, o.handleExpiredSession)
	return o
}

// Sessions exposes the live session repo to the ops API.
func (o *Orchestrator) Sessions() *session.Repo {
	return o.sessions
}

// HandleUtterance is the NATS handler for opus.call.utterance. It processes
// one caller turn and publishes exactly one reply for it.
func (o *Orchestrator) HandleUtterance(subject string, data []byte) {
	ctx := context.Background()

	var evt gateway.UtteranceEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		o.logger.Error("failed to parse utterance event", "error", err)
		return
	}
	if evt.SessionRef == "" {
		o.logger.Error("utterance event without session_ref")
		return
	}

	sess, created := o.sessions.GetOrCreate(evt.SessionRef)
	if created {
		o.logger.Info("call started", "session_ref", evt.SessionRef)
	}

	sess.Lock()
	if sess.State == session.StateClosed {
		sess.Unlock()
		o.logger.Warn("utterance for closed session dropped", "session_ref", evt.SessionRef)
		return
	}
	if evt.CallerNumber != "" {
		sess.RememberFacts(map[string]string{"mobile_number": digitsOf(evt.CallerNumber)})
	}

	metrics.TurnsTotal.Inc()
	sess.TurnIndex++
	turn := sess.TurnIndex

	o.runTurn(ctx, sess, evt.Utterance)

	reply := consolidate(sess.ConsumeFragments())
	intent := sess.Intent
	terminal := sess.TurnTerminal
	sess.Unlock()

	if err := o.publisher.PublishReply(gateway.ReplyEvent{
		SessionRef: evt.SessionRef,
		TurnIndex:  turn,
		Reply:      reply,
		Intent:     string(intent),
		Terminal:   terminal,
		SentAt:     time.Now().UTC(),
	}); err != nil {
		o.logger.Error("failed to publish reply", "session_ref", evt.SessionRef, "error", err)
	} else {
		metrics.RepliesTotal.Inc()
	}

	o.sessions.Touch(sess)
}

// HandleCallClosed is the NATS handler for opus.call.closed.
func (o *Orchestrator) HandleCallClosed(subject string, data []byte) {
	var evt gateway.CallClosedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		o.logger.Error("failed to parse call closed event", "error", err)
		return
	}
	o.CloseSession(context.Background(), evt.SessionRef, evt.Reason)
}

// CloseSession finishes a session's bookkeeping. A call that dropped before
// its flow reached a terminal step still gets an enquiry record, but only
// when the caller was identified; there is nothing to file otherwise.
func (o *Orchestrator) CloseSession(ctx context.Context, sessionRef, reason string) {
	sess, ok := o.sessions.Get(sessionRef)
	if !ok {
		return
	}

	sess.Lock()
	if sess.State == session.StateClosed {
		sess.Unlock()
		return
	}
	sess.State = session.StateClosed
	needsRecord := !sess.RecordEnsured && sess.LastOutcome == "" && sess.Identified()
	req := ledger.Request{
		SessionRef:   sess.ID,
		Intent:       sess.Intent,
		Outcome:      flow.OutcomeEnquiry,
		CustomerRef:  sess.CustomerRef,
		CustomerName: sess.CustomerName,
		Details:      "call ended before resolution: " + reason,
		Source:       "sahayak",
	}
	sess.RecordEnsured = true
	sess.Unlock()

	if needsRecord {
		if _, err := o.ledger.EnsureRecord(ctx, req); err != nil {
			o.logger.Error("close fallback record failed", "session_ref", sessionRef, "error", err)
		}
	}

	o.logger.Info("call closed", "session_ref", sessionRef, "reason", reason)
	o.sessions.Delete(sessionRef)
}

// handleExpiredSession runs when the session cache evicts a still-open
// session. Expiry is the dropped-call signal the telephony layer did not
// deliver.
func (o *Orchestrator) handleExpiredSession(sess *session.Session) {
	o.logger.Warn("session expired without close event", "session_ref", sess.ID)

	sess.Lock()
	if sess.State == session.StateClosed {
		sess.Unlock()
		return
	}
	sess.State = session.StateClosed
	needsRecord := !sess.RecordEnsured && sess.LastOutcome == "" && sess.Identified()
	req := ledger.Request{
		SessionRef:   sess.ID,
		Intent:       sess.Intent,
		Outcome:      flow.OutcomeEnquiry,
		CustomerRef:  sess.CustomerRef,
		CustomerName: sess.CustomerName,
		Details:      "call dropped: session expired without close event",
		Source:       "sahayak",
	}
	sess.RecordEnsured = true
	sess.Unlock()

	if needsRecord {
		if _, err := o.ledger.EnsureRecord(context.Background(), req); err != nil {
			o.logger.Error("expiry fallback record failed", "session_ref", sess.ID, "error", err)
		}
	}
}
