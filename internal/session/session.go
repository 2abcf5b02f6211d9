// Package session holds per-call conversation state. Sessions live in an
// in-memory TTL cache; a session that stops receiving utterances expires,
// and expiry stands in for the call-dropped signal the telephony layer does
// not always deliver.
package session

import (
	"sync"
	"time"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/flow"
)

// State is the conversation lifecycle position.
type State string

const (
	// StateAwaitingIntent means no intent has been resolved yet, or the
	// last flow finished and the caller may raise something new.
	StateAwaitingIntent State = "awaiting_intent"
	// StateAwaitingInput means the flow paused at an await step and the
	// next utterance fills a fact.
	StateAwaitingInput State = "awaiting_input"
	// StateClosed means the call ended and the session only lingers until
	// eviction.
	StateClosed State = "closed"
)

// Session is the mutable state of one call. All access goes through Lock;
// the orchestrator serializes turns per session with it.
type Session struct {
	mu sync.Mutex

	ID            string
	State         State
	Intent        classifier.Intent
	StepID        string
	AwaitFact     string
	TurnIndex     int
	FailureStreak int
	Clarified     bool

	RecordEnsured bool
	RecordNumber  string
	LastOutcome   flow.Outcome
	TurnTerminal  bool

	CustomerRef  string
	CustomerName string
	Facts        map[string]string

	fragments    []string
	reassurances map[string]bool

	StartedAt    time.Time
	LastActivity time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		State:        StateAwaitingIntent,
		Intent:       classifier.IntentUnclear,
		Facts:        make(map[string]string),
		reassurances: make(map[string]bool),
		StartedAt:    now,
		LastActivity: now,
	}
}

// Lock serializes turn processing for this session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// RememberFacts merges tool result fields into the session fact store.
// Later values win; the conversation always trusts the freshest lookup.
func (s *Session) RememberFacts(fields map[string]string) {
	for k, v := range fields {
		if v != "" {
			s.Facts[k] = v
		}
	}
}

// Fact reads one remembered value.
func (s *Session) Fact(key string) string {
	return s.Facts[key]
}

// AddFragment buffers one piece of the turn's consolidated reply.
func (s *Session) AddFragment(text string) {
	if text == "" {
		return
	}
	s.fragments = append(s.fragments, text)
}

// AddReassurance buffers a reassurance phrase at most once per session,
// keyed by its template. Repeating "ek minute dijiye" every step reads as
// a stuck agent.
func (s *Session) AddReassurance(template string) {
	if template == "" || s.reassurances[template] {
		return
	}
	s.reassurances[template] = true
	s.fragments = append(s.fragments, template)
}

// ConsumeFragments returns the buffered reply pieces and clears the buffer.
func (s *Session) ConsumeFragments() []string {
	out := s.fragments
	s.fragments = nil
	return out
}

// Identified reports whether a customer lookup has succeeded this call.
func (s *Session) Identified() bool {
	return s.CustomerRef != ""
}
