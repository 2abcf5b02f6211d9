package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/flow"
	"github.com/opuscare/sahayak/internal/ledger"
	"github.com/opuscare/sahayak/internal/metrics"
	"github.com/opuscare/sahayak/internal/policy"
	"github.com/opuscare/sahayak/internal/session"
	"github.com/opuscare/sahayak/internal/store"
	"github.com/opuscare/sahayak/internal/tools"
)

// maxStepsPerTurn bounds a single turn's walk through a flow. Validation
// rejects unreachable graphs but not cycles routed through on_error.
const maxStepsPerTurn = 16

const (
	fallbackPrompt = "Kya aap thoda detail mein bata sakte hain ki aapko kis cheez mein help chahiye?"
	retryPrompt    = "Maaf kijiye, system mein thodi dikkat aa rahi hai. Ek baar dobara boliye."
	escalatePrompt = "Mujhe system mein technical dikkat aa rahi hai. Main aapki baat senior team tak pahuncha raha hoon, wo aapse jald contact karenge."
)

// runTurn processes one utterance. The caller holds the session lock and
// publishes whatever fragments the turn buffered, as one reply.
func (o *Orchestrator) runTurn(ctx context.Context, sess *session.Session, utterance string) {
	utterance = strings.TrimSpace(utterance)
	sess.TurnTerminal = false

	if sess.State == session.StateAwaitingInput {
		// Classification runs before any tool, mid-question included. A
		// digit-bearing utterance is the answer to the pending question
		// whatever it classified as; naming the asked-for fact ("mera opus
		// id 1001 hai") must not restart the flow. Without digits, a clear
		// intent is a topic change.
		res := o.classify(sess, utterance)
		if digits := digitsOf(utterance); digits != "" {
			o.resumeWithInput(ctx, sess, digits)
			return
		}
		if res.Intent != classifier.IntentUnclear {
			o.startFlow(ctx, sess, res.Intent)
			return
		}
		o.resumeWithInput(ctx, sess, utterance)
		return
	}

	res := o.classify(sess, utterance)
	intent := res.Intent
	if intent == classifier.IntentUnclear && sess.Intent != classifier.IntentUnclear {
		// Mid-conversation follow-up. Stay on the established intent.
		intent = sess.Intent
	}

	if intent == classifier.IntentUnclear {
		if sess.Clarified {
			// Already asked once. A second unclear turn goes to a human.
			o.escalate(ctx, sess)
			return
		}
		sess.Clarified = true
		metrics.ClarificationsTotal.Inc()
	} else {
		sess.Clarified = false
	}

	o.startFlow(ctx, sess, intent)
}

func (o *Orchestrator) classify(sess *session.Session, utterance string) classifier.Result {
	res := o.classifier.Classify(utterance, sess.Intent)
	metrics.ClassificationsTotal.WithLabelValues(string(res.Intent)).Inc()
	o.logger.Info("utterance classified",
		"session_ref", sess.ID,
		"intent", res.Intent,
		"confidence", res.Confidence,
		"matched", res.MatchedPatterns,
	)
	return res
}

func (o *Orchestrator) startFlow(ctx context.Context, sess *session.Session, intent classifier.Intent) {
	f, err := o.flows.Get(intent)
	if err != nil {
		o.logger.Error("flow load failed", "intent", intent, "error", err)
		sess.AddFragment(retryPrompt)
		return
	}
	sess.Intent = intent
	sess.State = session.StateAwaitingIntent
	sess.StepID = ""
	sess.AwaitFact = ""
	o.walk(ctx, sess, f, f.Entry)
}

// resumeWithInput fills the awaited fact with the caller's answer and
// continues the paused flow.
func (o *Orchestrator) resumeWithInput(ctx context.Context, sess *session.Session, value string) {
	f, err := o.flows.Get(sess.Intent)
	if err != nil {
		o.logger.Error("flow load failed on resume", "intent", sess.Intent, "error", err)
		sess.State = session.StateAwaitingIntent
		sess.AddFragment(retryPrompt)
		return
	}
	step, ok := f.StepByID(sess.StepID)
	if !ok || step.Await == "" {
		sess.State = session.StateAwaitingIntent
		sess.AddFragment(fallbackPrompt)
		return
	}

	sess.RememberFacts(map[string]string{step.Await: value})
	// Ten digits is a phone number whatever fact it was meant for.
	if digits := digitsOf(value); len(digits) == 10 {
		sess.RememberFacts(map[string]string{"mobile_number": digits})
	}

	sess.State = session.StateAwaitingIntent
	sess.AwaitFact = ""
	o.walk(ctx, sess, f, step.Next)
}

// walk advances through flow steps until the turn pauses, ends, or hits a
// terminal step.
func (o *Orchestrator) walk(ctx context.Context, sess *session.Session, f *flow.Flow, startID string) {
	stepID := startID
	for i := 0; i < maxStepsPerTurn; i++ {
		step, ok := f.StepByID(stepID)
		if !ok {
			o.logger.Error("flow step missing", "intent", f.Intent, "step", stepID)
			sess.AddFragment(retryPrompt)
			return
		}
		sess.StepID = step.ID

		if step.Reassurance != "" {
			sess.AddReassurance(step.Reassurance)
		}

		var results []tools.Result
		failed := false
		if len(step.Tools) > 0 {
			results = o.invokeTools(ctx, sess, step)
			for _, res := range results {
				if res.IsError() {
					failed = true
					metrics.ToolErrorsTotal.WithLabelValues(string(res.Tool)).Inc()
					o.logger.Error("tool failed",
						"session_ref", sess.ID, "tool", res.Tool, "error", res.Fields["error"])
					continue
				}
				sess.RememberFacts(res.Fields)
				noteCustomer(sess, res)
				sess.AddFragment(res.Message)
			}
		}

		// Only steps that ran tools move the streak; a prompt-only step
		// says nothing about backend health.
		if len(step.Tools) > 0 {
			sess.FailureStreak = policy.NextFailureStreak(sess.FailureStreak, failed)
		}
		if failed {
			if policy.ShouldEscalate(sess.FailureStreak) {
				o.escalate(ctx, sess)
				return
			}
			if step.OnError != "" {
				stepID = step.OnError
				continue
			}
			sess.AddFragment(retryPrompt)
			return
		}

		if step.Prompt != "" {
			sess.AddFragment(step.Prompt)
		}

		if step.Await != "" {
			sess.State = session.StateAwaitingInput
			sess.AwaitFact = step.Await
			return
		}

		if step.Terminal {
			o.finishFlow(ctx, sess, step.Outcome)
			return
		}

		next := ""
		for _, br := range step.Branches {
			res, ok := resultFor(results, br.Tool)
			if ok && res.Fields[br.Field] == br.Equals {
				next = br.Next
				break
			}
		}
		if next == "" {
			next = step.Next
		}
		if next == "" {
			// Nothing routed. Hold here and let the caller speak.
			return
		}
		stepID = next
	}
	o.logger.Error("flow walk exceeded step budget", "intent", f.Intent, "session_ref", sess.ID)
	sess.AddFragment(retryPrompt)
}

// invokeTools fans a step's tool set out concurrently and joins before the
// turn continues. Nothing is spoken until every lookup lands, which is the
// mechanism behind the one-reply-per-turn guarantee. A tool that overruns
// the timeout becomes an error-variant result; its late answer is discarded,
// never consolidated into the reply.
func (o *Orchestrator) invokeTools(ctx context.Context, sess *session.Session, step *flow.Step) []tools.Result {
	params := resolveParams(sess, step.Params)
	tctx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	type indexed struct {
		i   int
		res tools.Result
	}
	done := make(chan indexed, len(step.Tools))
	for i, name := range step.Tools {
		go func(i int, name tools.Name) {
			done <- indexed{i: i, res: o.tools.Invoke(tctx, name, params)}
		}(i, name)
	}

	results := make([]tools.Result, len(step.Tools))
	settled := make([]bool, len(step.Tools))
	for pending := len(step.Tools); pending > 0; pending-- {
		select {
		case r := <-done:
			results[r.i] = r.res
			settled[r.i] = true
		case <-tctx.Done():
			for i, name := range step.Tools {
				if !settled[i] {
					results[i] = tools.ErrorResult(name, fmt.Errorf("tool timed out: %w", tctx.Err()))
				}
			}
			return results
		}
	}
	return results
}

func (o *Orchestrator) escalate(ctx context.Context, sess *session.Session) {
	metrics.EscalationsTotal.Inc()
	o.logger.Warn("session escalated",
		"session_ref", sess.ID, "intent", sess.Intent, "failure_streak", sess.FailureStreak)
	if o.escalator != nil {
		o.escalator.PostEscalation(ctx, sess.ID, string(sess.Intent), sess.FailureStreak)
	}
	sess.AddFragment(escalatePrompt)
	o.finishFlow(ctx, sess, flow.OutcomeComplaint)
}

// finishFlow closes out a terminal step: remembers the outcome, writes the
// record when one is due, and announces complaint numbers. A ledger failure
// never suppresses the reply; the alert path covers it.
func (o *Orchestrator) finishFlow(ctx context.Context, sess *session.Session, outcome flow.Outcome) {
	sess.State = session.StateAwaitingIntent
	sess.StepID = ""
	if outcome != flow.OutcomeNone && outcome != "" {
		// A clarification terminal resolves nothing; only real outcomes
		// mark the turn terminal.
		sess.TurnTerminal = true
		sess.LastOutcome = outcome
	}

	if sess.RecordEnsured {
		return
	}
	if _, needed := ledger.RecordTypeFor(outcome); !needed {
		return
	}

	rec, err := o.ledger.EnsureRecord(ctx, ledger.Request{
		SessionRef:   sess.ID,
		Intent:       sess.Intent,
		Outcome:      outcome,
		CustomerRef:  sess.CustomerRef,
		CustomerName: sess.CustomerName,
		Details:      sess.Intent.Description(),
		Source:       "sahayak",
	})
	if err != nil {
		return
	}
	if rec == nil {
		return
	}

	sess.RecordEnsured = true
	sess.RecordNumber = rec.Number
	if rec.Type == store.RecordComplaint {
		sess.AddFragment(fmt.Sprintf("Aapka complaint number hai %s. Ye %d din mein resolve ho jayega.",
			tools.SpokenDigits(rec.Number), policy.ResolutionDays(rec.Priority)))
	}
}

func noteCustomer(sess *session.Session, res tools.Result) {
	if res.Status != tools.StatusOK {
		return
	}
	if res.Tool != tools.ToolCustomerLookup && res.Tool != tools.ToolCustomerLookupByID {
		return
	}
	if id := res.Fields["opus_id"]; id != "" {
		sess.CustomerRef = id
		sess.CustomerName = res.Fields["name"]
	}
}

func resultFor(results []tools.Result, name tools.Name) (tools.Result, bool) {
	for _, res := range results {
		if res.Tool == name {
			return res, true
		}
	}
	return tools.Result{}, false
}

func resolveParams(sess *session.Session, raw map[string]string) tools.Params {
	params := make(tools.Params, len(raw))
	for key, value := range raw {
		if fact, ok := strings.CutPrefix(value, "fact:"); ok {
			params[key] = sess.Fact(fact)
			continue
		}
		params[key] = value
	}
	return params
}

func consolidate(fragments []string) string {
	var parts []string
	for _, fragment := range fragments {
		if f := strings.TrimSpace(fragment); f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return fallbackPrompt
	}
	return strings.Join(parts, " ")
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
