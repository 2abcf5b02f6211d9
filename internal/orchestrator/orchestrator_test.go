package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/flow"
	"github.com/opuscare/sahayak/internal/gateway"
	"github.com/opuscare/sahayak/internal/ledger"
	"github.com/opuscare/sahayak/internal/store"
	"github.com/opuscare/sahayak/internal/tools"
)

type fakePublisher struct {
	mu      sync.Mutex
	replies []gateway.ReplyEvent
}

func (f *fakePublisher) PublishReply(reply gateway.ReplyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
	return nil
}

func (f *fakePublisher) last(t *testing.T) gateway.ReplyEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		t.Fatal("no reply published")
	}
	return f.replies[len(f.replies)-1]
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

// fakeLedger mirrors the real ledger's skip rules and dedupes nothing; the
// orchestrator's RecordEnsured flag is what keeps it at one request.
type fakeLedger struct {
	mu       sync.Mutex
	requests []ledger.Request
	fail     bool
}

func (f *fakeLedger) EnsureRecord(_ context.Context, req ledger.Request) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("sink down")
	}
	typ, needed := ledger.RecordTypeFor(req.Outcome)
	if !needed || req.CustomerRef == "" {
		return nil, nil
	}
	f.requests = append(f.requests, req)
	number := "ENQ202608230001"
	if typ == store.RecordComplaint {
		number = "KYC202608230001"
	}
	return &store.Record{Number: number, Type: typ, Priority: "normal"}, nil
}

func (f *fakeLedger) recorded() []ledger.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Request(nil), f.requests...)
}

type fakeEscalator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEscalator) PostEscalation(_ context.Context, sessionRef, _ string, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sessionRef)
}

func (f *fakeEscalator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func writeDataFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"customers.csv": strings.Join([]string{
			"opus_id,opus_pc_id,first_name,last_name,email,mobile_number,kyc_status,status,data_created,is_aadhar_added,is_pan_added,is_bank_added,is_upi_added,block_status,block_status_date,block_status_by,block_through",
			"1001,89012,Ramesh,Kumar,ramesh@example.com,9812345769,F,A,12,true,true,true,true,U,,,",
			"1003,89014,Vikas,Singh,vikas@example.com,9812345771,F,A,40,true,true,true,true,U,,,",
		}, "\n") + "\n",
		"code_history.csv": strings.Join([]string{
			"opus_id,code,status,points,scanned_at",
			"1001,QRX001,Y,50,2026-08-20 11:00:00",
		}, "\n") + "\n",
		"cash_transfers.csv": strings.Join([]string{
			"opus_id,transfer_type,amount,status,requested_at",
			"1001,U,500,Y,2026-08-10 10:00:00",
		}, "\n") + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
	return dir
}

type harness struct {
	orch      *Orchestrator
	publisher *fakePublisher
	ledger    *fakeLedger
	escalator *fakeEscalator
}

func newHarness(t *testing.T, callerNumber string) *harness {
	t.Helper()
	return newHarnessWithData(t, writeDataFixtures(t), callerNumber)
}

func newHarnessWithData(t *testing.T, dataDir, callerNumber string) *harness {
	t.Helper()
	h := &harness{
		publisher: &fakePublisher{},
		ledger:    &fakeLedger{},
		escalator: &fakeEscalator{},
	}
	h.orch = New(Config{
		Classifier:  classifier.New(0.5),
		Flows:       flow.NewStore(filepath.Join("..", "..", "flows")),
		Tools:       tools.NewRegistry(dataDir, callerNumber),
		Ledger:      h.ledger,
		Publisher:   h.publisher,
		Escalator:   h.escalator,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionTTL:  time.Minute,
		ToolTimeout: time.Second,
	})
	return h
}

func (h *harness) utter(t *testing.T, sessionRef, utterance string) gateway.ReplyEvent {
	t.Helper()
	data, err := json.Marshal(gateway.UtteranceEvent{
		SessionRef: sessionRef,
		Utterance:  utterance,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal utterance: %v", err)
	}
	before := h.publisher.count()
	h.orch.HandleUtterance(gateway.SubjectUtterance, data)
	if got := h.publisher.count(); got != before+1 {
		t.Fatalf("published %d replies for one turn, want exactly 1", got-before)
	}
	return h.publisher.last(t)
}

func TestResolvedTurnProducesOneReplyAndOneEnquiry(t *testing.T) {
	h := newHarness(t, "9812345769")

	reply := h.utter(t, "call-1", "I need KYC done")

	if reply.Intent != "KYC_STATUS" {
		t.Errorf("intent = %s, want KYC_STATUS", reply.Intent)
	}
	if !reply.Terminal {
		t.Error("resolved turn should be terminal")
	}
	if !strings.Contains(reply.Reply, "KYC") {
		t.Errorf("reply should mention KYC status, got %q", reply.Reply)
	}

	records := h.ledger.recorded()
	if len(records) != 1 {
		t.Fatalf("ledger requests = %d, want 1", len(records))
	}
	if records[0].Outcome != flow.OutcomeEnquiry {
		t.Errorf("outcome = %s, want enquiry", records[0].Outcome)
	}
	if records[0].CustomerRef != "1001" {
		t.Errorf("customer_ref = %s, want 1001", records[0].CustomerRef)
	}
}

func TestComplaintAnnouncesSpokenNumber(t *testing.T) {
	// Customer 1003 completed KYC 40 days ago; the approval window is gone.
	h := newHarness(t, "9812345771")

	reply := h.utter(t, "call-2", "kyc approval nahi hua abhi tak")

	if !strings.Contains(reply.Reply, "complaint number") {
		t.Errorf("complaint reply should announce the number, got %q", reply.Reply)
	}
	if !strings.Contains(reply.Reply, "K Y C 2 0 2 6 0 8 2 3 0 0 0 1") {
		t.Errorf("complaint number must be spoken digit by digit, got %q", reply.Reply)
	}

	records := h.ledger.recorded()
	if len(records) != 1 || records[0].Outcome != flow.OutcomeComplaint {
		t.Fatalf("ledger requests = %+v, want one complaint", records)
	}
}

func TestAtMostOneRecordPerSession(t *testing.T) {
	h := newHarness(t, "9812345771")

	h.utter(t, "call-3", "kyc approval nahi hua")
	h.utter(t, "call-3", "kyc ka kya hua")
	h.orch.CloseSession(context.Background(), "call-3", "hangup")

	if got := len(h.ledger.recorded()); got != 1 {
		t.Fatalf("ledger requests = %d, want exactly 1 across turns and close", got)
	}
}

func TestUnclearGetsOneClarificationThenEscalates(t *testing.T) {
	h := newHarness(t, "")

	first := h.utter(t, "call-4", "hello kaise ho")
	if !strings.Contains(first.Reply, "samjha nahi") {
		t.Errorf("first unclear turn should ask for clarification, got %q", first.Reply)
	}
	if first.Terminal {
		t.Error("clarification must not be terminal")
	}

	second := h.utter(t, "call-4", "matlab wahi jo bola tha")
	if !strings.Contains(second.Reply, "senior team") {
		t.Errorf("second unclear turn should escalate, got %q", second.Reply)
	}
	if h.escalator.count() != 1 {
		t.Errorf("escalations = %d, want 1", h.escalator.count())
	}
	// Nobody was identified; escalation must not file a record.
	if got := len(h.ledger.recorded()); got != 0 {
		t.Errorf("ledger requests = %d, want 0", got)
	}
}

func TestClearIntentResetsClarification(t *testing.T) {
	h := newHarness(t, "9812345769")

	h.utter(t, "call-5", "hello")
	reply := h.utter(t, "call-5", "mera KYC status check karo")

	if reply.Intent != "KYC_STATUS" {
		t.Errorf("intent = %s, want KYC_STATUS after clarification", reply.Intent)
	}
	if h.escalator.count() != 0 {
		t.Error("a clear second turn must not escalate")
	}
}

func TestConsecutiveToolFailuresEscalate(t *testing.T) {
	// Empty data dir: every lookup fails. No caller number: the caller
	// context tool fails too.
	h := newHarnessWithData(t, t.TempDir(), "")

	// caller_context fails (streak 1), on_error routes to the Opus ID
	// question.
	first := h.utter(t, "call-6", "mera kyc status batao")
	if !strings.Contains(first.Reply, "Opus ID") {
		t.Errorf("first turn should ask for Opus ID, got %q", first.Reply)
	}

	// Lookup by Opus ID fails (streak 2).
	second := h.utter(t, "call-6", "1001")
	if !strings.Contains(second.Reply, "dikkat") {
		t.Errorf("second turn should apologize, got %q", second.Reply)
	}

	// Flow restarts; caller_context fails again (streak 3) and escalates.
	third := h.utter(t, "call-6", "kyc status")
	if !strings.Contains(third.Reply, "senior team") {
		t.Errorf("third failure should escalate, got %q", third.Reply)
	}
	if h.escalator.count() != 1 {
		t.Errorf("escalations = %d, want 1", h.escalator.count())
	}
}

func TestAwaitedOpusIDResumesFlow(t *testing.T) {
	// Caller number not registered: the flow must fall back to asking for
	// an Opus ID, then resume with the answer.
	h := newHarness(t, "9899999999")

	first := h.utter(t, "call-7", "kyc status check karna hai")
	if !strings.Contains(first.Reply, "Opus ID") {
		t.Fatalf("first turn should ask for Opus ID, got %q", first.Reply)
	}

	second := h.utter(t, "call-7", "mera opus id 1001 hai")
	if !strings.Contains(second.Reply, "Ramesh") {
		t.Errorf("resumed flow should identify the customer, got %q", second.Reply)
	}
	if !second.Terminal {
		t.Error("resumed flow should reach its terminal step")
	}
}

func TestFollowUpKeepsEstablishedIntent(t *testing.T) {
	h := newHarness(t, "9812345769")

	h.utter(t, "call-8", "points redeem nahi ho rahe")
	reply := h.utter(t, "call-8", "haan wahi problem hai")

	if reply.Intent != "POINT_REDEMPTION" {
		t.Errorf("intent = %s, want POINT_REDEMPTION retained across turns", reply.Intent)
	}
}

func TestReassuranceSpokenOnceAcrossTurns(t *testing.T) {
	h := newHarness(t, "9812345769")

	first := h.utter(t, "call-9", "mera kyc status batao")
	if strings.Count(first.Reply, "Ek minute dijiye") != 1 {
		t.Errorf("first turn should reassure exactly once, got %q", first.Reply)
	}

	second := h.utter(t, "call-9", "kyc ka status phir se batao")
	if strings.Contains(second.Reply, "Ek minute dijiye") {
		t.Errorf("reassurance must not repeat across turns, got %q", second.Reply)
	}
}

func TestDroppedCallFilesEnquiryForIdentifiedCaller(t *testing.T) {
	h := newHarness(t, "9899999999")

	// Flow pauses awaiting an Opus ID; the caller was identified manually
	// mid-call (e.g. a prior tool run) and then the call drops.
	h.utter(t, "call-10", "kyc status check karna hai")
	sess, ok := h.orch.sessions.Get("call-10")
	if !ok {
		t.Fatal("session missing")
	}
	sess.Lock()
	sess.CustomerRef = "1001"
	sess.CustomerName = "Ramesh Kumar"
	sess.Unlock()

	h.orch.CloseSession(context.Background(), "call-10", "carrier drop")

	records := h.ledger.recorded()
	if len(records) != 1 {
		t.Fatalf("ledger requests = %d, want 1", len(records))
	}
	if records[0].Outcome != flow.OutcomeEnquiry {
		t.Errorf("outcome = %s, want enquiry for dropped call", records[0].Outcome)
	}
	if !strings.Contains(records[0].Details, "carrier drop") {
		t.Errorf("details should carry the close reason, got %q", records[0].Details)
	}
}

func TestDroppedCallWithoutIdentityFilesNothing(t *testing.T) {
	h := newHarness(t, "")

	h.utter(t, "call-11", "hello")
	h.orch.CloseSession(context.Background(), "call-11", "hangup")

	if got := len(h.ledger.recorded()); got != 0 {
		t.Errorf("ledger requests = %d, want 0 for unidentified dropped call", got)
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	h := newHarness(t, "9812345769")

	h.utter(t, "call-12", "mera kyc status batao")
	h.orch.CloseSession(context.Background(), "call-12", "hangup")
	h.orch.CloseSession(context.Background(), "call-12", "hangup")

	if got := len(h.ledger.recorded()); got != 1 {
		t.Errorf("ledger requests = %d, want 1", got)
	}
}

func TestLedgerFailureDoesNotSuppressReply(t *testing.T) {
	h := newHarness(t, "9812345769")
	h.ledger.fail = true

	reply := h.utter(t, "call-13", "I need KYC done")

	if reply.Reply == "" {
		t.Error("reply must go out even when the record sink is down")
	}
	if !reply.Terminal {
		t.Error("turn is still terminal when the record write fails")
	}
}

// slowInvoker never answers before its context is cancelled, then hands back
// a stale success a moment later.
type slowInvoker struct{}

func (slowInvoker) Invoke(ctx context.Context, name tools.Name, _ tools.Params) tools.Result {
	<-ctx.Done()
	time.Sleep(5 * time.Millisecond)
	return tools.Result{
		Tool:    name,
		Status:  tools.StatusOK,
		Message: "stale lookup result",
		Fields:  map[string]string{"status": "ok"},
	}
}

func newSlowToolHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		publisher: &fakePublisher{},
		ledger:    &fakeLedger{},
		escalator: &fakeEscalator{},
	}
	h.orch = New(Config{
		Classifier:  classifier.New(0.5),
		Flows:       flow.NewStore(filepath.Join("..", "..", "flows")),
		Tools:       slowInvoker{},
		Ledger:      h.ledger,
		Publisher:   h.publisher,
		Escalator:   h.escalator,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionTTL:  time.Minute,
		ToolTimeout: 10 * time.Millisecond,
	})
	return h
}

func TestToolTimeoutTreatedAsToolError(t *testing.T) {
	h := newSlowToolHarness(t)

	// caller_context overruns the timeout (streak 1). The turn must return
	// promptly, discard the late answer, and take the on_error route.
	start := time.Now()
	first := h.utter(t, "call-15", "mera kyc status batao")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("turn took %v, timeout not enforced", elapsed)
	}
	if strings.Contains(first.Reply, "stale lookup result") {
		t.Errorf("late tool answer leaked into the reply: %q", first.Reply)
	}
	if !strings.Contains(first.Reply, "Opus ID") {
		t.Errorf("timed-out lookup should route to the Opus ID question, got %q", first.Reply)
	}

	// Lookup by Opus ID times out too (streak 2).
	second := h.utter(t, "call-15", "1001")
	if !strings.Contains(second.Reply, "dikkat") {
		t.Errorf("second timeout should apologize, got %q", second.Reply)
	}

	// Third timeout in a row escalates.
	third := h.utter(t, "call-15", "kyc status")
	if !strings.Contains(third.Reply, "senior team") {
		t.Errorf("third timeout should escalate, got %q", third.Reply)
	}
	if h.escalator.count() != 1 {
		t.Errorf("escalations = %d, want 1", h.escalator.count())
	}
}

func TestTopicChangeWhileAwaitingInput(t *testing.T) {
	// Caller number not registered: the flow pauses on the Opus ID question.
	// A digit-less utterance with a clear new intent is a topic change, not
	// an answer.
	h := newHarness(t, "9899999999")

	first := h.utter(t, "call-16", "kyc status check karna hai")
	if !strings.Contains(first.Reply, "Opus ID") {
		t.Fatalf("first turn should ask for Opus ID, got %q", first.Reply)
	}

	second := h.utter(t, "call-16", "points redeem nahi ho rahe")
	if second.Intent != "POINT_REDEMPTION" {
		t.Errorf("intent = %s, want POINT_REDEMPTION after topic change", second.Intent)
	}
}

func TestUtteranceForClosedSessionDropped(t *testing.T) {
	h := newHarness(t, "9812345769")

	h.utter(t, "call-14", "mera kyc status batao")
	h.orch.CloseSession(context.Background(), "call-14", "hangup")

	data, _ := json.Marshal(gateway.UtteranceEvent{SessionRef: "call-14", Utterance: "hello?"})
	before := h.publisher.count()
	h.orch.HandleUtterance(gateway.SubjectUtterance, data)
	// Session was deleted on close; a new utterance starts a fresh session
	// and still gets a reply.
	if got := h.publisher.count(); got != before+1 {
		t.Errorf("replies after close = %d, want 1 (fresh session)", got-before)
	}
}
