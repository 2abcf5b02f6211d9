package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/store"
)

const legacyLedger = `[
  {
    "complaint_number": "KYC202501150001",
    "opus_id": "1001",
    "customer_name": "Ramesh Kumar",
    "category": "KYC_APPROVAL",
    "description": "KYC pending beyond timeline",
    "priority": "normal",
    "timeline_days": 7,
    "created_at": "2025-01-15 10:30:00"
  },
  {
    "complaint_number": "ENQ202501150002",
    "opus_id": "1002",
    "customer_name": "Sunita Devi",
    "category": "POINTS",
    "description": "asked about cashback",
    "priority": "",
    "timeline_days": 0,
    "created_at": "2025-01-15"
  },
  {
    "complaint_number": "",
    "opus_id": "1003",
    "category": "QR_SCAN",
    "description": "no number assigned"
  },
  {
    "complaint_number": "KYC202501150003",
    "opus_id": "",
    "category": "ACCOUNT_BLOCK",
    "description": "no opus id on file"
  }
]`

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "complaints.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	valid, skipped, err := ParseFile(writeLedger(t, legacyLedger))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(valid) != 2 {
		t.Fatalf("expected 2 valid entries, got %d", len(valid))
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped entries, got %v", skipped)
	}
	if valid[0].Number != "KYC202501150001" || valid[1].Number != "ENQ202501150002" {
		t.Errorf("unexpected entries: %+v", valid)
	}
}

func TestParseFileBadJSON(t *testing.T) {
	if _, _, err := ParseFile(writeLedger(t, "{not json")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, _, err := ParseFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestRecordTypeFromNumber(t *testing.T) {
	if got := (LegacyComplaint{Number: "KYC202501150001"}).RecordType(); got != store.RecordComplaint {
		t.Errorf("KYC prefix = %s, want COMPLAINT", got)
	}
	if got := (LegacyComplaint{Number: "ENQ202501150002"}).RecordType(); got != store.RecordEnquiry {
		t.Errorf("ENQ prefix = %s, want ENQUIRY", got)
	}
}

func TestCategoryIntentMapping(t *testing.T) {
	cases := []struct {
		category string
		want     classifier.Intent
	}{
		{"KYC_APPROVAL", classifier.IntentKYCStatus},
		{"kyc", classifier.IntentKYCStatus},
		{"POINTS", classifier.IntentPointRedemption},
		{"CASH_TRANSFER", classifier.IntentPointRedemption},
		{"QR_SCAN", classifier.IntentQRHistory},
		{"ACCOUNT_BLOCK", classifier.IntentAccountBlock},
		{"IDENTITY", classifier.IntentIdentityVerification},
		{"SOMETHING_ELSE", classifier.IntentUnclear},
	}
	for _, tc := range cases {
		if got := (LegacyComplaint{Category: tc.category}).Intent(); got != tc.want {
			t.Errorf("category %q = %s, want %s", tc.category, got, tc.want)
		}
	}
}

func TestToRecord(t *testing.T) {
	entry := LegacyComplaint{
		Number:       "KYC202501150001",
		OpusID:       "1001",
		CustomerName: "Ramesh Kumar",
		Category:     "KYC_APPROVAL",
		Description:  "KYC pending beyond timeline",
		Priority:     "HIGH",
		TimelineDays: 3,
		CreatedAt:    "2025-01-15 10:30:00",
	}
	rec := entry.ToRecord("backfill")

	if rec.SessionRef != "legacy:KYC202501150001" {
		t.Errorf("session ref = %q", rec.SessionRef)
	}
	if rec.Type != store.RecordComplaint {
		t.Errorf("type = %s", rec.Type)
	}
	if rec.Priority != "high" {
		t.Errorf("priority = %q", rec.Priority)
	}
	created := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	if !rec.ResolutionDue.Equal(created.AddDate(0, 0, 3)) {
		t.Errorf("resolution due = %v", rec.ResolutionDue)
	}
	if rec.Source != "backfill" {
		t.Errorf("source = %q", rec.Source)
	}
}

func TestToRecordDefaults(t *testing.T) {
	rec := LegacyComplaint{Number: "ENQ202501150002", CreatedAt: "2025-01-15"}.ToRecord("backfill")
	if rec.Priority != "normal" {
		t.Errorf("priority = %q, want normal", rec.Priority)
	}
	created := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if !rec.ResolutionDue.Equal(created.AddDate(0, 0, 7)) {
		t.Errorf("resolution due = %v, want created + 7 days", rec.ResolutionDue)
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState fresh: %v", err)
	}
	s.MarkImported("KYC202501150001")
	s.AddError("import ENQ202501150002: boom")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState again: %v", err)
	}
	if !loaded.IsImported("KYC202501150001") {
		t.Error("imported number lost across save/load")
	}
	if loaded.IsImported("ENQ202501150002") {
		t.Error("never-imported number reported as imported")
	}
	if len(loaded.Errors) != 1 {
		t.Errorf("errors = %v", loaded.Errors)
	}
}

type fakeSink struct {
	inserts  []store.NewRecord
	existing map[string]bool
	fail     map[string]bool
}

func (f *fakeSink) InsertRecord(_ context.Context, in store.NewRecord) (*store.Record, bool, error) {
	if f.fail[in.SessionRef] {
		return nil, false, fmt.Errorf("connection reset")
	}
	if f.existing[in.SessionRef] {
		return &store.Record{Number: "KYC202501150099", SessionRef: in.SessionRef}, false, nil
	}
	f.inserts = append(f.inserts, in)
	return &store.Record{Number: "KYC" + time.Now().UTC().Format("20060102") + "0001", SessionRef: in.SessionRef}, true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunnerImportsValidEntries(t *testing.T) {
	sink := &fakeSink{}
	runner := NewRunner(Config{
		File:      writeLedger(t, legacyLedger),
		StatePath: filepath.Join(t.TempDir(), "state.json"),
	}, sink, testLogger())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.inserts) != 2 {
		t.Fatalf("expected 2 inserts, got %d", len(sink.inserts))
	}
	if sink.inserts[0].SessionRef != "legacy:KYC202501150001" {
		t.Errorf("first insert = %q", sink.inserts[0].SessionRef)
	}
}

func TestRunnerResumesFromState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	file := writeLedger(t, legacyLedger)

	first := &fakeSink{}
	if err := NewRunner(Config{File: file, StatePath: statePath}, first, testLogger()).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := &fakeSink{}
	if err := NewRunner(Config{File: file, StatePath: statePath}, second, testLogger()).Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.inserts) != 0 {
		t.Errorf("second run re-imported %d entries", len(second.inserts))
	}
}

func TestRunnerRetriesFailedEntryNextRun(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	file := writeLedger(t, legacyLedger)

	first := &fakeSink{fail: map[string]bool{"legacy:ENQ202501150002": true}}
	if err := NewRunner(Config{File: file, StatePath: statePath}, first, testLogger()).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.inserts) != 1 {
		t.Fatalf("expected 1 insert on first run, got %d", len(first.inserts))
	}

	second := &fakeSink{}
	if err := NewRunner(Config{File: file, StatePath: statePath}, second, testLogger()).Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.inserts) != 1 || second.inserts[0].SessionRef != "legacy:ENQ202501150002" {
		t.Errorf("second run inserts = %+v, want only the failed entry", second.inserts)
	}
}

func TestRunnerDryRunWritesNothing(t *testing.T) {
	sink := &fakeSink{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	runner := NewRunner(Config{
		File:      writeLedger(t, legacyLedger),
		StatePath: statePath,
		DryRun:    true,
	}, sink, testLogger())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.inserts) != 0 {
		t.Errorf("dry run inserted %d records", len(sink.inserts))
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Error("dry run wrote the state file")
	}
}
