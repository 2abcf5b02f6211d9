// Package backfill imports the legacy complaints.json ledger the previous
// system maintained on disk into the records store. The import is resumable
// and idempotent: session refs are derived from the legacy complaint
// numbers, so a re-run can never double-import.
package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/store"
)

// LegacyComplaint is one entry of the old flat-file ledger.
type LegacyComplaint struct {
	Number       string `json:"complaint_number"`
	OpusID       string `json:"opus_id"`
	CustomerName string `json:"customer_name"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Priority     string `json:"priority"`
	TimelineDays int    `json:"timeline_days"`
	CreatedAt    string `json:"created_at"`
}

// ParseFile reads and validates a legacy complaints.json file. Entries
// missing a complaint number or an Opus ID are returned as skipped, not as
// errors; one bad entry must not sink the rest of the import.
func ParseFile(path string) (valid []LegacyComplaint, skipped []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read legacy ledger %s: %w", path, err)
	}

	var entries []LegacyComplaint
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("parse legacy ledger %s: %w", path, err)
	}

	for i, entry := range entries {
		switch {
		case entry.Number == "":
			skipped = append(skipped, fmt.Sprintf("entry %d: missing complaint_number", i))
		case entry.OpusID == "":
			skipped = append(skipped, fmt.Sprintf("entry %d (%s): missing opus_id", i, entry.Number))
		default:
			valid = append(valid, entry)
		}
	}
	return valid, skipped, nil
}

// SessionRef derives the synthetic session ref that makes the import
// idempotent.
func (c LegacyComplaint) SessionRef() string {
	return "legacy:" + c.Number
}

// RecordType reads the type out of the legacy number prefix. The old
// system minted KYC-prefixed numbers for complaints and ENQ for enquiries.
func (c LegacyComplaint) RecordType() store.RecordType {
	if strings.HasPrefix(c.Number, "ENQ") {
		return store.RecordEnquiry
	}
	return store.RecordComplaint
}

// Intent maps the legacy category labels onto the current intent set.
func (c LegacyComplaint) Intent() classifier.Intent {
	switch strings.ToUpper(strings.TrimSpace(c.Category)) {
	case "KYC_APPROVAL", "KYC_STATUS", "KYC":
		return classifier.IntentKYCStatus
	case "POINT_REDEMPTION", "POINTS", "CASH_TRANSFER":
		return classifier.IntentPointRedemption
	case "QR_SCAN", "QR_HISTORY", "CODE_SCAN":
		return classifier.IntentQRHistory
	case "ACCOUNT_BLOCK", "LOGIN_ISSUE":
		return classifier.IntentAccountBlock
	case "IDENTITY", "IDENTITY_VERIFICATION":
		return classifier.IntentIdentityVerification
	default:
		return classifier.IntentUnclear
	}
}

// ToRecord converts the legacy entry to a store insert.
func (c LegacyComplaint) ToRecord(source string) store.NewRecord {
	createdAt := parseLegacyTime(c.CreatedAt)
	timeline := c.TimelineDays
	if timeline <= 0 {
		timeline = 7
	}
	priority := strings.ToLower(c.Priority)
	if priority != "high" {
		priority = "normal"
	}
	return store.NewRecord{
		Type:          c.RecordType(),
		SessionRef:    c.SessionRef(),
		Intent:        string(c.Intent()),
		CustomerRef:   c.OpusID,
		CustomerName:  c.CustomerName,
		Details:       c.Description,
		Priority:      priority,
		ResolutionDue: createdAt.AddDate(0, 0, timeline),
		Source:        source,
	}
}

func parseLegacyTime(value string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
