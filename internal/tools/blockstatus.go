package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// blockReviewWindow is how long a system block normally takes to clear.
const blockReviewWindow = 48 * time.Hour

var blockStatusLabels = map[string]string{
	"U": "Unblocked",
	"A": "Auto Blocked",
	"M": "Manually Blocked",
	"P": "Permanently Blocked",
}

type blockStatusAdapter struct {
	source csvSource
	now    func() time.Time
}

func newBlockStatusAdapter(dataDir string) *blockStatusAdapter {
	return &blockStatusAdapter{
		source: csvSource{path: filepath.Join(dataDir, "customers.csv")},
		now:    time.Now,
	}
}

// check explains why an account is blocked and whether the caller should
// wait for the review window or raise a complaint.
func (a *blockStatusAdapter) check(_ context.Context, params Params) Result {
	opusID := cleanDigits(params["opus_id"])
	if opusID == "" {
		return notFoundResult(ToolAccountBlockStatus, map[string]string{
			"reason": "missing_opus_id",
		}, "Block status check ke liye Opus ID chahiye.")
	}

	rows, err := a.source.rows()
	if err != nil {
		return errorResult(ToolAccountBlockStatus, err)
	}

	var record map[string]string
	for _, row := range rows {
		if cleanDigits(row["opus_id"]) == opusID {
			record = row
			break
		}
	}
	if record == nil {
		return notFoundResult(ToolAccountBlockStatus, map[string]string{
			"opus_id": opusID,
			"reason":  "no_account",
		}, fmt.Sprintf("Opus ID %s se koi account nahi mila.", SpokenDigits(opusID)))
	}

	blockStatus := strings.ToUpper(record["block_status"])
	blockThrough := strings.ToUpper(record["block_through"])

	fields := map[string]string{
		"opus_id":            opusID,
		"customer_name":      customerName(record),
		"block_status":       blockStatus,
		"block_status_label": blockLabel(blockStatus),
		"block_through":      blockThrough,
	}

	if blockStatus == "" || blockStatus == "U" {
		fields["recommendation"] = "none"
		return okResult(ToolAccountBlockStatus, fields,
			"Aapka account blocked nahi hai. Agar login nahi ho raha toh app update karke dobara try kijiye.")
	}

	var recommendation, message string
	switch blockStatus {
	case "A":
		blockedAt, ok := parseSourceTime(record["block_status_date"])
		withinWindow := ok && a.now().Sub(blockedAt) <= blockReviewWindow
		fields["within_review_window"] = fmt.Sprintf("%t", withinWindow)
		if withinWindow {
			recommendation = "wait"
			remaining := blockReviewWindow - a.now().Sub(blockedAt)
			hours := int(remaining.Hours())
			if hours < 1 {
				hours = 1
			}
			fields["hours_remaining"] = fmt.Sprintf("%d", hours)
			message = fmt.Sprintf("Aapka account system ne automatically block kiya hai. Ye review %d ghante mein clear ho jata hai, thoda wait kijiye.", hours)
		} else {
			recommendation = "complaint"
			message = "Aapka account system block mein hai aur review ka time nikal chuka hai. Main iske liye complaint register kar deta hoon."
		}
	case "M":
		recommendation = "complaint"
		if blockThrough == "S" {
			message = "Aapka account scheme team ne block kiya hai. Main iske liye complaint register kar deta hoon, team aapse contact karegi."
		} else {
			message = "Aapka account operations team ne manually block kiya hai. Main iske liye complaint register kar deta hoon."
		}
	case "P":
		recommendation = "complaint"
		message = "Aapka account permanently block hai. Iske liye complaint register karni hogi aur team review karegi."
	default:
		recommendation = "complaint"
		message = "Account block status clear nahi hai, main complaint register kar deta hoon."
	}
	fields["recommendation"] = recommendation

	return okResult(ToolAccountBlockStatus, fields, message)
}

func blockLabel(code string) string {
	if label, ok := blockStatusLabels[code]; ok {
		return label
	}
	return "Unknown"
}
