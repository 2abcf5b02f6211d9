package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var codeStatusLabels = map[string]string{
	"Y": "Points Credited",
	"N": "Scan Failed",
	"A": "Already Scanned",
	"E": "Code Expired",
	"P": "Pending Verification",
	"R": "Rejected",
	"G": "Geo-Restricted",
	"U": "Under Review",
	"X": "Code Blocked",
	"Z": "Zero Value Code",
	"V": "Verification Required",
	"I": "Invalid Code",
	"B": "Batch Recalled",
	"O": "Out of Scheme Period",
}

type codeHistoryAdapter struct {
	source csvSource
}

func newCodeHistoryAdapter(dataDir string) *codeHistoryAdapter {
	return &codeHistoryAdapter{source: csvSource{path: filepath.Join(dataDir, "code_history.csv")}}
}

// history summarizes recent QR scans for an account: totals per outcome
// plus the most recent scans with their status explained.
func (a *codeHistoryAdapter) history(_ context.Context, params Params) Result {
	opusID := cleanDigits(params["opus_id"])
	if opusID == "" {
		return notFoundResult(ToolCodeHistory, map[string]string{
			"reason": "missing_opus_id",
		}, "Scan history ke liye Opus ID chahiye.")
	}

	rows, err := a.source.rows()
	if err != nil {
		return errorResult(ToolCodeHistory, err)
	}

	var scans []map[string]string
	for _, row := range rows {
		if cleanDigits(row["opus_id"]) == opusID {
			scans = append(scans, row)
		}
	}
	if len(scans) == 0 {
		return notFoundResult(ToolCodeHistory, map[string]string{
			"opus_id": opusID,
			"reason":  "no_scans",
		}, "Aapke account par koi QR scan history nahi mili.")
	}

	sort.SliceStable(scans, func(i, j int) bool {
		ti, iok := parseSourceTime(scans[i]["scanned_at"])
		tj, jok := parseSourceTime(scans[j]["scanned_at"])
		if iok && jok {
			return ti.After(tj)
		}
		return iok
	})

	credited, failed, points := 0, 0, 0
	for _, scan := range scans {
		status := strings.ToUpper(scan["status"])
		if status == "Y" {
			credited++
			points += atoiOrZero(scan["points"])
		} else {
			failed++
		}
	}

	fields := map[string]string{
		"opus_id":       opusID,
		"total_scans":   strconv.Itoa(len(scans)),
		"credited":      strconv.Itoa(credited),
		"failed":        strconv.Itoa(failed),
		"points_earned": strconv.Itoa(points),
	}

	latest := scans[0]
	latestStatus := strings.ToUpper(latest["status"])
	fields["latest_status"] = latestStatus
	fields["latest_status_label"] = statusLabel(latestStatus)
	fields["latest_code"] = latest["code"]

	message := fmt.Sprintf("Aapke account par total %d scans hain, %d successful aur %d failed, %d points credited hue hain.",
		len(scans), credited, failed, points)
	if latestStatus != "Y" {
		message += fmt.Sprintf(" Aapka last scan ka status hai: %s.", statusLabel(latestStatus))
	}

	return okResult(ToolCodeHistory, fields, message)
}

func statusLabel(code string) string {
	if label, ok := codeStatusLabels[code]; ok {
		return label
	}
	return "Unknown Status"
}
