package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var transferStatusLabels = map[string]string{
	"P": "Processing",
	"Y": "Transferred",
	"N": "Failed",
	"R": "Reversed",
}

var transferTypeLabels = map[string]string{
	"U": "UPI",
	"B": "Bank Transfer",
}

type cashTransferAdapter struct {
	source csvSource
}

func newCashTransferAdapter(dataDir string) *cashTransferAdapter {
	return &cashTransferAdapter{source: csvSource{path: filepath.Join(dataDir, "cash_transfers.csv")}}
}

// history summarizes point-redemption payouts for an account and explains
// the state of the most recent transfer.
func (a *cashTransferAdapter) history(_ context.Context, params Params) Result {
	opusID := cleanDigits(params["opus_id"])
	if opusID == "" {
		return notFoundResult(ToolCashTransferHistory, map[string]string{
			"reason": "missing_opus_id",
		}, "Transfer history ke liye Opus ID chahiye.")
	}

	rows, err := a.source.rows()
	if err != nil {
		return errorResult(ToolCashTransferHistory, err)
	}

	var transfers []map[string]string
	for _, row := range rows {
		if cleanDigits(row["opus_id"]) == opusID {
			transfers = append(transfers, row)
		}
	}
	if len(transfers) == 0 {
		return notFoundResult(ToolCashTransferHistory, map[string]string{
			"opus_id": opusID,
			"reason":  "no_transfers",
		}, "Aapke account par koi redemption transfer nahi mila.")
	}

	sort.SliceStable(transfers, func(i, j int) bool {
		ti, iok := parseSourceTime(transfers[i]["requested_at"])
		tj, jok := parseSourceTime(transfers[j]["requested_at"])
		if iok && jok {
			return ti.After(tj)
		}
		return iok
	})

	transferred, pending, failed := 0, 0, 0
	totalAmount := 0
	for _, t := range transfers {
		switch strings.ToUpper(t["status"]) {
		case "Y":
			transferred++
			totalAmount += atoiOrZero(t["amount"])
		case "P":
			pending++
		default:
			failed++
		}
	}

	latest := transfers[0]
	latestStatus := strings.ToUpper(latest["status"])
	latestType := strings.ToUpper(latest["transfer_type"])

	fields := map[string]string{
		"opus_id":             opusID,
		"total_transfers":     strconv.Itoa(len(transfers)),
		"transferred":         strconv.Itoa(transferred),
		"pending":             strconv.Itoa(pending),
		"failed":              strconv.Itoa(failed),
		"total_amount":        strconv.Itoa(totalAmount),
		"latest_status":       latestStatus,
		"latest_status_label": transferLabel(transferStatusLabels, latestStatus),
		"latest_type":         latestType,
		"latest_type_label":   transferLabel(transferTypeLabels, latestType),
		"latest_amount":       latest["amount"],
	}

	var message string
	switch latestStatus {
	case "Y":
		message = fmt.Sprintf("Aapka last transfer, %s rupees ka %s se, successfully ho gaya hai.",
			latest["amount"], transferLabel(transferTypeLabels, latestType))
	case "P":
		message = fmt.Sprintf("Aapka %s rupees ka transfer abhi processing mein hai. Transfer complete hone mein 2 se 3 working days lag sakte hain.",
			latest["amount"])
	case "N":
		message = fmt.Sprintf("Aapka last transfer, %s rupees ka, fail ho gaya hai. Points aapke account mein wapas credit ho jayenge.",
			latest["amount"])
	case "R":
		message = fmt.Sprintf("Aapka %s rupees ka transfer reverse hua hai. Points aapke account mein wapas aa gaye hain.",
			latest["amount"])
	default:
		message = fmt.Sprintf("Aapke account par %d transfers mile hain.", len(transfers))
	}

	return okResult(ToolCashTransferHistory, fields, message)
}

func transferLabel(labels map[string]string, code string) string {
	if label, ok := labels[code]; ok {
		return label
	}
	return "Unknown"
}
