package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
)

// customerAdapter serves the identity tools over customers.csv.
type customerAdapter struct {
	source csvSource
}

func newCustomerAdapter(dataDir string) *customerAdapter {
	return &customerAdapter{source: csvSource{path: filepath.Join(dataDir, "customers.csv")}}
}

// lookupByMobile resolves accounts registered against a 10-digit mobile
// number. An unregistered number is a business outcome, not a failure.
func (a *customerAdapter) lookupByMobile(_ context.Context, params Params) Result {
	phone := cleanDigits(params["mobile_number"])
	if len(phone) != 10 {
		return notFoundResult(ToolCustomerLookup, map[string]string{
			"reason": "invalid_number_format",
		}, "Ye mobile number sahi format mein nahi hai.")
	}

	rows, err := a.source.rows()
	if err != nil {
		return errorResult(ToolCustomerLookup, err)
	}

	var matches []map[string]string
	for _, row := range rows {
		if cleanDigits(row["mobile_number"]) == phone {
			matches = append(matches, row)
		}
	}

	if len(matches) == 0 {
		return notFoundResult(ToolCustomerLookup, map[string]string{
			"mobile_number": phone,
			"reason":        "no_account",
		}, "Is number se koi account nahi mila.")
	}

	first := matches[0]
	fields := customerFields(first)
	fields["accounts"] = strconv.Itoa(len(matches))
	fields["multiple_accounts"] = strconv.FormatBool(len(matches) > 1)

	message := fmt.Sprintf("Number %s par account mila: %s, Opus ID %s.",
		SpokenDigits(phone), customerName(first), SpokenDigits(first["opus_id"]))
	if len(matches) > 1 {
		message = fmt.Sprintf("Number %s par %d accounts mile hain. Aap jis account ki baat kar rahe hain uska Opus ID bata dijiye.",
			SpokenDigits(phone), len(matches))
	}

	return okResult(ToolCustomerLookup, fields, message)
}

// lookupByOpusID resolves a single account by exact Opus ID.
func (a *customerAdapter) lookupByOpusID(_ context.Context, params Params) Result {
	opusID := cleanDigits(params["opus_id"])
	if opusID == "" {
		return notFoundResult(ToolCustomerLookupByID, map[string]string{
			"reason": "missing_opus_id",
		}, "Opus ID nahi mila. Kya aap apna Opus ID bata sakte hain?")
	}

	rows, err := a.source.rows()
	if err != nil {
		return errorResult(ToolCustomerLookupByID, err)
	}

	for _, row := range rows {
		if cleanDigits(row["opus_id"]) == opusID || normalizePCID(row["opus_pc_id"]) == normalizePCID(opusID) {
			fields := customerFields(row)
			message := fmt.Sprintf("Opus ID %s par account mila: %s.", SpokenDigits(row["opus_id"]), customerName(row))
			return okResult(ToolCustomerLookupByID, fields, message)
		}
	}

	return notFoundResult(ToolCustomerLookupByID, map[string]string{
		"opus_id": opusID,
		"reason":  "no_account",
	}, fmt.Sprintf("Opus ID %s se koi account nahi mila.", SpokenDigits(opusID)))
}

// callerContext surfaces the registered number the call infrastructure
// reports for the current caller.
func callerContext(callerNumber string) Handler {
	return func(_ context.Context, _ Params) Result {
		if callerNumber == "" {
			return errorResult(ToolCallerContext, fmt.Errorf("caller context unavailable from call infrastructure"))
		}
		return okResult(ToolCallerContext, map[string]string{
			"mobile_number": callerNumber,
			"is_registered": "true",
		}, fmt.Sprintf("Aap registered number %s se call kar rahe hain.", SpokenDigits(callerNumber)))
	}
}

func customerFields(row map[string]string) map[string]string {
	return map[string]string{
		"opus_id":        row["opus_id"],
		"opus_pc_id":     normalizePCID(row["opus_pc_id"]),
		"name":           customerName(row),
		"email":          row["email"],
		"mobile_number":  cleanDigits(row["mobile_number"]),
		"kyc_status":     row["kyc_status"],
		"account_status": row["status"],
	}
}

func customerName(row map[string]string) string {
	name := row["first_name"]
	if row["last_name"] != "" {
		if name != "" {
			name += " "
		}
		name += row["last_name"]
	}
	return name
}
