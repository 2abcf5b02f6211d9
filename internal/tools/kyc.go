package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// approvalWindowDays is the standard account-approval window after full KYC.
const approvalWindowDays = 30

var kycStatusLabels = map[string]string{
	"F": "Full KYC Complete",
	"P": "Partial KYC",
	"R": "KYC Rejected",
	"N": "KYC Not Started",
}

type kycAdapter struct {
	source csvSource
}

func newKYCAdapter(dataDir string) *kycAdapter {
	return &kycAdapter{source: csvSource{path: filepath.Join(dataDir, "customers.csv")}}
}

// check evaluates KYC completion and the approval timeline for one account.
func (a *kycAdapter) check(_ context.Context, params Params) Result {
	opusID := cleanDigits(params["opus_id"])
	if opusID == "" {
		return notFoundResult(ToolKYCStatus, map[string]string{
			"reason": "missing_opus_id",
		}, "KYC status check ke liye Opus ID chahiye.")
	}

	rows, err := a.source.rows()
	if err != nil {
		return errorResult(ToolKYCStatus, err)
	}

	var record map[string]string
	for _, row := range rows {
		if cleanDigits(row["opus_id"]) == opusID {
			record = row
			break
		}
	}
	if record == nil {
		return notFoundResult(ToolKYCStatus, map[string]string{
			"opus_id": opusID,
			"reason":  "no_account",
		}, fmt.Sprintf("Opus ID %s se koi account nahi mila.", SpokenDigits(opusID)))
	}

	status := strings.ToUpper(record["kyc_status"])
	daysSince := atoiOrZero(record["data_created"])

	fields := map[string]string{
		"opus_id":                 opusID,
		"customer_name":           customerName(record),
		"kyc_status":              status,
		"kyc_status_label":        kycStatusLabels[status],
		"days_since_registration": strconv.Itoa(daysSince),
	}

	var recommendation, message string
	switch status {
	case "F":
		remaining := approvalWindowDays - daysSince
		if remaining < 0 {
			remaining = 0
		}
		fields["days_remaining"] = strconv.Itoa(remaining)
		if daysSince <= approvalWindowDays {
			recommendation = "within_timeline"
			message = fmt.Sprintf("Aapka KYC %d din pehle complete hua hai. Account approval ke liye %d din aur lag sakte hain, standard process %d din ka hai.",
				daysSince, remaining, approvalWindowDays)
		} else {
			recommendation = "timeline_exceeded"
			message = fmt.Sprintf("Aapka KYC %d din pehle complete hua tha aur %d din ka standard time nikal chuka hai.",
				daysSince, approvalWindowDays)
		}
	case "P":
		recommendation = "partial_kyc"
		missing := missingDocuments(record)
		fields["missing_documents"] = strings.Join(missing, ",")
		message = fmt.Sprintf("Aapka KYC abhi complete nahi hua hai. Pehle ye documents complete karne honge: %s.",
			strings.Join(missing, ", "))
	case "R":
		recommendation = "kyc_rejected"
		message = "Aapka KYC reject hua hai. Documents dobara submit karne honge."
	case "N":
		recommendation = "kyc_not_started"
		message = "Aapka KYC abhi start nahi hua hai. Pehle KYC process complete karna hoga."
	default:
		recommendation = "unknown_status"
		message = "KYC status clear nahi hai, technical team se check karna hoga."
	}
	fields["recommendation"] = recommendation

	return okResult(ToolKYCStatus, fields, message)
}

func missingDocuments(record map[string]string) []string {
	var missing []string
	if !isTrue(record["is_aadhar_added"]) {
		missing = append(missing, "Aadhar")
	}
	if !isTrue(record["is_pan_added"]) {
		missing = append(missing, "PAN")
	}
	if !isTrue(record["is_bank_added"]) {
		missing = append(missing, "Bank Details")
	}
	if !isTrue(record["is_upi_added"]) {
		missing = append(missing, "UPI")
	}
	return missing
}
