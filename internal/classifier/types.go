package classifier

// Intent is the closed set of customer goals the agent can resolve.
type Intent string

const (
	IntentIdentityVerification Intent = "IDENTITY_VERIFICATION"
	IntentKYCStatus            Intent = "KYC_STATUS"
	IntentPointRedemption      Intent = "POINT_REDEMPTION"
	IntentQRHistory            Intent = "QR_HISTORY"
	IntentAccountBlock         Intent = "ACCOUNT_BLOCK"
	IntentUnclear              Intent = "UNCLEAR"
)

// Intents lists every declared intent in priority order. The order is the
// tie-free iteration order of the pattern table and the order the flow
// store validates against.
func Intents() []Intent {
	return []Intent{
		IntentIdentityVerification,
		IntentKYCStatus,
		IntentPointRedemption,
		IntentQRHistory,
		IntentAccountBlock,
		IntentUnclear,
	}
}

// Result is the outcome of classifying a single utterance. It is produced
// once per utterance and never mutated.
type Result struct {
	Intent          Intent   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
}

// Description returns the operator-facing summary of an intent.
func (i Intent) Description() string {
	switch i {
	case IntentIdentityVerification:
		return "Customer wants their identity or registered number verified"
	case IntentKYCStatus:
		return "Customer has issues with KYC approval, account verification, or contractor approval"
	case IntentPointRedemption:
		return "Customer cannot redeem points or is facing cash withdrawal issues"
	case IntentQRHistory:
		return "Customer facing QR code scanning issues, already-scanned errors, or invalid barcodes"
	case IntentAccountBlock:
		return "Customer account is blocked or facing login/access problems"
	default:
		return "Customer intent is not clear from the statement"
	}
}
