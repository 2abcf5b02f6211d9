// Package policy holds the deterministic thresholds the orchestrator and
// ledger apply: classification confidence gating, the consecutive tool
// failure budget, and complaint resolution timelines.
package policy

// EscalationThreshold is the number of consecutive tool failures within one
// session that forces an unconditional transition to the human-escalation
// terminal step. Protects against retry loops masking a systemic outage.
const EscalationThreshold = 3

// NextFailureStreak advances a session's consecutive-failure counter.
// A successful tool invocation resets the streak.
func NextFailureStreak(streak int, failed bool) int {
	if !failed {
		return 0
	}
	return streak + 1
}

// ShouldEscalate reports whether the failure streak has exhausted the budget.
func ShouldEscalate(streak int) bool {
	return streak >= EscalationThreshold
}

// BelowConfidence reports whether a classification confidence forces the
// UNCLEAR intent.
func BelowConfidence(confidence, minimum float64) bool {
	return confidence < minimum
}

// ResolutionDays maps a record priority to the committed resolution window.
func ResolutionDays(priority string) int {
	if priority == "high" {
		return 3
	}
	return 7
}

// ClampConfidence bounds a confidence score to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0.0 {
		return 0.0
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}
