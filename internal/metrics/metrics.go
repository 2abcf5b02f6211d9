// Package metrics exposes the service's Prometheus counters. Everything is
// registered on the default registry and served from the ops API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts caller utterances processed.
	TurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sahayak_turns_total",
		Help: "Caller utterances processed.",
	})

	// RepliesTotal counts consolidated replies published. One per turn.
	RepliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sahayak_replies_total",
		Help: "Consolidated replies published.",
	})

	// ClassificationsTotal counts classifier outcomes by resolved intent.
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sahayak_classifications_total",
		Help: "Utterance classifications by resolved intent.",
	}, []string{"intent"})

	// ToolErrorsTotal counts genuine tool failures by tool name. The
	// not-found variant does not count.
	ToolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sahayak_tool_errors_total",
		Help: "Tool invocations that returned the error variant.",
	}, []string{"tool"})

	// EscalationsTotal counts sessions routed to the human-escalation step.
	EscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sahayak_escalations_total",
		Help: "Sessions escalated to a human after consecutive tool failures.",
	})

	// ClarificationsTotal counts clarification prompts issued for unclear
	// utterances.
	ClarificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sahayak_clarifications_total",
		Help: "Clarification prompts issued.",
	})

	// RecordsTotal counts ledger records written, by record type.
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sahayak_records_total",
		Help: "Complaint and enquiry records written.",
	}, []string{"type"})

	// RecordFailuresTotal counts sessions whose record could not be written
	// after all retries.
	RecordFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sahayak_record_failures_total",
		Help: "Sessions whose ledger record failed after all retries.",
	})
)
