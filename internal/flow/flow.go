// Package flow loads and validates the instruction flow documents that
// script the conversation for each intent. Flows are authored as YAML, one
// document per intent, and are immutable at runtime: the orchestrator walks
// them, it never rewrites them.
package flow

import (
	"github.com/opuscare/sahayak/internal/tools"
)

// Outcome tells the ledger what a terminal step resolves to.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeEnquiry   Outcome = "enquiry"
	OutcomeComplaint Outcome = "complaint"
)

// Flow is one intent's conversation script.
type Flow struct {
	Intent      string `yaml:"intent" validate:"required"`
	Version     int    `yaml:"version" validate:"required,min=1"`
	Description string `yaml:"description"`
	Entry       string `yaml:"entry" validate:"required"`
	Steps       []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Step is one node of the script. A step may invoke tools, speak a prompt,
// or both; branches route on a tool result field, with Next as the default
// route. An Await step pauses the flow until the caller's next utterance,
// which fills the named fact. Terminal steps end the flow and name its
// outcome.
type Step struct {
	ID          string            `yaml:"id" validate:"required"`
	Tools       []tools.Name      `yaml:"tools,omitempty"`
	Params      map[string]string `yaml:"params,omitempty"`
	Prompt      string            `yaml:"prompt,omitempty"`
	Reassurance string            `yaml:"reassurance,omitempty"`
	Await       string            `yaml:"await,omitempty"`
	Branches    []Branch          `yaml:"branches,omitempty" validate:"dive"`
	Next        string            `yaml:"next,omitempty"`
	OnError     string            `yaml:"on_error,omitempty"`
	Terminal    bool              `yaml:"terminal,omitempty"`
	Outcome     Outcome           `yaml:"outcome,omitempty" validate:"omitempty,oneof=none enquiry complaint"`
}

// Branch routes to Next when the named tool's result field equals the
// expected value.
type Branch struct {
	Tool   tools.Name `yaml:"tool" validate:"required"`
	Field  string     `yaml:"field" validate:"required"`
	Equals string     `yaml:"equals"`
	Next   string     `yaml:"next" validate:"required"`
}

// StepByID finds a step in the flow.
func (f *Flow) StepByID(id string) (*Step, bool) {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return &f.Steps[i], true
		}
	}
	return nil, false
}

// EntryStep returns the step the flow starts at.
func (f *Flow) EntryStep() (*Step, bool) {
	return f.StepByID(f.Entry)
}
