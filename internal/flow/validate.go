package flow

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/tools"
)

// toolSet is the slice of the tool registry validation needs.
type toolSet interface {
	Known(name tools.Name) bool
}

// ValidationIssue is one problem found in a flow document. A store that
// validates clean is safe for the orchestrator to walk blindly.
type ValidationIssue struct {
	Flow    string `json:"flow"`
	Step    string `json:"step,omitempty"`
	Problem string `json:"problem"`
}

func (v ValidationIssue) String() string {
	if v.Step != "" {
		return fmt.Sprintf("%s/%s: %s", v.Flow, v.Step, v.Problem)
	}
	return fmt.Sprintf("%s: %s", v.Flow, v.Problem)
}

// Validate checks every intent's flow document: field constraints, step
// graph integrity, tool references, and terminal reachability. It returns
// all issues found rather than stopping at the first.
func (s *Store) Validate(reg toolSet) []ValidationIssue {
	var issues []ValidationIssue
	structural := validator.New(validator.WithRequiredStructEnabled())

	for _, intent := range classifier.Intents() {
		name := fileFor(intent)
		f, err := s.Get(intent)
		if err != nil {
			if errors.Is(err, ErrFlowNotFound) {
				issues = append(issues, ValidationIssue{Flow: name, Problem: fmt.Sprintf("no flow document for intent %s", intent)})
			} else {
				issues = append(issues, ValidationIssue{Flow: name, Problem: err.Error()})
			}
			continue
		}

		if err := structural.Struct(f); err != nil {
			issues = append(issues, ValidationIssue{Flow: name, Problem: fmt.Sprintf("structure: %v", err)})
		}
		if f.Intent != string(intent) {
			issues = append(issues, ValidationIssue{Flow: name, Problem: fmt.Sprintf("document declares intent %q, file serves %s", f.Intent, intent)})
		}
		issues = append(issues, validateGraph(name, f, reg)...)
	}
	return issues
}

func validateGraph(name string, f *Flow, reg toolSet) []ValidationIssue {
	var issues []ValidationIssue

	steps := make(map[string]*Step, len(f.Steps))
	for i := range f.Steps {
		step := &f.Steps[i]
		if _, dup := steps[step.ID]; dup {
			issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: "duplicate step id"})
			continue
		}
		steps[step.ID] = step
	}

	if _, ok := steps[f.Entry]; !ok {
		issues = append(issues, ValidationIssue{Flow: name, Problem: fmt.Sprintf("entry step %q does not exist", f.Entry)})
	}

	target := func(stepID, kind, next string) {
		if next == "" {
			return
		}
		if _, ok := steps[next]; !ok {
			issues = append(issues, ValidationIssue{Flow: name, Step: stepID, Problem: fmt.Sprintf("%s targets unknown step %q", kind, next)})
		}
	}

	hasTerminal := false
	for _, step := range f.Steps {
		for _, tool := range step.Tools {
			if !reg.Known(tool) {
				issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: fmt.Sprintf("references unknown tool %q", tool)})
			}
		}
		for _, br := range step.Branches {
			target(step.ID, "branch", br.Next)
		}
		target(step.ID, "next", step.Next)
		target(step.ID, "on_error", step.OnError)

		if step.Await != "" {
			if step.Next == "" {
				issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: "await step must declare next"})
			}
			if step.Terminal {
				issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: "await step cannot be terminal"})
			}
		}

		if step.Terminal {
			hasTerminal = true
			if step.Outcome == "" {
				issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: "terminal step must declare an outcome"})
			}
			if step.Next != "" || len(step.Branches) > 0 {
				issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: "terminal step cannot route onward"})
			}
		} else if step.Outcome != "" {
			issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: "only terminal steps declare an outcome"})
		}
	}
	if !hasTerminal {
		issues = append(issues, ValidationIssue{Flow: name, Problem: "flow has no terminal step"})
	}

	issues = append(issues, validateReachability(name, f, steps)...)
	return issues
}

// validateReachability walks the graph from the entry step and flags steps
// no route can reach, plus entries from which no terminal is reachable.
func validateReachability(name string, f *Flow, steps map[string]*Step) []ValidationIssue {
	var issues []ValidationIssue

	visited := make(map[string]bool, len(steps))
	terminalReachable := false
	var walk func(id string)
	walk = func(id string) {
		step, ok := steps[id]
		if !ok || visited[id] {
			return
		}
		visited[id] = true
		if step.Terminal {
			terminalReachable = true
			return
		}
		for _, br := range step.Branches {
			walk(br.Next)
		}
		walk(step.Next)
		walk(step.OnError)
	}
	walk(f.Entry)

	if !terminalReachable {
		issues = append(issues, ValidationIssue{Flow: name, Problem: "no terminal step reachable from entry"})
	}
	for _, step := range f.Steps {
		if !visited[step.ID] {
			issues = append(issues, ValidationIssue{Flow: name, Step: step.ID, Problem: "step unreachable from entry"})
		}
	}
	return issues
}
