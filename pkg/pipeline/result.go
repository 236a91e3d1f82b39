package pipeline

import (
	"maps"
	"time"

	"github.com/systemstart/many-deploy/pkg/resource"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepOutcome records what happened to one step.
type StepOutcome struct {
	Name     string
	Kind     string
	Status   StepStatus
	Handle   *resource.Handle
	Err      error
	Duration time.Duration
}

// Result is the terminal report of a run. State is StateCompleted or
// StateAborted. On abort FailedStep and Err describe the failure and
// Handles holds only what earlier steps produced.
type Result struct {
	State      State
	Handles    map[string]resource.Handle
	FailedStep string
	Err        error
	Outcomes   []StepOutcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Completed reports whether every step succeeded.
func (r *Result) Completed() bool {
	return r != nil && r.State == StateCompleted
}

// Handle returns the handle recorded for step.
func (r *Result) Handle(step string) (resource.Handle, bool) {
	h, ok := r.Handles[step]
	return h, ok
}

func copyHandles(m map[string]resource.Handle) map[string]resource.Handle {
	out := make(map[string]resource.Handle, len(m))
	maps.Copy(out, m)
	return out
}

func copyOutcomes(in []StepOutcome) []StepOutcome {
	out := make([]StepOutcome, len(in))
	for i, o := range in {
		if o.Handle != nil {
			h := *o.Handle
			o.Handle = &h
		}
		out[i] = o
	}
	return out
}
