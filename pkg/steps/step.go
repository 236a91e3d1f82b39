package steps

import (
	"context"
	"errors"

	"github.com/systemstart/many-deploy/pkg/resource"
)

var errEmptyAddress = errors.New("backend returned an empty address")

// StepContext provides the runtime context for a step.
type StepContext struct {
	Client       resource.Client
	Handles      map[string]resource.Handle // resolved dependencies only
	TemplateData map[string]any
}

// StepResult holds the output of a step.
type StepResult struct {
	Handle *resource.Handle // set by deploy steps only
}

// Step is the interface all pipeline steps implement.
type Step interface {
	Name() string
	Kind() string
	Dependencies() []string

	// Check renders the step's arguments against sctx without contacting
	// the backend.
	Check(sctx StepContext) error

	// Run performs exactly one backend call.
	Run(ctx context.Context, sctx StepContext) (*StepResult, error)
}

// remoteError keeps classified errors as they are and marks everything
// else as a backend rejection.
func remoteError(op string, err error) error {
	if resource.Classify(err) != nil {
		return err
	}
	return resource.Rejected(op, err)
}
