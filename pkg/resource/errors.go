package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedDependency means a step references a handle that no
	// earlier step produced.
	ErrUnresolvedDependency = errors.New("unresolved dependency")

	// ErrRemoteRejected means the backend refused or failed a call.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrInvalidStepParameters means step arguments failed local validation.
	ErrInvalidStepParameters = errors.New("invalid step parameters")
)

// StepError ties a failure to the step that caused it.
type StepError struct {
	Step     string
	StepKind string
	Kind     error
	Err      error
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	prefix := fmt.Sprintf("step %q", e.Step)
	if e.StepKind != "" {
		prefix = fmt.Sprintf("%s step %q", e.StepKind, e.Step)
	}
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", prefix, e.Kind)
	case e.Kind == nil || errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", prefix, e.Kind, e.Err)
	}
}

func (e *StepError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Rejected wraps a backend failure as ErrRemoteRejected unless it already is.
func Rejected(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteRejected) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrRemoteRejected, op, err)
}

// Invalidf builds an ErrInvalidStepParameters error.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidStepParameters, fmt.Sprintf(format, args...))
}

// Unresolvedf builds an ErrUnresolvedDependency error.
func Unresolvedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnresolvedDependency, fmt.Sprintf(format, args...))
}

// Classify returns the taxonomy sentinel err belongs to, or nil.
func Classify(err error) error {
	for _, kind := range []error{ErrUnresolvedDependency, ErrInvalidStepParameters, ErrRemoteRejected} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
