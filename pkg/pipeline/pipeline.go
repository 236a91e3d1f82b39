package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/resource"
	"github.com/systemstart/many-deploy/pkg/steps"
)

// placeholderAddress stands in for handles during up-front validation.
const placeholderAddress = "0x0000000000000000000000000000000000000000"

var (
	ErrPipelineRunning  = errors.New("pipeline is already running")
	ErrPipelineFinished = errors.New("pipeline has already finished")
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithName labels events and metrics.
func WithName(name string) Option {
	return func(p *Pipeline) { p.name = name }
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithTemplateData sets the data step argument templates render against.
func WithTemplateData(data map[string]any) Option {
	return func(p *Pipeline) { p.data = data }
}

// Pipeline executes steps in order. The zero value is not usable; use New.
type Pipeline struct {
	name      string
	steps     []steps.Step
	client    resource.Client
	observers Observers
	data      map[string]any

	mu       sync.Mutex
	claimed  bool
	state    State
	handles  map[string]resource.Handle
	outcomes []StepOutcome
	current  int
}

// New creates a pipeline. The step list is copied and never modified.
func New(stepList []steps.Step, client resource.Client, opts ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, resource.Invalidf("nil resource client")
	}
	if len(stepList) == 0 {
		return nil, resource.Invalidf("pipeline has no steps")
	}
	for i, s := range stepList {
		if s == nil {
			return nil, resource.Invalidf("step %d is nil", i)
		}
	}

	p := &Pipeline{
		name:     "default",
		steps:    append([]steps.Step(nil), stepList...),
		client:   client,
		state:    StateNotStarted,
		handles:  make(map[string]resource.Handle),
		outcomes: make([]StepOutcome, len(stepList)),
		current:  -1,
	}
	for i, s := range p.steps {
		p.outcomes[i] = StepOutcome{Name: s.Name(), Kind: s.Kind(), Status: StepPending}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the pipeline label.
func (p *Pipeline) Name() string { return p.name }

// Validate checks the whole sequence without contacting the backend: names
// are unique, every dependency names an earlier deploy step and every
// argument template resolves against the declared dependencies.
func (p *Pipeline) Validate() error {
	seen := make(map[string]bool, len(p.steps))
	producers := make(map[string]bool, len(p.steps))

	for _, s := range p.steps {
		if seen[s.Name()] {
			return p.stepError(s, resource.Invalidf("duplicate step name %q", s.Name()))
		}

		placeholders := make(map[string]resource.Handle, len(s.Dependencies()))
		for _, dep := range s.Dependencies() {
			if !producers[dep] {
				return p.stepError(s, resource.Unresolvedf("%q does not name an earlier deploy step", dep))
			}
			placeholders[dep] = resource.Handle{Step: dep, Address: placeholderAddress}
		}

		if err := s.Check(steps.StepContext{Handles: placeholders, TemplateData: p.data}); err != nil {
			return p.stepError(s, err)
		}

		seen[s.Name()] = true
		if s.Kind() == api.StepTypeDeploy {
			producers[s.Name()] = true
		}
	}
	return nil
}

func (p *Pipeline) stepError(s steps.Step, err error) error {
	var se *resource.StepError
	if errors.As(err, &se) && se.Step == s.Name() {
		return err
	}
	return &resource.StepError{Step: s.Name(), StepKind: s.Kind(), Kind: resource.Classify(err), Err: err}
}

// Run executes the pipeline once. A non-nil error means nothing was
// executed: the pipeline was reused or failed up-front validation. Failures
// during execution are reported through Result with State StateAborted.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}

	started := time.Now()
	total := len(p.steps)

	if err := p.Validate(); err != nil {
		p.setState(StateAborted)
		p.emit(Event{Type: EventRunAborted, Step: failedStepName(err), Err: err, Total: total})
		return nil, err
	}

	p.setState(StateRunning)
	p.emit(Event{Type: EventRunStarted, Total: total})

	for i, s := range p.steps {
		if err := p.runStep(ctx, i, s); err != nil {
			p.skipRemaining(i + 1)
			p.setState(StateAborted)
			p.emit(Event{Type: EventRunAborted, Step: s.Name(), Kind: s.Kind(), Index: i + 1, Total: total, Err: err, Duration: time.Since(started)})
			return p.result(started, s.Name(), err), nil
		}
	}

	p.setState(StateCompleted)
	p.emit(Event{Type: EventRunCompleted, Total: total, Duration: time.Since(started)})
	return p.result(started, "", nil), nil
}

func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.IsTerminal() {
		return ErrPipelineFinished
	}
	if p.claimed {
		return ErrPipelineRunning
	}
	p.claimed = true
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, i int, s steps.Step) error {
	total := len(p.steps)
	stepStart := time.Now()

	p.mu.Lock()
	p.current = i
	p.mu.Unlock()

	fail := func(err error) error {
		err = p.stepError(s, err)
		d := time.Since(stepStart)
		p.recordOutcome(i, StepFailed, nil, err, d)
		p.emit(Event{Type: EventStepFailed, Step: s.Name(), Kind: s.Kind(), Index: i + 1, Total: total, Err: err, Duration: d})
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("not started: %w", err))
	}

	deps, err := p.resolve(s)
	if err != nil {
		return fail(err)
	}

	p.emit(Event{Type: EventStepStarted, Step: s.Name(), Kind: s.Kind(), Index: i + 1, Total: total})

	res, err := s.Run(ctx, steps.StepContext{Client: p.client, Handles: deps, TemplateData: p.data})
	if err != nil {
		return fail(err)
	}

	var handle *resource.Handle
	if res != nil && res.Handle != nil {
		h := *res.Handle
		handle = &h
	}

	d := time.Since(stepStart)
	p.recordOutcome(i, StepSucceeded, handle, nil, d)

	ev := Event{Type: EventStepSucceeded, Step: s.Name(), Kind: s.Kind(), Index: i + 1, Total: total, Duration: d}
	if handle != nil {
		ev.Address = handle.Address
	}
	p.emit(ev)
	return nil
}

// resolve collects the recorded handles a step depends on.
func (p *Pipeline) resolve(s steps.Step) (map[string]resource.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	deps := make(map[string]resource.Handle, len(s.Dependencies()))
	for _, dep := range s.Dependencies() {
		h, ok := p.handles[dep]
		if !ok {
			return nil, resource.Unresolvedf("no handle recorded for %q", dep)
		}
		deps[dep] = h
	}
	return deps, nil
}

func (p *Pipeline) recordOutcome(i int, status StepStatus, h *resource.Handle, err error, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := &p.outcomes[i]
	o.Status = status
	o.Err = err
	o.Duration = d
	if h != nil {
		o.Handle = h
		p.handles[o.Name] = *h
	}
}

func (p *Pipeline) skipRemaining(from int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := from; i < len(p.outcomes); i++ {
		p.outcomes[i].Status = StepSkipped
	}
}

func (p *Pipeline) setState(to State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := checkTransition(p.state, to); err != nil {
		panic(err) // only reachable through a bug in Run
	}
	p.state = to
}

func (p *Pipeline) result(started time.Time, failed string, err error) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	return &Result{
		State:      p.state,
		Handles:    copyHandles(p.handles),
		FailedStep: failed,
		Err:        err,
		Outcomes:   copyOutcomes(p.outcomes),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}

func (p *Pipeline) emit(e Event) {
	if len(p.observers) == 0 {
		return
	}
	e.Pipeline = p.name
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	p.observers.Event(e)
}

func failedStepName(err error) string {
	var se *resource.StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// Snapshot is a point-in-time copy of a pipeline's progress.
type Snapshot struct {
	State    State
	Current  string // step being executed or last executed, "" before the first
	Handles  map[string]resource.Handle
	Outcomes []StepOutcome
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot returns a copy of the current progress. It never changes the
// pipeline and is safe to call from observers and other goroutines.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		State:    p.state,
		Handles:  copyHandles(p.handles),
		Outcomes: copyOutcomes(p.outcomes),
	}
	if p.current >= 0 {
		s.Current = p.steps[p.current].Name()
	}
	return s
}
