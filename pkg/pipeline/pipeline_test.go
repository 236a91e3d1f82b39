package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/resource"
	"github.com/systemstart/many-deploy/pkg/steps"
)

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(mustSteps(zeronSteps()), nil)
	require.ErrorIs(t, err, resource.ErrInvalidStepParameters)

	_, err = New(nil, newRecordingClient())
	require.ErrorIs(t, err, resource.ErrInvalidStepParameters)
	assert.Contains(t, err.Error(), "no steps")
}

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()

	p, err := New(mustSteps(zeronSteps()), client)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, res.Completed())
	assert.Empty(t, res.FailedStep)
	assert.NoError(t, res.Err)

	require.Len(t, res.Handles, 3)
	for _, name := range []string{stepTokenA, stepRouter, stepArbitral} {
		h, ok := res.Handle(name)
		require.True(t, ok, "missing handle for %s", name)
		assert.Equal(t, name, h.Step)
		assert.NotEmpty(t, h.Address)
	}
	_, ok := res.Handle(stepConfigure)
	assert.False(t, ok, "configure must not carry a handle")
	_, ok = res.Handle(stepTransfer)
	assert.False(t, ok, "transfer must not carry a handle")

	assert.Equal(t, []string{
		"create:ZeronToken",
		"create:ZeronV1Router",
		"create:ZeronV1Arbitral",
		"invoke:setArbitral",
		"transfer",
	}, client.Calls())

	require.Len(t, res.Outcomes, 5)
	for _, o := range res.Outcomes {
		assert.Equal(t, StepSucceeded, o.Status, o.Name)
	}
	assert.Equal(t, StateCompleted, p.State())
}

func TestRun_ConfigureFails(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()
	client.failOn["invoke:setArbitral"] = errors.New("execution reverted: Ownable: caller is not the owner")

	p, err := New(mustSteps(zeronSteps()), client)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, stepConfigure, res.FailedStep)
	assert.ErrorIs(t, res.Err, resource.ErrRemoteRejected)
	assert.Contains(t, res.Err.Error(), "caller is not the owner")
	assert.Contains(t, res.Err.Error(), `configure step "configure Router.setArbitral"`)

	var stepErr *resource.StepError
	require.ErrorAs(t, res.Err, &stepErr)
	assert.Equal(t, api.StepTypeConfigure, stepErr.StepKind)

	assert.Len(t, res.Handles, 3)
	assert.Contains(t, res.Handles, stepTokenA)
	assert.Contains(t, res.Handles, stepRouter)
	assert.Contains(t, res.Handles, stepArbitral)

	assert.NotContains(t, client.Calls(), "transfer", "transfer must never be attempted")
	assert.Equal(t, StepFailed, res.Outcomes[3].Status)
	assert.Equal(t, StepSkipped, res.Outcomes[4].Status)
}

func TestRun_FailureAtEachStep(t *testing.T) {
	t.Parallel()
	keys := []string{"create:ZeronToken", "create:ZeronV1Router", "create:ZeronV1Arbitral", "invoke:setArbitral", "transfer"}
	cfgs := zeronSteps()

	for i, key := range keys {
		t.Run(cfgs[i].Name, func(t *testing.T) {
			t.Parallel()
			client := newRecordingClient()
			client.failOn[key] = fmt.Errorf("boom at %d", i+1)

			p, err := New(mustSteps(zeronSteps()), client)
			require.NoError(t, err)

			res, err := p.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, StateAborted, res.State)
			assert.Equal(t, cfgs[i].Name, res.FailedStep)
			assert.Len(t, client.Calls(), i+1, "no call after the failing step")

			want := make(map[string]bool)
			for _, c := range cfgs[:i] {
				if c.ProducesHandle() {
					want[c.Name] = true
				}
			}
			assert.Len(t, res.Handles, len(want))
			for name := range res.Handles {
				assert.True(t, want[name], "unexpected handle %s", name)
			}
			for _, o := range res.Outcomes[i+1:] {
				assert.Equal(t, StepSkipped, o.Status)
			}
		})
	}
}

func TestRun_UnresolvedDependency_NoRemoteCalls(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()
	cfgs := zeronSteps()
	cfgs[2].DependsOn = []string{stepRouter, "TokenB"}

	log := &eventLog{}
	p, err := New(mustSteps(cfgs), client, WithObserver(log))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, resource.ErrUnresolvedDependency)
	assert.Contains(t, err.Error(), "TokenB")
	assert.Empty(t, client.Calls())
	assert.Equal(t, StateAborted, p.State())

	require.Len(t, log.events, 1)
	assert.Equal(t, EventRunAborted, log.events[0].Type)
	assert.Equal(t, stepArbitral, log.events[0].Step)
}

func TestRun_DependencyOnLaterStep(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()
	cfgs := zeronSteps()
	// arbitral before the token it references
	cfgs[0], cfgs[2] = cfgs[2], cfgs[0]

	p, err := New(mustSteps(cfgs), client)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, resource.ErrUnresolvedDependency)
	assert.Empty(t, client.Calls())
}

func TestRun_DependencyOnConfigureStep(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()
	cfgs := zeronSteps()
	// configure steps succeed without producing a handle
	cfgs[4].DependsOn = []string{stepArbitral, stepConfigure}

	p, err := New(mustSteps(cfgs), client)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, resource.ErrUnresolvedDependency)
	assert.Contains(t, err.Error(), "does not name an earlier deploy step")
	assert.Empty(t, client.Calls())
}

func TestRun_UndeclaredTemplateReference(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()
	cfgs := zeronSteps()
	cfgs[2].DependsOn = []string{stepRouter}

	p, err := New(mustSteps(cfgs), client)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, resource.ErrUnresolvedDependency)
	assert.Contains(t, err.Error(), stepArbitral)
	assert.Empty(t, client.Calls())
}

func TestRun_DuplicateStepNames(t *testing.T) {
	t.Parallel()
	cfgs := zeronSteps()
	cfgs[1].Name = stepTokenA

	p, err := New(mustSteps(cfgs), newRecordingClient())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, resource.ErrInvalidStepParameters)
}

func TestRun_NotReusable(t *testing.T) {
	t.Parallel()

	p, err := New(mustSteps(zeronSteps()), newRecordingClient())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrPipelineFinished)
}

func TestRun_NotReusableAfterAbort(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()
	client.failOn["create:ZeronToken"] = errors.New("nonce too low")

	p, err := New(mustSteps(zeronSteps()), client)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAborted, res.State)

	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrPipelineFinished)
	assert.Len(t, client.Calls(), 1)
}

func TestRun_StrictlySequential(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()

	var order []string
	observer := ObserverFunc(func(e Event) {
		if e.Type == EventStepStarted || e.Type == EventStepSucceeded {
			order = append(order, fmt.Sprintf("%s:%s", e.Type, e.Step))
		}
	})

	p, err := New(mustSteps(zeronSteps()), client, WithObserver(observer))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, client.overlap, "remote calls overlapped")
	require.Len(t, order, 10)
	for i := 0; i < len(order); i += 2 {
		assert.Equal(t, "step.started", order[i][:len("step.started")])
		assert.Equal(t, "step.succeeded", order[i+1][:len("step.succeeded")])
	}
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()

	p, err := New(mustSteps(zeronSteps()), client)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, stepTokenA, res.FailedStep)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, client.Calls())
}

func TestRun_Events(t *testing.T) {
	t.Parallel()
	log := &eventLog{}

	p, err := New(mustSteps(zeronSteps()[:2]), newRecordingClient(), WithName("zeron"), WithObserver(log))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventStepStarted, EventStepSucceeded,
		EventStepStarted, EventStepSucceeded,
		EventRunCompleted,
	}, log.types())

	deployed := log.events[2]
	assert.Equal(t, "zeron", deployed.Pipeline)
	assert.Equal(t, stepTokenA, deployed.Step)
	assert.Equal(t, 1, deployed.Index)
	assert.Equal(t, 2, deployed.Total)
	assert.NotEmpty(t, deployed.Address)
	assert.False(t, deployed.Timestamp.IsZero())
}

func TestSnapshot_DoesNotMutate(t *testing.T) {
	t.Parallel()
	var p *Pipeline
	var snapshots []Snapshot

	observer := ObserverFunc(func(e Event) {
		if e.Type != EventStepSucceeded {
			return
		}
		s1 := p.Snapshot()
		s2 := p.Snapshot()
		assert.Equal(t, s1, s2)
		// mutating a copy must not leak back
		s1.Handles["bogus"] = resource.Handle{Address: "0xdead"}
		snapshots = append(snapshots, s2)
	})

	var err error
	p, err = New(mustSteps(zeronSteps()), newRecordingClient(), WithObserver(observer))
	require.NoError(t, err)

	before := p.Snapshot()
	assert.Equal(t, StateNotStarted, before.State)
	assert.Empty(t, before.Current)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshots, 5)
	assert.Equal(t, StateRunning, snapshots[0].State)
	assert.Equal(t, stepTokenA, snapshots[0].Current)
	assert.Len(t, snapshots[0].Handles, 1)
	assert.Len(t, snapshots[2].Handles, 3)
	assert.NotContains(t, res.Handles, "bogus")

	after := p.Snapshot()
	assert.Equal(t, StateCompleted, after.State)
	assert.Equal(t, res.Handles, after.Handles)
}

func TestValidate_NoSideEffects(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()

	p, err := New(mustSteps(zeronSteps()), client)
	require.NoError(t, err)

	require.NoError(t, p.Validate())
	require.NoError(t, p.Validate())
	assert.Empty(t, client.Calls())
	assert.Equal(t, StateNotStarted, p.State())
}

func TestRun_TemplateData(t *testing.T) {
	t.Parallel()
	client := newRecordingClient()

	cfgs := []api.StepConfig{
		{Name: stepTokenA, Type: api.StepTypeDeploy, Deploy: &api.DeployConfig{Contract: "ZeronToken"}},
		{Name: "fund treasury", Type: api.StepTypeTransfer, Transfer: &api.TransferConfig{Asset: stepTokenA, To: "{{ .treasury }}", Amount: "1"}},
	}

	p, err := New(mustSteps(cfgs), client, WithTemplateData(map[string]any{"treasury": "0x01"}))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed())
}

func TestRun_StepWithoutHandleResult(t *testing.T) {
	t.Parallel()

	s := nilResultStep{name: "noop"}
	p, err := New([]steps.Step{s}, newRecordingClient())
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed())
	assert.Empty(t, res.Handles)
}

// nilResultStep returns (nil, nil) from Run.
type nilResultStep struct{ name string }

func (s nilResultStep) Name() string                  { return s.name }
func (s nilResultStep) Kind() string                  { return api.StepTypeConfigure }
func (s nilResultStep) Dependencies() []string        { return nil }
func (s nilResultStep) Check(steps.StepContext) error { return nil }
func (s nilResultStep) Run(context.Context, steps.StepContext) (*steps.StepResult, error) {
	return nil, nil
}
