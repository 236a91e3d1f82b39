package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/resource"
	"github.com/systemstart/many-deploy/pkg/steps"
)

// recordingClient records every call in order and fails calls whose key is
// listed in failOn. Keys are "create:<kind>", "invoke:<method>" and "transfer".
type recordingClient struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	overlap  bool
	failOn   map[string]error
	next     int
}

func newRecordingClient() *recordingClient {
	return &recordingClient{failOn: make(map[string]error)}
}

func (c *recordingClient) enter(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight++
	if c.inFlight > 1 {
		c.overlap = true
	}
	c.calls = append(c.calls, key)
	return c.failOn[key]
}

func (c *recordingClient) leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
}

func (c *recordingClient) Create(_ context.Context, kind string, _ []string) (resource.Handle, error) {
	defer c.leave()
	if err := c.enter("create:" + kind); err != nil {
		return resource.Handle{}, err
	}
	c.mu.Lock()
	c.next++
	addr := fmt.Sprintf("0x%040x", c.next)
	c.mu.Unlock()
	return resource.Handle{Kind: kind, Address: addr}, nil
}

func (c *recordingClient) Invoke(_ context.Context, _ resource.Handle, method string, _ []string, _ resource.CallOptions) error {
	defer c.leave()
	return c.enter("invoke:" + method)
}

func (c *recordingClient) Transfer(_ context.Context, _ resource.Handle, _ string, _ *big.Int) error {
	defer c.leave()
	return c.enter("transfer")
}

func (c *recordingClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

const (
	stepTokenA    = "TokenA"
	stepRouter    = "Router"
	stepArbitral  = "Arbitral"
	stepConfigure = "configure Router.setArbitral"
	stepTransfer  = "transfer TokenA -> Arbitral"
)

// zeronSteps is the Zeron deployment: token, router, arbitral wired
// to both, router pointed at the arbitral, then a quarter of the supply moved.
func zeronSteps() []api.StepConfig {
	return []api.StepConfig{
		{Name: stepTokenA, Type: api.StepTypeDeploy, Deploy: &api.DeployConfig{Contract: "ZeronToken"}},
		{Name: stepRouter, Type: api.StepTypeDeploy, Deploy: &api.DeployConfig{Contract: "ZeronV1Router"}},
		{
			Name:      stepArbitral,
			Type:      api.StepTypeDeploy,
			DependsOn: []string{stepRouter, stepTokenA},
			Deploy: &api.DeployConfig{
				Contract: "ZeronV1Arbitral",
				Args:     []string{`{{ address "Router" }}`, `{{ address "TokenA" }}`},
			},
		},
		{
			Name:      stepConfigure,
			Type:      api.StepTypeConfigure,
			DependsOn: []string{stepArbitral},
			Configure: &api.ConfigureConfig{
				Target:   stepRouter,
				Method:   "setArbitral",
				Args:     []string{`{{ address "Arbitral" }}`},
				GasLimit: 1000000,
			},
		},
		{
			Name:      stepTransfer,
			Type:      api.StepTypeTransfer,
			DependsOn: []string{stepArbitral},
			Transfer: &api.TransferConfig{
				Asset:  stepTokenA,
				To:     `{{ address "Arbitral" }}`,
				Amount: "250000000",
			},
		},
	}
}

func mustSteps(cfgs []api.StepConfig) []steps.Step {
	out, err := steps.NewSteps(cfgs)
	if err != nil {
		panic(err)
	}
	return out
}

// eventLog collects events for assertions.
type eventLog struct {
	events []Event
}

func (l *eventLog) Event(e Event) { l.events = append(l.events, e) }

func (l *eventLog) types() []EventType {
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}
