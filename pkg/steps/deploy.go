package steps

import (
	"context"
	"log/slog"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/resource"
)

type deployStep struct {
	name string
	deps []string
	cfg  *api.DeployConfig
}

// NewDeployStep creates a deploy step.
func NewDeployStep(name string, deps []string, cfg *api.DeployConfig) Step {
	return &deployStep{name: name, deps: deps, cfg: cfg}
}

func (s *deployStep) Name() string           { return s.name }
func (s *deployStep) Kind() string           { return api.StepTypeDeploy }
func (s *deployStep) Dependencies() []string { return s.deps }

func (s *deployStep) Check(sctx StepContext) error {
	_, err := newRenderer(s.name, sctx).renderAll("args", s.cfg.Args)
	return err
}

func (s *deployStep) Run(ctx context.Context, sctx StepContext) (*StepResult, error) {
	args, err := newRenderer(s.name, sctx).renderAll("args", s.cfg.Args)
	if err != nil {
		return nil, err
	}

	slog.Debug("deploying contract", "step", s.name, "contract", s.cfg.Contract, "args", args)

	h, err := sctx.Client.Create(ctx, s.cfg.Contract, args)
	if err != nil {
		return nil, remoteError("create "+s.cfg.Contract, err)
	}
	if h.IsZero() {
		return nil, resource.Rejected("create "+s.cfg.Contract, errEmptyAddress)
	}

	h.Step = s.name
	if h.Kind == "" {
		h.Kind = s.cfg.Contract
	}
	return &StepResult{Handle: &h}, nil
}
