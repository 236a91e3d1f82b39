package steps

import (
	"context"
	"log/slog"
	"math/big"
	"slices"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/resource"
)

type configureStep struct {
	name  string
	deps  []string
	cfg   *api.ConfigureConfig
	value *big.Int
}

// NewConfigureStep creates a configure step. The target is always a
// dependency.
func NewConfigureStep(name string, deps []string, cfg *api.ConfigureConfig) (Step, error) {
	value, err := api.ParseValue(cfg.Value)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(deps, cfg.Target) {
		deps = append([]string{cfg.Target}, deps...)
	}
	return &configureStep{name: name, deps: deps, cfg: cfg, value: value}, nil
}

func (s *configureStep) Name() string           { return s.name }
func (s *configureStep) Kind() string           { return api.StepTypeConfigure }
func (s *configureStep) Dependencies() []string { return s.deps }

func (s *configureStep) Check(sctx StepContext) error {
	_, _, err := s.prepare(sctx)
	return err
}

func (s *configureStep) prepare(sctx StepContext) (resource.Handle, []string, error) {
	r := newRenderer(s.name, sctx)
	target, err := r.lookup(s.cfg.Target)
	if err != nil {
		return resource.Handle{}, nil, err
	}
	args, err := r.renderAll("args", s.cfg.Args)
	if err != nil {
		return resource.Handle{}, nil, err
	}
	return target, args, nil
}

func (s *configureStep) Run(ctx context.Context, sctx StepContext) (*StepResult, error) {
	target, args, err := s.prepare(sctx)
	if err != nil {
		return nil, err
	}

	opts := resource.CallOptions{GasLimit: s.cfg.GasLimit, Value: s.value}

	slog.Debug("invoking method", "step", s.name, "target", target.String(), "method", s.cfg.Method, "args", args, "gasLimit", opts.GasLimit)

	if err := sctx.Client.Invoke(ctx, target, s.cfg.Method, args, opts); err != nil {
		return nil, remoteError("invoke "+s.cfg.Method, err)
	}
	return &StepResult{}, nil
}
