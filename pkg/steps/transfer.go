package steps

import (
	"context"
	"log/slog"
	"math/big"
	"slices"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/resource"
	"github.com/systemstart/many-deploy/pkg/units"
)

type transferStep struct {
	name   string
	deps   []string
	cfg    *api.TransferConfig
	amount *big.Int
}

// NewTransferStep creates a transfer step. The amount is scaled to smallest
// units here; the pipeline passes it through untouched.
func NewTransferStep(name string, deps []string, cfg *api.TransferConfig) (Step, error) {
	amount, err := cfg.BaseAmount()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(deps, cfg.Asset) {
		deps = append([]string{cfg.Asset}, deps...)
	}
	return &transferStep{name: name, deps: deps, cfg: cfg, amount: amount}, nil
}

func (s *transferStep) Name() string           { return s.name }
func (s *transferStep) Kind() string           { return api.StepTypeTransfer }
func (s *transferStep) Dependencies() []string { return s.deps }

func (s *transferStep) Check(sctx StepContext) error {
	_, _, err := s.prepare(sctx)
	return err
}

func (s *transferStep) prepare(sctx StepContext) (resource.Handle, string, error) {
	r := newRenderer(s.name, sctx)
	asset, err := r.lookup(s.cfg.Asset)
	if err != nil {
		return resource.Handle{}, "", err
	}
	to, err := r.render("to", s.cfg.To)
	if err != nil {
		return resource.Handle{}, "", err
	}
	if to == "" {
		return resource.Handle{}, "", resource.Invalidf("transfer.to rendered to an empty recipient")
	}
	return asset, to, nil
}

func (s *transferStep) Run(ctx context.Context, sctx StepContext) (*StepResult, error) {
	asset, to, err := s.prepare(sctx)
	if err != nil {
		return nil, err
	}

	slog.Debug("transferring", "step", s.name, "asset", asset.String(), "to", to,
		"amount", units.FormatUnits(s.amount, s.cfg.ScaleDecimals()))

	if err := sctx.Client.Transfer(ctx, asset, to, new(big.Int).Set(s.amount)); err != nil {
		return nil, remoteError("transfer", err)
	}
	return &StepResult{}, nil
}
