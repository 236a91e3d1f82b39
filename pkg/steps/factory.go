package steps

import (
	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/resource"
)

// NewStep creates a Step implementation from a StepConfig.
func NewStep(cfg api.StepConfig) (Step, error) {
	switch cfg.Type {
	case api.StepTypeDeploy:
		if cfg.Deploy == nil {
			return nil, resource.Invalidf("step %q: deploy config is required", cfg.Name)
		}
		return NewDeployStep(cfg.Name, cfg.Dependencies(), cfg.Deploy), nil
	case api.StepTypeConfigure:
		if cfg.Configure == nil {
			return nil, resource.Invalidf("step %q: configure config is required", cfg.Name)
		}
		return NewConfigureStep(cfg.Name, cfg.Dependencies(), cfg.Configure)
	case api.StepTypeTransfer:
		if cfg.Transfer == nil {
			return nil, resource.Invalidf("step %q: transfer config is required", cfg.Name)
		}
		return NewTransferStep(cfg.Name, cfg.Dependencies(), cfg.Transfer)
	default:
		return nil, resource.Invalidf("unknown step type: %s", cfg.Type)
	}
}

// NewSteps builds every step of a plan in order.
func NewSteps(cfgs []api.StepConfig) ([]Step, error) {
	out := make([]Step, 0, len(cfgs))
	for _, cfg := range cfgs {
		s, err := NewStep(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
