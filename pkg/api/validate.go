package api

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/systemstart/many-deploy/pkg/resource"
	"github.com/systemstart/many-deploy/pkg/units"
)

var validStepTypes = map[string]bool{
	StepTypeDeploy:    true,
	StepTypeConfigure: true,
	StepTypeTransfer:  true,
}

// Validate checks the plan for errors without contacting any backend.
// Reference errors wrap resource.ErrUnresolvedDependency, everything else
// wraps resource.ErrInvalidStepParameters.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return resource.Invalidf("plan has no steps")
	}

	names := make(map[string]int)
	producers := make(map[string]bool)

	for i, step := range p.Steps {
		if step.Name == "" {
			return resource.Invalidf("step %d: name is required", i)
		}
		if prev, exists := names[step.Name]; exists {
			return stepError(step, resource.Invalidf("duplicate step name %q (first defined at step %d)", step.Name, prev))
		}

		if !validStepTypes[step.Type] {
			return stepError(step, resource.Invalidf("unknown type %q (valid: %s)", step.Type, validTypeList()))
		}

		if err := validateStepConfig(step); err != nil {
			return stepError(step, err)
		}

		if err := validateDependencies(step, names, producers); err != nil {
			return stepError(step, err)
		}

		names[step.Name] = i
		if step.ProducesHandle() {
			producers[step.Name] = true
		}
	}

	return nil
}

func stepError(step StepConfig, err error) error {
	kind := resource.Classify(err)
	if kind == nil {
		kind = resource.ErrInvalidStepParameters
	}
	return &resource.StepError{Step: step.Name, StepKind: step.Type, Kind: kind, Err: err}
}

func validTypeList() string {
	valid := make([]string, 0, len(validStepTypes))
	for k := range validStepTypes {
		valid = append(valid, k)
	}
	slices.Sort(valid)
	return strings.Join(valid, ", ")
}

func validateDependencies(step StepConfig, earlier map[string]int, producers map[string]bool) error {
	for _, dep := range step.Dependencies() {
		if dep == step.Name {
			return resource.Unresolvedf("step depends on itself")
		}
		if _, ok := earlier[dep]; !ok {
			return resource.Unresolvedf("%q does not reference an earlier step", dep)
		}
		if !producers[dep] {
			return resource.Unresolvedf("%q is not a deploy step and produces no handle", dep)
		}
	}
	return nil
}

func validateStepConfig(step StepConfig) error {
	if err := checkSingleConfig(step); err != nil {
		return err
	}

	switch step.Type {
	case StepTypeDeploy:
		return validateDeployConfig(step)
	case StepTypeConfigure:
		return validateConfigureConfig(step)
	case StepTypeTransfer:
		return validateTransferConfig(step)
	}
	return nil
}

func checkSingleConfig(step StepConfig) error {
	var set []string
	if step.Deploy != nil {
		set = append(set, StepTypeDeploy)
	}
	if step.Configure != nil {
		set = append(set, StepTypeConfigure)
	}
	if step.Transfer != nil {
		set = append(set, StepTypeTransfer)
	}
	for _, s := range set {
		if s != step.Type {
			return resource.Invalidf("%s config is not allowed on a %s step", s, step.Type)
		}
	}
	return nil
}

func validateDeployConfig(step StepConfig) error {
	if step.Deploy == nil {
		return resource.Invalidf("deploy config is required")
	}
	if step.Deploy.Contract == "" {
		return resource.Invalidf("deploy.contract is required")
	}
	return nil
}

func validateConfigureConfig(step StepConfig) error {
	if step.Configure == nil {
		return resource.Invalidf("configure config is required")
	}
	if step.Configure.Target == "" {
		return resource.Invalidf("configure.target is required")
	}
	if step.Configure.Method == "" {
		return resource.Invalidf("configure.method is required")
	}
	if _, err := ParseValue(step.Configure.Value); err != nil {
		return err
	}
	return nil
}

func validateTransferConfig(step StepConfig) error {
	if step.Transfer == nil {
		return resource.Invalidf("transfer config is required")
	}
	if step.Transfer.Asset == "" {
		return resource.Invalidf("transfer.asset is required")
	}
	if step.Transfer.To == "" {
		return resource.Invalidf("transfer.to is required")
	}
	if step.Transfer.Amount == "" {
		return resource.Invalidf("transfer.amount is required")
	}
	if _, err := step.Transfer.BaseAmount(); err != nil {
		return err
	}
	return nil
}

// BaseAmount converts Amount into smallest units.
func (c *TransferConfig) BaseAmount() (*big.Int, error) {
	amount, err := units.ParseUnits(c.Amount, c.ScaleDecimals())
	if err != nil {
		return nil, resource.Invalidf("transfer.amount: %v", err)
	}
	return amount, nil
}

// ParseValue parses an optional wei value. Empty means nil.
func ParseValue(v string) (*big.Int, error) {
	if v == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, resource.Invalidf("value %q is not a non-negative integer", v)
	}
	return n, nil
}

// Describe returns a short human label for a step, e.g. "configure ZeronV1Router.setArbitral".
func (s StepConfig) Describe() string {
	switch {
	case s.Deploy != nil:
		return fmt.Sprintf("deploy %s", s.Deploy.Contract)
	case s.Configure != nil:
		return fmt.Sprintf("configure %s.%s", s.Configure.Target, s.Configure.Method)
	case s.Transfer != nil:
		return fmt.Sprintf("transfer %s %s -> %s", s.Transfer.Amount, s.Transfer.Asset, s.Transfer.To)
	default:
		return s.Type
	}
}
