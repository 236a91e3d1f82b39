package api

const (
	DefaultPlanPattern = "**/*.deploy.yaml"

	StepTypeDeploy    = "deploy"
	StepTypeConfigure = "configure"
	StepTypeTransfer  = "transfer"

	DefaultDecimals int32 = 18
)

// Plan is the .deploy.yaml configuration format.
type Plan struct {
	Context map[string]any `yaml:"context"`
	Steps   []StepConfig   `yaml:"steps"`

	// Set by the loader, not from YAML.
	Dir      string `yaml:"-"`
	FilePath string `yaml:"-"`
}

// StepConfig defines a single step within a plan.
type StepConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// DependsOn names the steps whose handles this step uses. Each must be
	// an earlier deploy step: configure and transfer steps produce no
	// handle, so depending on one fails with ErrUnresolvedDependency.
	DependsOn []string         `yaml:"dependsOn,omitempty"`
	Deploy    *DeployConfig    `yaml:"deploy,omitempty"`
	Configure *ConfigureConfig `yaml:"configure,omitempty"`
	Transfer  *TransferConfig  `yaml:"transfer,omitempty"`
}

// DeployConfig configures the deploy step.
type DeployConfig struct {
	Contract string   `yaml:"contract"`
	Args     []string `yaml:"args"`
}

// ConfigureConfig configures the configure step. Target names an earlier
// deploy step.
type ConfigureConfig struct {
	Target   string   `yaml:"target"`
	Method   string   `yaml:"method"`
	Args     []string `yaml:"args"`
	GasLimit uint64   `yaml:"gasLimit"`
	Value    string   `yaml:"value,omitempty"` // wei, decimal string
}

// TransferConfig configures the transfer step. Asset names an earlier deploy
// step; To is a template usually resolving to another step's address.
type TransferConfig struct {
	Asset    string `yaml:"asset"`
	To       string `yaml:"to"`
	Amount   string `yaml:"amount"`
	Decimals *int32 `yaml:"decimals,omitempty"` // default 18
}

// ScaleDecimals returns the configured decimals or DefaultDecimals.
func (c *TransferConfig) ScaleDecimals() int32 {
	if c.Decimals == nil {
		return DefaultDecimals
	}
	return *c.Decimals
}

// Dependencies returns the step names this step needs handles for, in
// declaration order without duplicates. Target and asset come first.
func (s StepConfig) Dependencies() []string {
	var deps []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		deps = append(deps, name)
	}

	switch {
	case s.Configure != nil:
		add(s.Configure.Target)
	case s.Transfer != nil:
		add(s.Transfer.Asset)
	}
	for _, d := range s.DependsOn {
		add(d)
	}
	return deps
}

// ProducesHandle reports whether the step yields a resource handle.
func (s StepConfig) ProducesHandle() bool {
	return s.Type == StepTypeDeploy
}
