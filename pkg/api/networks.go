package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NetworksConfig is the networks.yaml format: named RPC targets with their
// own context overrides.
type NetworksConfig struct {
	Networks []Network `yaml:"networks"`
}

// Network describes one deployment target.
type Network struct {
	Name    string         `yaml:"name"`
	RPCURL  string         `yaml:"rpcUrl"`
	ChainID uint64         `yaml:"chainId"`
	Context map[string]any `yaml:"context"`
}

// LoadNetworks reads a networks YAML file, unmarshals it, and validates.
func LoadNetworks(filename string) (*NetworksConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading networks file: %w", err)
	}

	var cfg NetworksConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing networks file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating networks file: %w", err)
	}

	return &cfg, nil
}

// Validate checks the networks configuration for errors.
func (c *NetworksConfig) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("networks list is empty")
	}

	names := make(map[string]bool)

	for i, n := range c.Networks {
		if n.Name == "" {
			return fmt.Errorf("network %d: name is required", i)
		}
		if n.RPCURL == "" {
			return fmt.Errorf("network %q: rpcUrl is required", n.Name)
		}
		if names[n.Name] {
			return fmt.Errorf("network %q: duplicate name", n.Name)
		}
		names[n.Name] = true
	}

	return nil
}

// Lookup returns the network with the given name.
func (c *NetworksConfig) Lookup(name string) (Network, error) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("network %q not defined", name)
}
