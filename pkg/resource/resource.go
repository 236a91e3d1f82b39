// Package resource defines the narrow capability the provisioning pipeline
// consumes: creating remote resources, invoking methods on them and moving
// value between them.
package resource

import (
	"context"
	"math/big"
)

// Handle identifies a resource created by a deploy step.
type Handle struct {
	Step    string `json:"step" yaml:"step"`
	Kind    string `json:"kind" yaml:"kind"`
	Address string `json:"address" yaml:"address"`
}

// IsZero reports whether the handle was never set.
func (h Handle) IsZero() bool { return h.Address == "" }

func (h Handle) String() string {
	if h.Step == "" {
		return h.Address
	}
	return h.Step + "@" + h.Address
}

// CallOptions tune a single invocation.
type CallOptions struct {
	GasLimit uint64
	Value    *big.Int
}

// Client is implemented by every resource backend. All operations are
// fail-stop: a returned error means the step failed. Implementations own
// timeouts and finality checks.
type Client interface {
	Create(ctx context.Context, kind string, args []string) (Handle, error)
	Invoke(ctx context.Context, target Handle, method string, args []string, opts CallOptions) error
	Transfer(ctx context.Context, asset Handle, recipient string, amount *big.Int) error
}
