package steps

import (
	"context"
	"fmt"
	"math/big"

	"github.com/systemstart/many-deploy/pkg/resource"
)

type call struct {
	op     string
	target string
	method string
	args   []string
	opts   resource.CallOptions
	amount *big.Int
}

// fakeClient records calls and hands out sequential addresses.
type fakeClient struct {
	calls []call
	err   error
	next  int
}

func (c *fakeClient) Create(_ context.Context, kind string, args []string) (resource.Handle, error) {
	c.calls = append(c.calls, call{op: "create", method: kind, args: args})
	if c.err != nil {
		return resource.Handle{}, c.err
	}
	c.next++
	return resource.Handle{Address: fmt.Sprintf("0x%040x", c.next)}, nil
}

func (c *fakeClient) Invoke(_ context.Context, target resource.Handle, method string, args []string, opts resource.CallOptions) error {
	c.calls = append(c.calls, call{op: "invoke", target: target.Address, method: method, args: args, opts: opts})
	return c.err
}

func (c *fakeClient) Transfer(_ context.Context, asset resource.Handle, recipient string, amount *big.Int) error {
	c.calls = append(c.calls, call{op: "transfer", target: asset.Address, args: []string{recipient}, amount: amount})
	return c.err
}

func handles(names ...string) map[string]resource.Handle {
	m := make(map[string]resource.Handle, len(names))
	for i, n := range names {
		m[n] = resource.Handle{Step: n, Kind: n, Address: fmt.Sprintf("0x%040x", 0xa0+i)}
	}
	return m
}
