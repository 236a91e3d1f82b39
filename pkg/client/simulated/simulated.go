// Package simulated provides an in-memory resource.Client. Addresses are
// derived the way a chain derives them, from the signer and its nonce, so
// a dry run predicts the addresses a real run on a fresh account produces.
package simulated

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/systemstart/many-deploy/pkg/resource"
)

// DefaultSigner is the first account of a local development node.
const DefaultSigner = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// Operation names used in call records and fault keys.
const (
	OpCreate   = "create"
	OpInvoke   = "invoke"
	OpTransfer = "transfer"
)

// Call is one recorded client call.
type Call struct {
	Op        string
	Kind      string // contract kind created or targeted
	Address   string // created or targeted address
	Method    string
	Args      []string
	Recipient string
	Amount    *big.Int
	GasLimit  uint64
}

type contract struct {
	kind     string
	balances map[common.Address]*big.Int // nil unless the kind is a token
}

// Client is a deterministic in-memory backend. It is safe for concurrent use.
type Client struct {
	mu        sync.Mutex
	signer    common.Address
	nonce     uint64
	tokens    map[string]*big.Int
	contracts map[common.Address]*contract
	faults    map[string]error
	calls     []Call
}

// Option configures a Client.
type Option func(*Client)

// WithSigner sets the account that creates resources and holds minted supply.
func WithSigner(addr string) Option {
	return func(c *Client) { c.signer = common.HexToAddress(addr) }
}

// WithNonce sets the signer's starting nonce.
func WithNonce(n uint64) Option {
	return func(c *Client) { c.nonce = n }
}

// WithToken marks kind as a token; each created instance mints supply (in
// base units) to the signer.
func WithToken(kind string, supply *big.Int) Option {
	return func(c *Client) { c.tokens[kind] = new(big.Int).Set(supply) }
}

// New returns a client with no contracts.
func New(opts ...Option) *Client {
	c := &Client{
		signer:    common.HexToAddress(DefaultSigner),
		tokens:    make(map[string]*big.Int),
		contracts: make(map[common.Address]*contract),
		faults:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FailOn makes every later call matching key fail with err, classified as
// resource.ErrRemoteRejected unless err already carries a class. Keys are
// "create:<kind>", "invoke:<method>" and "transfer:<asset kind>".
func (c *Client) FailOn(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[key] = err
}

// Signer returns the signing account address.
func (c *Client) Signer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signer.Hex()
}

// Nonce returns the signer's next nonce.
func (c *Client) Nonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce
}

// Calls returns a copy of the successful call log.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Call, len(c.calls))
	for i, call := range c.calls {
		call.Args = slices.Clone(call.Args)
		if call.Amount != nil {
			call.Amount = new(big.Int).Set(call.Amount)
		}
		out[i] = call
	}
	return out
}

func (c *Client) fault(op, key string) error {
	err, ok := c.faults[op+":"+key]
	if !ok {
		return nil
	}
	if resource.Classify(err) != nil {
		return err
	}
	return resource.Rejected(op+" "+key, err)
}

func (c *Client) Create(ctx context.Context, kind string, args []string) (resource.Handle, error) {
	if err := ctx.Err(); err != nil {
		return resource.Handle{}, err
	}
	if kind == "" {
		return resource.Handle{}, resource.Invalidf("empty resource kind")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fault(OpCreate, kind); err != nil {
		return resource.Handle{}, err
	}

	addr := crypto.CreateAddress(c.signer, c.nonce)
	c.nonce++

	ct := &contract{kind: kind}
	if supply, ok := c.tokens[kind]; ok {
		ct.balances = map[common.Address]*big.Int{c.signer: new(big.Int).Set(supply)}
	}
	c.contracts[addr] = ct

	c.calls = append(c.calls, Call{Op: OpCreate, Kind: kind, Address: addr.Hex(), Args: slices.Clone(args)})
	return resource.Handle{Kind: kind, Address: addr.Hex()}, nil
}

func (c *Client) Invoke(ctx context.Context, target resource.Handle, method string, args []string, opts resource.CallOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if method == "" {
		return resource.Invalidf("empty method name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ct, addr, err := c.lookup(target)
	if err != nil {
		return err
	}
	if err := c.fault(OpInvoke, method); err != nil {
		return err
	}

	c.nonce++
	c.calls = append(c.calls, Call{
		Op:       OpInvoke,
		Kind:     ct.kind,
		Address:  addr.Hex(),
		Method:   method,
		Args:     slices.Clone(args),
		GasLimit: opts.GasLimit,
	})
	return nil
}

func (c *Client) Transfer(ctx context.Context, asset resource.Handle, recipient string, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return resource.Invalidf("transfer amount must be a non-negative integer")
	}
	if !common.IsHexAddress(recipient) {
		return resource.Invalidf("malformed recipient address %q", recipient)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ct, addr, err := c.lookup(asset)
	if err != nil {
		return err
	}
	if err := c.fault(OpTransfer, ct.kind); err != nil {
		return err
	}
	if ct.balances == nil {
		return resource.Rejected("transfer", fmt.Errorf("%s at %s is not a token", ct.kind, addr.Hex()))
	}

	from := ct.balances[c.signer]
	if from == nil || from.Cmp(amount) < 0 {
		return resource.Rejected("transfer", fmt.Errorf("transfer amount exceeds balance"))
	}

	to := common.HexToAddress(recipient)
	from.Sub(from, amount)
	if ct.balances[to] == nil {
		ct.balances[to] = new(big.Int)
	}
	ct.balances[to].Add(ct.balances[to], amount)

	c.nonce++
	c.calls = append(c.calls, Call{
		Op:        OpTransfer,
		Kind:      ct.kind,
		Address:   addr.Hex(),
		Recipient: to.Hex(),
		Amount:    new(big.Int).Set(amount),
	})
	return nil
}

// BalanceOf returns holder's balance of the token behind asset.
func (c *Client) BalanceOf(asset resource.Handle, holder string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ct, addr, err := c.lookup(asset)
	if err != nil {
		return nil, err
	}
	if ct.balances == nil {
		return nil, fmt.Errorf("%s at %s is not a token", ct.kind, addr.Hex())
	}
	if b := ct.balances[common.HexToAddress(holder)]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *Client) lookup(h resource.Handle) (*contract, common.Address, error) {
	if !common.IsHexAddress(h.Address) {
		return nil, common.Address{}, resource.Invalidf("malformed handle address %q", h.Address)
	}
	addr := common.HexToAddress(h.Address)
	ct, ok := c.contracts[addr]
	if !ok {
		return nil, addr, resource.Rejected("lookup", fmt.Errorf("no contract at %s", addr.Hex()))
	}
	return ct, addr, nil
}

var _ resource.Client = (*Client)(nil)
