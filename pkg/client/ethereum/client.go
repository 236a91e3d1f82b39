// Package ethereum implements resource.Client against an EVM JSON-RPC node.
// Contracts are deployed from compiled artifacts and every transaction is
// waited on until its receipt is available; a reverted receipt is a
// rejection.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/systemstart/many-deploy/pkg/resource"
)

// DefaultConfirmTimeout bounds how long a transaction may take to be mined.
const DefaultConfirmTimeout = 2 * time.Minute

// erc20ABI covers the single token method transfers need.
const erc20ABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable",
"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
"outputs":[{"name":"","type":"bool"}]}]`

// Backend is what the client needs from a node connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Client signs and sends transactions with a single key.
type Client struct {
	backend        Backend
	closer         func()
	key            *ecdsa.PrivateKey
	chainID        *big.Int
	artifacts      *Artifacts
	erc20          abi.ABI
	confirmTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithConfirmTimeout bounds the wait for each transaction receipt.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.confirmTimeout = d
		}
	}
}

// Dial connects to rpcURL and asks the node for its chain ID.
func Dial(ctx context.Context, rpcURL, hexKey string, artifacts *Artifacts, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", rpcURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}

	c, err := New(ec, hexKey, chainID, artifacts, opts...)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// New builds a client on an existing backend.
func New(backend Backend, hexKey string, chainID *big.Int, artifacts *Artifacts, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("nil backend")
	}
	if artifacts == nil {
		return nil, errors.New("nil artifacts")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing token abi: %w", err)
	}

	c := &Client{
		backend:        backend,
		key:            key,
		chainID:        new(big.Int).Set(chainID),
		artifacts:      artifacts,
		erc20:          erc20,
		confirmTimeout: DefaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Signer returns the address transactions are sent from.
func (c *Client) Signer() string {
	return crypto.PubkeyToAddress(c.key.PublicKey).Hex()
}

// ChainID returns the chain the client signs for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the node connection if the client opened it.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) transactOpts(ctx context.Context, call resource.CallOptions) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = call.GasLimit
	if call.Value != nil {
		opts.Value = new(big.Int).Set(call.Value)
	}
	return opts, nil
}

func (c *Client) Create(ctx context.Context, kind string, args []string) (resource.Handle, error) {
	art, err := c.artifacts.Load(kind)
	if err != nil {
		return resource.Handle{}, err
	}
	if len(art.Bytecode) == 0 {
		return resource.Handle{}, resource.Invalidf("contract %q has no bytecode", kind)
	}

	params, err := convertArgs(art.ABI.Constructor.Inputs, args)
	if err != nil {
		return resource.Handle{}, fmt.Errorf("constructor of %s: %w", kind, err)
	}

	opts, err := c.transactOpts(ctx, resource.CallOptions{})
	if err != nil {
		return resource.Handle{}, err
	}

	addr, tx, _, err := bind.DeployContract(opts, art.ABI, art.Bytecode, c.backend, params...)
	if err != nil {
		return resource.Handle{}, resource.Rejected("deploy "+kind, err)
	}
	slog.Debug("deployment sent", "contract", kind, "tx", tx.Hash().Hex(), "address", addr.Hex())

	wctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	if _, err := bind.WaitDeployed(wctx, c.backend, tx); err != nil {
		return resource.Handle{}, resource.Rejected("deploy "+kind, err)
	}
	return resource.Handle{Kind: kind, Address: addr.Hex()}, nil
}

func (c *Client) Invoke(ctx context.Context, target resource.Handle, method string, args []string, call resource.CallOptions) error {
	if !common.IsHexAddress(target.Address) {
		return resource.Invalidf("malformed target address %q", target.Address)
	}
	art, err := c.artifacts.Load(target.Kind)
	if err != nil {
		return err
	}
	m, ok := art.ABI.Methods[method]
	if !ok {
		return resource.Invalidf("contract %q has no method %q", target.Kind, method)
	}
	params, err := convertArgs(m.Inputs, args)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", target.Kind, method, err)
	}

	return c.transact(ctx, art.ABI, common.HexToAddress(target.Address), method, call, params...)
}

func (c *Client) Transfer(ctx context.Context, asset resource.Handle, recipient string, amount *big.Int) error {
	if !common.IsHexAddress(asset.Address) {
		return resource.Invalidf("malformed asset address %q", asset.Address)
	}
	if !common.IsHexAddress(recipient) {
		return resource.Invalidf("malformed recipient address %q", recipient)
	}
	if amount == nil || amount.Sign() < 0 {
		return resource.Invalidf("transfer amount must be a non-negative integer")
	}

	return c.transact(ctx, c.erc20, common.HexToAddress(asset.Address), "transfer", resource.CallOptions{},
		common.HexToAddress(recipient), new(big.Int).Set(amount))
}

func (c *Client) transact(ctx context.Context, contractABI abi.ABI, addr common.Address, method string, call resource.CallOptions, params ...any) error {
	opts, err := c.transactOpts(ctx, call)
	if err != nil {
		return err
	}

	bound := bind.NewBoundContract(addr, contractABI, c.backend, c.backend, c.backend)
	tx, err := bound.Transact(opts, method, params...)
	if err != nil {
		return resource.Rejected(method, err)
	}
	slog.Debug("transaction sent", "method", method, "to", addr.Hex(), "tx", tx.Hash().Hex())

	wctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(wctx, c.backend, tx)
	if err != nil {
		return resource.Rejected(method, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err))
	}
	return checkReceipt(method, receipt)
}

func checkReceipt(op string, r *types.Receipt) error {
	if r.Status == types.ReceiptStatusFailed {
		return resource.Rejected(op, fmt.Errorf("transaction %s reverted in block %s", r.TxHash.Hex(), r.BlockNumber))
	}
	return nil
}

var _ resource.Client = (*Client)(nil)
