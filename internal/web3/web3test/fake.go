// Package web3test provides an in-memory web3.Client that answers contract
// calls from registered handlers and records every transaction it is asked
// to send.
package web3test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is a decoded contract call seen by a Handler.
type Call struct {
	From common.Address
	To   common.Address
	Args []any
}

// Handler answers one contract function with its output values in
// declaration order.
type Handler func(c Call) ([]any, error)

// Sent is a transaction the fake accepted.
type Sent struct {
	From     common.Address
	To       common.Address
	Contract string
	Method   string
	Args     []any
	Value    *big.Int
	GasLimit uint64
	Tx       *types.Transaction
}

// Chain is the fake client.
type Chain struct {
	mu        sync.Mutex
	abi       *abiutil.Registry
	contracts map[common.Address][]string
	handlers  map[string]Handler
	balances  map[common.Address]*big.Int
	code      map[common.Address][]byte
	sent      []Sent

	// SendErr makes Transact fail.
	SendErr error
	// ReceiptStatus is returned for every mined tx, successful by default.
	ReceiptStatus uint64
	// OnSend runs after a tx is accepted, letting tests mutate state the
	// way the real contract would.
	OnSend func(s Sent)
}

// New creates an empty fake chain.
func New(registry *abiutil.Registry) *Chain {
	return &Chain{
		abi:           registry,
		contracts:     make(map[common.Address][]string),
		handlers:      make(map[string]Handler),
		balances:      make(map[common.Address]*big.Int),
		code:          make(map[common.Address][]byte),
		ReceiptStatus: types.ReceiptStatusSuccessful,
	}
}

// Deploy registers the ABIs spoken at addr. An address may speak several,
// the first one knowing a selector wins.
func (c *Chain) Deploy(addr common.Address, contracts ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[addr] = append(c.contracts[addr], contracts...)
	c.code[addr] = []byte{0x60, 0x00}
}

// Handle installs the answer for contract.method.
func (c *Chain) Handle(contract, method string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[contract+"."+method] = h
}

// Returns installs a handler returning fixed values.
func (c *Chain) Returns(contract, method string, values ...any) {
	c.Handle(contract, method, func(Call) ([]any, error) { return values, nil })
}

// SetBalance sets the ETH balance of addr.
func (c *Chain) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(wei)
}

// Sent returns the accepted transactions in order.
func (c *Chain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

func (c *Chain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return web3.ChainSnapshot{
		ChainID:     big.NewInt(4),
		BlockNumber: uint64(100 + len(c.sent)),
		GasPrice:    big.NewInt(1_000_000_000),
		Notes:       "fake chain",
	}, nil
}

func (c *Chain) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *Chain) CodeAt(_ context.Context, account common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.code[account]...), nil
}

func (c *Chain) decode(to common.Address, data []byte) (string, string, []any, error) {
	c.mu.Lock()
	contracts := c.contracts[to]
	c.mu.Unlock()
	if len(contracts) == 0 {
		return "", "", nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	var lastErr error
	for _, contract := range contracts {
		method, args, err := c.abi.DecodeCall(contract, data)
		if err == nil {
			return contract, method, args, nil
		}
		lastErr = err
	}
	return "", "", nil, lastErr
}

func (c *Chain) Call(_ context.Context, from, to common.Address, data []byte) ([]byte, error) {
	contract, method, args, err := c.decode(to, data)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	h, ok := c.handlers[contract+"."+method]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s.%s not stubbed", contract, method)
	}
	out, err := h(Call{From: from, To: to, Args: args})
	if err != nil {
		return nil, err
	}
	return c.abi.EncodeOutput(contract, method, out...)
}

func (c *Chain) Transact(_ context.Context, opts *bind.TransactOpts, to common.Address, data []byte) (*types.Transaction, error) {
	if opts == nil {
		return nil, errors.New("missing transact opts")
	}
	if c.SendErr != nil {
		return nil, c.SendErr
	}
	contract, method, args, err := c.decode(to, data)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if opts.Value != nil {
		value.Set(opts.Value)
	}
	c.mu.Lock()
	nonce := uint64(len(c.sent))
	c.mu.Unlock()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      opts.GasLimit,
		GasPrice: opts.GasPrice,
		Data:     data,
	})
	s := Sent{From: opts.From, To: to, Contract: contract, Method: method, Args: args, Value: value, GasLimit: opts.GasLimit, Tx: tx}
	c.mu.Lock()
	c.sent = append(c.sent, s)
	c.mu.Unlock()
	if c.OnSend != nil {
		c.OnSend(s)
	}
	return tx, nil
}

func (c *Chain) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &types.Receipt{
		Status:      c.ReceiptStatus,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(100 + tx.Nonce())),
		GasUsed:     tx.Gas() / 2,
	}, nil
}

func (c *Chain) Close() {}

var _ web3.Client = (*Chain)(nil)
