package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	ChainID     *big.Int
	BlockNumber uint64
	GasPrice    *big.Int
	Notes       string
}

// Client defines what the commands need from a chain: state reads, calls,
// signed submission and confirmation waiting. Every method blocks until the
// node answers or ctx is done.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	// Call executes a read-only message call against the latest block.
	Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error)
	// Transact signs data with opts and broadcasts it to to. opts.Value,
	// opts.GasLimit, opts.GasPrice and opts.Nonce are honoured when set.
	Transact(ctx context.Context, opts *bind.TransactOpts, to common.Address, data []byte) (*types.Transaction, error)
	// WaitMined blocks until tx has a receipt.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Close()
}
