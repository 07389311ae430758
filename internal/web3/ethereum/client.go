package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"gelato-runner/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name         string
	RPCURL       string
	ChainID      uint64
	Notes        string
	PollInterval time.Duration
}

// Backend is the subset of node methods the client relies on. Both
// *ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	backend   Backend
	poll      time.Duration
	commit    func()
	mu        sync.Mutex
}

// Option customises a Client built on an existing backend.
type Option func(*Client)

// WithPollInterval sets how often WaitMined asks for the receipt.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithCommit registers a hook run after every broadcast. The simulated
// backend uses it to seal a block.
func WithCommit(commit func()) Option {
	return func(c *Client) {
		c.commit = commit
	}
}

// WithNotes attaches free-form notes reported by FetchChainSnapshot.
func WithNotes(notes string) Option {
	return func(c *Client) {
		c.notes = notes
	}
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use
// client. When cfg.ChainID is set the node must report the same id.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	if cfg.ChainID != 0 {
		id, err := eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
		if id.Uint64() != cfg.ChainID {
			rpcClient.Close()
			return nil, fmt.Errorf("节点链 ID %s 与网络 %s 配置的 %d 不一致", id, cfg.Name, cfg.ChainID)
		}
	}

	client := NewBackendClient(cfg.Name, eth, WithPollInterval(cfg.PollInterval), WithNotes(cfg.Notes))
	client.rpcClient = rpcClient
	return client, nil
}

// NewBackendClient wraps an existing backend, for example a go-ethereum
// simulated backend in tests.
func NewBackendClient(name string, backend Backend, opts ...Option) *Client {
	c := &Client{name: name, backend: backend, poll: 2 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Name returns the network name the client was created for.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.backend = nil
}

func (c *Client) node() (Backend, error) {
	if c == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil, errors.New("客户端缺少链访问后端")
	}
	return c.backend, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	backend, err := c.node()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取建议 gas 价格失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     chainID,
		BlockNumber: blockNumber,
		GasPrice:    gasPrice,
		Notes:       c.notes,
	}, nil
}

// BalanceAt returns the latest wei balance of account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, err := c.node()
	if err != nil {
		return nil, err
	}
	balance, err := backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// CodeAt returns the deployed bytecode at account, empty for EOAs.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	backend, err := c.node()
	if err != nil {
		return nil, err
	}
	code, err := backend.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询合约代码失败: %w", err)
	}
	return code, nil
}

// Call runs a read-only message call.
func (c *Client) Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	backend, err := c.node()
	if err != nil {
		return nil, err
	}
	out, err := backend.CallContract(ctx, gethcore.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用合约 %s 失败: %w", to.Hex(), err)
	}
	return out, nil
}

// Transact builds a legacy transaction, signs it with opts.Signer and
// broadcasts it. Missing nonce, gas price and gas limit are filled from the
// node.
func (c *Client) Transact(ctx context.Context, opts *bind.TransactOpts, to common.Address, data []byte) (*coretypes.Transaction, error) {
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("未提供交易签名器")
	}
	backend, err := c.node()
	if err != nil {
		return nil, err
	}

	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	var nonce uint64
	if opts.Nonce != nil {
		nonce = opts.Nonce.Uint64()
	} else if nonce, err = backend.PendingNonceAt(ctx, opts.From); err != nil {
		return nil, fmt.Errorf("查询交易计数失败: %w", err)
	}

	gasPrice := opts.GasPrice
	if gasPrice == nil {
		if gasPrice, err = backend.SuggestGasPrice(ctx); err != nil {
			return nil, fmt.Errorf("获取建议 gas 价格失败: %w", err)
		}
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		msg := gethcore.CallMsg{From: opts.From, To: &to, GasPrice: gasPrice, Value: value, Data: data}
		if gasLimit, err = backend.EstimateGas(ctx, msg); err != nil {
			return nil, fmt.Errorf("估算 gas 失败: %w", err)
		}
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("发送交易失败: %w", err)
	}
	if c.commit != nil {
		c.commit()
	}
	return signed, nil
}

// WaitMined polls for the receipt of tx until it is available or ctx ends.
func (c *Client) WaitMined(ctx context.Context, tx *coretypes.Transaction) (*coretypes.Receipt, error) {
	if tx == nil {
		return nil, errors.New("交易为空")
	}
	backend, err := c.node()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(ctx, tx.Hash())
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待交易 %s 上链被中断: %w", tx.Hash().Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
