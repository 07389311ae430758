package command

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/journal"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func init() {
	register(
		Command{
			Name: "erc20-balance", Category: CategoryRead, Chain: true,
			Usage:     "print an ERC20 balance, the user's by default",
			ArgsUsage: "<token> [account]", MinArgs: 1, MaxArgs: 2, Run: erc20Balance,
		},
		Command{
			Name: "erc20-allowance", Category: CategoryRead, Chain: true,
			Usage:     "print an ERC20 allowance, the user's by default",
			ArgsUsage: "<token> <spender|proxy> [owner]", MinArgs: 2, MaxArgs: 3, Run: erc20Allowance,
		},
		Command{
			Name: "gas-price", Category: CategoryRead, Chain: true,
			Usage: "print the Gelato oracle gas price and the node's suggestion", Run: gasPrice,
		},
		Command{
			Name: "network-info", Category: CategoryRead, Chain: true,
			Usage: "print the chain head and the network's address book", Run: networkInfo,
		},
		Command{
			Name: "abi-encode", Category: CategoryTools,
			Usage:     "encode a contract call",
			ArgsUsage: "<contract> <function> [args...]", MinArgs: 2, MaxArgs: -1, Run: abiEncode,
		},
		Command{
			Name: "abi-decode", Category: CategoryTools,
			Usage:     "decode calldata, searching every known contract when none is named",
			ArgsUsage: "[contract] <hex>", MinArgs: 1, MaxArgs: 2, Run: abiDecode,
		},
		Command{
			Name: "journal", Category: CategoryTools,
			Usage:     "list journaled transactions, newest first",
			ArgsUsage: "[limit] [status...]", MaxArgs: -1, Run: listJournal,
		},
	)
}

// account resolves an optional account argument, defaulting to the user.
func account(ctx context.Context, env *environment.Env, args []string, i int) (common.Address, error) {
	if name := arg(args, i, ""); name != "" {
		return resolveAccount(ctx, env, name)
	}
	if err := env.RequireSigners(); err != nil {
		return common.Address{}, err
	}
	return env.User.Address(), nil
}

func erc20Balance(ctx context.Context, env *environment.Env, args []string) error {
	token, err := resolveAccount(ctx, env, args[0])
	if err != nil {
		return err
	}
	owner, err := account(ctx, env, args, 1)
	if err != nil {
		return err
	}
	decimals, err := tokenDecimals(ctx, env, token)
	if err != nil {
		return err
	}
	balance, err := read[*big.Int](ctx, env, abiutil.IERC20, token, "balanceOf", owner)
	if err != nil {
		return err
	}
	env.Out.KV(env.Book.Label(token)+" balance of "+owner.Hex(), abiutil.FormatUnits(balance, decimals))
	return nil
}

func erc20Allowance(ctx context.Context, env *environment.Env, args []string) error {
	token, err := resolveAccount(ctx, env, args[0])
	if err != nil {
		return err
	}
	if args[1] == ProxyAlias || len(args) < 3 {
		if err := env.RequireSigners(); err != nil {
			return err
		}
	}
	spender, err := resolveAccount(ctx, env, args[1])
	if err != nil {
		return err
	}
	owner, err := account(ctx, env, args, 2)
	if err != nil {
		return err
	}
	decimals, err := tokenDecimals(ctx, env, token)
	if err != nil {
		return err
	}
	allowance, err := read[*big.Int](ctx, env, abiutil.IERC20, token, "allowance", owner, spender)
	if err != nil {
		return err
	}
	env.Out.KV(env.Book.Label(token)+" allowance", fmt.Sprintf("%s (owner %s, spender %s)",
		abiutil.FormatUnits(allowance, decimals), owner.Hex(), spender.Hex()))
	return nil
}

func gasPrice(ctx context.Context, env *environment.Env, _ []string) error {
	price, err := gelatoGasPrice(ctx, env)
	if err != nil {
		return err
	}
	env.Out.KV("gelato gas price", abiutil.FormatUnits(price, 9)+" gwei")
	snapshot, err := env.Client.FetchChainSnapshot(ctx)
	if err != nil {
		return xerrors.Wrap(CodeChainReadFailure, err, "读取链状态失败")
	}
	if snapshot.GasPrice != nil {
		env.Out.KV("node gas price", abiutil.FormatUnits(snapshot.GasPrice, 9)+" gwei")
	}
	return nil
}

func networkInfo(ctx context.Context, env *environment.Env, _ []string) error {
	snapshot, err := env.Client.FetchChainSnapshot(ctx)
	if err != nil {
		return xerrors.Wrap(CodeChainReadFailure, err, "读取链状态失败")
	}
	env.Out.Title("%s", env.Network)
	env.Out.KV("chain id", snapshot.ChainID)
	env.Out.KV("block", snapshot.BlockNumber)
	if env.User != nil {
		env.Out.KV("user", env.User.Address().Hex())
		env.Out.KV("provider", env.Provider.Address().Hex())
	}
	entries := env.Book.Entries()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Group, e.Name, e.Address.Hex()})
	}
	env.Out.Table([]string{"GROUP", "NAME", "ADDRESS"}, rows)
	return nil
}

func abiEncode(_ context.Context, env *environment.Env, args []string) error {
	contract, function := args[0], args[1]
	var resolve abiutil.AddressResolver
	if env.Book != nil {
		resolve = env.Resolve
	}
	values, err := env.ABI.ParseArgs(contract, function, args[2:], resolve)
	if err != nil {
		return err
	}
	data, err := env.ABI.EncodeCall(contract, function, values...)
	if err != nil {
		return err
	}
	env.Out.KV("selector", hexutil.Encode(data[:4]))
	env.Out.KV("calldata", hexutil.Encode(data))
	return nil
}

func abiDecode(_ context.Context, env *environment.Env, args []string) error {
	raw := args[len(args)-1]
	data, err := hexutil.Decode(raw)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("不是合法的十六进制数据: %q", raw))
	}
	contract := ""
	if len(args) == 2 {
		contract = args[0]
	} else {
		name, _, ok := env.ABI.Find(data)
		if !ok {
			return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("没有合约定义选择器 %x", data[:min(4, len(data))]))
		}
		contract = name
	}
	method, values, err := env.ABI.DecodeCall(contract, data)
	if err != nil {
		return err
	}
	env.Out.KV("function", contract+"."+method)
	for i, v := range values {
		env.Out.KV(fmt.Sprintf("arg %d", i), abiutil.FormatValue(v))
	}
	return nil
}

func listJournal(ctx context.Context, env *environment.Env, args []string) error {
	if env.Journal == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "交易流水未启用")
	}
	opts := []journal.ListOption{journal.WithNetwork(env.Network)}
	rest := args
	if len(rest) > 0 {
		if limit, err := strconv.Atoi(rest[0]); err == nil {
			opts = append(opts, journal.WithLimit(limit))
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		statuses := make([]journal.Status, 0, len(rest))
		for _, s := range rest {
			status := journal.Status(strings.ToLower(s))
			if !journal.IsValidStatus(status) {
				return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的流水状态 %q", s))
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, journal.WithStatuses(statuses...))
	}
	records, err := env.Journal.List(ctx, journal.BuildListOptions(opts...))
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			time.Unix(r.UpdatedAt, 0).Format(time.DateTime),
			r.Command,
			string(r.Status),
			r.Method,
			r.TxHash,
			r.ErrorCode,
		})
	}
	env.Out.Table([]string{"UPDATED", "COMMAND", "STATUS", "METHOD", "TX", "ERROR"}, rows)
	return nil
}
