package command

import (
	"context"
	"fmt"
	"math/big"

	"gelato-runner/internal/addressbook"
	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato"
	"gelato-runner/internal/gelato/abiutil"

	"github.com/ethereum/go-ethereum/common"
)

// ProxyAlias names the user's predicted proxy in token and spender
// arguments.
const ProxyAlias = "proxy"

func init() {
	register(
		Command{
			Name: "create-user-proxy", Category: CategoryUser, Chain: true, Signers: true,
			Usage: "deploy the user's GelatoUserProxy with CREATE2", Run: createUserProxy,
		},
		Command{
			Name: "setup-user-proxy", Category: CategoryUser, Chain: true, Signers: true,
			Usage: "make the user's proxy its own provider: funds, executor and module", Run: setupUserProxy,
		},
		Command{
			Name: "erc20-approve", Category: CategoryUser, Chain: true, Signers: true,
			Usage:     "approve a spender for an ERC20 amount",
			ArgsUsage: "<token> <spender|proxy> <amount>", MinArgs: 3, MaxArgs: 3, Run: erc20Approve,
		},
		Command{
			Name: "submit-task-uniswap", Category: CategoryUser, Chain: true, Signers: true,
			Usage: "submit the self-provided DAI to WETH uniswap task cycle", Run: submitTaskUniswap,
		},
		Command{
			Name: "submit-task-kyber", Category: CategoryUser, Chain: true, Signers: true,
			Usage: "submit the DAI to KNC kyber task cycle with the external provider", Run: submitTaskKyber,
		},
		Command{
			Name: "withdraw-funds", Category: CategoryUser, Chain: true, Signers: true,
			Usage: "withdraw the proxy's provider funds back to the user", Run: withdrawFunds,
		},
	)
}

func requireProxy(ctx context.Context, env *environment.Env) (common.Address, error) {
	proxy, deployed, err := userProxy(ctx, env)
	if err != nil {
		return common.Address{}, err
	}
	if !deployed {
		return proxy, preconditionHint("run create-user-proxy first", "user proxy %s is not deployed", proxy.Hex())
	}
	return proxy, nil
}

// resolveAccount accepts the proxy alias on top of the address book names.
func resolveAccount(ctx context.Context, env *environment.Env, name string) (common.Address, error) {
	if name == ProxyAlias {
		proxy, _, err := userProxy(ctx, env)
		return proxy, err
	}
	if addr, ok := env.Resolve(name); ok {
		return addr, nil
	}
	return common.Address{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("无法解析地址 %s", name))
}

func createUserProxy(ctx context.Context, env *environment.Env, _ []string) error {
	proxy, deployed, err := userProxy(ctx, env)
	if err != nil {
		return err
	}
	if deployed {
		return skip(ctx, env, "create-user-proxy", "user proxy already deployed at %s", proxy.Hex())
	}
	factory, err := deployment(env, abiutil.GelatoUserProxyFactory)
	if err != nil {
		return err
	}
	if _, err := send(ctx, env, txRequest{
		command: "create-user-proxy", signer: env.User,
		contract: abiutil.GelatoUserProxyFactory, to: factory, method: "createTwo",
		args: []any{new(big.Int).SetUint64(env.Demo.Create2Salt)},
	}); err != nil {
		return err
	}
	env.Out.KV("user proxy", proxy.Hex())
	return nil
}

// setupUserProxy routes a multiProvide through the proxy so the proxy
// becomes a self-provider.
func setupUserProxy(ctx context.Context, env *environment.Env, _ []string) error {
	proxy, err := requireProxy(ctx, env)
	if err != nil {
		return err
	}
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	module, err := deployment(env, ProviderModuleGelatoUserProxy)
	if err != nil {
		return err
	}
	st, err := readProviderState(ctx, env, proxy, module)
	if err != nil {
		return err
	}
	if st.funds.Sign() > 0 && st.executor != (common.Address{}) && st.moduleProvided {
		return skip(ctx, env, "setup-user-proxy", "proxy already funded with %s ETH, executor %s, module provided",
			abiutil.FormatUnits(st.funds, 18), env.Book.Label(st.executor))
	}

	value := new(big.Int)
	if st.funds.Sign() == 0 {
		if value, err = abiutil.Ether(env.Demo.UserFundsEth); err != nil {
			return err
		}
		balance, err := env.Client.BalanceAt(ctx, env.User.Address())
		if err != nil {
			return xerrors.Wrap(CodeChainReadFailure, err, "读取用户余额失败")
		}
		if balance.Cmp(value) < 0 {
			return precondition("user wallet holds %s ETH, needs %s", abiutil.FormatUnits(balance, 18), abiutil.FormatUnits(value, 18))
		}
	}
	var executor common.Address
	if st.executor == (common.Address{}) {
		if executor, err = env.Book.Executor(addressbook.DefaultExecutor); err != nil {
			return err
		}
	}
	modules := []common.Address{}
	if !st.moduleProvided {
		modules = append(modules, module)
	}
	payload, err := env.ABI.EncodeCall(abiutil.GelatoCore, "multiProvide", executor, []abiutil.TaskSpec{}, modules)
	if err != nil {
		return err
	}
	action, err := gelato.NewAction(core, payload, gelato.OperationCall, gelato.WithValue(value))
	if err != nil {
		return err
	}
	_, err = send(ctx, env, txRequest{
		command: "setup-user-proxy", signer: env.User,
		contract: abiutil.GelatoUserProxy, to: proxy, method: "execAction",
		args: []any{abiutil.WireAction(action)}, value: value, gasLimit: 500_000,
	})
	return err
}

func tokenDecimals(ctx context.Context, env *environment.Env, token common.Address) (int, error) {
	decimals, err := read[uint8](ctx, env, abiutil.IERC20, token, "decimals")
	if err != nil {
		return 0, err
	}
	return int(decimals), nil
}

func erc20Approve(ctx context.Context, env *environment.Env, args []string) error {
	token, err := resolveAccount(ctx, env, args[0])
	if err != nil {
		return err
	}
	spender, err := resolveAccount(ctx, env, args[1])
	if err != nil {
		return err
	}
	decimals, err := tokenDecimals(ctx, env, token)
	if err != nil {
		return err
	}
	amount, err := abiutil.ParseUnits(args[2], decimals)
	if err != nil {
		return err
	}
	allowance, err := read[*big.Int](ctx, env, abiutil.IERC20, token, "allowance", env.User.Address(), spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return skip(ctx, env, "erc20-approve", "%s allowance for %s already %s",
			env.Book.Label(token), spender.Hex(), abiutil.FormatUnits(allowance, decimals))
	}
	_, err = send(ctx, env, txRequest{
		command: "erc20-approve", signer: env.User,
		contract: abiutil.IERC20, to: token, method: "approve",
		args: []any{spender, amount},
	})
	return err
}

// requireProviderReady checks what GelatoCore checks on submission, so a
// doomed task cycle is never sent. A non-zero executor must be the one
// assigned; a zero executor accepts any assignment.
func requireProviderReady(ctx context.Context, env *environment.Env, provider, module, executor common.Address) error {
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	price, err := gelatoGasPrice(ctx, env)
	if err != nil {
		return err
	}
	liquid, err := read[bool](ctx, env, abiutil.GelatoCore, core, "isProviderLiquid", provider, executionGas(env), price)
	if err != nil {
		return err
	}
	if !liquid {
		return precondition("provider %s is not liquid for %s gas at %s wei", env.Book.Label(provider), executionGas(env), price)
	}
	st, err := readProviderState(ctx, env, provider, module)
	if err != nil {
		return err
	}
	if st.executor == (common.Address{}) {
		return precondition("provider %s has no executor assigned", env.Book.Label(provider))
	}
	if executor != (common.Address{}) && st.executor != executor {
		return precondition("provider %s is served by executor %s, expected %s",
			env.Book.Label(provider), env.Book.Label(st.executor), env.Book.Label(executor))
	}
	if !st.moduleProvided {
		return precondition("provider %s does not provide module %s", env.Book.Label(provider), env.Book.Label(module))
	}
	return nil
}

// requireDAI checks the user's DAI balance and the proxy allowance for
// every cycle of the task.
func requireDAI(ctx context.Context, env *environment.Env, proxy common.Address) error {
	dai, err := env.Book.Token("DAI")
	if err != nil {
		return err
	}
	need, err := daiTotal(env)
	if err != nil {
		return err
	}
	user := env.User.Address()
	balance, err := read[*big.Int](ctx, env, abiutil.IERC20, dai, "balanceOf", user)
	if err != nil {
		return err
	}
	if balance.Cmp(need) < 0 {
		return preconditionHint("run faucet-dai first", "user holds %s DAI, the task needs %s",
			abiutil.FormatUnits(balance, 18), abiutil.FormatUnits(need, 18))
	}
	allowance, err := read[*big.Int](ctx, env, abiutil.IERC20, dai, "allowance", user, proxy)
	if err != nil {
		return err
	}
	if allowance.Cmp(need) < 0 {
		return preconditionHint("run erc20-approve DAI proxy "+abiutil.FormatUnits(need, 18),
			"proxy allowance is %s DAI, the task needs %s", abiutil.FormatUnits(allowance, 18), abiutil.FormatUnits(need, 18))
	}
	return nil
}

func submitTaskUniswap(ctx context.Context, env *environment.Env, _ []string) error {
	proxy, err := requireProxy(ctx, env)
	if err != nil {
		return err
	}
	module, err := deployment(env, ProviderModuleGelatoUserProxy)
	if err != nil {
		return err
	}
	executor, err := env.Book.Executor(addressbook.DefaultExecutor)
	if err != nil {
		return err
	}
	if err := requireProviderReady(ctx, env, proxy, module, executor); err != nil {
		return err
	}
	if err := requireDAI(ctx, env, proxy); err != nil {
		return err
	}
	task, err := uniswapTask(ctx, env, proxy)
	if err != nil {
		return err
	}
	provider, err := gelato.NewProvider(proxy, module)
	if err != nil {
		return err
	}
	cycle, err := gelato.NewTaskCycle(provider, []gelato.Task{task}, expiry(env), env.Demo.NumTrades)
	if err != nil {
		return err
	}
	_, err = send(ctx, env, txRequest{
		command: "submit-task-uniswap", signer: env.User,
		contract: abiutil.GelatoUserProxy, to: proxy, method: "submitTaskCycle",
		args: taskCycleArgs(cycle), gasLimit: 1_000_000,
	})
	return err
}

// submitTaskKyber submits through the proxy when it exists, otherwise the
// factory deploys the proxy and submits in the same transaction. Both
// paths first arm the time condition with setRefTime.
func submitTaskKyber(ctx context.Context, env *environment.Env, _ []string) error {
	proxy, deployed, err := userProxy(ctx, env)
	if err != nil {
		return err
	}
	module, err := deployment(env, ProviderModuleGelatoUserProxy)
	if err != nil {
		return err
	}
	providerAddr := env.Provider.Address()
	if err := requireProviderReady(ctx, env, providerAddr, module, common.Address{}); err != nil {
		return err
	}
	spec, err := kyberSpec(env, new(big.Int))
	if err != nil {
		return err
	}
	provided, err := specProvided(ctx, env, providerAddr, spec)
	if err != nil {
		return err
	}
	if !provided {
		return preconditionHint("the provider must run provide-task-spec",
			"provider %s has not whitelisted task spec %s", providerAddr.Hex(), spec.Hash().Hex())
	}
	if err := requireDAI(ctx, env, proxy); err != nil {
		return err
	}

	task, err := kyberTask(ctx, env, proxy)
	if err != nil {
		return err
	}
	provider, err := gelato.NewProvider(providerAddr, module)
	if err != nil {
		return err
	}
	cycle, err := gelato.NewTaskCycle(provider, []gelato.Task{task}, expiry(env), env.Demo.NumTrades)
	if err != nil {
		return err
	}
	timeCond, err := deployment(env, abiutil.ConditionTimeStateful)
	if err != nil {
		return err
	}
	armData, err := setRefTimeData(env)
	if err != nil {
		return err
	}
	arm, err := gelato.NewAction(timeCond, armData, gelato.OperationCall)
	if err != nil {
		return err
	}
	execActions := abiutil.WireActions([]gelato.Action{arm})

	req := txRequest{command: "submit-task-kyber", signer: env.User, gasLimit: 4_000_000}
	if deployed {
		req.contract, req.to, req.method = abiutil.GelatoUserProxy, proxy, "execActionsAndSubmitTaskCycle"
		req.args = append([]any{execActions}, taskCycleArgs(cycle)...)
	} else {
		factory, err := deployment(env, abiutil.GelatoUserProxyFactory)
		if err != nil {
			return err
		}
		env.Out.Info("proxy %s not deployed yet, creating it in the same transaction", proxy.Hex())
		req.contract, req.to, req.method = abiutil.GelatoUserProxyFactory, factory, "createTwoExecActionsSubmitTaskCycle"
		req.args = append([]any{new(big.Int).SetUint64(env.Demo.Create2Salt), execActions}, taskCycleArgs(cycle)...)
	}
	_, err = send(ctx, env, req)
	return err
}

// withdrawFunds pulls the proxy's provider funds out of GelatoCore and
// forwards them to the user in one multiExecActions call.
func withdrawFunds(ctx context.Context, env *environment.Env, _ []string) error {
	proxy, err := requireProxy(ctx, env)
	if err != nil {
		return err
	}
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	transfer, err := deployment(env, abiutil.ActionTransfer)
	if err != nil {
		return err
	}
	funds, err := read[*big.Int](ctx, env, abiutil.GelatoCore, core, "providerFunds", proxy)
	if err != nil {
		return err
	}
	if funds.Sign() == 0 {
		return skip(ctx, env, "withdraw-funds", "proxy has no funds left on GelatoCore")
	}
	unprovide, err := env.ABI.EncodeCall(abiutil.GelatoCore, "unprovideFunds", funds)
	if err != nil {
		return err
	}
	forward, err := env.ABI.EncodeCall(abiutil.ActionTransfer, "action", ETHAddress, funds, env.User.Address())
	if err != nil {
		return err
	}
	first, err := gelato.NewAction(core, unprovide, gelato.OperationCall)
	if err != nil {
		return err
	}
	second, err := gelato.NewAction(transfer, forward, gelato.OperationDelegatecall)
	if err != nil {
		return err
	}
	_, err = send(ctx, env, txRequest{
		command: "withdraw-funds", signer: env.User,
		contract: abiutil.GelatoUserProxy, to: proxy, method: "multiExecActions",
		args: []any{abiutil.WireActions([]gelato.Action{first, second})},
	})
	if err == nil {
		env.Out.KV("withdrawn", abiutil.FormatUnits(funds, 18)+" ETH")
	}
	return err
}
