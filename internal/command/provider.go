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

func init() {
	register(
		Command{
			Name: "provide-funds", Category: CategoryProvider, Chain: true, Signers: true,
			Usage:     "top up the provider's ETH balance on GelatoCore",
			ArgsUsage: "[eth]", MaxArgs: 1, Run: provideFunds,
		},
		Command{
			Name: "assign-executor", Category: CategoryProvider, Chain: true, Signers: true,
			Usage:     "assign an executor to the provider",
			ArgsUsage: "[executor]", MaxArgs: 1, Run: assignExecutor,
		},
		Command{
			Name: "unassign-executor", Category: CategoryProvider, Chain: true, Signers: true,
			Usage: "remove the provider's executor", Run: unassignExecutor,
		},
		Command{
			Name: "provide-task-spec", Category: CategoryProvider, Chain: true, Signers: true,
			Usage:     "whitelist the kyber task spec for the provider",
			ArgsUsage: "[gas-price-ceil-gwei]", MaxArgs: 1, Run: provideTaskSpec,
		},
		Command{
			Name: "add-provider-module", Category: CategoryProvider, Chain: true, Signers: true,
			Usage:     "add a provider module",
			ArgsUsage: "[module]", MaxArgs: 1, Run: addProviderModule,
		},
		Command{
			Name: "batch-provide", Category: CategoryProvider, Chain: true, Signers: true,
			Usage: "provide funds, executor, task spec and module in one transaction", Run: batchProvide,
		},
		Command{
			Name: "multi-unprovide", Category: CategoryProvider, Chain: true, Signers: true,
			Usage: "withdraw funds, task spec and module in one transaction", Run: multiUnprovide,
		},
		Command{
			Name: "deploy-fee-handler", Category: CategoryProvider, Chain: true, Signers: true,
			Usage:     "deploy an ActionFeeHandler taking percent of each trade",
			ArgsUsage: "<percent>", MinArgs: 1, MaxArgs: 1, Run: deployFeeHandler,
		},
		Command{
			Name: "whitelist-fee-token", Category: CategoryProvider, Chain: true, Signers: true,
			Usage:     "whitelist a token the provider's fee handlers accept",
			ArgsUsage: "<token>", MinArgs: 1, MaxArgs: 1, Run: whitelistFeeToken,
		},
	)
}

// providerState is what GelatoCore knows about one provider.
type providerState struct {
	funds          *big.Int
	executor       common.Address
	moduleProvided bool
}

func readProviderState(ctx context.Context, env *environment.Env, provider, module common.Address) (providerState, error) {
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return providerState{}, err
	}
	var st providerState
	if st.funds, err = read[*big.Int](ctx, env, abiutil.GelatoCore, core, "providerFunds", provider); err != nil {
		return st, err
	}
	if st.executor, err = read[common.Address](ctx, env, abiutil.GelatoCore, core, "executorByProvider", provider); err != nil {
		return st, err
	}
	if st.moduleProvided, err = read[bool](ctx, env, abiutil.GelatoCore, core, "isModuleProvided", provider, module); err != nil {
		return st, err
	}
	return st, nil
}

func specProvided(ctx context.Context, env *environment.Env, provider common.Address, spec gelato.TaskSpec) (bool, error) {
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return false, err
	}
	status, err := read[string](ctx, env, abiutil.GelatoCore, core, "isTaskSpecProvided", provider, abiutil.WireTaskSpec(spec))
	if err != nil {
		return false, err
	}
	return status == "OK", nil
}

func provideFunds(ctx context.Context, env *environment.Env, args []string) error {
	amount, err := abiutil.Ether(arg(args, 0, env.Demo.ProviderFundsEth))
	if err != nil {
		return err
	}
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	provider := env.Provider.Address()
	funds, err := read[*big.Int](ctx, env, abiutil.GelatoCore, core, "providerFunds", provider)
	if err != nil {
		return err
	}
	if funds.Cmp(amount) >= 0 {
		return skip(ctx, env, "provide-funds", "provider already has %s ETH on GelatoCore", abiutil.FormatUnits(funds, 18))
	}
	topUp := new(big.Int).Sub(amount, funds)
	balance, err := env.Client.BalanceAt(ctx, provider)
	if err != nil {
		return xerrors.Wrap(CodeChainReadFailure, err, "读取 provider 余额失败")
	}
	if balance.Cmp(topUp) < 0 {
		return precondition("provider wallet holds %s ETH, needs %s", abiutil.FormatUnits(balance, 18), abiutil.FormatUnits(topUp, 18))
	}
	_, err = send(ctx, env, txRequest{
		command: "provide-funds", signer: env.Provider,
		contract: abiutil.GelatoCore, to: core, method: "provideFunds",
		args: []any{provider}, value: topUp,
	})
	return err
}

func assignExecutor(ctx context.Context, env *environment.Env, args []string) error {
	executor, err := env.Book.Executor(arg(args, 0, addressbook.DefaultExecutor))
	if err != nil {
		return err
	}
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	current, err := read[common.Address](ctx, env, abiutil.GelatoCore, core, "executorByProvider", env.Provider.Address())
	if err != nil {
		return err
	}
	if current == executor {
		return skip(ctx, env, "assign-executor", "executor %s already assigned", env.Book.Label(executor))
	}
	staked, err := read[bool](ctx, env, abiutil.GelatoCore, core, "isExecutorMinStaked", executor)
	if err != nil {
		return err
	}
	if !staked {
		return precondition("executor %s is not minimum staked", env.Book.Label(executor))
	}
	_, err = send(ctx, env, txRequest{
		command: "assign-executor", signer: env.Provider,
		contract: abiutil.GelatoCore, to: core, method: "providerAssignsExecutor",
		args: []any{executor},
	})
	return err
}

func unassignExecutor(ctx context.Context, env *environment.Env, _ []string) error {
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	current, err := read[common.Address](ctx, env, abiutil.GelatoCore, core, "executorByProvider", env.Provider.Address())
	if err != nil {
		return err
	}
	if current == (common.Address{}) {
		return skip(ctx, env, "unassign-executor", "no executor assigned")
	}
	_, err = send(ctx, env, txRequest{
		command: "unassign-executor", signer: env.Provider,
		contract: abiutil.GelatoCore, to: core, method: "providerAssignsExecutor",
		args: []any{common.Address{}},
	})
	return err
}

func provideTaskSpec(ctx context.Context, env *environment.Env, args []string) error {
	ceil := maxGasPriceCeil
	if raw := arg(args, 0, ""); raw != "" {
		gwei, err := abiutil.Gwei(raw)
		if err != nil {
			return err
		}
		ceil = gwei
	}
	spec, err := kyberSpec(env, ceil)
	if err != nil {
		return err
	}
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	provider := env.Provider.Address()
	provided, err := specProvided(ctx, env, provider, spec)
	if err != nil {
		return err
	}
	key, err := read[[32]byte](ctx, env, abiutil.GelatoCore, core, "hashTaskSpec", abiutil.WireTaskSpec(spec))
	if err != nil {
		return err
	}
	hash := common.Hash(key)
	if provided {
		stored, err := read[*big.Int](ctx, env, abiutil.GelatoCore, core, "taskSpecGasPriceCeil", provider, hash)
		if err != nil {
			return err
		}
		if stored.Cmp(ceil) == 0 {
			return skip(ctx, env, "provide-task-spec", "task spec %s already provided", hash.Hex())
		}
		env.Out.Info("task spec provided with ceil %s, updating", stored)
		_, err = send(ctx, env, txRequest{
			command: "provide-task-spec", signer: env.Provider,
			contract: abiutil.GelatoCore, to: core, method: "setTaskSpecGasPriceCeil",
			args: []any{hash, ceil},
		})
		return err
	}
	_, err = send(ctx, env, txRequest{
		command: "provide-task-spec", signer: env.Provider,
		contract: abiutil.GelatoCore, to: core, method: "provideTaskSpecs",
		args: []any{abiutil.WireTaskSpecs([]gelato.TaskSpec{spec})},
	})
	if err == nil {
		env.Out.KV("task spec hash", hash.Hex())
	}
	return err
}

func addProviderModule(ctx context.Context, env *environment.Env, args []string) error {
	module, ok := env.Resolve(arg(args, 0, ProviderModuleGelatoUserProxy))
	if !ok {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知的 provider module %s", arg(args, 0, "")))
	}
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	provided, err := read[bool](ctx, env, abiutil.GelatoCore, core, "isModuleProvided", env.Provider.Address(), module)
	if err != nil {
		return err
	}
	if provided {
		return skip(ctx, env, "add-provider-module", "module %s already provided", env.Book.Label(module))
	}
	_, err = send(ctx, env, txRequest{
		command: "add-provider-module", signer: env.Provider,
		contract: abiutil.GelatoCore, to: core, method: "addProviderModules",
		args: []any{[]common.Address{module}},
	})
	return err
}

// batchProvide fills only what is missing: funds below the target, no
// executor, the task spec and the module. The spec is provided with a 50 gwei ceil.
func batchProvide(ctx context.Context, env *environment.Env, _ []string) error {
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	module, err := deployment(env, ProviderModuleGelatoUserProxy)
	if err != nil {
		return err
	}
	target, err := abiutil.Ether(env.Demo.ProviderFundsEth)
	if err != nil {
		return err
	}
	ceil, _ := abiutil.Gwei("50")
	spec, err := kyberSpec(env, ceil)
	if err != nil {
		return err
	}
	provider := env.Provider.Address()
	st, err := readProviderState(ctx, env, provider, module)
	if err != nil {
		return err
	}
	provided, err := specProvided(ctx, env, provider, spec)
	if err != nil {
		return err
	}

	value := new(big.Int)
	if st.funds.Cmp(target) < 0 {
		value.Sub(target, st.funds)
	}
	var executor common.Address
	if st.executor == (common.Address{}) {
		if executor, err = env.Book.Executor(addressbook.DefaultExecutor); err != nil {
			return err
		}
	}
	specs := []gelato.TaskSpec{}
	if !provided {
		specs = append(specs, spec)
	}
	modules := []common.Address{}
	if !st.moduleProvided {
		modules = append(modules, module)
	}
	if value.Sign() == 0 && executor == (common.Address{}) && len(specs) == 0 && len(modules) == 0 {
		return skip(ctx, env, "batch-provide", "provider already funded, assigned, spec and module provided")
	}
	if value.Sign() > 0 {
		balance, err := env.Client.BalanceAt(ctx, provider)
		if err != nil {
			return xerrors.Wrap(CodeChainReadFailure, err, "读取 provider 余额失败")
		}
		if balance.Cmp(value) < 0 {
			return precondition("provider wallet holds %s ETH, needs %s", abiutil.FormatUnits(balance, 18), abiutil.FormatUnits(value, 18))
		}
	}
	_, err = send(ctx, env, txRequest{
		command: "batch-provide", signer: env.Provider,
		contract: abiutil.GelatoCore, to: core, method: "multiProvide",
		args:  []any{executor, abiutil.WireTaskSpecs(specs), modules},
		value: value,
	})
	return err
}

func multiUnprovide(ctx context.Context, env *environment.Env, _ []string) error {
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return err
	}
	module, err := deployment(env, ProviderModuleGelatoUserProxy)
	if err != nil {
		return err
	}
	spec, err := kyberSpec(env, new(big.Int))
	if err != nil {
		return err
	}
	provider := env.Provider.Address()
	st, err := readProviderState(ctx, env, provider, module)
	if err != nil {
		return err
	}
	provided, err := specProvided(ctx, env, provider, spec)
	if err != nil {
		return err
	}
	if st.funds.Sign() == 0 && !provided && !st.moduleProvided {
		return skip(ctx, env, "multi-unprovide", "provider has nothing left to unprovide")
	}
	if st.funds.Sign() > 0 && st.executor != (common.Address{}) {
		return preconditionHint("run unassign-executor first",
			"executor %s still assigned, funds cannot be withdrawn", env.Book.Label(st.executor))
	}
	specs := []gelato.TaskSpec{}
	if provided {
		specs = append(specs, spec)
	}
	modules := []common.Address{}
	if st.moduleProvided {
		modules = append(modules, module)
	}
	_, err = send(ctx, env, txRequest{
		command: "multi-unprovide", signer: env.Provider,
		contract: abiutil.GelatoCore, to: core, method: "multiUnprovide",
		args: []any{st.funds, abiutil.WireTaskSpecs(specs), modules},
	})
	return err
}

// feeNum converts a percentage with up to two decimals into the basis
// points FeeHandlerFactory expects.
func feeNum(percent string) (*big.Int, error) {
	num, err := abiutil.ParseUnits(percent, 2)
	if err != nil {
		return nil, err
	}
	if num.Sign() == 0 || num.Cmp(big.NewInt(10000)) > 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("手续费比例 %s%% 超出范围 (0, 100]", percent))
	}
	return num, nil
}

func deployFeeHandler(ctx context.Context, env *environment.Env, args []string) error {
	num, err := feeNum(args[0])
	if err != nil {
		return err
	}
	factory, err := deployment(env, abiutil.FeeHandlerFactory)
	if err != nil {
		return err
	}
	provider := env.Provider.Address()
	existing, err := read[common.Address](ctx, env, abiutil.FeeHandlerFactory, factory, "feeHandlerByProviderAndNum", provider, num)
	if err != nil {
		return err
	}
	if existing != (common.Address{}) {
		return skip(ctx, env, "deploy-fee-handler", "fee handler for %s%% already deployed at %s", args[0], existing.Hex())
	}
	if _, err := send(ctx, env, txRequest{
		command: "deploy-fee-handler", signer: env.Provider,
		contract: abiutil.FeeHandlerFactory, to: factory, method: "create",
		args: []any{num},
	}); err != nil {
		return err
	}
	deployed, err := read[common.Address](ctx, env, abiutil.FeeHandlerFactory, factory, "feeHandlerByProviderAndNum", provider, num)
	if err != nil {
		return err
	}
	env.Out.KV("fee handler", deployed.Hex())
	return nil
}

func whitelistFeeToken(ctx context.Context, env *environment.Env, args []string) error {
	token, ok := env.Resolve(args[0])
	if !ok {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知代币 %s", args[0]))
	}
	factory, err := deployment(env, abiutil.FeeHandlerFactory)
	if err != nil {
		return err
	}
	listed, err := read[bool](ctx, env, abiutil.FeeHandlerFactory, factory, "isWhitelistedToken", env.Provider.Address(), token)
	if err != nil {
		return err
	}
	if listed {
		return skip(ctx, env, "whitelist-fee-token", "token %s already whitelisted", env.Book.Label(token))
	}
	_, err = send(ctx, env, txRequest{
		command: "whitelist-fee-token", signer: env.Provider,
		contract: abiutil.FeeHandlerFactory, to: factory, method: "addTokensToWhitelist",
		args: []any{[]common.Address{token}},
	})
	return err
}
