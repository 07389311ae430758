package command

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"gelato-runner/internal/addressbook"
	"gelato-runner/internal/environment"
	"gelato-runner/internal/gelato"
	"gelato-runner/internal/gelato/abiutil"

	"github.com/ethereum/go-ethereum/common"
)

// ProviderModuleGelatoUserProxy is the provider module deployment name.
const ProviderModuleGelatoUserProxy = "ProviderModuleGelatoUserProxy"

// ETHAddress is the placeholder token address Gelato actions use for ETH.
var ETHAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// uniswapDeadline is the swap deadline hard-coded into the demo task.
var uniswapDeadline = big.NewInt(4102448461)

// maxGasPriceCeil accepts any gas price.
var maxGasPriceCeil = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// actionTemplate is the shape of one action of a task template.
type actionTemplate struct {
	contract  string
	operation gelato.Operation
	dataFlow  gelato.DataFlow
	termsOk   bool
}

// kyberTemplate is shared by the provider, which whitelists its shape, and
// the user, who submits it. The fee handler leg is only present on networks
// recording an ActionFeeHandler deployment.
func kyberTemplate(env *environment.Env) (conditions []string, actions []actionTemplate) {
	conditions = []string{abiutil.ConditionTimeStateful}
	tradeFlow := gelato.DataFlowNone
	if env.Book.HasDeployment(abiutil.ActionFeeHandler) {
		actions = append(actions, actionTemplate{abiutil.ActionFeeHandler, gelato.OperationDelegatecall, gelato.DataFlowOut, true})
		tradeFlow = gelato.DataFlowIn
	}
	actions = append(actions,
		actionTemplate{abiutil.ActionKyberTrade, gelato.OperationDelegatecall, tradeFlow, true},
		actionTemplate{abiutil.ConditionTimeStateful, gelato.OperationCall, gelato.DataFlowNone, false},
	)
	return conditions, actions
}

// kyberSpec builds the TaskSpec the provider whitelists for the kyber task.
func kyberSpec(env *environment.Env, ceil *big.Int) (gelato.TaskSpec, error) {
	condNames, templates := kyberTemplate(env)
	conditions := make([]common.Address, len(condNames))
	for i, name := range condNames {
		addr, err := deployment(env, name)
		if err != nil {
			return gelato.TaskSpec{}, err
		}
		conditions[i] = addr
	}
	shapes := make([]gelato.ActionShape, len(templates))
	for i, tpl := range templates {
		addr, err := deployment(env, tpl.contract)
		if err != nil {
			return gelato.TaskSpec{}, err
		}
		shapes[i] = gelato.ActionShape{
			Addr:         addr,
			Operation:    tpl.operation,
			DataFlow:     tpl.dataFlow,
			TermsOkCheck: tpl.termsOk,
		}
	}
	return gelato.NewTaskSpec(conditions, shapes, ceil)
}

// kyberTask fills the kyber template with payloads for proxy.
func kyberTask(ctx context.Context, env *environment.Env, proxy common.Address) (gelato.Task, error) {
	user := env.User.Address()
	dai, err := env.Book.Token("DAI")
	if err != nil {
		return gelato.Task{}, err
	}
	knc, err := env.Book.Token("KNC")
	if err != nil {
		return gelato.Task{}, err
	}
	amount, err := daiPerTrade(env)
	if err != nil {
		return gelato.Task{}, err
	}
	condition, err := timeCondition(ctx, env, proxy)
	if err != nil {
		return gelato.Task{}, err
	}

	_, templates := kyberTemplate(env)
	actions := make([]gelato.Action, 0, len(templates))
	for _, tpl := range templates {
		addr, err := deployment(env, tpl.contract)
		if err != nil {
			return gelato.Task{}, err
		}
		var payload []byte
		switch tpl.contract {
		case abiutil.ActionFeeHandler:
			payload, err = read[[]byte](ctx, env, tpl.contract, addr, "getActionData", dai, amount, user)
		case abiutil.ActionKyberTrade:
			payload, err = read[[]byte](ctx, env, tpl.contract, addr, "getActionData", user, dai, amount, knc, user)
		case abiutil.ConditionTimeStateful:
			payload, err = setRefTimeData(env)
		default:
			err = fmt.Errorf("no payload builder for %s", tpl.contract)
		}
		if err != nil {
			return gelato.Task{}, err
		}
		action, err := gelato.NewAction(addr, payload, tpl.operation,
			gelato.WithDataFlow(tpl.dataFlow), gelato.WithTermsOkCheck(tpl.termsOk))
		if err != nil {
			return gelato.Task{}, err
		}
		actions = append(actions, action)
	}
	return gelato.NewTask([]gelato.Condition{condition}, actions)
}

// uniswapTask is the self-provided task: pull DAI into the proxy, approve
// the router, swap to WETH for the user and re-arm the time condition.
func uniswapTask(ctx context.Context, env *environment.Env, proxy common.Address) (gelato.Task, error) {
	user := env.User.Address()
	dai, err := env.Book.Token("DAI")
	if err != nil {
		return gelato.Task{}, err
	}
	weth, err := env.Book.Token("WETH")
	if err != nil {
		return gelato.Task{}, err
	}
	router, err := env.Book.Address(addressbook.GroupUniswapV2, "router2")
	if err != nil {
		return gelato.Task{}, err
	}
	timeCond, err := deployment(env, abiutil.ConditionTimeStateful)
	if err != nil {
		return gelato.Task{}, err
	}
	amount, err := daiPerTrade(env)
	if err != nil {
		return gelato.Task{}, err
	}
	condition, err := timeCondition(ctx, env, proxy)
	if err != nil {
		return gelato.Task{}, err
	}

	type step struct {
		to       common.Address
		contract string
		method   string
		args     []any
	}
	steps := []step{
		{dai, abiutil.IERC20, "transferFrom", []any{user, proxy, amount}},
		{dai, abiutil.IERC20, "approve", []any{router, amount}},
		{router, abiutil.IUniswapV2Router02, "swapExactTokensForTokens",
			[]any{amount, new(big.Int), []common.Address{dai, weth}, user, uniswapDeadline}},
	}
	actions := make([]gelato.Action, 0, len(steps)+1)
	for _, s := range steps {
		payload, err := env.ABI.EncodeCall(s.contract, s.method, s.args...)
		if err != nil {
			return gelato.Task{}, err
		}
		action, err := gelato.NewAction(s.to, payload, gelato.OperationCall)
		if err != nil {
			return gelato.Task{}, err
		}
		actions = append(actions, action)
	}
	payload, err := setRefTimeData(env)
	if err != nil {
		return gelato.Task{}, err
	}
	rearm, err := gelato.NewAction(timeCond, payload, gelato.OperationCall)
	if err != nil {
		return gelato.Task{}, err
	}
	actions = append(actions, rearm)

	return gelato.NewTask([]gelato.Condition{condition}, actions,
		gelato.WithSelfProviderGasLimit(new(big.Int).SetUint64(env.Demo.GasPerExecution)))
}

func timeCondition(ctx context.Context, env *environment.Env, proxy common.Address) (gelato.Condition, error) {
	inst, err := deployment(env, abiutil.ConditionTimeStateful)
	if err != nil {
		return gelato.Condition{}, err
	}
	data, err := read[[]byte](ctx, env, abiutil.ConditionTimeStateful, inst, "getConditionData", proxy)
	if err != nil {
		return gelato.Condition{}, err
	}
	return gelato.NewCondition(inst, data)
}

func setRefTimeData(env *environment.Env) ([]byte, error) {
	return env.ABI.EncodeCall(abiutil.ConditionTimeStateful, "setRefTime",
		new(big.Int).SetUint64(env.Demo.TradeIntervalSeconds), new(big.Int))
}

// taskCycleArgs renders a cycle into the trailing arguments shared by the
// submitTaskCycle family.
func taskCycleArgs(cycle gelato.TaskCycle) []any {
	return []any{
		abiutil.WireProvider(cycle.Provider()),
		abiutil.WireTasks(cycle.Tasks()),
		new(big.Int).SetUint64(cycle.Expiry()),
		new(big.Int).SetUint64(cycle.Cycles()),
	}
}

func expiry(env *environment.Env) time.Time {
	if env.Demo.ExpirySeconds == 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(env.Demo.ExpirySeconds) * time.Second)
}

func daiPerTrade(env *environment.Env) (*big.Int, error) {
	return abiutil.ParseUnits(env.Demo.DaiPerTrade, 18)
}

// daiTotal is what all cycles of a task spend together.
func daiTotal(env *environment.Env) (*big.Int, error) {
	per, err := daiPerTrade(env)
	if err != nil {
		return nil, err
	}
	return per.Mul(per, new(big.Int).SetUint64(max(env.Demo.NumTrades, 1))), nil
}

// executionGas is the gas budget GelatoCore must see the provider cover.
func executionGas(env *environment.Env) *big.Int {
	return new(big.Int).SetUint64(env.Demo.GasPerExecution * max(env.Demo.NumTrades, 1))
}

// userProxy predicts the CREATE2 proxy of the user and reports whether it
// is already deployed.
func userProxy(ctx context.Context, env *environment.Env) (common.Address, bool, error) {
	factory, err := deployment(env, abiutil.GelatoUserProxyFactory)
	if err != nil {
		return common.Address{}, false, err
	}
	salt := new(big.Int).SetUint64(env.Demo.Create2Salt)
	proxy, err := read[common.Address](ctx, env, abiutil.GelatoUserProxyFactory, factory, "predictProxyAddress", env.User.Address(), salt)
	if err != nil {
		return common.Address{}, false, err
	}
	deployed, err := read[bool](ctx, env, abiutil.GelatoUserProxyFactory, factory, "isGelatoUserProxy", proxy)
	if err != nil {
		return common.Address{}, false, err
	}
	return proxy, deployed, nil
}

// gelatoGasPrice reads the price GelatoCore charges executions at from its
// oracle.
func gelatoGasPrice(ctx context.Context, env *environment.Env) (*big.Int, error) {
	core, err := deployment(env, abiutil.GelatoCore)
	if err != nil {
		return nil, err
	}
	oracle, err := read[common.Address](ctx, env, abiutil.GelatoCore, core, "gelatoGasPriceOracle")
	if err != nil {
		return nil, err
	}
	return read[*big.Int](ctx, env, abiutil.GasPriceOracle, oracle, "latestAnswer")
}
