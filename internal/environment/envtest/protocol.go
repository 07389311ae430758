package envtest

import (
	"fmt"
	"math/big"
	"sync"

	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/web3/web3test"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol is the slice of GelatoCore, the proxy factory and the ERC20
// tokens the commands read and mutate, kept in memory.
type Protocol struct {
	mu sync.Mutex

	core  common.Address
	proxy common.Address
	abi   *abiutil.Registry

	Funds         map[common.Address]*big.Int
	Executors     map[common.Address]common.Address
	Modules       map[common.Address]map[common.Address]bool
	Specs         map[common.Address]map[common.Hash]*big.Int
	Staked        map[common.Address]bool
	FeeHandlers   map[common.Address]map[string]common.Address
	Whitelist     map[common.Address]map[common.Address]bool
	Tokens        map[common.Address]map[common.Address]*big.Int
	Allowances    map[common.Address]map[[2]common.Address]*big.Int
	ProxyDeployed bool
	GasPrice      *big.Int
	TaskCycles    int
}

func newProtocol(registry *abiutil.Registry, core, proxy common.Address) *Protocol {
	return &Protocol{
		core:        core,
		proxy:       proxy,
		abi:         registry,
		Funds:       make(map[common.Address]*big.Int),
		Executors:   make(map[common.Address]common.Address),
		Modules:     make(map[common.Address]map[common.Address]bool),
		Specs:       make(map[common.Address]map[common.Hash]*big.Int),
		Staked:      make(map[common.Address]bool),
		FeeHandlers: make(map[common.Address]map[string]common.Address),
		Whitelist:   make(map[common.Address]map[common.Address]bool),
		Tokens:      make(map[common.Address]map[common.Address]*big.Int),
		Allowances:  make(map[common.Address]map[[2]common.Address]*big.Int),
		GasPrice:    big.NewInt(20_000_000_000),
	}
}

// SetToken sets the token balance of owner.
func (p *Protocol) SetToken(token, owner common.Address, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setToken(token, owner, amount)
}

func (p *Protocol) setToken(token, owner common.Address, amount *big.Int) {
	if p.Tokens[token] == nil {
		p.Tokens[token] = make(map[common.Address]*big.Int)
	}
	p.Tokens[token][owner] = new(big.Int).Set(amount)
}

func (p *Protocol) token(token, owner common.Address) *big.Int {
	if b := p.Tokens[token][owner]; b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// SetAllowance sets what spender may move of owner's token.
func (p *Protocol) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setAllowance(token, owner, spender, amount)
}

func (p *Protocol) setAllowance(token, owner, spender common.Address, amount *big.Int) {
	if p.Allowances[token] == nil {
		p.Allowances[token] = make(map[[2]common.Address]*big.Int)
	}
	p.Allowances[token][[2]common.Address{owner, spender}] = new(big.Int).Set(amount)
}

// SetFunds sets the provider funds of addr on GelatoCore.
func (p *Protocol) SetFunds(addr common.Address, wei *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Funds[addr] = new(big.Int).Set(wei)
}

// ProvideModule marks module as provided by provider.
func (p *Protocol) ProvideModule(provider, module common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provideModule(provider, module)
}

func (p *Protocol) provideModule(provider, module common.Address) {
	if p.Modules[provider] == nil {
		p.Modules[provider] = make(map[common.Address]bool)
	}
	p.Modules[provider][module] = true
}

// ProvideSpec files a task spec hash with its ceiling.
func (p *Protocol) ProvideSpec(provider common.Address, hash common.Hash, ceil *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provideSpec(provider, hash, ceil)
}

func (p *Protocol) provideSpec(provider common.Address, hash common.Hash, ceil *big.Int) {
	if p.Specs[provider] == nil {
		p.Specs[provider] = make(map[common.Hash]*big.Int)
	}
	p.Specs[provider][hash] = new(big.Int).Set(ceil)
}

// AssignExecutor sets the executor of provider.
func (p *Protocol) AssignExecutor(provider, executor common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Executors[provider] = executor
}

func (p *Protocol) funds(addr common.Address) *big.Int {
	if f := p.Funds[addr]; f != nil {
		return new(big.Int).Set(f)
	}
	return new(big.Int)
}

func specHash(v any) (common.Hash, error) {
	wire, err := abiutil.Convert[abiutil.TaskSpec](v)
	if err != nil {
		return common.Hash{}, err
	}
	spec, err := wire.Descriptor()
	if err != nil {
		return common.Hash{}, err
	}
	return spec.Hash(), nil
}

func specHashes(v any) ([]common.Hash, error) {
	wire, err := abiutil.Convert[[]abiutil.TaskSpec](v)
	if err != nil {
		return nil, err
	}
	out := make([]common.Hash, len(wire))
	for i, w := range wire {
		spec, err := w.Descriptor()
		if err != nil {
			return nil, err
		}
		out[i] = spec.Hash()
	}
	return out, nil
}

func feeKey(num *big.Int) string { return num.String() }

// install wires the read handlers and the state transitions into chain.
func (p *Protocol) install(chain *web3test.Chain) {
	locked := func(h func(c web3test.Call) ([]any, error)) web3test.Handler {
		return func(c web3test.Call) ([]any, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			return h(c)
		}
	}
	addr := func(v any) common.Address { return v.(common.Address) }

	chain.Handle(abiutil.GelatoCore, "providerFunds", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.funds(addr(c.Args[0]))}, nil
	}))
	chain.Handle(abiutil.GelatoCore, "executorByProvider", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.Executors[addr(c.Args[0])]}, nil
	}))
	chain.Handle(abiutil.GelatoCore, "isExecutorMinStaked", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.Staked[addr(c.Args[0])]}, nil
	}))
	chain.Handle(abiutil.GelatoCore, "isModuleProvided", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.Modules[addr(c.Args[0])][addr(c.Args[1])]}, nil
	}))
	chain.Handle(abiutil.GelatoCore, "isTaskSpecProvided", locked(func(c web3test.Call) ([]any, error) {
		hash, err := specHash(c.Args[1])
		if err != nil {
			return nil, err
		}
		if _, ok := p.Specs[addr(c.Args[0])][hash]; ok {
			return []any{"OK"}, nil
		}
		return []any{"TaskSpecNotProvided"}, nil
	}))
	chain.Handle(abiutil.GelatoCore, "hashTaskSpec", func(c web3test.Call) ([]any, error) {
		hash, err := specHash(c.Args[0])
		if err != nil {
			return nil, err
		}
		return []any{[32]byte(hash)}, nil
	})
	chain.Handle(abiutil.GelatoCore, "taskSpecGasPriceCeil", locked(func(c web3test.Call) ([]any, error) {
		hash := common.Hash(c.Args[1].([32]byte))
		if ceil := p.Specs[addr(c.Args[0])][hash]; ceil != nil {
			return []any{new(big.Int).Set(ceil)}, nil
		}
		return []any{new(big.Int)}, nil
	}))
	chain.Handle(abiutil.GelatoCore, "isProviderLiquid", locked(func(c web3test.Call) ([]any, error) {
		need := new(big.Int).Mul(c.Args[1].(*big.Int), c.Args[2].(*big.Int))
		return []any{p.funds(addr(c.Args[0])).Cmp(need) >= 0}, nil
	}))
	chain.Handle(abiutil.GelatoCore, "gelatoGasPriceOracle", locked(func(web3test.Call) ([]any, error) {
		return []any{oracleAddress}, nil
	}))
	chain.Handle(abiutil.GasPriceOracle, "latestAnswer", locked(func(web3test.Call) ([]any, error) {
		return []any{new(big.Int).Set(p.GasPrice)}, nil
	}))

	chain.Handle(abiutil.GelatoUserProxyFactory, "predictProxyAddress", locked(func(web3test.Call) ([]any, error) {
		return []any{p.proxy}, nil
	}))
	chain.Handle(abiutil.GelatoUserProxyFactory, "isGelatoUserProxy", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.ProxyDeployed && addr(c.Args[0]) == p.proxy}, nil
	}))

	chain.Handle(abiutil.ConditionTimeStateful, "getConditionData", func(c web3test.Call) ([]any, error) {
		return []any{append([]byte{0xc0, 0xde}, addr(c.Args[0]).Bytes()...)}, nil
	})
	chain.Handle(abiutil.ActionKyberTrade, "getActionData", func(c web3test.Call) ([]any, error) {
		return []any{append([]byte{0x6b, 0x79}, c.Args[2].(*big.Int).Bytes()...)}, nil
	})
	chain.Handle(abiutil.ActionFeeHandler, "getActionData", func(c web3test.Call) ([]any, error) {
		return []any{append([]byte{0xfe, 0xe0}, c.Args[1].(*big.Int).Bytes()...)}, nil
	})

	chain.Handle(abiutil.FeeHandlerFactory, "feeHandlerByProviderAndNum", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.FeeHandlers[addr(c.Args[0])][feeKey(c.Args[1].(*big.Int))]}, nil
	}))
	chain.Handle(abiutil.FeeHandlerFactory, "isWhitelistedToken", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.Whitelist[addr(c.Args[0])][addr(c.Args[1])]}, nil
	}))

	chain.Handle(abiutil.IERC20, "decimals", func(web3test.Call) ([]any, error) { return []any{uint8(18)}, nil })
	chain.Handle(abiutil.IERC20, "balanceOf", locked(func(c web3test.Call) ([]any, error) {
		return []any{p.token(c.To, addr(c.Args[0]))}, nil
	}))
	chain.Handle(abiutil.IERC20, "allowance", locked(func(c web3test.Call) ([]any, error) {
		if a := p.Allowances[c.To][[2]common.Address{addr(c.Args[0]), addr(c.Args[1])}]; a != nil {
			return []any{new(big.Int).Set(a)}, nil
		}
		return []any{new(big.Int)}, nil
	}))

	chain.OnSend = func(s web3test.Sent) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.apply(s.From, s.To, s.Contract, s.Method, s.Args, s.Value); err != nil {
			panic(fmt.Sprintf("simulated %s.%s: %v", s.Contract, s.Method, err))
		}
	}
}

// apply runs a state transition with p.mu held.
func (p *Protocol) apply(from, to common.Address, contract, method string, args []any, value *big.Int) error {
	addr := func(v any) common.Address { return v.(common.Address) }
	switch contract + "." + method {
	case "GelatoCore.provideFunds":
		p.Funds[addr(args[0])] = new(big.Int).Add(p.funds(addr(args[0])), value)
	case "GelatoCore.providerAssignsExecutor":
		p.Executors[from] = addr(args[0])
	case "GelatoCore.provideTaskSpecs":
		wire, err := abiutil.Convert[[]abiutil.TaskSpec](args[0])
		if err != nil {
			return err
		}
		hashes, err := specHashes(args[0])
		if err != nil {
			return err
		}
		for i, h := range hashes {
			p.provideSpec(from, h, wire[i].GasPriceCeil)
		}
	case "GelatoCore.setTaskSpecGasPriceCeil":
		p.provideSpec(from, common.Hash(args[0].([32]byte)), args[1].(*big.Int))
	case "GelatoCore.addProviderModules":
		for _, m := range args[0].([]common.Address) {
			p.provideModule(from, m)
		}
	case "GelatoCore.multiProvide":
		p.Funds[from] = new(big.Int).Add(p.funds(from), value)
		if exec := addr(args[0]); exec != (common.Address{}) {
			p.Executors[from] = exec
		}
		wire, err := abiutil.Convert[[]abiutil.TaskSpec](args[1])
		if err != nil {
			return err
		}
		hashes, err := specHashes(args[1])
		if err != nil {
			return err
		}
		for i, h := range hashes {
			p.provideSpec(from, h, wire[i].GasPriceCeil)
		}
		for _, m := range args[2].([]common.Address) {
			p.provideModule(from, m)
		}
	case "GelatoCore.multiUnprovide":
		p.Funds[from] = new(big.Int).Sub(p.funds(from), args[0].(*big.Int))
		hashes, err := specHashes(args[1])
		if err != nil {
			return err
		}
		for _, h := range hashes {
			delete(p.Specs[from], h)
		}
		for _, m := range args[2].([]common.Address) {
			delete(p.Modules[from], m)
		}
	case "GelatoCore.unprovideFunds":
		p.Funds[from] = new(big.Int).Sub(p.funds(from), args[0].(*big.Int))
	case "GelatoUserProxyFactory.createTwo":
		p.ProxyDeployed = true
	case "GelatoUserProxyFactory.createTwoExecActionsSubmitTaskCycle":
		p.ProxyDeployed = true
		p.TaskCycles++
	case "GelatoUserProxy.execAction":
		action, err := abiutil.Convert[abiutil.Action](args[0])
		if err != nil {
			return err
		}
		return p.proxyAction(to, action, value)
	case "GelatoUserProxy.multiExecActions":
		actions, err := abiutil.Convert[[]abiutil.Action](args[0])
		if err != nil {
			return err
		}
		for _, a := range actions {
			if err := p.proxyAction(to, a, a.Value); err != nil {
				return err
			}
		}
	case "GelatoUserProxy.submitTaskCycle", "GelatoUserProxy.execActionsAndSubmitTaskCycle":
		p.TaskCycles++
	case "IERC20.approve":
		p.setAllowance(to, from, addr(args[0]), args[1].(*big.Int))
	case "DAIFaucet.allocateTo":
		p.setToken(to, addr(args[0]), new(big.Int).Add(p.token(to, addr(args[0])), args[1].(*big.Int)))
	case "FeeHandlerFactory.create":
		if p.FeeHandlers[from] == nil {
			p.FeeHandlers[from] = make(map[string]common.Address)
		}
		p.FeeHandlers[from][feeKey(args[0].(*big.Int))] = common.BigToAddress(new(big.Int).Add(big.NewInt(0xfee000), args[0].(*big.Int)))
	case "FeeHandlerFactory.addTokensToWhitelist":
		if p.Whitelist[from] == nil {
			p.Whitelist[from] = make(map[common.Address]bool)
		}
		for _, t := range args[0].([]common.Address) {
			p.Whitelist[from][t] = true
		}
	}
	return nil
}

// proxyAction replays an action executed by the proxy. Calls into
// GelatoCore run with the proxy as sender; the ETH transfer action pays
// the user.
func (p *Protocol) proxyAction(proxy common.Address, action abiutil.Action, value *big.Int) error {
	if action.Addr != p.core {
		return nil
	}
	method, args, err := p.abi.DecodeCall(abiutil.GelatoCore, action.Data)
	if err != nil {
		return err
	}
	if value == nil {
		value = new(big.Int)
	}
	return p.apply(proxy, p.core, abiutil.GelatoCore, method, args, value)
}
