// Package envtest builds an environment.Env over an in-memory chain that
// simulates the Gelato contracts, for command and scenario tests.
package envtest

import (
	"bytes"
	"math/big"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"gelato-runner/internal/addressbook"
	"gelato-runner/internal/config"
	"gelato-runner/internal/environment"
	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/journal"
	"gelato-runner/internal/report"
	"gelato-runner/internal/wallet"
	"gelato-runner/internal/web3"
	"gelato-runner/internal/web3/web3test"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known keys of the fixture wallets. Never fund them on a real chain.
const (
	UserKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	ProviderKey = "0x8f2a55949038a9610f50fb23b5883af3b4ecb3c3bb792cbcefbd1542c692be63"
)

var (
	oracleAddress = common.HexToAddress("0x00000000000000000000000000000000000004ac")
	// ProxyAddress is what predictProxyAddress answers for the user.
	ProxyAddress = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
)

// Fixture is a ready Env plus handles on the simulated chain.
type Fixture struct {
	Env      *environment.Env
	Chain    *web3test.Chain
	Protocol *Protocol
	Journal  *journal.MemoryStore
	Out      *bytes.Buffer
}

// ProfilesPath locates configs/networks.yaml from any package directory.
func ProfilesPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "configs", "networks.yaml")
}

// New builds a rinkeby Env with funded wallets, a staked default executor
// and nothing provided yet.
func New(t testing.TB) *Fixture {
	t.Helper()
	profiles, err := web3.LoadNetworkProfiles(ProfilesPath())
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}
	profile, err := profiles.Profile("rinkeby")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	book, err := addressbook.FromProfile(profile)
	if err != nil {
		t.Fatalf("address book: %v", err)
	}
	registry := abiutil.MustDefault()
	chainID := new(big.Int).SetUint64(profile.ChainID)
	user, err := wallet.New("user", UserKey, chainID)
	if err != nil {
		t.Fatalf("user wallet: %v", err)
	}
	provider, err := wallet.New("provider", ProviderKey, chainID)
	if err != nil {
		t.Fatalf("provider wallet: %v", err)
	}

	chain := web3test.New(registry)
	for _, name := range registry.Contracts() {
		if addr, err := book.Deployment(name); err == nil {
			chain.Deploy(addr, name)
		}
	}
	for _, symbol := range []string{"DAI", "KNC", "WETH"} {
		addr, err := book.Token(symbol)
		if err != nil {
			t.Fatalf("token %s: %v", symbol, err)
		}
		chain.Deploy(addr, abiutil.IERC20)
	}
	dai, _ := book.Token("DAI")
	chain.Deploy(dai, abiutil.DAIFaucet)
	router, err := book.Address(addressbook.GroupUniswapV2, "router2")
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	chain.Deploy(router, abiutil.IUniswapV2Router02)
	chain.Deploy(oracleAddress, abiutil.GasPriceOracle)
	chain.Deploy(ProxyAddress, abiutil.GelatoUserProxy)

	core, err := book.Deployment(abiutil.GelatoCore)
	if err != nil {
		t.Fatalf("core: %v", err)
	}
	protocol := newProtocol(registry, core, ProxyAddress)
	protocol.install(chain)
	executor, _ := book.Executor(addressbook.DefaultExecutor)
	protocol.Staked[executor] = true

	ten := abiutil.MustParseUnits("10", 18)
	chain.SetBalance(user.Address(), ten)
	chain.SetBalance(provider.Address(), ten)

	cfg := config.Default(t.TempDir())
	store := journal.NewMemoryStore()
	out := &bytes.Buffer{}
	env := &environment.Env{
		Network:  profile.Name,
		Profile:  profile,
		ChainID:  chainID,
		Book:     book,
		ABI:      registry,
		Client:   chain,
		User:     user,
		Provider: provider,
		Journal:  store,
		Out:      report.New(out),
		Gas:      environment.Gas{Limit: cfg.Gas.Limit, Price: big.NewInt(10_000_000_000), ConfirmTimeout: time.Minute},
		Demo:     cfg.Demo,
		RunID:    "test-run",
	}
	return &Fixture{Env: env, Chain: chain, Protocol: protocol, Journal: store, Out: out}
}

// Address resolves a deployment or fails the test.
func (f *Fixture) Address(t testing.TB, name string) common.Address {
	t.Helper()
	addr, ok := f.Env.Resolve(name)
	if !ok {
		t.Fatalf("cannot resolve %s", name)
	}
	return addr
}
