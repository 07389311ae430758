// Package environment assembles everything a command needs for one network
// into an explicit Env value, built once per invocation and passed down.
package environment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"time"

	"gelato-runner/internal/addressbook"
	"gelato-runner/internal/config"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/journal"
	"gelato-runner/internal/notify"
	"gelato-runner/internal/report"
	"gelato-runner/internal/wallet"
	"gelato-runner/internal/web3"
	"gelato-runner/internal/web3/provider"
	"gelato-runner/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Gas holds the transaction defaults applied when a command sets none.
type Gas struct {
	Limit          uint64
	Price          *big.Int
	ConfirmTimeout time.Duration
}

// Env is the runtime environment of one command invocation.
type Env struct {
	Network  string
	Profile  web3.NetworkProfile
	ChainID  *big.Int
	Book     *addressbook.Book
	ABI      *abiutil.Registry
	Client   web3.Client
	User     *wallet.Signer
	Provider *wallet.Signer
	Journal  journal.Store
	Notifier notify.Dispatcher
	Out      *report.Reporter
	Gas      Gas
	Demo     config.DemoConfig
	Log      *slog.Logger
	RunID    string
	// Verbose prints decoded return values, the --log flag.
	Verbose bool

	closers []func()
}

// Options tune Build.
type Options struct {
	Network string
	// SkipCredentials builds an Env without wallets for local-only commands.
	SkipCredentials bool
	// Offline skips dialing the chain for commands that never touch it.
	Offline bool
	Out     io.Writer
	Verbose bool
	Timeout time.Duration
	Dialer  provider.Dialer
}

// Build wires config, network profile, chain client, wallets, journal and
// notifier. The returned Env must be closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Env, error) {
	if cfg == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "配置为空")
	}
	profiles, err := web3.LoadNetworkProfiles(cfg.Network.ProfilesFile)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载网络配置失败")
	}
	network := opts.Network
	if network == "" {
		network = cfg.Network.Default
	}
	profile, err := profiles.Profile(network)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("未知网络 %s", network),
			xerrors.WithHint("可用网络见 networks.yaml"))
	}
	book, err := addressbook.FromProfile(profile)
	if err != nil {
		return nil, err
	}
	registry, err := abiutil.Default()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载合约 ABI 失败")
	}

	env := &Env{
		Network: network,
		Profile: profile,
		ChainID: new(big.Int).SetUint64(profile.ChainID),
		Book:    book,
		ABI:     registry,
		Out:     report.New(opts.Out),
		Gas:     GasFromConfig(cfg.Gas),
		Demo:    cfg.Demo,
		Log:     logger.Named("gelato").With(slog.String("network", network)),
		RunID:   uuid.NewString(),
		Verbose: opts.Verbose,
	}
	if opts.Timeout > 0 {
		env.Gas.ConfirmTimeout = opts.Timeout
	}

	// rpc_url may reference DEMO_INFURA_ID, so .env is loaded even for
	// commands that never sign.
	if err := config.LoadEnvFiles(cfg.Network.EnvFile); err != nil {
		return nil, err
	}
	if !opts.SkipCredentials {
		creds, err := config.LoadCredentials()
		if err != nil {
			return nil, err
		}
		if env.User, err = wallet.New("user", creds.UserKey, env.ChainID); err != nil {
			return nil, err
		}
		if env.Provider, err = wallet.New("provider", creds.ProviderKey, env.ChainID); err != nil {
			return nil, err
		}
	}

	if !opts.Offline {
		dial := opts.Dialer
		if dial == nil {
			dial = provider.EthereumDialer(time.Duration(cfg.Gas.PollIntervalMillis) * time.Millisecond)
		}
		clients, err := provider.NewRegistry(profiles, network, dial)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化链客户端失败")
		}
		client, err := clients.DefaultClient(ctx)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("连接网络 %s 失败", network),
				xerrors.WithHint("检查 rpc_url 与 "+config.EnvInfuraID))
		}
		env.Client = client
		env.closers = append(env.closers, clients.Close)
	}

	store, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Journal = store
	env.closers = append(env.closers, func() { _ = store.Close() })

	fanout := notify.Build(ctx, cfg.Notify)
	env.Notifier = fanout
	env.closers = append(env.closers, func() { _ = fanout.Close() })
	return env, nil
}

// GasFromConfig converts the configured gas defaults.
func GasFromConfig(cfg config.GasConfig) Gas {
	price := new(big.Int).SetUint64(uint64(math.Round(cfg.PriceGwei * 1e9)))
	return Gas{
		Limit:          cfg.Limit,
		Price:          price,
		ConfirmTimeout: time.Duration(cfg.ConfirmTimeoutSeconds) * time.Second,
	}
}

// Close releases clients and stores in reverse order of acquisition.
func (e *Env) Close() {
	if e == nil {
		return
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// RequireSigners fails with INITIALIZATION_FAILURE when the Env was built
// without credentials.
func (e *Env) RequireSigners() error {
	if e.User == nil || e.Provider == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "缺少钱包私钥",
			xerrors.WithHint("在 .env 中设置 "+config.EnvUserKey+" 与 "+config.EnvProviderKey))
	}
	return nil
}

// RequireClient fails when the Env has no chain connection.
func (e *Env) RequireClient() error {
	if e.Client == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未连接任何网络")
	}
	return nil
}

// Logger returns the Env logger or the process default.
func (e *Env) Logger() *slog.Logger {
	if e == nil || e.Log == nil {
		return logger.L()
	}
	return e.Log
}

// Resolve maps a symbolic name to an address for argument parsing. It
// accepts token symbols, "group.name" entries and deployment names.
func (e *Env) Resolve(name string) (common.Address, bool) {
	return e.Book.Resolve(name)
}
