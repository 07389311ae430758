// Package monitor polls the demo balances on a cron schedule and reports
// every change until a configured number of changes was seen.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"

	"gelato-runner/internal/command"
	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
)

// Parser accepts five-field expressions and descriptors such as "@every 20s".
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reading is one watched balance.
type Reading struct {
	Label    string
	Decimals int
	Value    *big.Int
}

// Snapshot is the ordered set of readings taken by one poll.
type Snapshot []Reading

// Diff returns the labels whose value differs from prev.
func (s Snapshot) Diff(prev Snapshot) []string {
	old := make(map[string]*big.Int, len(prev))
	for _, r := range prev {
		old[r.Label] = r.Value
	}
	var changed []string
	for _, r := range s {
		if v, ok := old[r.Label]; !ok || v.Cmp(r.Value) != 0 {
			changed = append(changed, r.Label)
		}
	}
	return changed
}

// Options tune Run.
type Options struct {
	Schedule string
	// Changes is how many polls with a difference end the run.
	Changes int
}

// Monitor keeps the last snapshot and the number of observed changes.
type Monitor struct {
	env *environment.Env
	log *slog.Logger

	mu      sync.Mutex
	last    Snapshot
	changes int
}

// New creates a monitor over env. env must carry a client and signers.
func New(env *environment.Env) *Monitor {
	return &Monitor{env: env, log: env.Logger().With(slog.String("component", "monitor"))}
}

// Changes reports how many polls saw a difference.
func (m *Monitor) Changes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changes
}

// Poll reads every balance and compares it with the previous poll. The
// first poll only records the baseline.
func (m *Monitor) Poll(ctx context.Context) (bool, error) {
	snap, err := m.read(ctx)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	first := m.last == nil
	changed := snap.Diff(m.last)
	m.last = snap
	if first {
		m.print(snap, nil)
		return false, nil
	}
	if len(changed) == 0 {
		m.log.Debug("余额未变化")
		return false, nil
	}
	m.changes++
	m.print(snap, changed)
	m.log.Info("余额变化", slog.Any("labels", changed), slog.Int("changes", m.changes))
	return true, nil
}

func (m *Monitor) print(snap Snapshot, changed []string) {
	marked := make(map[string]bool, len(changed))
	for _, l := range changed {
		marked[l] = true
	}
	if changed == nil {
		m.env.Out.Info("baseline")
	} else {
		m.env.Out.Info("change %d", m.changes)
	}
	for _, r := range snap {
		label := r.Label
		if marked[label] {
			label += " *"
		}
		m.env.Out.KV(label, abiutil.FormatUnits(r.Value, r.Decimals))
	}
}

func (m *Monitor) read(ctx context.Context) (Snapshot, error) {
	env := m.env
	user := env.User.Address()
	eth, err := env.Client.BalanceAt(ctx, user)
	if err != nil {
		return nil, xerrors.Wrap(command.CodeChainReadFailure, err, "读取用户 ETH 余额失败")
	}
	snap := Snapshot{{Label: "user ETH", Decimals: 18, Value: eth}}

	for _, symbol := range []string{"DAI", "KNC"} {
		token, err := env.Book.Token(symbol)
		if err != nil {
			continue
		}
		bal, err := m.balanceOf(ctx, token, user)
		if err != nil {
			return nil, err
		}
		snap = append(snap, Reading{Label: "user " + symbol, Decimals: 18, Value: bal})
	}

	dai, err := env.Book.Token("DAI")
	if err != nil {
		return snap, nil
	}
	if proxy, ok, err := m.proxy(ctx); err != nil {
		return nil, err
	} else if ok {
		allowance, err := m.view(ctx, abiutil.IERC20, dai, "allowance", user, proxy)
		if err != nil {
			return nil, err
		}
		snap = append(snap, Reading{Label: "DAI allowance proxy", Decimals: 18, Value: allowance})
	}
	providerDAI, err := m.balanceOf(ctx, dai, env.Provider.Address())
	if err != nil {
		return nil, err
	}
	return append(snap, Reading{Label: "provider DAI", Decimals: 18, Value: providerDAI}), nil
}

func (m *Monitor) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return m.view(ctx, abiutil.IERC20, token, "balanceOf", owner)
}

// proxy predicts the user proxy; ok is false on networks without a factory.
func (m *Monitor) proxy(ctx context.Context) (common.Address, bool, error) {
	factory, err := m.env.Book.Deployment(abiutil.GelatoUserProxyFactory)
	if err != nil {
		return common.Address{}, false, nil
	}
	out, err := m.call(ctx, abiutil.GelatoUserProxyFactory, factory, "predictProxyAddress",
		m.env.User.Address(), new(big.Int).SetUint64(m.env.Demo.Create2Salt))
	if err != nil {
		return common.Address{}, false, err
	}
	addr, err := abiutil.Convert[common.Address](out[0])
	return addr, err == nil, err
}

func (m *Monitor) view(ctx context.Context, contract string, to common.Address, method string, args ...any) (*big.Int, error) {
	out, err := m.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	return abiutil.Convert[*big.Int](out[0])
}

func (m *Monitor) call(ctx context.Context, contract string, to common.Address, method string, args ...any) ([]any, error) {
	data, err := m.env.ABI.EncodeCall(contract, method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := m.env.Client.Call(ctx, m.env.User.Address(), to, data)
	if err != nil {
		return nil, xerrors.Wrap(command.CodeChainReadFailure, err, fmt.Sprintf("读取 %s.%s 失败", contract, method))
	}
	out, err := m.env.ABI.DecodeOutput(contract, method, raw)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, xerrors.New(command.CodeChainReadFailure, fmt.Sprintf("%s.%s 没有返回值", contract, method))
	}
	return out, nil
}

// Run takes a baseline, then polls on opts.Schedule until opts.Changes
// changes were seen or ctx ends. Failed polls are logged and retried on the
// next tick.
func Run(ctx context.Context, env *environment.Env, opts Options) error {
	if opts.Schedule == "" {
		opts.Schedule = env.Demo.MonitorSchedule
	}
	if opts.Changes <= 0 {
		opts.Changes = env.Demo.MonitorChanges
	}
	schedule, err := Parser.Parse(opts.Schedule)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("无效的调度表达式 %q", opts.Schedule),
			xerrors.WithHint(`use a cron expression or a descriptor such as "@every 20s"`))
	}

	m := New(env)
	env.Out.Title("monitoring balances on %s (%s, until %d changes)", env.Network, opts.Schedule, opts.Changes)
	if _, err := m.Poll(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	var once sync.Once
	c := cron.New(cron.WithParser(Parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		if _, err := m.Poll(ctx); err != nil {
			m.log.Warn("轮询余额失败", slog.Any("error", err))
			return
		}
		if m.Changes() >= opts.Changes {
			once.Do(func() { close(done) })
		}
	}))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	select {
	case <-done:
		env.Out.OK("observed %d balance changes", m.Changes())
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "余额监控被取消")
	}
}

func init() {
	command.Register(command.Command{
		Name:      "monitor-balances",
		Category:  command.CategoryRead,
		Usage:     "poll user and provider balances until they changed a number of times",
		ArgsUsage: "[schedule] [changes]",
		MaxArgs:   2,
		Chain:     true,
		Signers:   true,
		Run: func(ctx context.Context, env *environment.Env, args []string) error {
			opts := Options{}
			if len(args) > 0 {
				opts.Schedule = args[0]
			}
			if len(args) > 1 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("变化次数无效: %s", args[1]))
				}
				opts.Changes = n
			}
			return Run(ctx, env, opts)
		},
	})
}
