// Package scenario chains commands into the demo walkthroughs. Steps run
// strictly in order and the first failure stops the run; re-running a
// scenario relies on every command being idempotent.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"gelato-runner/internal/command"
	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
)

// Step is one command invocation. Args is evaluated right before the step
// runs so it sees the Env as the previous steps left it.
type Step struct {
	Command string
	Args    func(env *environment.Env) ([]string, error)
}

// Scenario is a named, ordered list of steps.
type Scenario struct {
	Name        string
	Description string
	Steps       []Step
}

// Invoker runs one command; command.Invoke in production.
type Invoker func(ctx context.Context, env *environment.Env, name string, args []string) error

func fixed(args ...string) func(*environment.Env) ([]string, error) {
	return func(*environment.Env) ([]string, error) { return args, nil }
}

func step(name string, args ...string) Step {
	return Step{Command: name, Args: fixed(args...)}
}

// approveDAI approves the proxy for every trade of the task cycle.
func approveDAI(env *environment.Env) ([]string, error) {
	per, err := abiutil.ParseUnits(env.Demo.DaiPerTrade, 18)
	if err != nil {
		return nil, err
	}
	total := per.Mul(per, new(big.Int).SetUint64(max(env.Demo.NumTrades, 1)))
	return []string{"DAI", command.ProxyAlias, abiutil.FormatUnits(total, 18)}, nil
}

var scenarios = map[string]Scenario{
	"provider-setup": {
		Name:        "provider-setup",
		Description: "fund the provider, assign the executor, whitelist the kyber task spec and add the proxy module",
		Steps: []Step{
			step("provide-funds"),
			step("assign-executor"),
			step("provide-task-spec"),
			step("add-provider-module"),
		},
	},
	"provider-cleanup": {
		Name:        "provider-cleanup",
		Description: "unassign the executor and withdraw everything the provider provided",
		Steps: []Step{
			step("unassign-executor"),
			step("multi-unprovide"),
		},
	},
	"user-uniswap": {
		Name:        "user-uniswap",
		Description: "deploy and self-provide the user proxy, then submit the uniswap task cycle",
		Steps: []Step{
			step("create-user-proxy"),
			step("setup-user-proxy"),
			{Command: "erc20-approve", Args: approveDAI},
			step("submit-task-uniswap"),
		},
	},
	"user-kyber": {
		Name:        "user-kyber",
		Description: "approve the predicted proxy and submit the kyber task cycle to the external provider",
		Steps: []Step{
			{Command: "erc20-approve", Args: approveDAI},
			step("submit-task-kyber"),
		},
	},
	"user-withdraw": {
		Name:        "user-withdraw",
		Description: "withdraw the proxy's remaining provider funds to the user",
		Steps: []Step{
			step("withdraw-funds"),
		},
	},
}

// All lists the scenarios by name.
func All() []Scenario {
	out := make([]Scenario, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	s, ok := scenarios[name]
	return s, ok
}

// Run executes the steps with command.Invoke.
func (s Scenario) Run(ctx context.Context, env *environment.Env) error {
	return s.RunWith(ctx, env, command.Invoke)
}

// RunWith executes the steps with invoke, halting on the first error.
func (s Scenario) RunWith(ctx context.Context, env *environment.Env, invoke Invoker) error {
	log := env.Logger().With(slog.String("scenario", s.Name), slog.String("run_id", env.RunID))
	env.Out.Title("%s on %s", s.Name, env.Network)
	started := time.Now()
	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("场景 %s 在第 %d 步前被取消", s.Name, i+1))
		}
		env.Out.Step(i+1, len(s.Steps), st.Command)
		args, err := st.Args(env)
		if err != nil {
			return err
		}
		log.Info("场景步骤开始", slog.Int("step", i+1), slog.String("command", st.Command), slog.String("args", strings.Join(args, " ")))
		if err := invoke(ctx, env, st.Command, args); err != nil {
			log.Error("场景中止", slog.Int("step", i+1), slog.String("command", st.Command), slog.Any("error", err))
			if hint := xerrors.HintOf(err); hint != "" {
				env.Out.Info("hint: %s", hint)
			}
			return fmt.Errorf("%s step %d/%d %s: %w", s.Name, i+1, len(s.Steps), st.Command, err)
		}
	}
	env.Out.OK("%s finished in %s", s.Name, time.Since(started).Round(time.Millisecond))
	log.Info("场景完成", slog.Duration("elapsed", time.Since(started)))
	return nil
}
