package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gelato-runner/internal/command"
	"gelato-runner/internal/config"
	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
	_ "gelato-runner/internal/monitor"
	"gelato-runner/internal/report"
	"gelato-runner/internal/scenario"
	"gelato-runner/pkg/logger"

	"github.com/urfave/cli/v2"
)

const categoryScenario = "scenario"

// main 是 gelato 命令行的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args, os.Stdout)
	if err != nil {
		out := report.New(os.Stderr)
		out.Fail("%v", err)
		if hint := xerrors.HintOf(err); hint != "" {
			out.Info("hint: %s", hint)
		}
	}
	_ = logger.Sync()
	stop()
	os.Exit(xerrors.ExitCode(err))
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	return newApp(stdout).RunContext(ctx, args)
}

// runtime carries what the global flags resolved to.
type runtime struct {
	cfg     *config.Config
	network string
	verbose bool
	timeout time.Duration
	stdout  io.Writer
}

func newApp(stdout io.Writer) *cli.App {
	rt := &runtime{stdout: stdout}
	app := &cli.App{
		Name:                 "gelato",
		Usage:                "drive the Gelato V1 demo against a live network",
		Writer:               stdout,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   filepath.Join("configs", "gelato.json"),
				EnvVars: []string{"GELATO_CONFIG"},
				Usage:   "runtime configuration file",
			},
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				EnvVars: []string{"GELATO_NETWORK"},
				Usage:   "network profile, the configured default when empty",
			},
			&cli.BoolFlag{
				Name:  "log",
				Usage: "print decoded return values and debug logs",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "bound the wait for each confirmation, unbounded when zero",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载配置失败",
					xerrors.WithHint("pass --config or set GELATO_CONFIG"))
			}
			rt.cfg = cfg
			rt.network = c.String("network")
			rt.verbose = c.Bool("log")
			rt.timeout = c.Duration("timeout")

			level := cfg.Logging.Level
			if rt.verbose {
				level = "debug"
			}
			return logger.Init(logger.Config{
				Level:       level,
				Format:      cfg.Logging.Format,
				OutputPaths: cfg.Logging.Outputs,
				Audit: logger.AuditConfig{
					Enabled:    cfg.Logging.Audit.Enabled,
					Path:       cfg.Logging.Audit.Path,
					MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
					MaxBackups: cfg.Logging.Audit.MaxBackups,
					MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
				},
			})
		},
	}

	for _, cmd := range command.All() {
		app.Commands = append(app.Commands, rt.commandFor(cmd))
	}
	for _, s := range scenario.All() {
		app.Commands = append(app.Commands, rt.scenarioFor(s))
	}
	return app
}

// env builds the Env one command needs; offline tools never dial and never
// read keys.
func (rt *runtime) env(ctx context.Context, chain, signers bool) (*environment.Env, error) {
	return environment.Build(ctx, rt.cfg, environment.Options{
		Network:         rt.network,
		SkipCredentials: !signers,
		Offline:         !chain,
		Out:             rt.stdout,
		Verbose:         rt.verbose,
		Timeout:         rt.timeout,
	})
}

func (rt *runtime) commandFor(cmd command.Command) *cli.Command {
	return &cli.Command{
		Name:      cmd.Name,
		Category:  cmd.Category,
		Usage:     cmd.Usage,
		ArgsUsage: cmd.ArgsUsage,
		Action: func(c *cli.Context) error {
			env, err := rt.env(c.Context, cmd.Chain, cmd.Signers)
			if err != nil {
				return err
			}
			defer env.Close()
			return cmd.Invoke(c.Context, env, c.Args().Slice())
		},
	}
}

func (rt *runtime) scenarioFor(s scenario.Scenario) *cli.Command {
	return &cli.Command{
		Name:     s.Name,
		Category: categoryScenario,
		Usage:    s.Description,
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("场景 %s 不接受参数", s.Name))
			}
			env, err := rt.env(c.Context, true, true)
			if err != nil {
				return err
			}
			defer env.Close()
			return s.Run(c.Context, env)
		},
	}
}
