// Package command holds the Gelato task runner commands. Every command
// reads chain state first, returns early when its postcondition already
// holds and sends at most one transaction otherwise.
package command

import (
	"context"
	"fmt"
	"sort"

	"gelato-runner/internal/environment"
	xerrors "gelato-runner/internal/errors"
)

// Categories group commands in the CLI help.
const (
	CategoryProvider = "provider"
	CategoryUser     = "user"
	CategoryFaucet   = "faucet"
	CategoryRead     = "read"
	CategoryTools    = "tools"
)

// RunFunc executes a command against an assembled Env.
type RunFunc func(ctx context.Context, env *environment.Env, args []string) error

// Command describes one named operation.
type Command struct {
	Name      string
	Category  string
	Usage     string
	ArgsUsage string
	MinArgs   int
	// MaxArgs < 0 accepts any number of arguments.
	MaxArgs int
	// Chain and Signers tell the caller how much of the Env to build.
	Chain   bool
	Signers bool
	Run     RunFunc
}

var registry = map[string]Command{}

func register(cmds ...Command) {
	for _, c := range cmds {
		if _, dup := registry[c.Name]; dup {
			panic(fmt.Sprintf("command %s registered twice", c.Name))
		}
		registry[c.Name] = c
	}
}

// Register adds commands defined outside this package. It panics on a
// duplicate name.
func Register(cmds ...Command) {
	register(cmds...)
}

// All returns the registered commands ordered by category then name.
func All() []Command {
	out := make([]Command, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Lookup finds a command by name.
func Lookup(name string) (Command, bool) {
	c, ok := registry[name]
	return c, ok
}

// Invoke validates arguments and requirements, then runs the named command.
func Invoke(ctx context.Context, env *environment.Env, name string, args []string) error {
	c, ok := Lookup(name)
	if !ok {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知命令 %s", name))
	}
	return c.Invoke(ctx, env, args)
}

// Invoke runs c after checking its argument count and Env requirements.
func (c Command) Invoke(ctx context.Context, env *environment.Env, args []string) error {
	if len(args) < c.MinArgs || (c.MaxArgs >= 0 && len(args) > c.MaxArgs) {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("%s 参数个数错误", c.Name), xerrors.WithHint("usage: "+c.Name+" "+c.ArgsUsage))
	}
	if c.Chain {
		if err := env.RequireClient(); err != nil {
			return err
		}
	}
	if c.Signers {
		if err := env.RequireSigners(); err != nil {
			return err
		}
	}
	return c.Run(ctx, env, args)
}

func arg(args []string, i int, fallback string) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return fallback
}
