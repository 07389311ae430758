package monitor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"gelato-runner/internal/command"
	"gelato-runner/internal/environment/envtest"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
)

func TestPollCountsChanges(t *testing.T) {
	f := envtest.New(t)
	m := New(f.Env)
	ctx := context.Background()

	changed, err := m.Poll(ctx)
	if err != nil || changed {
		t.Fatalf("baseline poll: changed=%v err=%v", changed, err)
	}
	if changed, _ := m.Poll(ctx); changed {
		t.Fatal("nothing moved between polls")
	}

	dai := f.Address(t, "DAI")
	f.Protocol.SetToken(dai, f.Env.User.Address(), abiutil.MustParseUnits("5", 18))
	if changed, err := m.Poll(ctx); err != nil || !changed {
		t.Fatalf("DAI balance change not seen: changed=%v err=%v", changed, err)
	}
	if !strings.Contains(f.Out.String(), "user DAI *") {
		t.Fatalf("changed reading should be marked:\n%s", f.Out.String())
	}

	f.Chain.SetBalance(f.Env.User.Address(), big.NewInt(1))
	f.Protocol.SetAllowance(dai, f.Env.User.Address(), envtest.ProxyAddress, big.NewInt(7))
	if changed, _ := m.Poll(ctx); !changed {
		t.Fatal("ETH and allowance change not seen")
	}
	if m.Changes() != 2 {
		t.Fatalf("two polls changed, counted %d", m.Changes())
	}
}

func TestSnapshotDiff(t *testing.T) {
	prev := Snapshot{{Label: "a", Value: big.NewInt(1)}, {Label: "b", Value: big.NewInt(2)}}
	next := Snapshot{{Label: "a", Value: big.NewInt(1)}, {Label: "b", Value: big.NewInt(3)}, {Label: "c", Value: big.NewInt(0)}}
	if got := strings.Join(next.Diff(prev), ","); got != "b,c" {
		t.Fatalf("diff %s", got)
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	f := envtest.New(t)
	err := Run(context.Background(), f.Env, Options{Schedule: "every now and then", Changes: 1})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	f := envtest.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := Run(ctx, f.Env, Options{Schedule: "@every 1h", Changes: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(f.Chain.Sent()) != 0 {
		t.Fatal("monitor must never send transactions")
	}
}

func TestMonitorCommandRegistered(t *testing.T) {
	c, ok := command.Lookup("monitor-balances")
	if !ok {
		t.Fatal("monitor-balances not registered")
	}
	f := envtest.New(t)
	err := c.Invoke(context.Background(), f.Env, []string{"@every 1h", "zero"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for a bad change count, got %v", err)
	}
}
