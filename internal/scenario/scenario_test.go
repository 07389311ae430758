package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gelato-runner/internal/command"
	"gelato-runner/internal/environment"
	"gelato-runner/internal/environment/envtest"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/journal"
)

func TestEveryStepNamesARegisteredCommand(t *testing.T) {
	if len(All()) != 5 {
		t.Fatalf("expected 5 scenarios, got %d", len(All()))
	}
	for _, s := range All() {
		for _, st := range s.Steps {
			if _, ok := command.Lookup(st.Command); !ok {
				t.Fatalf("scenario %s uses unknown command %s", s.Name, st.Command)
			}
		}
	}
}

func TestRunHaltsOnFirstError(t *testing.T) {
	f := envtest.New(t)
	s, _ := Lookup("user-uniswap")
	var ran []string
	rejected := xerrors.New(command.CodeSubmissionRejected, "nonce too low")
	err := s.RunWith(context.Background(), f.Env, func(_ context.Context, _ *environment.Env, name string, _ []string) error {
		ran = append(ran, name)
		if name == "setup-user-proxy" {
			return rejected
		}
		return nil
	})
	if xerrors.CodeOf(err) != command.CodeSubmissionRejected {
		t.Fatalf("expected SUBMISSION_REJECTED, got %v", err)
	}
	if strings.Join(ran, ",") != "create-user-proxy,setup-user-proxy" {
		t.Fatalf("steps after the failure must not run, ran %v", ran)
	}
	if !strings.Contains(err.Error(), "step 2/4") {
		t.Fatalf("error should name the failing step: %v", err)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	f := envtest.New(t)
	s, _ := Lookup("provider-setup")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.RunWith(ctx, f.Env, func(context.Context, *environment.Env, string, []string) error {
		t.Fatal("no step may run on a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func run(t *testing.T, f *envtest.Fixture, name string) error {
	t.Helper()
	s, ok := Lookup(name)
	if !ok {
		t.Fatalf("unknown scenario %s", name)
	}
	return s.Run(context.Background(), f.Env)
}

func methods(f *envtest.Fixture) []string {
	var out []string
	for _, s := range f.Chain.Sent() {
		out = append(out, s.Method)
	}
	return out
}

func TestProviderSetupIsIdempotent(t *testing.T) {
	f := envtest.New(t)
	if err := run(t, f, "provider-setup"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	want := "provideFunds,providerAssignsExecutor,provideTaskSpecs,addProviderModules"
	if got := strings.Join(methods(f), ","); got != want {
		t.Fatalf("sent %s, want %s", got, want)
	}
	if err := run(t, f, "provider-setup"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := len(f.Chain.Sent()); n != 4 {
		t.Fatalf("second run sent transactions, total %d", n)
	}

	if err := run(t, f, "provider-cleanup"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if got := strings.Join(methods(f)[4:], ","); got != "providerAssignsExecutor,multiUnprovide" {
		t.Fatalf("cleanup sent %s", got)
	}
	if f.Protocol.Funds[f.Env.Provider.Address()].Sign() != 0 {
		t.Fatal("provider funds left after cleanup")
	}
}

func TestUserScenarios(t *testing.T) {
	f := envtest.New(t)
	dai := f.Address(t, "DAI")
	f.Protocol.SetToken(dai, f.Env.User.Address(), abiutil.MustParseUnits("10", 18))

	if err := run(t, f, "user-uniswap"); err != nil {
		t.Fatalf("user-uniswap: %v", err)
	}
	want := "createTwo,execAction,approve,submitTaskCycle"
	if got := strings.Join(methods(f), ","); got != want {
		t.Fatalf("sent %s, want %s", got, want)
	}
	if err := run(t, f, "user-withdraw"); err != nil {
		t.Fatalf("user-withdraw: %v", err)
	}
	if got := methods(f)[4]; got != "multiExecActions" {
		t.Fatalf("withdraw sent %s", got)
	}
	if f.Protocol.Funds[envtest.ProxyAddress].Sign() != 0 {
		t.Fatal("proxy funds left after withdraw")
	}
}

func TestUserKyberAfterProviderSetup(t *testing.T) {
	f := envtest.New(t)
	f.Protocol.SetToken(f.Address(t, "DAI"), f.Env.User.Address(), abiutil.MustParseUnits("10", 18))

	if err := run(t, f, "user-kyber"); xerrors.CodeOf(err) != command.CodePreconditionNotMet {
		t.Fatalf("kyber before provider setup: expected PRECONDITION_NOT_MET, got %v", err)
	}
	if err := run(t, f, "provider-setup"); err != nil {
		t.Fatalf("provider-setup: %v", err)
	}
	if err := run(t, f, "user-kyber"); err != nil {
		t.Fatalf("user-kyber: %v", err)
	}
	sent := methods(f)
	if sent[len(sent)-1] != "createTwoExecActionsSubmitTaskCycle" {
		t.Fatalf("sent %v", sent)
	}
	if f.Protocol.TaskCycles != 1 {
		t.Fatalf("task cycles %d", f.Protocol.TaskCycles)
	}
}

func TestRejectedSubmissionStopsScenario(t *testing.T) {
	f := envtest.New(t)
	f.Chain.SendErr = errors.New("insufficient funds for gas * price + value")

	err := run(t, f, "provider-setup")
	if xerrors.CodeOf(err) != command.CodeSubmissionRejected {
		t.Fatalf("expected SUBMISSION_REJECTED, got %v", err)
	}
	recs, lerr := f.Journal.List(context.Background(), journal.BuildListOptions())
	if lerr != nil {
		t.Fatalf("list: %v", lerr)
	}
	if len(recs) != 1 || recs[0].Command != "provide-funds" || recs[0].Status != journal.StatusFailed {
		t.Fatalf("expected only the failed first step in the journal, got %+v", recs)
	}
	if strings.Contains(f.Out.String(), "[2/4]") {
		t.Fatalf("second step must not start:\n%s", f.Out.String())
	}
}
