package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gelato-runner/internal/command"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/scenario"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	profiles, err := filepath.Abs(filepath.Join("..", "..", "configs", "networks.yaml"))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	dir := t.TempDir()
	body := `{"network": {"profiles_file": "` + filepath.ToSlash(profiles) + `"}, "journal": {"driver": "memory"}}`
	path := filepath.Join(dir, "gelato.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppRegistersEveryCommandAndScenario(t *testing.T) {
	app := newApp(&bytes.Buffer{})
	names := make(map[string]bool)
	for _, c := range app.Commands {
		names[c.Name] = true
	}
	for _, c := range command.All() {
		if !names[c.Name] {
			t.Fatalf("command %s missing from the CLI", c.Name)
		}
	}
	for _, s := range scenario.All() {
		if !names[s.Name] {
			t.Fatalf("scenario %s missing from the CLI", s.Name)
		}
	}
	if !names["monitor-balances"] {
		t.Fatal("monitor-balances missing from the CLI")
	}
}

func TestOfflineEncodeNeedsNoKeysOrNode(t *testing.T) {
	out := &bytes.Buffer{}
	args := []string{"gelato", "--config", writeConfig(t), "abi-encode", "IERC20", "approve",
		"0x0000000000000000000000000000000000000001", "1"}
	if err := run(context.Background(), args, out); err != nil {
		t.Fatalf("abi-encode: %v", err)
	}
	if !strings.Contains(out.String(), "0x095ea7b3") {
		t.Fatalf("expected the approve selector in the output:\n%s", out.String())
	}
}

func TestMissingConfigIsInitializationFailure(t *testing.T) {
	args := []string{"gelato", "--config", filepath.Join(t.TempDir(), "absent.json"), "gas-price"}
	err := run(context.Background(), args, &bytes.Buffer{})
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected INITIALIZATION_FAILURE, got %v", err)
	}
	if xerrors.ExitCode(err) != 1 {
		t.Fatal("failures must exit 1")
	}
}

func TestScenarioRejectsArguments(t *testing.T) {
	args := []string{"gelato", "--config", writeConfig(t), "provider-setup", "extra"}
	err := run(context.Background(), args, &bytes.Buffer{})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}
