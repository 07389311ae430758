package environment_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"gelato-runner/internal/config"
	"gelato-runner/internal/environment"
	"gelato-runner/internal/environment/envtest"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato/abiutil"
	"gelato-runner/internal/web3"
	"gelato-runner/internal/web3/web3test"
)

func testConfig(t *testing.T, envBody string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if envBody != "" {
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envBody), 0o600); err != nil {
			t.Fatalf("write env: %v", err)
		}
	}
	cfg := config.Default(dir)
	cfg.Network.ProfilesFile = envtest.ProfilesPath()
	return cfg
}

func TestBuildExpandsInfuraIDWithoutCredentials(t *testing.T) {
	t.Setenv(config.EnvInfuraID, "")
	os.Unsetenv(config.EnvInfuraID)
	cfg := testConfig(t, "DEMO_INFURA_ID=abc123\n")

	var dialed string
	dial := func(_ context.Context, profile web3.NetworkProfile) (web3.Client, error) {
		dialed = profile.ResolvedRPCURL()
		return web3test.New(abiutil.MustDefault()), nil
	}
	env, err := environment.Build(context.Background(), cfg, environment.Options{
		SkipCredentials: true,
		Out:             io.Discard,
		Dialer:          dial,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer env.Close()

	if dialed != "https://rinkeby.infura.io/v3/abc123" {
		t.Fatalf("dialed %q", dialed)
	}
	if env.User != nil || env.Provider != nil {
		t.Fatal("wallets must not be built without credentials")
	}
}

func TestBuildOfflineNeedsNoNodeOrKeys(t *testing.T) {
	cfg := testConfig(t, "")
	env, err := environment.Build(context.Background(), cfg, environment.Options{
		SkipCredentials: true,
		Offline:         true,
		Out:             io.Discard,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer env.Close()

	if env.Network != "rinkeby" || env.Journal == nil {
		t.Fatalf("unexpected env %+v", env)
	}
	if xerrors.CodeOf(env.RequireClient()) != xerrors.CodeInitializationFailure {
		t.Fatal("offline env must report a missing client")
	}
	if xerrors.CodeOf(env.RequireSigners()) != xerrors.CodeInitializationFailure {
		t.Fatal("env without credentials must report missing signers")
	}
}
