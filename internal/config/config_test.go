package config

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "gelato-runner/internal/errors"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gelato.json")
	content := `{"network":{"default":"local"},"journal":{"driver":"SQLite"},"gas":{"price_gwei":25}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.Default != "local" {
		t.Fatalf("unexpected network %s", cfg.Network.Default)
	}
	if cfg.Network.ProfilesFile != filepath.Join(dir, "networks.yaml") {
		t.Fatalf("profiles file not resolved against config dir: %s", cfg.Network.ProfilesFile)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.DSN != filepath.Join(dir, "data", "journal.db") {
		t.Fatalf("unexpected journal config %+v", cfg.Journal)
	}
	if cfg.Gas.PriceGwei != 25 || cfg.Gas.Limit != 6_000_000 {
		t.Fatalf("unexpected gas config %+v", cfg.Gas)
	}
	if cfg.Demo.Create2Salt != 42069 || cfg.Demo.NumTrades != 3 || cfg.Demo.MonitorSchedule != "@every 20s" {
		t.Fatalf("unexpected demo defaults %+v", cfg.Demo)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	t.Setenv(EnvUserKey, "")
	t.Setenv(EnvProviderKey, "")
	os.Unsetenv(EnvUserKey)
	os.Unsetenv(EnvProviderKey)

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("DEMO_USER_PK=0xaa\nDEMO_PROVIDER_PK=0xbb\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	creds, err := LoadCredentials(envFile)
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if creds.UserKey != "0xaa" || creds.ProviderKey != "0xbb" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestLoadCredentialsMissingIsFatal(t *testing.T) {
	t.Setenv(EnvUserKey, "0xaa")
	t.Setenv(EnvProviderKey, "")

	_, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.env"))
	if err == nil {
		t.Fatal("expected missing provider key to fail")
	}
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("unexpected code %s", xerrors.CodeOf(err))
	}
}
