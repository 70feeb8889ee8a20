package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.MaxClosedOrders != 500 {
		t.Errorf("MaxClosedOrders = %d, want 500", cfg.MaxClosedOrders)
	}
	if cfg.SyncTolerance != 1e-8 {
		t.Errorf("SyncTolerance = %v, want 1e-8", cfg.SyncTolerance)
	}
	if cfg.APIRateLimit != 20 || cfg.APIRateBurst != 50 {
		t.Errorf("API rate = %v/%d, want 20/50", cfg.APIRateLimit, cfg.APIRateBurst)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("MAX_SYNC_RETRIES", "7")
	t.Setenv("SYNC_TOLERANCE", "0.001")
	t.Setenv("API_RATE_LIMIT", "5")
	t.Setenv("API_RATE_BURST", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.MaxSyncRetries != 7 {
		t.Errorf("MaxSyncRetries = %d, want 7", cfg.MaxSyncRetries)
	}
	if cfg.SyncTolerance != 0.001 {
		t.Errorf("SyncTolerance = %v, want 0.001", cfg.SyncTolerance)
	}
	if cfg.APIRateLimit != 5 || cfg.APIRateBurst != 10 {
		t.Errorf("API rate = %v/%d, want 5/10", cfg.APIRateLimit, cfg.APIRateBurst)
	}
}

func TestLoadAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	data := `accounts:
  - name: main
    exchange: weex
    api_key: k
    api_secret: s
    passphrase: p
  - name: hedge
    exchange: weex
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	accounts, err := LoadAccounts(path)
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts))
	}
	if accounts[0].Name != "main" || accounts[0].Exchange != "weex" || accounts[0].APIKey != "k" {
		t.Errorf("accounts[0] = %+v", accounts[0])
	}
}

func TestLoadAccountsValidation(t *testing.T) {
	dir := t.TempDir()

	missingName := filepath.Join(dir, "noname.yaml")
	os.WriteFile(missingName, []byte("accounts:\n  - exchange: weex\n"), 0o600)
	if _, err := LoadAccounts(missingName); err == nil {
		t.Error("missing name accepted")
	}

	missingExchange := filepath.Join(dir, "noexchange.yaml")
	os.WriteFile(missingExchange, []byte("accounts:\n  - name: main\n"), 0o600)
	if _, err := LoadAccounts(missingExchange); err == nil {
		t.Error("missing exchange accepted")
	}

	if _, err := LoadAccounts(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("absent file accepted")
	}
}
