package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validTOML = `
[market]
coin = "@1434"
testnet = false

[strategy]
start_px = 1.0
n_orders = 20
order_sz = 1.0
n_seeded_levels = 5

[allocation]
allocated_token = 100.0
allocated_usdc = 500.0

[tuning]
interval_s = 2.5
dead_zone_bps = 4.0

[logging]
level = "debug"
format = "json"

[journal]
path = "fills.db"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Market.Coin != "@1434" {
		t.Errorf("coin = %q", cfg.Market.Coin)
	}
	if cfg.Strategy.NOrders != 20 || cfg.Strategy.StartPx != 1.0 {
		t.Errorf("strategy = %+v", cfg.Strategy)
	}
	if cfg.Tuning.IntervalS != 2.5 {
		t.Errorf("interval = %v, want file value 2.5", cfg.Tuning.IntervalS)
	}
	if cfg.Journal.Path != "fills.db" {
		t.Errorf("journal path = %q", cfg.Journal.Path)
	}
}

func TestLoadAppliesTuningDefaults(t *testing.T) {
	t.Parallel()

	minimal := `
[market]
coin = "@1434"
[strategy]
start_px = 1.0
n_orders = 20
order_sz = 1.0
[allocation]
allocated_token = 1.0
allocated_usdc = 1.0
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Tuning.IntervalS != 3.0 {
		t.Errorf("interval_s default = %v, want 3.0", cfg.Tuning.IntervalS)
	}
	if cfg.Tuning.DeadZoneBps != 5.0 {
		t.Errorf("dead_zone_bps default = %v, want 5.0", cfg.Tuning.DeadZoneBps)
	}
	if cfg.Tuning.PriceToleranceBps != 1.0 || cfg.Tuning.SizeTolerancePct != 1.0 {
		t.Errorf("tolerance defaults = %+v", cfg.Tuning)
	}
	if cfg.Tuning.ReconcileEvery != 20 {
		t.Errorf("reconcile_every default = %v, want 20", cfg.Tuning.ReconcileEvery)
	}
	if cfg.Tuning.MinNotional != 0 {
		t.Errorf("min_notional default = %v, want 0", cfg.Tuning.MinNotional)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Journal.Path != "" {
		t.Errorf("journal should default to disabled, got %q", cfg.Journal.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	t.Parallel()

	if _, err := Load(writeConfig(t, "[market\ncoin=")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{} // everything missing or zero
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	msg := err.Error()
	for _, want := range []string{
		"market.coin",
		"strategy.start_px",
		"strategy.n_orders",
		"strategy.order_sz",
		"allocation.allocated_token",
		"allocation.allocated_usdc",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation message missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateRejectsBadLogging(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Logging.Level = "verbose"
	cfg.Logging.Format = "xml"

	verr := cfg.Validate()
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(verr.Error(), "logging.level") || !strings.Contains(verr.Error(), "logging.format") {
		t.Errorf("message = %q", verr.Error())
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvPrivateKey, "  0xdeadbeef  ")
	t.Setenv(EnvWallet, "0xabc ")

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.PrivateKey != "0xdeadbeef" {
		t.Errorf("private key = %q, want trimmed", creds.PrivateKey)
	}
	if creds.Wallet != "0xabc" {
		t.Errorf("wallet = %q, want trimmed", creds.Wallet)
	}
}

func TestLoadCredentialsMissingBothReportsBoth(t *testing.T) {
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvWallet, "   ")

	_, err := LoadCredentials()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), EnvPrivateKey) || !strings.Contains(err.Error(), EnvWallet) {
		t.Errorf("error = %q, want both variables named", err)
	}
}
