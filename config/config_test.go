package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lendsettle/core/types"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Lending.ReferenceKeyword != "USD" || len(cfg.Lending.Markets) != 1 {
		t.Fatalf("unexpected default lending config: %+v", cfg.Lending)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.DataDir != cfg.DataDir || reloaded.JournalDriver != JournalDriverSQLite {
		t.Fatalf("reloaded config differs: %+v", reloaded)
	}
	if reloaded.Lending.Markets[0].Receipt != "LiOsmos" {
		t.Fatalf("market receipt lost on round trip: %+v", reloaded.Lending.Markets[0])
	}
}

func TestLoadParsesMarkets(t *testing.T) {
	path := writeConfig(t, `DataDir = "./data"
Environment = "staging"

[telemetry]
Endpoint = "otel:4318"
Traces = true
Headers = "x-api-key=abc"

[pauses]
Lending = true

[assets]
Escrowable = ["Osmos", "Atoms"]
Mintable = ["LiOsmos", "LiAtoms", "USD"]

[lending]
ReferenceKeyword = "USD"

[lending.messages]
Borrow = "borrow failed"

[[lending.markets]]
Collateral = "Osmos"
Receipt = "LiOsmos"
CollateralUnits = "10"
ReferenceUnits = "4"

[[lending.markets]]
Collateral = "Atoms"
Receipt = "LiAtoms"
CollateralUnits = "1"
ReferenceUnits = "7"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "staging" || cfg.JournalDriver != JournalDriverSQLite {
		t.Fatalf("unexpected top-level fields: %+v", cfg)
	}
	if !cfg.Telemetry.Enabled() || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
	if modules := cfg.Pauses.Modules(); len(modules) != 1 || modules[0] != "lending" {
		t.Fatalf("unexpected pauses: %v", modules)
	}
	ratios, err := cfg.Lending.Ratios()
	if err != nil {
		t.Fatalf("ratios: %v", err)
	}
	if ratios["Atoms"].Denominator != types.AmountOf("USD", 7) {
		t.Fatalf("unexpected Atoms ratio %s", ratios["Atoms"])
	}
	if cfg.Lending.Messages.Borrow != "borrow failed" || cfg.Lending.Messages.Deposit == "" {
		t.Fatalf("unexpected messages: %+v", cfg.Lending.Messages)
	}
	if cfg.LedgerPath() != filepath.Join("data", "ledger") {
		t.Fatalf("unexpected ledger path %s", cfg.LedgerPath())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `DataDir = "./data"
ListenAddress = ":6001"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ListenAddress") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"postgres without dsn": func(c *Config) { c.JournalDriver = JournalDriverPostgres },
		"unknown driver":       func(c *Config) { c.JournalDriver = "mysql" },
		"empty data dir":       func(c *Config) { c.DataDir = " " },
		"collateral mintable":  func(c *Config) { c.Assets.Escrowable = nil; c.Assets.Mintable = append(c.Assets.Mintable, "Osmos") },
		"reference escrowable": func(c *Config) { c.Assets.Mintable = []string{"LiOsmos"}; c.Assets.Escrowable = append(c.Assets.Escrowable, "USD") },
		"receipt unregistered": func(c *Config) { c.Assets.Mintable = []string{"USD"} },
		"duplicate kinds":      func(c *Config) { c.Assets.Escrowable = append(c.Assets.Escrowable, "USD") },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := ValidateConfig(*cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := Default()
	cfg.JournalDriver = JournalDriverPostgres
	cfg.JournalDSN = "host=localhost user=lendsettle dbname=journal sslmode=disable"
	if err := ValidateConfig(*cfg); err != nil {
		t.Fatalf("postgres with dsn should validate: %v", err)
	}
}
