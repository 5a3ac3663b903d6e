package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lendsettle/native/lending"
)

// Config is the node configuration of the settlement host.
type Config struct {
	DataDir       string         `toml:"DataDir"`
	Environment   string         `toml:"Environment"`
	JournalDriver string         `toml:"JournalDriver"`
	JournalDSN    string         `toml:"JournalDSN"`
	Telemetry     Telemetry      `toml:"telemetry"`
	Pauses        Pauses         `toml:"pauses"`
	Assets        Assets         `toml:"assets"`
	Lending       lending.Config `toml:"lending"`
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	applyDefaults(cfg)
	if err := ValidateConfig(*cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written by Load for a missing file.
func Default() *Config {
	return &Config{
		DataDir:       "./lendsettle-data",
		Environment:   "local",
		JournalDriver: JournalDriverSQLite,
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
		Assets: Assets{
			Escrowable: []string{"Osmos"},
			Mintable:   []string{"LiOsmos", "USD"},
		},
		Lending: lending.DefaultConfig(),
	}
}

// JournalPath is where the sqlite journal lives when no DSN is configured.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// LedgerPath is the LevelDB directory holding balance stores.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger")
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./lendsettle-data"
	}
	cfg.JournalDriver = strings.ToLower(strings.TrimSpace(cfg.JournalDriver))
	if cfg.JournalDriver == "" {
		cfg.JournalDriver = JournalDriverSQLite
	}
	if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
	if cfg.Assets.Escrowable == nil {
		cfg.Assets.Escrowable = []string{}
	}
	if cfg.Assets.Mintable == nil {
		cfg.Assets.Mintable = []string{}
	}
	cfg.Lending = cfg.Lending.Normalize()
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
