package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the marketd daemon configuration, read from a TOML file. A
// missing file is replaced by a freshly persisted default so the daemon can
// start from an empty directory.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	NetworkName string `toml:"NetworkName"`
	Environment string `toml:"Environment"`

	// RPCTokenEnv names the environment variable holding the bearer token
	// for privileged RPC methods. Leaving it empty disables write methods.
	RPCTokenEnv string `toml:"RPCTokenEnv"`

	Telemetry Telemetry `toml:"Telemetry"`
	Pauses    Pauses    `toml:"Pauses"`
}

// Telemetry configures the optional OpenTelemetry exporters.
type Telemetry struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	Headers  string `toml:"Headers"`
}

// Pauses lists modules the operator wants halted at startup.
type Pauses struct {
	Market bool `toml:"Market"`
}

// Load reads the configuration from the given path, creating and persisting
// a default file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if cfg.Telemetry.Enabled && !cfg.Telemetry.Traces && !cfg.Telemetry.Metrics {
		return fmt.Errorf("Telemetry enabled but neither Traces nor Metrics selected")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./market-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "market-local"
	}
	if strings.TrimSpace(cfg.RPCTokenEnv) == "" {
		cfg.RPCTokenEnv = "MARKET_RPC_TOKEN"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
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
