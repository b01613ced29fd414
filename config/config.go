package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultJWTSecretEnv is consulted for the RPC signing secret when the file
// does not name another variable.
const DefaultJWTSecretEnv = "MARKET_RPC_JWT_SECRET"

type Config struct {
	RPCAddress  string    `toml:"RPCAddress"`
	DataDir     string    `toml:"DataDir"`
	GenesisFile string    `toml:"GenesisFile"`
	Environment string    `toml:"Environment"`
	// Minter is the only address allowed to mint. It is recorded in state on
	// first start; a value that differs from the recorded minter fails startup.
	Minter      string    `toml:"Minter,omitempty"`
	RPC         RPC       `toml:"rpc"`
	Logging     Logging   `toml:"logging"`
	Telemetry   Telemetry `toml:"telemetry"`
	Indexer     Indexer   `toml:"indexer"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Secrets named by *Env fields are resolved from the
// environment and never written back.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := defaults()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = def.Environment
	}
	if cfg.RPC.JWTSecretEnv == "" {
		cfg.RPC.JWTSecretEnv = DefaultJWTSecretEnv
	}
	if cfg.RPC.JWTIssuer == "" {
		cfg.RPC.JWTIssuer = def.RPC.JWTIssuer
	}
	if cfg.RPC.RequestsPerSecond == 0 {
		cfg.RPC.RequestsPerSecond = def.RPC.RequestsPerSecond
	}
	if cfg.RPC.Burst == 0 {
		cfg.RPC.Burst = def.RPC.Burst
	}
	if cfg.RPC.ReadHeaderTimeout == 0 {
		cfg.RPC.ReadHeaderTimeout = def.RPC.ReadHeaderTimeout
	}
	if cfg.RPC.ReadTimeout == 0 {
		cfg.RPC.ReadTimeout = def.RPC.ReadTimeout
	}
	if cfg.RPC.WriteTimeout == 0 {
		cfg.RPC.WriteTimeout = def.RPC.WriteTimeout
	}
	if cfg.RPC.IdleTimeout == 0 {
		cfg.RPC.IdleTimeout = def.RPC.IdleTimeout
	}
	if cfg.RPC.MaxBodyBytes == 0 {
		cfg.RPC.MaxBodyBytes = def.RPC.MaxBodyBytes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = def.Indexer.Driver
	}
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Enabled && cfg.Indexer.DSN == "" && cfg.Indexer.Driver == "sqlite" {
		cfg.Indexer.DSN = filepath.Join(cfg.DataDir, "sales.db")
	}
}

func applyEnv(cfg *Config) {
	if name := strings.TrimSpace(cfg.RPC.JWTSecretEnv); name != "" {
		if secret := os.Getenv(name); secret != "" {
			cfg.RPC.JWTSecret = secret
		}
	}
	if name := strings.TrimSpace(cfg.Indexer.DSNEnv); name != "" {
		if dsn := os.Getenv(name); dsn != "" {
			cfg.Indexer.DSN = dsn
		}
	}
}

func defaults() *Config {
	return &Config{
		RPCAddress:  ":8645",
		DataDir:     "./market-data",
		Environment: "dev",
		RPC: RPC{
			JWTSecretEnv:      DefaultJWTSecretEnv,
			JWTIssuer:         "nftmarket",
			RequestsPerSecond: 20,
			Burst:             40,
			ReadHeaderTimeout: 5,
			ReadTimeout:       15,
			WriteTimeout:      15,
			IdleTimeout:       60,
			MaxBodyBytes:      1 << 20,
		},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		Indexer: Indexer{Enabled: true, Driver: "sqlite", DSNEnv: "MARKET_INDEXER_DSN"},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaults()
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
