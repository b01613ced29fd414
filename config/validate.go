package config

import (
	"fmt"
	"strings"

	"nftmarket/crypto"
)

// MinJWTSecretLength is the shortest HS256 secret the RPC server accepts.
const MinJWTSecretLength = 16

// ValidateConfig checks the resolved configuration before the node starts.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if minter := strings.TrimSpace(cfg.Minter); minter != "" {
		if _, err := crypto.ParseMarketAddress(minter); err != nil {
			return fmt.Errorf("config: Minter: %w", err)
		}
	}
	if len(cfg.RPC.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("rpc: JWT secret must be at least %d bytes (set %s)", MinJWTSecretLength, cfg.RPC.JWTSecretEnv)
	}
	if cfg.RPC.RequestsPerSecond <= 0 {
		return fmt.Errorf("rpc: RequestsPerSecond must be positive")
	}
	if cfg.RPC.Burst <= 0 {
		return fmt.Errorf("rpc: Burst must be positive")
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must be positive")
	}
	if cfg.Indexer.Enabled {
		switch cfg.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
		}
		if strings.TrimSpace(cfg.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required")
		}
	}
	return nil
}
