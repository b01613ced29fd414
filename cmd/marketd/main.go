package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nftmarket/config"
	"nftmarket/core"
	"nftmarket/core/events"
	"nftmarket/core/genesis"
	"nftmarket/crypto"
	"nftmarket/indexer"
	"nftmarket/native/market"
	"nftmarket/observability"
	"nftmarket/observability/logging"
	telemetry "nftmarket/observability/otel"
	"nftmarket/rpc"
	"nftmarket/storage"
)

const (
	serviceName    = "marketd"
	genesisPathEnv = "MARKET_GENESIS"
)

type envLookupFunc func(string) (string, bool)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides MARKET_GENESIS and config GenesisFile)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *genesisFlag, os.LookupEnv); err != nil {
		slog.Error("marketd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, genesisFlag string, lookup envLookupFunc) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db)
	if err != nil {
		return err
	}
	node.SetLogger(logger)

	emitters := events.Fanout{observability.Events()}
	var history rpc.HistorySource
	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		ix := indexer.New(gdb, logger.With(slog.String("component", "indexer")))
		defer ix.Close()
		logger.Info("sale indexer enabled",
			slog.String("driver", cfg.Indexer.Driver),
			logging.MaskField("dsn", cfg.Indexer.DSN))
		emitters = append(emitters, ix)
		history = ix
	}
	genesisPath := resolveGenesisPath(genesisFlag, cfg.GenesisFile, lookup)
	if err := bootstrap(ctx, node, emitters, genesisPath, cfg.Minter, logger); err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	server, err := rpc.NewServer(node, history, serverConfig(cfg), logger.With(slog.String("component", "rpc")))
	if err != nil {
		return err
	}
	logger.Info("market node started",
		slog.Uint64("height", node.Height()),
		slog.String("root", node.Root().Hex()),
		slog.String("rpc", cfg.RPCAddress))
	return server.Serve(ctx, cfg.RPCAddress)
}

// bootstrap wires the emitter before any transition so genesis events reach
// the indexer, then applies genesis and the configured minter.
func bootstrap(ctx context.Context, node *core.Node, emitter events.Emitter, genesisPath, minter string, logger *slog.Logger) error {
	node.SetEmitter(emitter)
	if err := applyGenesis(ctx, node, genesisPath, logger); err != nil {
		return err
	}
	return configureMinter(ctx, node, minter, logger)
}

func applyGenesis(ctx context.Context, node *core.Node, path string, logger *slog.Logger) error {
	if path == "" {
		if node.Height() == 0 {
			logger.Warn("starting from empty state without genesis")
		}
		return nil
	}
	spec, err := genesis.Load(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	err = node.ApplyGenesis(ctx, spec)
	switch {
	case errors.Is(err, core.ErrGenesisApplied):
		logger.Info("genesis already applied", slog.Uint64("height", node.Height()))
		return nil
	case err != nil:
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied", slog.String("path", path), slog.String("root", node.Root().Hex()))
	return nil
}

// configureMinter records the configured minter, or warns when minting is
// closed because neither genesis nor the config names one.
func configureMinter(ctx context.Context, node *core.Node, raw string, logger *slog.Logger) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if _, err := node.Minter(); errors.Is(err, market.ErrNotFound) {
			logger.Warn("no minter configured; minting is disabled")
		}
		return nil
	}
	minter, err := crypto.ParseMarketAddress(raw)
	if err != nil {
		return fmt.Errorf("minter: %w", err)
	}
	if err := node.SetMinter(ctx, minter); err != nil {
		if errors.Is(err, market.ErrClaimed) {
			return fmt.Errorf("configured minter %s differs from the recorded minter: %w", raw, err)
		}
		return fmt.Errorf("set minter: %w", err)
	}
	logger.Info("minter configured", slog.String("minter", raw))
	return nil
}

func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}

func serverConfig(cfg *config.Config) rpc.ServerConfig {
	seconds := func(v int) time.Duration { return time.Duration(v) * time.Second }
	return rpc.ServerConfig{
		JWTSecret:         cfg.RPC.JWTSecret,
		JWTIssuer:         cfg.RPC.JWTIssuer,
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeout),
	}
}
