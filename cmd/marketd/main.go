package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"marketnet/config"
	"marketnet/core"
	"marketnet/core/genesis"
	"marketnet/core/state"
	"marketnet/observability/logging"
	"marketnet/observability/metrics"
	"marketnet/observability/otel"
	"marketnet/rpc"
	"marketnet/storage"
)

const envName = "MARKET_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))
	logger := logging.Setup("marketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(context.Background(), otel.Config{
			ServiceName: "marketd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "market"))
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ledger, err := state.NewLedger(db)
	if err != nil {
		logger.Error("failed to open ledger", slog.Any("error", err))
		os.Exit(1)
	}

	genesisPath := strings.TrimSpace(*genesisFlag)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	if ledger.Round() == 0 && ledger.AppAddress().IsZero() {
		if genesisPath == "" {
			logger.Error("no stored state and no genesis file configured")
			os.Exit(1)
		}
		doc, err := genesis.Load(genesisPath)
		if err != nil {
			logger.Error("failed to load genesis", slog.Any("error", err))
			os.Exit(1)
		}
		if err := doc.Apply(ledger); err != nil {
			logger.Error("failed to apply genesis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("applied genesis", "component", "node", "path", genesisPath)
	}

	node := core.NewNode(ledger, nil, metrics.Market(), logger)
	if cfg.Pauses.Market {
		node.Halts().SetHalted("market", true)
		logger.Warn("marketplace module halted by configuration")
	}

	logger.Info("node ready",
		"component", "node",
		"network", cfg.NetworkName,
		"round", ledger.Round(),
		"app", ledger.AppAddress().String(),
	)

	server := rpc.NewServer(node, cfg.RPCTokenEnv, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
