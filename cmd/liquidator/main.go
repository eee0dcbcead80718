// Command liquidator runs the block-synchronous liquidation agent: it wires
// the RPC client, quote caches, planners and loggers from the environment,
// then hands control to the block watcher until a shutdown signal arrives.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/blockwatch"
	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/adapters/outbound/csvlog"
	"github.com/archon-research/liquidator/internal/adapters/outbound/eventlog"
	"github.com/archon-research/liquidator/internal/adapters/outbound/relay"
	"github.com/archon-research/liquidator/internal/adapters/outbound/telegram"
	"github.com/archon-research/liquidator/internal/app"
	"github.com/archon-research/liquidator/internal/config"
	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/gas"
	"github.com/archon-research/liquidator/internal/pkg/blockchain/erc20"
	"github.com/archon-research/liquidator/internal/pkg/blockchain/multicall"
	"github.com/archon-research/liquidator/internal/pkg/env"
	"github.com/archon-research/liquidator/internal/pkg/workerpool"
	"github.com/archon-research/liquidator/internal/services/dex_router"
	"github.com/archon-research/liquidator/internal/services/hf_scanner"
	"github.com/archon-research/liquidator/internal/services/liquidation"
	"github.com/archon-research/liquidator/internal/services/mev_guard"
	"github.com/archon-research/liquidator/internal/services/price_oracle"
	"github.com/archon-research/liquidator/internal/services/profit"
	"github.com/archon-research/liquidator/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(".env", logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"chain_id", cfg.Network.ChainID,
		"dry_run", cfg.DryRun,
		"executor", cfg.Network.Executor,
		"monitored_users", len(cfg.MonitorUsers))

	events, err := eventlog.New(cfg.EventsLogPath, logger)
	if err != nil {
		logger.Error("failed to open event log", "error", err, "path", cfg.EventsLogPath)
		os.Exit(1)
	}
	defer events.Close()

	csv, err := csvlog.New(cfg.CSVLogPath, logger)
	if err != nil {
		logger.Error("failed to open CSV log", "error", err, "path", cfg.CSVLogPath)
		os.Exit(1)
	}
	defer csv.Close()

	authName, authValue := config.ParseAuthHeader(cfg.Network.AuthHeader)
	rpc, err := chainrpc.NewClient(chainrpc.Config{
		HTTPURL:         cfg.Network.RPCURL,
		PrivateURL:      cfg.Network.PrivateTxURL,
		AuthHeaderName:  authName,
		AuthHeaderValue: authValue,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create RPC client", "error", err)
		os.Exit(1)
	}

	signer, err := wallet.NewSigner(cfg.PrivateKey)
	if err != nil {
		logger.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}
	if cfg.WalletAddress != "" {
		signer.SetAddressOverride(common.HexToAddress(cfg.WalletAddress))
	}
	logger.Info("signer ready", "address", signer.Address())

	nonces := wallet.NewNonceManager(rpc, signer.Address(), logger)
	gasStrategy := gas.NewStrategy(rpc, events, logger)
	escalator := gas.NewEscalator(cfg.RBFBumpFactor, cfg.RBFInterval, cfg.RBFMaxBumps)

	protector := mev_guard.New(mev_guard.Config{
		UsePrivateTx:        cfg.SubmitPrivate,
		MaxSlippageBps:      cfg.MaxSlippageBps,
		RandomizeSubmitMS:   cfg.RandomizeSubmitMS,
		EnableSandwichGuard: cfg.EnableSandwichGuard,
	})

	var relays *relay.Sender
	if len(cfg.RelayURLs) > 0 {
		relays, err = relay.NewSender(cfg.RelayURLs, cfg.RelayAuthHeaders, 0, logger)
		if err != nil {
			logger.Error("failed to create relay sender", "error", err)
			os.Exit(1)
		}
		logger.Info("relay broadcast enabled", "relays", len(cfg.RelayURLs))
	}

	dex, err := dex_router.New(dex_router.Config{
		RPC: rpc,
		VenueA: dex_router.Venue{
			Name:    "quickswap",
			Router:  cfg.Contracts.QuickswapRouter,
			Factory: cfg.Contracts.QuickswapFactory,
		},
		VenueB: dex_router.Venue{
			Name:    "sushiswap",
			Router:  cfg.Contracts.SushiswapRouter,
			Factory: cfg.Contracts.SushiswapFactory,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to create DEX router", "error", err)
		os.Exit(1)
	}

	tokens, err := erc20.NewReader(rpc)
	if err != nil {
		logger.Error("failed to create token reader", "error", err)
		os.Exit(1)
	}

	oracle := price_oracle.New(price_oracle.Config{
		RouterA:          cfg.Contracts.QuickswapRouter,
		RouterB:          cfg.Contracts.SushiswapRouter,
		WrappedNative:    cfg.Contracts.WMATIC,
		Stable:           cfg.Contracts.USDC,
		PriceOverrides:   cfg.PriceUSDOverrides,
		ReserveOverrides: reserveOverrides(cfg),
		Logger:           logger,
	}, dex, tokens)

	builder, err := liquidation.NewCalldataBuilder(cfg.LiqArbSelector, cfg.LiqBatchSelector)
	if err != nil {
		logger.Error("failed to create calldata builder", "error", err)
		os.Exit(1)
	}

	planner, err := liquidation.NewPlanner(liquidation.PlannerConfig{
		MinLiqUSD:       cfg.MinLiqUSD,
		MaxLiqUSD:       cfg.MaxLiqUSD,
		SplitTriggerUSD: cfg.SplitTriggerUSD,
		WrappedNative:   cfg.Contracts.WMATIC,
		Stable:          cfg.Contracts.USDC,
		Executor:        cfg.Network.Executor,
		ProfitReceiver:  signer.Address(),
		Events:          events,
		Logger:          logger,
	}, dex, builder, protector)
	if err != nil {
		logger.Error("failed to create liquidation planner", "error", err)
		os.Exit(1)
	}

	executor, err := liquidation.NewExecutor(liquidation.ExecutorConfig{
		ChainID:        uint64(cfg.Network.ChainID),
		Executor:       cfg.Network.Executor,
		ReceiptTimeout: cfg.ReceiptTimeout,
		Events:         events,
		Logger:         logger,
	}, rpc, signer, nonces, escalator, protector, relays)
	if err != nil {
		logger.Error("failed to create liquidation executor", "error", err)
		os.Exit(1)
	}

	var attempts liquidation.AttemptNotifier
	var reporter app.Reporter
	if cfg.TelegramEnabled() {
		notifier, err := telegram.New(telegram.Config{
			BotToken: cfg.TelegramBotToken,
			ChatID:   cfg.TelegramChatID,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("failed to create telegram notifier", "error", err)
			os.Exit(1)
		}
		attempts = notifier
		reporter = notifier
		logger.Info("telegram notifications enabled")
	}

	manager, err := liquidation.NewManager(liquidation.ManagerConfig{
		DryRun:         cfg.DryRun,
		ChainID:        cfg.Network.ChainID,
		Executor:       cfg.Network.Executor,
		ProfitReceiver: signer.Address(),
		WrappedNative:  cfg.Contracts.WMATIC,
		RPCEndpoint:    cfg.Network.RPCURL,
		SubmitPrivate:  cfg.SubmitPrivate,
		Logger:         logger,
	}, planner, executor, oracle, gasStrategy, dex, builder, liquidation.NewPrecomputeCache(), csv, attempts)
	if err != nil {
		logger.Error("failed to create liquidation manager", "error", err)
		os.Exit(1)
	}

	multicaller, err := multicall.NewClient(rpc, cfg.Contracts.Multicall3)
	if err != nil {
		logger.Error("failed to create multicall client", "error", err)
		os.Exit(1)
	}

	scanner, err := hf_scanner.New(hf_scanner.Config{
		Pool:      cfg.Contracts.AavePool,
		RPC:       rpc,
		Multicall: multicaller,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create health factor scanner", "error", err)
		os.Exit(1)
	}

	sweeper, err := profit.New(profit.Config{
		ChainID:        uint64(cfg.Network.ChainID),
		Tokens:         cfg.ProfitTokens,
		Stable:         cfg.Contracts.USDC,
		Router:         cfg.Contracts.QuickswapRouter,
		MinSwapUSD:     cfg.ProfitMinSwapUSD,
		MaxSlippageBps: cfg.MaxSlippageBps,
		Logger:         logger,
	}, tokens, oracle, dex, gasStrategy, signer, nonces, rpc, protector)
	if err != nil {
		logger.Error("failed to create profit consolidator", "error", err)
		os.Exit(1)
	}

	wsName, wsValue := config.ParseAuthHeader(cfg.WSAuthHeader)
	watcher, err := blockwatch.New(blockwatch.Config{
		Endpoints:       wsEndpoints(cfg),
		AuthHeaderName:  wsName,
		AuthHeaderValue: wsValue,
		RPC:             rpc,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create block watcher", "error", err)
		os.Exit(1)
	}

	pool := workerpool.New(cfg.MaxConcurrency, logger)

	system, err := app.NewSystem(app.SystemConfig{
		MonitorUsers:       cfg.MonitorUsers,
		DebtAssets:         cfg.DebtAssets,
		CollateralAssets:   cfg.CollateralAssets,
		MinLiqUSD:          cfg.MinLiqUSD,
		MaxSlippageBps:     cfg.MaxSlippageBps,
		HFPrecomputeBuffer: cfg.HFPrecomputeBuffer,
		Logger:             logger,
	}, watcher, scanner, manager, pool, dex, sweeper, reporter)
	if err != nil {
		logger.Error("failed to assemble system", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := system.Start(ctx); err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	system.Stop()
	pool.Stop()
	logger.Info("shutdown complete")
}

// reserveOverrides converts configured per-asset liquidation parameters into
// the oracle's domain type.
func reserveOverrides(cfg *config.Config) map[common.Address]entity.ReserveParams {
	if len(cfg.ReserveParamOverrides) == 0 {
		return nil
	}
	overrides := make(map[common.Address]entity.ReserveParams, len(cfg.ReserveParamOverrides))
	for token, o := range cfg.ReserveParamOverrides {
		overrides[token] = entity.ReserveParams{
			LiquidationBonusBps: o.BonusBps,
			CloseFactorBps:      o.CloseFactorBps,
		}
	}
	return overrides
}

// wsEndpoints collects the configured WebSocket URLs, primary first.
func wsEndpoints(cfg *config.Config) []string {
	var endpoints []string
	if cfg.WebsocketURL != "" {
		endpoints = append(endpoints, cfg.WebsocketURL)
	}
	if cfg.WebsocketURLBackup != "" {
		endpoints = append(endpoints, cfg.WebsocketURLBackup)
	}
	return endpoints
}
