// Package config loads the agent configuration from a key=value file and the
// process environment. Values already present in the environment take
// precedence over the file; unknown keys are ignored.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/archon-research/liquidator/internal/pkg/env"
)

// Polygon mainnet deployments, used when the corresponding key is not set.
const (
	DefaultChainID          = 137
	DefaultAavePool         = "0x794a61358D6845594F94dc1DB02A252b5b4814aD"
	DefaultMulticall3       = "0xcA11bde05977b3631167028862bE2a173976CA11"
	DefaultQuickswapRouter  = "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff"
	DefaultSushiswapRouter  = "0x1b02da8cb0d097eb8d57a175b88c7d8b47997506"
	DefaultQuickswapFactory = "0x5757371414417b8c6caad45baef941abc7d3ab32"
	DefaultSushiswapFactory = "0xc35DADB65012eC5796536bD9864eDe8773aBc74C"
	DefaultWMATIC           = "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"
	DefaultUSDC             = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

const (
	defaultMinLiqUSD          = 100.0
	defaultMaxLiqUSD          = 51000.0
	defaultMaxSlippageBps     = 50.0
	defaultSplitTriggerUSD    = 15000.0
	defaultHFPrecomputeBuffer = 0.05
	defaultRBFBumpFactor      = 1.2
	defaultRBFIntervalSec     = 4
	defaultRBFMaxBumps        = 3
	defaultReceiptTimeoutMS   = 3000
	defaultMaxConcurrency     = 2
	defaultProfitMinSwapUSD   = 50.0
	defaultCSVLogPath         = "liquidation_log.csv"
	defaultEventsLogPath      = "metrics.jsonl"
)

// Network describes the chain endpoints selected by the DRY_RUN profile.
// Dry runs target a local mainnet fork (Anvil/Hardhat); live runs use the
// public RPC if provided, otherwise the Nodies endpoints including the
// private transaction relay.
type Network struct {
	ChainID      int64
	RPCURL       string
	PrivateTxURL string
	AuthHeader   string // "Name: Value", attached to every HTTP RPC request
	Executor     common.Address
}

// Contracts holds the on-chain deployments the agent talks to.
type Contracts struct {
	AavePool         common.Address
	Multicall3       common.Address
	QuickswapRouter  common.Address
	SushiswapRouter  common.Address
	QuickswapFactory common.Address
	SushiswapFactory common.Address
	WMATIC           common.Address
	USDC             common.Address
}

// ReserveOverride carries per-asset liquidation parameters configured via
// RESERVE_PARAM_OVERRIDES.
type ReserveOverride struct {
	BonusBps       int
	CloseFactorBps int
}

// Config is the fully resolved agent configuration.
type Config struct {
	DryRun    bool
	Network   Network
	Contracts Contracts

	PrivateKey    string
	WalletAddress string // optional override of the derived signer address

	WebsocketURL       string
	WebsocketURLBackup string
	WSAuthHeader       string

	MonitorUsers     []common.Address
	DebtAssets       []common.Address
	CollateralAssets []common.Address

	MinLiqUSD          float64
	MaxLiqUSD          float64
	MaxSlippageBps     float64
	SplitTriggerUSD    float64
	HFPrecomputeBuffer float64

	RBFBumpFactor  float64
	RBFInterval    time.Duration
	RBFMaxBumps    int
	ReceiptTimeout time.Duration
	MaxConcurrency int

	SubmitPrivate       bool
	RelayURLs           []string
	RelayAuthHeaders    []string
	RandomizeSubmitMS   int
	EnableSandwichGuard bool

	PriceUSDOverrides     map[common.Address]float64
	ReserveParamOverrides map[common.Address]ReserveOverride

	// Optional 4-byte overrides for the executor contract entry points.
	LiqArbSelector   []byte
	LiqBatchSelector []byte

	ProfitTokens     []common.Address
	ProfitMinSwapUSD float64

	TelegramBotToken string
	TelegramChatID   string

	CSVLogPath    string
	EventsLogPath string
}

// Load reads the key=value file at path (if it exists) into the process
// environment and resolves the typed configuration. A missing file is not an
// error; required keys must then come from the environment itself.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			logger.Warn("config file not found, using process environment only", "path", path)
		}
	}

	cfg := &Config{
		DryRun: env.GetBool("DRY_RUN", true),

		PrivateKey:    env.Get("PRIVATE_KEY", ""),
		WalletAddress: env.Get("WALLET_ADDRESS", ""),

		WebsocketURL:       env.Get("WEBSOCKET_RPC_URL", ""),
		WebsocketURLBackup: env.Get("WEBSOCKET_RPC_URL_BACKUP", ""),
		WSAuthHeader:       env.Get("WS_AUTH_HEADER", ""),

		MinLiqUSD:          env.GetFloat("MIN_LIQ_USD", defaultMinLiqUSD),
		MaxLiqUSD:          env.GetFloat("MAX_LIQ_USD", defaultMaxLiqUSD),
		MaxSlippageBps:     env.GetFloat("MAX_SLIPPAGE_BPS", defaultMaxSlippageBps),
		SplitTriggerUSD:    env.GetFloat("SPLIT_TRIGGER_USD", defaultSplitTriggerUSD),
		HFPrecomputeBuffer: env.GetFloat("HF_PRECOMPUTE_BUFFER", defaultHFPrecomputeBuffer),

		RBFBumpFactor:  env.GetFloat("RBF_BUMP_FACTOR", defaultRBFBumpFactor),
		RBFInterval:    time.Duration(env.GetInt("RBF_INTERVAL_SEC", defaultRBFIntervalSec)) * time.Second,
		RBFMaxBumps:    env.GetInt("RBF_MAX_BUMPS", defaultRBFMaxBumps),
		ReceiptTimeout: time.Duration(env.GetInt("RECEIPT_TIMEOUT_MS", defaultReceiptTimeoutMS)) * time.Millisecond,
		MaxConcurrency: env.GetInt("MAX_CONCURRENCY", defaultMaxConcurrency),

		SubmitPrivate:       env.GetBool("SUBMIT_PRIVATE", true),
		RelayURLs:           parseStringList(env.Get("RELAY_URLS", "")),
		RelayAuthHeaders:    parseStringList(env.Get("RELAY_AUTH_HEADERS", "")),
		RandomizeSubmitMS:   env.GetInt("RANDOMIZE_SUBMIT_MS", 0),
		EnableSandwichGuard: env.GetBool("ENABLE_SANDWICH_GUARD", false),

		ProfitMinSwapUSD: env.GetFloat("PROFIT_MIN_SWAP_USD", defaultProfitMinSwapUSD),

		TelegramBotToken: env.Get("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   env.Get("TELEGRAM_CHAT_ID", ""),

		CSVLogPath:    env.Get("CSV_LOG_PATH", defaultCSVLogPath),
		EventsLogPath: env.Get("EVENTS_LOG_PATH", defaultEventsLogPath),
	}

	var err error
	if cfg.Network, err = loadNetwork(cfg.DryRun); err != nil {
		return nil, err
	}
	if cfg.Contracts, err = loadContracts(); err != nil {
		return nil, err
	}

	if cfg.MonitorUsers, err = parseAddressList("MONITOR_USERS", env.Get("MONITOR_USERS", "")); err != nil {
		return nil, err
	}
	debtCSV := env.Get("DEBT_ASSETS", env.Get("DEFAULT_DEBT_ASSET", ""))
	if cfg.DebtAssets, err = parseAddressList("DEBT_ASSETS", debtCSV); err != nil {
		return nil, err
	}
	collatCSV := env.Get("COLLATERAL_ASSETS", env.Get("DEFAULT_COLLATERAL_ASSET", ""))
	if cfg.CollateralAssets, err = parseAddressList("COLLATERAL_ASSETS", collatCSV); err != nil {
		return nil, err
	}
	if cfg.ProfitTokens, err = parseAddressList("PROFIT_TOKENS", env.Get("PROFIT_TOKENS", "")); err != nil {
		return nil, err
	}

	if cfg.PriceUSDOverrides, err = parsePriceOverrides(env.Get("PRICE_USD_OVERRIDES", "")); err != nil {
		return nil, err
	}
	if cfg.ReserveParamOverrides, err = parseReserveOverrides(env.Get("RESERVE_PARAM_OVERRIDES", "")); err != nil {
		return nil, err
	}

	if cfg.LiqArbSelector, err = parseSelector("EXECUTOR_LIQ_ARB_SELECTOR", env.Get("EXECUTOR_LIQ_ARB_SELECTOR", "")); err != nil {
		return nil, err
	}
	if cfg.LiqBatchSelector, err = parseSelector("EXECUTOR_LIQ_BATCH_SELECTOR", env.Get("EXECUTOR_LIQ_BATCH_SELECTOR", "")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadNetwork resolves the endpoint profile. DRY_RUN targets a local fork and
// requires FORK_RPC_URL; live mode prefers PUBLIC_RPC_URL and otherwise falls
// back to the Nodies endpoints.
func loadNetwork(dryRun bool) (Network, error) {
	var n Network
	if dryRun {
		n.ChainID = int64(env.GetInt("FORK_CHAIN_ID", DefaultChainID))
		n.RPCURL = env.Get("FORK_RPC_URL", "")
		if n.RPCURL == "" {
			return n, fmt.Errorf("missing required config: FORK_RPC_URL (DRY_RUN=true)")
		}
		n.AuthHeader = env.Get("FORK_AUTH_HEADER", "")
		executor := env.Get("FORK_EXECUTOR_ADDRESS", env.Get("EXECUTOR_ADDRESS", ""))
		if executor != "" {
			addr, err := parseAddress("FORK_EXECUTOR_ADDRESS", executor)
			if err != nil {
				return n, err
			}
			n.Executor = addr
		}
		return n, nil
	}

	n.ChainID = DefaultChainID
	if pub := env.Get("PUBLIC_RPC_URL", ""); pub != "" {
		n.RPCURL = pub
	} else {
		n.RPCURL = env.Get("NODIES_RPC_URL", "")
		if n.RPCURL == "" {
			return n, fmt.Errorf("missing required config: PUBLIC_RPC_URL or NODIES_RPC_URL")
		}
		n.PrivateTxURL = env.Get("NODIES_PRIVATE_TX_URL", "")
		n.AuthHeader = env.Get("NODIES_AUTH_HEADER", "")
	}
	executor := env.Get("EXECUTOR_ADDRESS", "")
	if executor == "" {
		return n, fmt.Errorf("missing required config: EXECUTOR_ADDRESS")
	}
	addr, err := parseAddress("EXECUTOR_ADDRESS", executor)
	if err != nil {
		return n, err
	}
	n.Executor = addr
	return n, nil
}

func loadContracts() (Contracts, error) {
	var c Contracts
	for _, entry := range []struct {
		key      string
		fallback string
		dst      *common.Address
	}{
		{"AAVE_POOL", DefaultAavePool, &c.AavePool},
		{"MULTICALL_ADDRESS", DefaultMulticall3, &c.Multicall3},
		{"QUICKSWAP_ROUTER", DefaultQuickswapRouter, &c.QuickswapRouter},
		{"SUSHISWAP_ROUTER", DefaultSushiswapRouter, &c.SushiswapRouter},
		{"QUICKSWAP_FACTORY", DefaultQuickswapFactory, &c.QuickswapFactory},
		{"SUSHISWAP_FACTORY", DefaultSushiswapFactory, &c.SushiswapFactory},
		{"WMATIC_ADDRESS", DefaultWMATIC, &c.WMATIC},
		{"USDC_ADDRESS", DefaultUSDC, &c.USDC},
	} {
		addr, err := parseAddress(entry.key, env.Get(entry.key, entry.fallback))
		if err != nil {
			return c, err
		}
		*entry.dst = addr
	}
	return c, nil
}

// Validate checks the resolved configuration for values that would make the
// agent misbehave at runtime. Load calls it; callers constructing a Config
// by hand should too.
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("missing required config: PRIVATE_KEY")
	}
	if c.Network.RPCURL == "" {
		return fmt.Errorf("network RPC URL is empty")
	}
	if c.MinLiqUSD <= 0 || c.MaxLiqUSD < c.MinLiqUSD {
		return fmt.Errorf("invalid liquidation size bounds: min %.2f, max %.2f", c.MinLiqUSD, c.MaxLiqUSD)
	}
	if c.MaxSlippageBps <= 0 || c.MaxSlippageBps > 10000 {
		return fmt.Errorf("MAX_SLIPPAGE_BPS must be in (0, 10000], got %.2f", c.MaxSlippageBps)
	}
	if c.RBFBumpFactor < 1.0 {
		return fmt.Errorf("RBF_BUMP_FACTOR must be >= 1.0, got %.2f", c.RBFBumpFactor)
	}
	if c.RBFMaxBumps < 0 {
		return fmt.Errorf("RBF_MAX_BUMPS must be >= 0, got %d", c.RBFMaxBumps)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be > 0, got %d", c.MaxConcurrency)
	}
	return nil
}

// PrecomputeThreshold is the health factor below which calldata is prestaged.
func (c *Config) PrecomputeThreshold() float64 {
	return 1.0 + c.HFPrecomputeBuffer
}

// TelegramEnabled reports whether both Telegram credentials are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}
