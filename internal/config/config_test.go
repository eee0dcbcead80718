package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.env")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
# fork profile
DRY_RUN=true
FORK_RPC_URL=http://127.0.0.1:8545
PRIVATE_KEY=`+testKey+`
MIN_LIQ_USD=250
SOME_UNKNOWN_KEY=ignored
`)
	t.Cleanup(func() {
		for _, k := range []string{"DRY_RUN", "FORK_RPC_URL", "PRIVATE_KEY", "MIN_LIQ_USD", "SOME_UNKNOWN_KEY"} {
			os.Unsetenv(k)
		}
	})

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun {
		t.Error("DryRun = false, want true")
	}
	if cfg.Network.RPCURL != "http://127.0.0.1:8545" {
		t.Errorf("RPCURL = %q", cfg.Network.RPCURL)
	}
	if cfg.Network.ChainID != 137 {
		t.Errorf("ChainID = %d, want 137", cfg.Network.ChainID)
	}
	if cfg.MinLiqUSD != 250 {
		t.Errorf("MinLiqUSD = %v, want 250 (from file)", cfg.MinLiqUSD)
	}
	if cfg.MaxLiqUSD != 51000 {
		t.Errorf("MaxLiqUSD = %v, want default 51000", cfg.MaxLiqUSD)
	}
	if cfg.Contracts.AavePool != common.HexToAddress(DefaultAavePool) {
		t.Errorf("AavePool = %v, want Polygon default", cfg.Contracts.AavePool)
	}
	if cfg.CSVLogPath != "liquidation_log.csv" || cfg.EventsLogPath != "metrics.jsonl" {
		t.Errorf("log paths = %q, %q", cfg.CSVLogPath, cfg.EventsLogPath)
	}
	if cfg.EnableSandwichGuard {
		t.Error("EnableSandwichGuard = true, want default false")
	}
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("FORK_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("PRIVATE_KEY", testKey)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.RPCURL != "http://127.0.0.1:8545" {
		t.Errorf("RPCURL = %q", cfg.Network.RPCURL)
	}
}

func TestLoad_DryRunRequiresForkURL(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("FORK_RPC_URL", "")
	t.Setenv("PRIVATE_KEY", testKey)

	if _, err := Load("", nil); err == nil {
		t.Fatal("Load succeeded without FORK_RPC_URL in dry run")
	}
}

func TestLoad_LivePrefersPublicRPC(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("PUBLIC_RPC_URL", "https://polygon.example.org")
	t.Setenv("NODIES_RPC_URL", "https://nodies.example.org")
	t.Setenv("NODIES_PRIVATE_TX_URL", "https://private.example.org")
	t.Setenv("EXECUTOR_ADDRESS", "0x00000000000000000000000000000000000000e1")
	t.Setenv("PRIVATE_KEY", testKey)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.RPCURL != "https://polygon.example.org" {
		t.Errorf("RPCURL = %q, want public endpoint", cfg.Network.RPCURL)
	}
	// The Nodies private relay only applies when the Nodies profile is active.
	if cfg.Network.PrivateTxURL != "" {
		t.Errorf("PrivateTxURL = %q, want empty", cfg.Network.PrivateTxURL)
	}
}

func TestLoad_LiveNodiesProfile(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("PUBLIC_RPC_URL", "")
	t.Setenv("NODIES_RPC_URL", "https://nodies.example.org")
	t.Setenv("NODIES_PRIVATE_TX_URL", "https://private.example.org")
	t.Setenv("NODIES_AUTH_HEADER", "X-Api-Key: secret")
	t.Setenv("EXECUTOR_ADDRESS", "0x00000000000000000000000000000000000000e1")
	t.Setenv("PRIVATE_KEY", testKey)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.RPCURL != "https://nodies.example.org" {
		t.Errorf("RPCURL = %q", cfg.Network.RPCURL)
	}
	if cfg.Network.PrivateTxURL != "https://private.example.org" {
		t.Errorf("PrivateTxURL = %q", cfg.Network.PrivateTxURL)
	}
	if cfg.Network.AuthHeader != "X-Api-Key: secret" {
		t.Errorf("AuthHeader = %q", cfg.Network.AuthHeader)
	}
	if cfg.Network.Executor != common.HexToAddress("0x00000000000000000000000000000000000000e1") {
		t.Errorf("Executor = %v", cfg.Network.Executor)
	}
}

func TestLoad_LiveRequiresExecutor(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("PUBLIC_RPC_URL", "https://polygon.example.org")
	t.Setenv("EXECUTOR_ADDRESS", "")
	t.Setenv("PRIVATE_KEY", testKey)

	if _, err := Load("", nil); err == nil {
		t.Fatal("Load succeeded without EXECUTOR_ADDRESS in live mode")
	}
}

func TestLoad_RequiresPrivateKey(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("FORK_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("PRIVATE_KEY", "")

	if _, err := Load("", nil); err == nil {
		t.Fatal("Load succeeded without PRIVATE_KEY")
	}
}

func TestLoad_ParsesListsAndOverrides(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("FORK_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("MONITOR_USERS", "0x0000000000000000000000000000000000000001,0x0000000000000000000000000000000000000002")
	t.Setenv("DEBT_ASSETS", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	t.Setenv("COLLATERAL_ASSETS", "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	t.Setenv("PRICE_USD_OVERRIDES", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174:1.0")
	t.Setenv("RESERVE_PARAM_OVERRIDES", "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270:10800:5000")
	t.Setenv("EXECUTOR_LIQ_ARB_SELECTOR", "0xdeadbeef")
	t.Setenv("ENABLE_SANDWICH_GUARD", "true")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.MonitorUsers) != 2 {
		t.Fatalf("MonitorUsers = %d, want 2", len(cfg.MonitorUsers))
	}
	usdc := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	if price := cfg.PriceUSDOverrides[usdc]; price != 1.0 {
		t.Errorf("price override = %v, want 1.0", price)
	}
	wmatic := common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	if ro := cfg.ReserveParamOverrides[wmatic]; ro.BonusBps != 10800 || ro.CloseFactorBps != 5000 {
		t.Errorf("reserve override = %+v", ro)
	}
	if got := common.Bytes2Hex(cfg.LiqArbSelector); got != "deadbeef" {
		t.Errorf("LiqArbSelector = %s, want deadbeef", got)
	}
	if !cfg.EnableSandwichGuard {
		t.Error("EnableSandwichGuard = false, want true")
	}
}

func TestLoad_RejectsMalformedOverrides(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad address in list", "MONITOR_USERS", "0x123"},
		{"price without value", "PRICE_USD_OVERRIDES", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"},
		{"negative price", "PRICE_USD_OVERRIDES", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174:-1"},
		{"reserve missing field", "RESERVE_PARAM_OVERRIDES", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174:10500"},
		{"short selector", "EXECUTOR_LIQ_ARB_SELECTOR", "0xbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DRY_RUN", "true")
			t.Setenv("FORK_RPC_URL", "http://127.0.0.1:8545")
			t.Setenv("PRIVATE_KEY", testKey)
			t.Setenv(tt.key, tt.value)

			if _, err := Load("", nil); err == nil {
				t.Errorf("Load accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestValidateBounds(t *testing.T) {
	base := func() *Config {
		return &Config{
			PrivateKey:     testKey,
			Network:        Network{RPCURL: "http://127.0.0.1:8545"},
			MinLiqUSD:      100,
			MaxLiqUSD:      51000,
			MaxSlippageBps: 50,
			RBFBumpFactor:  1.2,
			MaxConcurrency: 2,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("Validate on sane config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max below min", func(c *Config) { c.MaxLiqUSD = 50 }},
		{"zero slippage", func(c *Config) { c.MaxSlippageBps = 0 }},
		{"bump below one", func(c *Config) { c.RBFBumpFactor = 0.9 }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}

func TestParseAuthHeader(t *testing.T) {
	tests := []struct {
		spec      string
		wantName  string
		wantValue string
	}{
		{"Authorization: Bearer tok", "Authorization", "Bearer tok"},
		{"X-Api-Key:secret", "X-Api-Key", "secret"},
		{"no-colon-here", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, value := ParseAuthHeader(tt.spec)
		if name != tt.wantName || value != tt.wantValue {
			t.Errorf("ParseAuthHeader(%q) = (%q, %q), want (%q, %q)",
				tt.spec, name, value, tt.wantName, tt.wantValue)
		}
	}
}

func TestPrecomputeThreshold(t *testing.T) {
	cfg := &Config{HFPrecomputeBuffer: 0.05}
	if got := cfg.PrecomputeThreshold(); got != 1.05 {
		t.Errorf("PrecomputeThreshold = %v, want 1.05", got)
	}
}
