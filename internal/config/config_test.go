package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
agent_settings:
  portfolio_base_currency: USDT
  initial_capital:
    USDT: 10000
  trading_interval_seconds: 60
  market_data_source_config:
    type: BinanceSource
  sentiment_analyzer_config:
    model: llama3
  news_sources_config:
    - type: RSSSource
      name: coindesk
      url: https://www.coindesk.com/arc/outboundfeeds/rss/
strategies:
  - name: ma_crossover_btc
    class_name: MovingAverageCrossoverStrategy
    parameters:
      symbol: BTC/USDT
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.AgentSettings.PortfolioBaseCurrency != "USDT" {
		t.Fatalf("unexpected base currency %q", cfg.AgentSettings.PortfolioBaseCurrency)
	}
	if cfg.AgentSettings.ExecutionMode != ModePaper {
		t.Fatalf("expected paper mode default, got %q", cfg.AgentSettings.ExecutionMode)
	}
	if got := cfg.Interval().Seconds(); got != 60 {
		t.Fatalf("expected 60s interval, got %v", got)
	}
	if order := cfg.StrategyOrder(); len(order) != 1 || order[0] != "ma_crossover_btc" {
		t.Fatalf("unexpected strategy order %v", order)
	}
}

func TestLoadRejectsMissingInterval(t *testing.T) {
	content := strings.Replace(validConfig, "  trading_interval_seconds: 60\n", "", 1)
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for missing trading_interval_seconds")
	}
}

func TestLoadRejectsDuplicateStrategyNames(t *testing.T) {
	content := validConfig + `  - name: ma_crossover_btc
    class_name: MovingAverageCrossoverStrategy
    parameters:
      symbol: ETH/USDT
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for duplicate strategy name")
	}
}

func TestLoadRejectsAlpacaModeWithoutCredentials(t *testing.T) {
	content := strings.Replace(validConfig,
		"  trading_interval_seconds: 60\n",
		"  trading_interval_seconds: 60\n  execution_mode: alpaca\n", 1)
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for alpaca mode without credentials")
	}
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("TEST_BINANCE_KEY", "k-123")
	content := strings.Replace(validConfig,
		"    type: BinanceSource\n",
		"    type: BinanceSource\n    api_key: ${TEST_BINANCE_KEY}\n", 1)
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.AgentSettings.MarketDataSource.APIKey != "k-123" {
		t.Fatalf("expected env expansion, got %q", cfg.AgentSettings.MarketDataSource.APIKey)
	}
}
