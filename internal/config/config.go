package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/raidenblackout/CTB/internal/exchange"
	"github.com/raidenblackout/CTB/internal/market"
	"github.com/raidenblackout/CTB/internal/news"
	"github.com/raidenblackout/CTB/internal/risk"
	"github.com/raidenblackout/CTB/internal/sentiment"
)

// ExecutionMode selects where orders go.
type ExecutionMode string

const (
	ModePaper  ExecutionMode = "paper"
	ModeAlpaca ExecutionMode = "alpaca"
)

// AgentSettings is the agent_settings block of the config file.
type AgentSettings struct {
	PortfolioBaseCurrency  string             `yaml:"portfolio_base_currency" validate:"required"`
	InitialCapital         map[string]float64 `yaml:"initial_capital" validate:"required,min=1"`
	TradingIntervalSeconds int                `yaml:"trading_interval_seconds" validate:"required,gt=0"`
	CheckpointPath         string             `yaml:"checkpoint_path"`
	RecorderDBPath         string             `yaml:"recorder_db_path"`
	ExecutionMode          ExecutionMode      `yaml:"execution_mode" validate:"omitempty,oneof=paper alpaca"`

	MarketDataSource  market.SourceConfig      `yaml:"market_data_source_config" validate:"required"`
	OllamaClient      sentiment.ClientConfig   `yaml:"ollama_client_config"`
	SentimentAnalyzer sentiment.AnalyzerConfig `yaml:"sentiment_analyzer_config" validate:"required"`
	NewsSources       []news.SourceConfig      `yaml:"news_sources_config" validate:"min=1,dive"`

	PaperExchange exchange.PaperConfig  `yaml:"paper_exchange_config"`
	Alpaca        exchange.AlpacaConfig `yaml:"alpaca_config"`
	Risk          risk.Config           `yaml:"risk_config"`
}

// StrategyConfig is one entry of the strategies list. Declaration order is
// significant: it sets conflict-resolution priority.
type StrategyConfig struct {
	Name       string         `yaml:"name" validate:"required"`
	ClassName  string         `yaml:"class_name" validate:"required"`
	Parameters map[string]any `yaml:"parameters"`
}

// Config is the full agent configuration.
type Config struct {
	AgentSettings AgentSettings    `yaml:"agent_settings" validate:"required"`
	Strategies    []StrategyConfig `yaml:"strategies" validate:"required,min=1,dive"`
}

// Interval returns the tick interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.AgentSettings.TradingIntervalSeconds) * time.Second
}

// StrategyOrder returns strategy names in declaration order.
func (c Config) StrategyOrder() []string {
	names := make([]string, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		names = append(names, s.Name)
	}
	return names
}

var validate = validator.New()

// Load reads and validates the YAML config at path. Secrets can be given
// as ${VAR} references, resolved against the environment after an optional
// .env file is loaded. Any validation failure is fatal to startup.
func Load(path string) (Config, error) {
	loadDotEnvIfPresent(".env")

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.AgentSettings.ExecutionMode == "" {
		cfg.AgentSettings.ExecutionMode = ModePaper
	}
	if cfg.AgentSettings.PaperExchange.SlippageFactor < 0 ||
		cfg.AgentSettings.PaperExchange.CommissionRate < 0 {
		return Config{}, fmt.Errorf("invalid config: paper exchange rates must be >= 0")
	}

	seen := make(map[string]struct{}, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		if _, dup := seen[s.Name]; dup {
			return Config{}, fmt.Errorf("invalid config: duplicate strategy name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	if cfg.AgentSettings.ExecutionMode == ModeAlpaca {
		a := cfg.AgentSettings.Alpaca
		if a.APIKey == "" || a.SecretKey == "" {
			return Config{}, fmt.Errorf("invalid config: alpaca_config requires api_key and secret_key")
		}
	}
	return cfg, nil
}
