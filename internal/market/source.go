package market

import (
	"context"
	"errors"
	"fmt"
)

// ErrDataUnavailable marks a market data fetch that failed after the retry
// budget was exhausted. Callers treat it as "no signal this tick", never as
// fatal.
var ErrDataUnavailable = errors.New("market data unavailable")

// DataSource is the external market data collaborator.
type DataSource interface {
	// FetchOHLCV returns up to limit bars ending at the most recent candle,
	// ascending by timestamp.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
	// FetchTicker returns the latest traded price for a symbol.
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
}

// SourceConfig is the opaque market_data_source_config block passed through
// from the agent configuration.
type SourceConfig struct {
	Type      string `yaml:"type" validate:"required"`
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

// NewSource builds a DataSource from its config block.
func NewSource(cfg SourceConfig) (DataSource, error) {
	switch cfg.Type {
	case "BinanceSource", "binance":
		return NewBinanceSource(cfg.APIKey, cfg.SecretKey), nil
	default:
		return nil, fmt.Errorf("unknown market data source type: %s", cfg.Type)
	}
}
