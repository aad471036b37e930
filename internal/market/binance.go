package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BinanceSource fetches OHLCV candles and ticker prices from Binance.
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource creates a Binance-backed data source. Keys may be empty
// for public market data endpoints.
func NewBinanceSource(apiKey, secretKey string) *BinanceSource {
	return &BinanceSource{client: binance.NewClient(apiKey, secretKey)}
}

// FetchOHLCV implements DataSource.
func (b *BinanceSource) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(pairToBinance(symbol)).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, timeframe, err)
	}

	bars := make([]Bar, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return bars, nil
}

// FetchTicker implements DataSource.
func (b *BinanceSource) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	prices, err := b.client.NewListPricesService().
		Symbol(pairToBinance(symbol)).
		Do(ctx)
	if err != nil {
		return Ticker{}, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return Ticker{}, fmt.Errorf("binance ticker %s: empty response", symbol)
	}
	last, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return Ticker{}, fmt.Errorf("binance ticker %s: parse price %q: %w", symbol, prices[0].Price, err)
	}
	return Ticker{Symbol: symbol, Last: last, Timestamp: time.Now().UTC()}, nil
}

// pairToBinance converts "BTC/USDT" into Binance's "BTCUSDT" form.
func pairToBinance(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
