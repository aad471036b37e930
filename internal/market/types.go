package market

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Bar is a single OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Snapshot is a read-only view of the cached bar series for one (symbol,
// timeframe) pair. Bars are ascending by timestamp and deduplicated.
type Snapshot struct {
	Symbol    string
	Timeframe string
	Bars      []Bar
}

// LastClose returns the close of the newest bar, or zero if empty.
func (s Snapshot) LastClose() float64 {
	if len(s.Bars) == 0 {
		return 0
	}
	return s.Bars[len(s.Bars)-1].Close
}

// Ticker is the latest traded price for a symbol.
type Ticker struct {
	Symbol    string
	Last      float64
	Timestamp time.Time
}

// SMA computes the simple moving average of closing prices over the last
// window bars.
func SMA(bars []Bar, window int) (float64, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	if len(bars) < window {
		return 0, fmt.Errorf("not enough bars for SMA: need %d, have %d", window, len(bars))
	}
	sum := 0.0
	for _, b := range bars[len(bars)-window:] {
		sum += b.Close
	}
	return sum / float64(window), nil
}

// ParseTimeframe converts an exchange-style timeframe ("1m", "15m", "1h",
// "4h", "1d", "1w") into its duration.
func ParseTimeframe(timeframe string) (time.Duration, error) {
	if len(timeframe) < 2 {
		return 0, fmt.Errorf("invalid timeframe: %q", timeframe)
	}
	unit := timeframe[len(timeframe)-1]
	n, err := strconv.Atoi(timeframe[:len(timeframe)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe: %q", timeframe)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid timeframe unit: %q", timeframe)
	}
}
