package market

import (
	"sort"
	"time"
)

// series holds the rolling bar window for one (symbol, timeframe) key. It
// keeps at most capacity bars, ascending by timestamp, one bar per timestamp.
type series struct {
	bars     []Bar
	capacity int
}

func newSeries(capacity int) *series {
	return &series{capacity: capacity}
}

// merge folds incoming bars into the series, replacing bars that share a
// timestamp (the newest fetch of a still-open candle wins) and trimming the
// oldest bars beyond capacity.
func (s *series) merge(incoming []Bar) {
	if len(incoming) == 0 {
		return
	}
	byTime := make(map[int64]Bar, len(s.bars)+len(incoming))
	for _, b := range s.bars {
		byTime[b.Timestamp.UnixMilli()] = b
	}
	for _, b := range incoming {
		byTime[b.Timestamp.UnixMilli()] = b
	}
	merged := make([]Bar, 0, len(byTime))
	for _, b := range byTime {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	if s.capacity > 0 && len(merged) > s.capacity {
		merged = merged[len(merged)-s.capacity:]
	}
	s.bars = merged
}

func (s *series) len() int {
	return len(s.bars)
}

// newestTime returns the timestamp of the most recent bar.
func (s *series) newestTime() (time.Time, bool) {
	if len(s.bars) == 0 {
		return time.Time{}, false
	}
	return s.bars[len(s.bars)-1].Timestamp, true
}

// view returns a copy of the last lookback bars (all bars when lookback is
// zero or exceeds the stored window).
func (s *series) view(lookback int) []Bar {
	n := len(s.bars)
	if lookback <= 0 || lookback > n {
		lookback = n
	}
	out := make([]Bar, lookback)
	copy(out, s.bars[n-lookback:])
	return out
}
