package model

import "encoding/json"

// Direction is the classifier's trend verdict.
type Direction string

const (
	Bullish          Direction = "BULLISH"
	Bearish          Direction = "BEARISH"
	Sideways         Direction = "SIDEWAYS"
	WeakBullish      Direction = "WEAK_BULLISH"
	WeakBearish      Direction = "WEAK_BEARISH"
	InsufficientData Direction = "INSUFFICIENT_DATA"
)

// AnalysisSnapshot is the engine's sole output: one immutable trend
// assessment per gate opening. A new snapshot supersedes the previous
// one; snapshots are never mutated after creation.
type AnalysisSnapshot struct {
	Timestamp string  `json:"timestamp"` // ISO-8601, snapshot creation time
	Price     float64 `json:"current_price"`
	High      float64 `json:"current_high"`
	Low       float64 `json:"current_low"`

	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0..100

	AvgRetracement float64 `json:"avg_fibonacci_retracement"` // 0..100
	DominantLevel  float64 `json:"dominant_fib_level"`
	RetracementStd float64 `json:"retracement_std"`
	SampleSize     int     `json:"sample_size"`

	TrendStrength float64 `json:"trend_strength"` // 0..100

	// Swing summary. Pointer fields are nil when no swing points were found.
	SwingPointsFound bool     `json:"swing_points_found"`
	LastSwingHigh    *float64 `json:"last_swing_high,omitempty"`
	LastSwingLow     *float64 `json:"last_swing_low,omitempty"`
	SwingHighAge     *int     `json:"swing_high_age,omitempty"` // candles ago
	SwingLowAge      *int     `json:"swing_low_age,omitempty"`
	TotalSwingHighs  int      `json:"total_swing_highs"`
	TotalSwingLows   int      `json:"total_swing_lows"`

	// Bookkeeping
	CandlesAnalyzed   int `json:"candles_analyzed"`
	AnalysisWindow    int `json:"analysis_window"`
	NextUpdateMinutes int `json:"next_update_minutes"`
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *AnalysisSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
