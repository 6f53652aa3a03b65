package model

// FibPolarity records which side of the prior candle a retracement ran against.
type FibPolarity string

const (
	PullbackAfterBullish FibPolarity = "PULLBACK_AFTER_BULLISH"
	RecoveryAfterBearish FibPolarity = "RECOVERY_AFTER_BEARISH"
	FibInvalid           FibPolarity = "INVALID"
)

// FibLevels is the fixed retracement ratio set, in ascending order.
// The first minimal-distance match wins when classifying a ratio.
var FibLevels = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1.0}

// FibResult is the retracement of one candle against its predecessor's range.
type FibResult struct {
	Level          float64     `json:"fib_level"`       // one of FibLevels
	RetracementPct float64     `json:"retracement_pct"` // 0..100
	RangeSize      float64     `json:"range_size"`      // prev high-low range
	Polarity       FibPolarity `json:"polarity"`
}
