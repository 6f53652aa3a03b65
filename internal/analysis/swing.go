// Package analysis implements the trend-analysis pipeline: swing-point
// detection, Fibonacci retracement aggregation, trend classification,
// trend-strength scoring, and the update-rate gate that ties them together.
package analysis

import "ethtrend/internal/model"

// DefaultLookback and DefaultLookforward are the symmetric swing window sizes.
const (
	DefaultLookback    = 10
	DefaultLookforward = 10
)

// DetectSwings finds local price extrema in the candle sequence.
//
// A candidate at index i is a swing high iff its high is strictly greater
// than the high of every other candle in [i-lookback, i+lookforward];
// symmetric strict rule for lows. An equal neighbor disqualifies the
// candidate.
//
// Fewer than lookback+lookforward+1 candles is not an error: both result
// slices come back empty.
func DetectSwings(candles []model.Candle, lookback, lookforward int) (highs, lows []model.SwingPoint) {
	if len(candles) < lookback+lookforward+1 {
		return nil, nil
	}

	searchEnd := len(candles) - lookforward

	for i := lookback; i < searchEnd; i++ {
		curHigh := candles[i].High
		curLow := candles[i].Low

		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookforward; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= curHigh {
				isHigh = false
			}
			if candles[j].Low <= curLow {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			highs = append(highs, model.SwingPoint{
				Index:     i,
				Price:     curHigh,
				Timestamp: candles[i].OpenTime,
				Kind:      model.SwingHigh,
			})
		}
		if isLow {
			lows = append(lows, model.SwingPoint{
				Index:     i,
				Price:     curLow,
				Timestamp: candles[i].OpenTime,
				Kind:      model.SwingLow,
			})
		}
	}

	return highs, lows
}
