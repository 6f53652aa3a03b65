package analysis

import (
	"math"

	"ethtrend/internal/model"
)

// TrendStrength scores momentum, volatility, and volume trend over the last
// window candles into a 0-100 composite. Returns 0 with fewer than window
// candles.
//
// strength = min(100, momentumPct*5) - min(50, volatilityPct*2) + volume bonus,
// then dampened by direction (sideways ×0.3, weak trends ×0.7) and clamped.
func TrendStrength(candles []model.Candle, window int, direction model.Direction) float64 {
	if len(candles) < window {
		return 0
	}

	recent := candles[len(candles)-window:]

	closes := make([]float64, len(recent))
	volumes := make([]float64, len(recent))
	for i, c := range recent {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	meanClose := mean(closes)
	if meanClose == 0 || closes[0] == 0 {
		return 0
	}

	volatilityPct := stddev(closes) / meanClose * 100

	volumeTrend := 1.0
	if len(volumes) >= 15 {
		short := mean(volumes[len(volumes)-5:])
		long := mean(volumes[len(volumes)-15:])
		if long > 0 {
			volumeTrend = short / long
		}
	}

	momentumPct := math.Abs((closes[len(closes)-1] - closes[0]) / closes[0] * 100)

	base := math.Min(100, momentumPct*5)
	penalty := math.Min(50, volatilityPct*2)
	bonus := 0.0
	if volumeTrend > 1 {
		bonus = math.Min(20, (volumeTrend-1)*20)
	}

	strength := math.Max(0, base-penalty+bonus)

	switch direction {
	case model.Sideways:
		strength *= 0.3
	case model.WeakBullish, model.WeakBearish:
		strength *= 0.7
	}

	return math.Min(100, strength)
}
