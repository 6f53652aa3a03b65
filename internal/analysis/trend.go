package analysis

import (
	"math"

	"ethtrend/internal/model"
)

// fallbackSpan is how many candles back the no-swing fallback compares against.
const fallbackSpan = 20

// ClassifyTrend combines swing points with the latest candle into a
// direction/confidence verdict.
//
// With no swing highs or no swing lows it falls back to a simple %-change
// check over the last fallbackSpan candles. Otherwise the verdict hangs on
// whether the latest candle broke the most recent swing high and/or low.
// The order of checks and the confidence caps (95/90/70/60/50) define the
// tie-breaking and are part of the output contract.
func ClassifyTrend(candles []model.Candle, highs, lows []model.SwingPoint) (model.Direction, float64) {
	if len(candles) == 0 {
		return model.InsufficientData, 0
	}

	if len(highs) == 0 || len(lows) == 0 {
		return fallbackTrend(candles)
	}

	lastHigh := highs[len(highs)-1]
	lastLow := lows[len(lows)-1]
	cur := candles[len(candles)-1]

	brokeHigh := cur.High > lastHigh.Price
	brokeLow := cur.Low < lastLow.Price

	distPctHigh := math.Abs(cur.High-lastHigh.Price) / lastHigh.Price * 100
	distPctLow := math.Abs(cur.Low-lastLow.Price) / lastLow.Price * 100

	switch {
	case brokeHigh && !brokeLow:
		return model.Bullish, math.Min(95, 70+distPctHigh*10)

	case brokeLow && !brokeHigh:
		return model.Bearish, math.Min(95, 70+distPctLow*10)

	case brokeHigh && brokeLow:
		// Both broken: the more recent swing wins.
		if lastHigh.Index > lastLow.Index {
			return model.Bullish, math.Min(90, 60+distPctHigh*10)
		}
		return model.Bearish, math.Min(90, 60+distPctLow*10)

	default:
		swingRange := lastHigh.Price - lastLow.Price
		if swingRange > 0 {
			position := (cur.Close - lastLow.Price) / swingRange
			centerDist := math.Abs(position - 0.5)
			return model.Sideways, math.Max(50, 100-centerDist*100)
		}
		return model.Sideways, 50
	}
}

// fallbackTrend compares the latest close against the close fallbackSpan
// candles earlier: > +0.5% weak bullish, < -0.5% weak bearish, else sideways.
func fallbackTrend(candles []model.Candle) (model.Direction, float64) {
	recent := candles
	if len(recent) > fallbackSpan {
		recent = recent[len(recent)-fallbackSpan:]
	}

	first := recent[0].Close
	last := recent[len(recent)-1].Close
	if first == 0 {
		return model.Sideways, 70
	}

	changePct := (last - first) / first * 100
	switch {
	case changePct > 0.5:
		return model.WeakBullish, 60
	case changePct < -0.5:
		return model.WeakBearish, 60
	default:
		return model.Sideways, 70
	}
}
