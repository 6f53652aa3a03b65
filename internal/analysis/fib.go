package analysis

import (
	"math"

	"ethtrend/internal/model"
)

// Retracement computes the Fibonacci retracement of current against the
// high-low range of prev. A bullish prev candle measures the pullback from
// its high; a bearish or flat prev measures the recovery from its low.
// A zero or inverted prev range yields an INVALID result.
func Retracement(prev, current model.Candle) model.FibResult {
	prevRange := prev.High - prev.Low
	if prevRange <= 0 {
		return model.FibResult{Polarity: model.FibInvalid}
	}

	var ratio float64
	var polarity model.FibPolarity
	if prev.Close > prev.Open {
		ratio = (prev.High - current.Low) / prevRange
		polarity = model.PullbackAfterBullish
	} else {
		ratio = (current.High - prev.Low) / prevRange
		polarity = model.RecoveryAfterBearish
	}

	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}

	return model.FibResult{
		Level:          nearestFibLevel(ratio),
		RetracementPct: ratio * 100,
		RangeSize:      prevRange,
		Polarity:       polarity,
	}
}

// nearestFibLevel returns the member of model.FibLevels closest to ratio.
// Ties resolve to the first (lowest) level encountered.
func nearestFibLevel(ratio float64) float64 {
	best := model.FibLevels[0]
	bestDist := math.Abs(ratio - best)
	for _, lvl := range model.FibLevels[1:] {
		if d := math.Abs(ratio - lvl); d < bestDist {
			best = lvl
			bestDist = d
		}
	}
	return best
}

// FibAggregate summarizes pairwise retracements over the analysis window.
type FibAggregate struct {
	AvgRetracement float64 // mean retracement pct of valid pairs
	DominantLevel  float64 // most frequent fib level (first-seen tiebreak)
	RetracementStd float64 // population std-dev of retracement pcts
	SampleSize     int     // number of valid pairs
}

// AggregateRetracements computes pairwise retracement for every consecutive
// pair among the most recent window candles, excluding invalid results.
// Fewer than window candles yields a zeroed aggregate, not an error.
func AggregateRetracements(candles []model.Candle, window int) FibAggregate {
	if len(candles) < window {
		return FibAggregate{}
	}

	recent := candles[len(candles)-window:]

	var pcts []float64
	var levels []float64
	for i := 1; i < len(recent); i++ {
		r := Retracement(recent[i-1], recent[i])
		if r.RangeSize <= 0 || r.Polarity == model.FibInvalid {
			continue
		}
		pcts = append(pcts, r.RetracementPct)
		levels = append(levels, r.Level)
	}

	if len(pcts) == 0 {
		return FibAggregate{}
	}

	agg := FibAggregate{
		AvgRetracement: mean(pcts),
		DominantLevel:  modeFirstSeen(levels),
		SampleSize:     len(pcts),
	}
	if len(pcts) > 1 {
		agg.RetracementStd = stddev(pcts)
	}
	return agg
}

// modeFirstSeen returns the most frequent value; ties break in favor of the
// value encountered first during the scan.
func modeFirstSeen(vals []float64) float64 {
	counts := make(map[float64]int, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	best := vals[0]
	bestCount := counts[best]
	for _, v := range vals {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stddev is the population standard deviation.
func stddev(vals []float64) float64 {
	m := mean(vals)
	sumSq := 0.0
	for _, v := range vals {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}
