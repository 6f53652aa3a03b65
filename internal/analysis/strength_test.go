package analysis

import (
	"testing"

	"ethtrend/internal/model"
)

func TestTrendStrength_InsufficientData(t *testing.T) {
	candles := flatCandles(19, 100)
	if s := TrendStrength(candles, 20, model.Bullish); s != 0 {
		t.Fatalf("strength = %f, want 0 with fewer than window candles", s)
	}
}

func TestTrendStrength_FlatSeriesIsZero(t *testing.T) {
	candles := flatCandles(20, 100)
	if s := TrendStrength(candles, 20, model.Bullish); s != 0 {
		t.Fatalf("strength = %f, want 0 for a flat series", s)
	}
}

func risingCandles(n int, step float64) []model.Candle {
	candles := make([]model.Candle, n)
	for i := range candles {
		c := 100.0 + float64(i)*step
		candles[i] = model.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     c - step, High: c + 1, Low: c - step - 1, Close: c,
			Volume: 10, Closed: true,
		}
	}
	return candles
}

func TestTrendStrength_MomentumDominates(t *testing.T) {
	candles := risingCandles(20, 10)

	// momentum 190% caps the base at 100; volatility ~29.6% caps the
	// penalty at 50; flat volume adds nothing → exactly 50.
	s := TrendStrength(candles, 20, model.Bullish)
	if s != 50 {
		t.Fatalf("strength = %f, want 50", s)
	}
}

func TestTrendStrength_DirectionDampening(t *testing.T) {
	candles := risingCandles(20, 10)

	full := TrendStrength(candles, 20, model.Bullish)
	sideways := TrendStrength(candles, 20, model.Sideways)
	weak := TrendStrength(candles, 20, model.WeakBullish)

	if want := full * 0.3; absDiff(sideways, want) > 0.001 && sideways != 100 {
		t.Errorf("sideways strength = %f, want %f (×0.3)", sideways, want)
	}
	if want := full * 0.7; absDiff(weak, want) > 0.001 && weak != 100 {
		t.Errorf("weak strength = %f, want %f (×0.7)", weak, want)
	}
	if sideways > weak || weak > full {
		t.Errorf("dampening order violated: %f / %f / %f", sideways, weak, full)
	}
}

func TestTrendStrength_VolumeBonus(t *testing.T) {
	base := risingCandles(20, 2)
	surging := risingCandles(20, 2)
	for i := 15; i < 20; i++ {
		surging[i].Volume = 40 // recent volume 4× the 15-candle mean baseline
	}

	plain := TrendStrength(base, 20, model.Bullish)
	boosted := TrendStrength(surging, 20, model.Bullish)
	if boosted <= plain {
		t.Errorf("rising volume should add a bonus: %f <= %f", boosted, plain)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
