package model

import (
	"encoding/json"
	"time"
)

// Candle represents one closed OHLCV candle for a single instrument.
// Prices are decimals as delivered by the exchange; OpenTime is epoch
// milliseconds (Binance convention).
type Candle struct {
	OpenTime int64   `json:"open_time"` // epoch ms, bucket open time
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	Closed   bool    `json:"closed"` // only closed candles are analyzable
}

// Valid reports whether the candle passes basic sanity checks:
// positive prices, non-negative volume, and low ≤ open,close ≤ high.
// Invalid candles must be dropped before they reach the buffer.
func (c *Candle) Valid() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	if c.Volume < 0 {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close || c.High < c.Open || c.High < c.Close {
		return false
	}
	return true
}

// TS returns the candle open time as a UTC time.Time.
func (c *Candle) TS() time.Time {
	return time.Unix(0, c.OpenTime*int64(time.Millisecond)).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
