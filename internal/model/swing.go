package model

// SwingKind classifies a swing point as a local high or a local low.
type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

// SwingPoint is a local price extremum within a candle window.
// Index is the position within the snapshot the detector ran over;
// swing points are recomputed each analysis run, never persisted.
type SwingPoint struct {
	Index     int       `json:"index"`
	Price     float64   `json:"price"`
	Timestamp int64     `json:"timestamp"` // epoch ms of the candle
	Kind      SwingKind `json:"kind"`
}
