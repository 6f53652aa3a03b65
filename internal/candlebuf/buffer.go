// Package candlebuf provides a bounded, time-ordered in-memory candle
// history. Appends beyond capacity evict the oldest entry (FIFO). The
// ingest loop is the only writer; all other readers must go through
// Snapshot(), which returns a copy that never aliases live buffer state.
package candlebuf

import (
	"sync"

	"ethtrend/internal/model"
)

// Buffer is a fixed-capacity circular buffer of closed candles.
//
// Thread-safe for a single writer and concurrent readers.
type Buffer struct {
	mu   sync.RWMutex
	buf  []model.Candle
	cap  int
	pos  int // next write position
	full bool
}

// New creates a buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{
		buf: make([]model.Candle, capacity),
		cap: capacity,
	}
}

// Append adds a candle, evicting the oldest entry when at capacity.
// Malformed candles must be filtered before Append; the buffer does not
// validate.
func (b *Buffer) Append(c model.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[b.pos] = c
	b.pos = (b.pos + 1) % b.cap
	if b.pos == 0 && !b.full {
		b.full = true
	}
}

// Snapshot returns the buffered candles in arrival order as a fresh slice.
// Safe to hand to the analysis engine while the ingest loop keeps appending.
func (b *Buffer) Snapshot() []model.Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.len()
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = b.buf[b.index(i)]
	}
	return out
}

// Last returns the most recently appended candle, or false if empty.
func (b *Buffer) Last() (model.Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.len() == 0 {
		return model.Candle{}, false
	}
	return b.buf[b.index(b.len()-1)], true
}

// Len returns the number of candles currently buffered.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.len()
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return b.cap
}

func (b *Buffer) len() int {
	if b.full {
		return b.cap
	}
	return b.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (b *Buffer) index(logical int) int {
	if b.full {
		return (b.pos + logical) % b.cap
	}
	return logical
}
