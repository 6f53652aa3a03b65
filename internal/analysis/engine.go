package analysis

import (
	"log"
	"sync"
	"time"

	"ethtrend/internal/model"
)

// DefaultWindow is the number of recent candles the aggregate statistics use.
const DefaultWindow = 20

// EngineConfig configures the analysis engine.
type EngineConfig struct {
	Window         int           // analysis window in candles (default 20)
	Lookback       int           // swing detector lookback (default 10)
	Lookforward    int           // swing detector lookforward (default 10)
	UpdateInterval time.Duration // scheduler gate (default 5m)
}

// Engine orchestrates swing detection, trend classification, Fibonacci
// aggregation, and strength scoring over a buffer snapshot, producing one
// immutable AnalysisSnapshot per gate opening.
type Engine struct {
	cfg   EngineConfig
	sched *Scheduler

	mu   sync.RWMutex
	last *model.AnalysisSnapshot

	runs  uint64
	skips uint64
}

// NewEngine creates an engine, filling zero config fields with defaults.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.Lookforward <= 0 {
		cfg.Lookforward = DefaultLookforward
	}
	return &Engine{
		cfg:   cfg,
		sched: NewScheduler(cfg.UpdateInterval),
	}
}

// Run executes the full pipeline over the given buffer snapshot if the
// scheduler gate is open at now. Returns nil when no update was produced:
// gate closed, insufficient data, or an internal fault. Faults are recovered
// and logged here; they never propagate into the ingest loop, and they do
// not advance the scheduler.
func (e *Engine) Run(candles []model.Candle, now time.Time) *model.AnalysisSnapshot {
	if !e.sched.ShouldRun(now) {
		return nil
	}

	if len(candles) < e.cfg.Window {
		e.skips++
		log.Printf("[analysis] insufficient data: %d < %d candles", len(candles), e.cfg.Window)
		return nil
	}

	snap := e.runPipeline(candles, now)
	if snap == nil {
		return nil
	}

	e.sched.MarkRun(now)
	e.runs++

	e.mu.Lock()
	e.last = snap
	e.mu.Unlock()

	return snap
}

// runPipeline does the actual work; a panic anywhere inside surfaces as a
// nil snapshot.
func (e *Engine) runPipeline(candles []model.Candle, now time.Time) (snap *model.AnalysisSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[analysis] pipeline fault, skipping this cycle: %v", r)
			snap = nil
		}
	}()

	highs, lows := DetectSwings(candles, e.cfg.Lookback, e.cfg.Lookforward)
	direction, confidence := ClassifyTrend(candles, highs, lows)
	fib := AggregateRetracements(candles, e.cfg.Window)
	strength := TrendStrength(candles, e.cfg.Window, direction)

	cur := candles[len(candles)-1]

	snap = &model.AnalysisSnapshot{
		Timestamp:  now.UTC().Format(time.RFC3339),
		Price:      cur.Close,
		High:       cur.High,
		Low:        cur.Low,
		Direction:  direction,
		Confidence: round1(confidence),

		AvgRetracement: round1(fib.AvgRetracement),
		DominantLevel:  fib.DominantLevel,
		RetracementStd: round1(fib.RetracementStd),
		SampleSize:     fib.SampleSize,

		TrendStrength: round1(strength),

		TotalSwingHighs: len(highs),
		TotalSwingLows:  len(lows),

		CandlesAnalyzed:   len(candles),
		AnalysisWindow:    e.cfg.Window,
		NextUpdateMinutes: int(e.sched.Interval() / time.Minute),
	}

	if len(highs) > 0 && len(lows) > 0 {
		lastHigh := highs[len(highs)-1]
		lastLow := lows[len(lows)-1]
		highAge := len(candles) - 1 - lastHigh.Index
		lowAge := len(candles) - 1 - lastLow.Index

		snap.SwingPointsFound = true
		snap.LastSwingHigh = &lastHigh.Price
		snap.LastSwingLow = &lastLow.Price
		snap.SwingHighAge = &highAge
		snap.SwingLowAge = &lowAge

		log.Printf("[analysis] %s (conf %.1f%%) | swing high %.2f (%d ago) low %.2f (%d ago) | fib %.1f%%",
			direction, snap.Confidence, lastHigh.Price, highAge, lastLow.Price, lowAge, snap.AvgRetracement)
	} else {
		log.Printf("[analysis] %s (conf %.1f%%) | fib %.1f%% | swing detection: insufficient data",
			direction, snap.Confidence, snap.AvgRetracement)
	}

	return snap
}

// Last returns the most recent snapshot, or nil before the first run.
func (e *Engine) Last() *model.AnalysisSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Runs returns how many snapshots the engine has produced.
func (e *Engine) Runs() uint64 { return e.runs }

// Window returns the configured analysis window.
func (e *Engine) Window() int { return e.cfg.Window }

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
