// Package stream owns the live kline feed: websocket connection, the
// reconnect state machine, and the historical bootstrap. It is the sole
// writer of the candle buffer and the only trigger of the analysis engine.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ethtrend/internal/analysis"
	"ethtrend/internal/candlebuf"
	"ethtrend/internal/model"
)

// DefaultWSURL is the Binance USDⓈ-M futures stream base.
const DefaultWSURL = "wss://fstream.binance.com/ws"

const (
	defaultMaxReconnectAttempts = 5
	defaultBackoffStep          = 5 * time.Second
	defaultBackoffCap           = 60 * time.Second
)

// ErrStopped is returned by Run when the reconnect budget is exhausted.
var ErrStopped = errors.New("stream: reconnect attempts exhausted")

// Config holds ingestor configuration.
type Config struct {
	WSBaseURL string // e.g. "wss://fstream.binance.com/ws"
	Symbol    string // e.g. "ETHUSDT"
	Interval  string // e.g. "1m"

	HistoricalLimit int // bootstrap candle count (≤1000)

	MaxReconnectAttempts int           // consecutive failures before STOPPED
	BackoffStep          time.Duration // linear backoff increment
	BackoffCap           time.Duration // backoff ceiling
}

// HistoricalFetcher supplies the one-time bootstrap candles.
type HistoricalFetcher interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// Conn is the subset of the websocket connection the read loop needs.
// Satisfied by *websocket.Conn; tests substitute a scripted fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// DialFunc establishes a feed connection. Injectable for tests.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Status is a point-in-time view of the ingestor for health reporting.
type Status struct {
	State             model.ConnectionState `json:"state"`
	BufferLen         int                   `json:"buffer_len"`
	ReconnectAttempts int                   `json:"reconnect_attempts"`
	LastPrice         float64               `json:"last_price"`
	LastCandleTime    int64                 `json:"last_candle_time"` // epoch ms, 0 if none
}

// Ingestor connects to the live kline stream, appends closed candles to the
// buffer, and drives the analysis engine. Reconnects with linear backoff
// min(cap, step·attempts); after MaxReconnectAttempts consecutive failures
// it stops permanently.
type Ingestor struct {
	cfg    Config
	buffer *candlebuf.Buffer
	engine *analysis.Engine

	dial DialFunc
	now  func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	state    model.ConnectionState
	attempts int
	conn     Conn

	// Optional hooks, set before Run. All invoked from the ingest loop.
	OnCandle    func(c model.Candle)                              // every appended closed candle
	OnFibAlert  func(r model.FibResult, prev, cur model.Candle)   // per-candle fib cadence
	OnSnapshot  func(snap *model.AnalysisSnapshot)                // gated analysis cadence
	OnReconnect func(attempt int)                                 // before each backoff wait
	OnState     func(s model.ConnectionState)                     // every state transition
	OnDropped   func()                                            // malformed/ignored messages
}

// New creates an ingestor over the given buffer and engine.
func New(cfg Config, buffer *candlebuf.Buffer, engine *analysis.Engine) *Ingestor {
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = DefaultWSURL
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = defaultBackoffStep
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	return &Ingestor{
		cfg:    cfg,
		buffer: buffer,
		engine: engine,
		dial:   gorillaDial,
		now:    time.Now,
		stopCh: make(chan struct{}),
		state:  model.StateDisconnected,
	}
}

// Stop terminates the ingestor: it closes any live connection and
// short-circuits a pending backoff wait. Safe to call more than once.
func (ing *Ingestor) Stop() {
	ing.stopOnce.Do(func() {
		close(ing.stopCh)
		ing.mu.Lock()
		if ing.conn != nil {
			ing.conn.Close()
		}
		ing.mu.Unlock()
	})
}

func (ing *Ingestor) stopping() bool {
	select {
	case <-ing.stopCh:
		return true
	default:
		return false
	}
}

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// streamURL builds the combined kline stream URL, e.g.
// wss://fstream.binance.com/ws/ethusdt@kline_1m.
func (ing *Ingestor) streamURL() string {
	return fmt.Sprintf("%s/%s@kline_%s", ing.cfg.WSBaseURL, strings.ToLower(ing.cfg.Symbol), ing.cfg.Interval)
}

// Bootstrap loads the historical candle window into the buffer. Must
// succeed before Run; a failure here is fatal to startup and is not
// retried at this layer.
func (ing *Ingestor) Bootstrap(ctx context.Context, fetcher HistoricalFetcher) error {
	limit := ing.cfg.HistoricalLimit
	if limit <= 0 {
		limit = ing.buffer.Cap()
	}
	log.Printf("[stream] fetching last %d historical candles for %s %s...", limit, ing.cfg.Symbol, ing.cfg.Interval)

	candles, err := fetcher.FetchKlines(ctx, ing.cfg.Symbol, ing.cfg.Interval, limit)
	if err != nil {
		return fmt.Errorf("stream: bootstrap fetch: %w", err)
	}
	if len(candles) == 0 {
		return errors.New("stream: bootstrap returned no candles")
	}

	for _, c := range candles {
		ing.buffer.Append(c)
	}

	log.Printf("[stream] loaded %d historical candles, latest close %.2f",
		len(candles), candles[len(candles)-1].Close)
	return nil
}

// Run drives the connect/read/reconnect loop. Blocks until ctx is
// cancelled (returns ctx.Err()) or the reconnect budget is exhausted
// (returns ErrStopped).
func (ing *Ingestor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			ing.setState(model.StateStopped)
			return ctx.Err()
		}
		if ing.stopping() {
			ing.setState(model.StateStopped)
			return nil
		}

		ing.setState(model.StateConnecting)
		url := ing.streamURL()
		log.Printf("[stream] connecting to %s", url)

		conn, err := ing.dial(ctx, url)
		if err != nil {
			log.Printf("[stream] connect failed: %v", err)
		} else {
			ing.setConn(conn)
			ing.setState(model.StateConnected)
			ing.setAttempts(0)
			log.Printf("[stream] connected")

			// Initial analysis: the bootstrap may already satisfy the
			// window, so run through the normal gate once on connect.
			ing.runAnalysis()

			err = ing.readLoop(ctx, conn)
			ing.setConn(nil)
			conn.Close()
			log.Printf("[stream] connection lost: %v", err)
		}

		ing.setState(model.StateDisconnected)

		if ctx.Err() != nil {
			ing.setState(model.StateStopped)
			return ctx.Err()
		}
		if ing.stopping() {
			ing.setState(model.StateStopped)
			return nil
		}

		attempt := ing.incAttempts()
		if attempt > ing.cfg.MaxReconnectAttempts {
			log.Printf("[stream] max reconnect attempts (%d) reached, stopping", ing.cfg.MaxReconnectAttempts)
			ing.setState(model.StateStopped)
			return ErrStopped
		}

		wait := ing.backoff(attempt)
		log.Printf("[stream] reconnecting in %v (attempt %d/%d)", wait, attempt, ing.cfg.MaxReconnectAttempts)
		if ing.OnReconnect != nil {
			ing.OnReconnect(attempt)
		}

		// The backoff wait is a deliberate suspension point and must be
		// cancellable.
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			ing.setState(model.StateStopped)
			return ctx.Err()
		case <-ing.stopCh:
			timer.Stop()
			ing.setState(model.StateStopped)
			return nil
		case <-timer.C:
		}
	}
}

// readLoop processes messages until the transport fails or ctx is cancelled.
func (ing *Ingestor) readLoop(ctx context.Context, conn Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ing.handleMessage(msg)
	}
}

// klineEvent is the live feed envelope. Numeric fields arrive as strings.
type klineEvent struct {
	EventType string `json:"e"`
	Kline     struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// handleMessage decodes one feed message. Only closed candles are appended
// and only appended candles may trigger analysis; open-candle ticks and
// malformed records are dropped without affecting the loop.
func (ing *Ingestor) handleMessage(msg []byte) {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		log.Printf("[stream] bad message, skipping: %v", err)
		ing.dropped()
		return
	}
	if !ev.Kline.Closed {
		return // in-progress tick
	}

	candle, err := ev.candle()
	if err != nil {
		log.Printf("[stream] bad candle, skipping: %v", err)
		ing.dropped()
		return
	}

	prev, hasPrev := ing.buffer.Last()
	ing.buffer.Append(candle)
	if ing.OnCandle != nil {
		ing.OnCandle(candle)
	}
	log.Printf("[stream] new candle: close %.2f volume %.0f", candle.Close, candle.Volume)

	// Per-candle Fibonacci cadence: independent of the scheduler gate.
	if hasPrev && ing.OnFibAlert != nil {
		if r := analysis.Retracement(prev, candle); r.Polarity != model.FibInvalid {
			ing.OnFibAlert(r, prev, candle)
		}
	}

	ing.runAnalysis()
}

// runAnalysis hands a buffer snapshot to the engine; the engine's gate
// decides whether an update is produced.
func (ing *Ingestor) runAnalysis() {
	snap := ing.engine.Run(ing.buffer.Snapshot(), ing.now())
	if snap != nil && ing.OnSnapshot != nil {
		ing.OnSnapshot(snap)
	}
}

func (ev *klineEvent) candle() (model.Candle, error) {
	c := model.Candle{OpenTime: ev.Kline.OpenTime, Closed: true}

	var err error
	if c.Open, err = parseField("o", ev.Kline.Open); err != nil {
		return model.Candle{}, err
	}
	if c.High, err = parseField("h", ev.Kline.High); err != nil {
		return model.Candle{}, err
	}
	if c.Low, err = parseField("l", ev.Kline.Low); err != nil {
		return model.Candle{}, err
	}
	if c.Close, err = parseField("c", ev.Kline.Close); err != nil {
		return model.Candle{}, err
	}
	if c.Volume, err = parseField("v", ev.Kline.Volume); err != nil {
		return model.Candle{}, err
	}

	if !c.Valid() {
		return model.Candle{}, fmt.Errorf("invalid OHLC values: %+v", c)
	}
	return c, nil
}

func parseField(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s=%q: %w", name, raw, err)
	}
	return v, nil
}

// backoff is the linear reconnect delay: min(cap, step·attempt).
func (ing *Ingestor) backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * ing.cfg.BackoffStep
	if d > ing.cfg.BackoffCap {
		d = ing.cfg.BackoffCap
	}
	return d
}

// Status returns a point-in-time view for health reporting.
func (ing *Ingestor) Status() Status {
	ing.mu.Lock()
	state, attempts := ing.state, ing.attempts
	ing.mu.Unlock()

	st := Status{
		State:             state,
		BufferLen:         ing.buffer.Len(),
		ReconnectAttempts: attempts,
	}
	if last, ok := ing.buffer.Last(); ok {
		st.LastPrice = last.Close
		st.LastCandleTime = last.OpenTime
	}
	return st
}

// State returns the current connection state.
func (ing *Ingestor) State() model.ConnectionState {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.state
}

func (ing *Ingestor) setState(s model.ConnectionState) {
	ing.mu.Lock()
	changed := ing.state != s
	ing.state = s
	ing.mu.Unlock()
	if changed && ing.OnState != nil {
		ing.OnState(s)
	}
}

func (ing *Ingestor) setConn(c Conn) {
	ing.mu.Lock()
	ing.conn = c
	ing.mu.Unlock()
}

func (ing *Ingestor) setAttempts(n int) {
	ing.mu.Lock()
	ing.attempts = n
	ing.mu.Unlock()
}

func (ing *Ingestor) incAttempts() int {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.attempts++
	return ing.attempts
}

func (ing *Ingestor) dropped() {
	if ing.OnDropped != nil {
		ing.OnDropped()
	}
}
