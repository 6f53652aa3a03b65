package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"ethtrend/internal/analysis"
	"ethtrend/internal/candlebuf"
	"ethtrend/internal/model"
)

// fakeConn replays a scripted list of messages, then fails.
type fakeConn struct {
	msgs   [][]byte
	i      int
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	if f.i >= len(f.msgs) {
		return 0, nil, errors.New("connection reset")
	}
	m := f.msgs[f.i]
	f.i++
	return 1, m, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

type fakeFetcher struct {
	candles []model.Candle
	err     error
}

func (f *fakeFetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	return f.candles, f.err
}

func newTestIngestor(cfg Config) *Ingestor {
	if cfg.Symbol == "" {
		cfg.Symbol = "ETHUSDT"
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	buf := candlebuf.New(100)
	eng := analysis.NewEngine(analysis.EngineConfig{})
	return New(cfg, buf, eng)
}

func closedKlineMsg(openTime int64, close string) []byte {
	return []byte(`{"e":"kline","k":{"t":` + itoa(openTime) +
		`,"o":"2000","h":"2010","l":"1990","c":"` + close + `","v":"100","x":true}}`)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return string(b[i:])
}

func TestIngestor_StopsAfterMaxReconnects(t *testing.T) {
	ing := newTestIngestor(Config{
		MaxReconnectAttempts: 3,
		BackoffStep:          time.Millisecond,
		BackoffCap:           time.Millisecond,
	})

	dials := 0
	ing.dial = func(ctx context.Context, url string) (Conn, error) {
		dials++
		return nil, errors.New("refused")
	}

	err := ing.Run(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Run = %v, want ErrStopped", err)
	}

	// initial attempt plus one retry per budget slot
	if dials != 4 {
		t.Errorf("dials = %d, want 4", dials)
	}
	if got := ing.State(); got != model.StateStopped {
		t.Errorf("state = %s, want STOPPED", got)
	}
}

func TestIngestor_SuccessResetsAttempts(t *testing.T) {
	ing := newTestIngestor(Config{
		MaxReconnectAttempts: 2,
		BackoffStep:          time.Millisecond,
		BackoffCap:           time.Millisecond,
	})

	// fail, connect (read fails immediately), fail, fail, fail: the
	// successful connect must reset the counter, so the budget is spent
	// only by the trailing failures.
	dials := 0
	ing.dial = func(ctx context.Context, url string) (Conn, error) {
		dials++
		if dials == 2 {
			return &fakeConn{}, nil
		}
		return nil, errors.New("refused")
	}

	err := ing.Run(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Run = %v, want ErrStopped", err)
	}
	// 1 fail, 1 success (resets the counter), then 2 failed retries; the
	// third post-success failure exceeds the budget without another dial.
	if dials != 4 {
		t.Errorf("dials = %d, want 4", dials)
	}
}

func TestIngestor_AppendsClosedCandlesOnly(t *testing.T) {
	ing := newTestIngestor(Config{
		MaxReconnectAttempts: 1,
		BackoffStep:          time.Millisecond,
		BackoffCap:           time.Millisecond,
	})

	conn := &fakeConn{msgs: [][]byte{
		[]byte(`{"e":"kline","k":{"t":1,"o":"2000","h":"2010","l":"1990","c":"2005","v":"100","x":false}}`),
		closedKlineMsg(2, "2006"),
		[]byte(`not json`),
		[]byte(`{"e":"kline","k":{"t":3,"o":"2000","h":"2010","l":"1990","c":"bad","v":"100","x":true}}`),
	}}

	dials := 0
	ing.dial = func(ctx context.Context, url string) (Conn, error) {
		dials++
		if dials == 1 {
			return conn, nil
		}
		return nil, errors.New("refused")
	}

	dropped := 0
	ing.OnDropped = func() { dropped++ }

	var seen []model.Candle
	ing.OnCandle = func(c model.Candle) { seen = append(seen, c) }

	if err := ing.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Run = %v, want ErrStopped", err)
	}

	if ing.buffer.Len() != 1 {
		t.Fatalf("buffer len = %d, want 1 (only the valid closed candle)", ing.buffer.Len())
	}
	last, _ := ing.buffer.Last()
	if last.Close != 2006 || !last.Closed {
		t.Errorf("stored candle = %+v", last)
	}
	if len(seen) != 1 {
		t.Errorf("OnCandle calls = %d, want 1", len(seen))
	}
	// the unparseable message and the bad-numerics candle
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if !conn.closed {
		t.Error("connection must be closed after the read loop exits")
	}
}

func TestIngestor_InitialAnalysisAndFibAlert(t *testing.T) {
	ing := newTestIngestor(Config{
		MaxReconnectAttempts: 1,
		BackoffStep:          time.Millisecond,
		BackoffCap:           time.Millisecond,
	})

	// Simulate a completed bootstrap: enough candles for the window.
	for i := 0; i < 20; i++ {
		ing.buffer.Append(model.Candle{
			OpenTime: int64(i), Open: 2000, High: 2010, Low: 1990, Close: 2000, Volume: 100, Closed: true,
		})
	}

	conn := &fakeConn{msgs: [][]byte{closedKlineMsg(100, "2005")}}
	dials := 0
	ing.dial = func(ctx context.Context, url string) (Conn, error) {
		dials++
		if dials == 1 {
			return conn, nil
		}
		return nil, errors.New("refused")
	}

	snapshots := 0
	ing.OnSnapshot = func(snap *model.AnalysisSnapshot) {
		snapshots++
		if snap.CandlesAnalyzed < 20 {
			t.Errorf("snapshot over %d candles, want >= 20", snap.CandlesAnalyzed)
		}
	}

	var alerts []model.FibResult
	ing.OnFibAlert = func(r model.FibResult, prev, cur model.Candle) {
		alerts = append(alerts, r)
		if prev.OpenTime != 19 {
			t.Errorf("alert prev openTime = %d, want 19", prev.OpenTime)
		}
		if cur.Close != 2005 {
			t.Errorf("alert cur close = %f, want 2005", cur.Close)
		}
	}

	if err := ing.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Run = %v, want ErrStopped", err)
	}

	// One snapshot on connect; the per-candle run right after is inside
	// the 5-minute gate and must not produce a second one.
	if snapshots != 1 {
		t.Errorf("snapshots = %d, want 1", snapshots)
	}
	if len(alerts) != 1 {
		t.Fatalf("fib alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Polarity == model.FibInvalid {
		t.Error("alert polarity must be valid")
	}
}

func TestIngestor_BackoffSchedule(t *testing.T) {
	ing := newTestIngestor(Config{}) // defaults: 5s step, 60s cap

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{5, 25 * time.Second},
		{12, 60 * time.Second},
		{13, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := ing.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestIngestor_CancelDuringBackoff(t *testing.T) {
	ing := newTestIngestor(Config{
		MaxReconnectAttempts: 5,
		BackoffStep:          10 * time.Minute,
		BackoffCap:           10 * time.Minute,
	})
	ing.dial = func(ctx context.Context, url string) (Conn, error) {
		return nil, errors.New("refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation; backoff wait is not cancellable")
	}

	if got := ing.State(); got != model.StateStopped {
		t.Errorf("state = %s, want STOPPED after cancel", got)
	}
}

func TestIngestor_StopShortCircuitsBackoff(t *testing.T) {
	ing := newTestIngestor(Config{
		MaxReconnectAttempts: 5,
		BackoffStep:          10 * time.Minute,
		BackoffCap:           10 * time.Minute,
	})
	ing.dial = func(ctx context.Context, url string) (Conn, error) {
		return nil, errors.New("refused")
	}

	done := make(chan error, 1)
	go func() { done <- ing.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	ing.Stop()
	ing.Stop() // idempotent

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after Stop = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop; backoff wait is not interruptible")
	}
	if got := ing.State(); got != model.StateStopped {
		t.Errorf("state = %s, want STOPPED", got)
	}
}

func TestIngestor_Bootstrap(t *testing.T) {
	ing := newTestIngestor(Config{HistoricalLimit: 10})

	candles := make([]model.Candle, 10)
	for i := range candles {
		candles[i] = model.Candle{
			OpenTime: int64(i), Open: 2000, High: 2010, Low: 1990, Close: 2001, Volume: 5, Closed: true,
		}
	}

	if err := ing.Bootstrap(context.Background(), &fakeFetcher{candles: candles}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if ing.buffer.Len() != 10 {
		t.Errorf("buffer len = %d, want 10", ing.buffer.Len())
	}

	if err := ing.Bootstrap(context.Background(), &fakeFetcher{err: errors.New("boom")}); err == nil {
		t.Fatal("fetch failure must propagate")
	}
	if err := ing.Bootstrap(context.Background(), &fakeFetcher{}); err == nil {
		t.Fatal("empty history must be an error")
	}
}

func TestIngestor_StreamURL(t *testing.T) {
	ing := newTestIngestor(Config{Symbol: "ETHUSDT", Interval: "1m"})
	want := "wss://fstream.binance.com/ws/ethusdt@kline_1m"
	if got := ing.streamURL(); got != want {
		t.Errorf("streamURL = %q, want %q", got, want)
	}
}

func TestIngestor_Status(t *testing.T) {
	ing := newTestIngestor(Config{})
	st := ing.Status()
	if st.State != model.StateDisconnected || st.BufferLen != 0 {
		t.Errorf("initial status = %+v", st)
	}

	ing.buffer.Append(model.Candle{OpenTime: 42, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 1, Closed: true})
	st = ing.Status()
	if st.BufferLen != 1 || st.LastPrice != 1.5 || st.LastCandleTime != 42 {
		t.Errorf("status = %+v", st)
	}
}
