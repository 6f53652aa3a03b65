// Package metrics exposes Prometheus metrics and the /healthz endpoint
// for the trend analyzer.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trend analyzer.
type Metrics struct {
	CandlesTotal    prometheus.Counter
	DroppedMessages prometheus.Counter
	WSReconnects    prometheus.Counter

	AnalysesTotal prometheus.Counter
	SnapshotDur   prometheus.Histogram
	FibAlerts     prometheus.Counter

	BufferSize      prometheus.Gauge
	ConnectionState prometheus.Gauge // 0=disconnected, 1=connecting, 2=connected, 3=stopped
	Confidence      prometheus.Gauge
	TrendStrength   prometheus.Gauge

	SnapshotsPublished prometheus.Counter
	SnapshotsJournaled prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethtrend_candles_total",
			Help: "Total closed candles ingested from the stream",
		}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethtrend_dropped_messages_total",
			Help: "Stream messages dropped (malformed or invalid candles)",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethtrend_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),

		AnalysesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethtrend_analyses_total",
			Help: "Total analysis snapshots produced",
		}),
		SnapshotDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ethtrend_snapshot_handling_duration_seconds",
			Help:    "Snapshot fan-out latency (format, notify, store)",
			Buckets: prometheus.DefBuckets,
		}),
		FibAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethtrend_fib_alerts_total",
			Help: "Per-candle Fibonacci alerts emitted",
		}),

		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ethtrend_buffer_size",
			Help: "Candles currently held in the in-memory buffer",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ethtrend_connection_state",
			Help: "Stream connection state (0=disconnected, 1=connecting, 2=connected, 3=stopped)",
		}),
		Confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ethtrend_confidence",
			Help: "Confidence of the latest analysis snapshot (0-100)",
		}),
		TrendStrength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ethtrend_trend_strength",
			Help: "Trend strength of the latest analysis snapshot (0-100)",
		}),

		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethtrend_snapshots_published_total",
			Help: "Snapshots published to Redis",
		}),
		SnapshotsJournaled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethtrend_snapshots_journaled_total",
			Help: "Snapshots written to the SQLite journal",
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.DroppedMessages,
		m.WSReconnects,
		m.AnalysesTotal,
		m.SnapshotDur,
		m.FibAlerts,
		m.BufferSize,
		m.ConnectionState,
		m.Confidence,
		m.TrendStrength,
		m.SnapshotsPublished,
		m.SnapshotsJournaled,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool
	LastCandleTime time.Time
	LastAnalysisAt time.Time
	BufferLen      int
	RedisConnected bool
	SQLiteOK       bool

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	// Optional stores: a disabled store never degrades health.
	redisEnabled  bool
	sqliteEnabled bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastAnalysisAt(t time.Time) {
	h.mu.Lock()
	h.LastAnalysisAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetBufferLen(n int) {
	h.mu.Lock()
	h.BufferLen = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.redisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.sqliteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil stores are
// skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	storeDegraded := (h.redisEnabled && !h.RedisConnected) || (h.sqliteEnabled && !h.SQLiteOK)
	if !h.WSConnected || storeDegraded {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}
	analysisAge := ""
	if !h.LastAnalysisAt.IsZero() {
		analysisAge = time.Since(h.LastAnalysisAt).Round(time.Second).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		LastCandleTime  string  `json:"last_candle_time"`
		CandleAge       string  `json:"candle_age"`
		BufferLen       int     `json:"buffer_len"`
		LastAnalysisAge string  `json:"last_analysis_age"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		BufferLen:       h.BufferLen,
		LastAnalysisAge: analysisAge,
		RedisEnabled:    h.redisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.sqliteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
