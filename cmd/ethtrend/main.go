package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"ethtrend/config"
	"ethtrend/internal/analysis"
	"ethtrend/internal/candlebuf"
	"ethtrend/internal/marketdata/rest"
	"ethtrend/internal/marketdata/stream"
	"ethtrend/internal/metrics"
	"ethtrend/internal/model"
	"ethtrend/internal/notification"
	redisstore "ethtrend/internal/store/redis"
	sqlitestore "ethtrend/internal/store/sqlite"
)

const bufferCapacity = 1000

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ethtrend] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[ethtrend] invalid configuration: %v", err)
	}

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite journal (optional) ----
	var journal *sqlitestore.Writer
	if cfg.SQLitePath != "" {
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		var err error
		journal, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[ethtrend] WARNING: sqlite init failed: %v (continuing without journal)", err)
			journal = nil
		} else {
			defer journal.Close()
			if prev, err := journal.LastSnapshot(cfg.Symbol); err == nil && prev != nil {
				log.Printf("[ethtrend] journal resume: last recorded %s %s at $%.2f",
					prev.Timestamp, prev.Direction, prev.Price)
			}
			log.Println("[ethtrend] sqlite journal ready")
		}
	}

	// ---- Redis publisher (optional) ----
	var publisher *redisstore.Writer
	if cfg.RedisAddr != "" {
		var err error
		publisher, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, cfg.Symbol)
		if err != nil {
			log.Printf("[ethtrend] WARNING: redis init failed: %v (continuing without redis)", err)
			publisher = nil
		} else {
			defer publisher.Close()
			log.Println("[ethtrend] redis publisher ready")
		}
	}

	// ---- Periodic liveness checks ----
	if publisher != nil || journal != nil {
		var rdb *goredis.Client
		var db *sql.DB
		if publisher != nil {
			rdb = publisher.Client()
		}
		if journal != nil {
			db = journal.DB()
		}
		health.StartLivenessChecker(ctx, rdb, db, 10*time.Second)
	}

	// ---- Notifiers ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	var telegram *notification.TelegramNotifier
	if cfg.EnableTelegram {
		telegram = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err := telegram.Ping(ctx); err != nil {
			log.Fatalf("[ethtrend] telegram connection test failed: %v", err)
		}
		backends = append(backends, telegram)
		log.Println("[ethtrend] telegram notifier ready")
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[ethtrend] webhook notifier ready")
	}
	notifier := notification.NewMulti(backends...)

	// ---- Buffer, engine, ingestor ----
	buffer := candlebuf.New(bufferCapacity)
	engine := analysis.NewEngine(analysis.EngineConfig{
		Window:         cfg.AnalysisWindow,
		Lookback:       cfg.SwingLookback,
		Lookforward:    cfg.SwingLookforward,
		UpdateInterval: cfg.UpdateInterval(),
	})

	ingestor := stream.New(stream.Config{
		WSBaseURL:            cfg.WSBaseURL,
		Symbol:               cfg.Symbol,
		Interval:             cfg.Interval,
		HistoricalLimit:      cfg.HistoricalLimit,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, buffer, engine)

	ingestor.OnCandle = func(c model.Candle) {
		prom.CandlesTotal.Inc()
		prom.BufferSize.Set(float64(buffer.Len()))
		health.SetLastCandleTime(time.Now())
		health.SetBufferLen(buffer.Len())
	}
	ingestor.OnDropped = func() {
		prom.DroppedMessages.Inc()
	}
	ingestor.OnReconnect = func(attempt int) {
		prom.WSReconnects.Inc()
	}
	ingestor.OnState = func(s model.ConnectionState) {
		prom.ConnectionState.Set(float64(s))
		health.SetWSConnected(s == model.StateConnected)
	}
	ingestor.OnSnapshot = func(snap *model.AnalysisSnapshot) {
		start := time.Now()

		prom.AnalysesTotal.Inc()
		prom.Confidence.Set(snap.Confidence)
		prom.TrendStrength.Set(snap.TrendStrength)
		health.SetLastAnalysisAt(time.Now())

		log.Printf("[ethtrend]\n%s", notification.ConsoleSummary(snap))
		notifier.Send(ctx, notification.Alert{
			Level: notification.AlertInfo,
			Title: "trend analysis",
			Body:  notification.AnalysisHTML(snap),
		})

		if publisher != nil {
			if err := publisher.Publish(ctx, snap); err == nil {
				prom.SnapshotsPublished.Inc()
			}
		}
		if journal != nil {
			if err := journal.Record(cfg.Symbol, snap); err != nil {
				log.Printf("[ethtrend] journal write failed: %v", err)
			} else {
				prom.SnapshotsJournaled.Inc()
			}
		}

		prom.SnapshotDur.Observe(time.Since(start).Seconds())
	}
	if cfg.EnableFibAlerts {
		ingestor.OnFibAlert = func(r model.FibResult, prev, cur model.Candle) {
			prom.FibAlerts.Inc()
			notifier.Send(ctx, notification.Alert{
				Level: notification.AlertInfo,
				Title: "fibonacci alert",
				Body:  notification.FibAlertHTML(r, prev, cur),
			})
		}
	}

	// ---- Bootstrap historical candles (fatal on failure) ----
	restClient := rest.NewClient(cfg.RESTBaseURL)
	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := ingestor.Bootstrap(bootCtx, restClient); err != nil {
		bootCancel()
		log.Fatalf("[ethtrend] bootstrap failed: %v", err)
	}
	bootCancel()

	notifier.Send(ctx, notification.Alert{
		Level: notification.AlertInfo,
		Title: "startup",
		Body:  notification.StartupHTML(cfg.AnalysisWindow, cfg.UpdateIntervalMin, cfg.HistoricalLimit),
	})

	// ---- Run the stream ----
	runErr := make(chan error, 1)
	go func() { runErr <- ingestor.Run(ctx) }()

	log.Println("[ethtrend] ╔════════════════════════════════════════════════════════╗")
	log.Println("[ethtrend] ║  ETH Trend Analyzer                                    ║")
	log.Println("[ethtrend] ║                                                        ║")
	log.Println("[ethtrend] ║  [Binance WS] → [Buffer] → [Analysis] → [Notify/Store] ║")
	log.Printf("[ethtrend] ║  Symbol: %-10s Window: %-3d Interval: %-2d min       ║",
		cfg.Symbol, cfg.AnalysisWindow, cfg.UpdateIntervalMin)
	log.Println("[ethtrend] ╚════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal or stream death ----
	select {
	case <-sigCh:
		log.Println("[ethtrend] shutdown signal received, cleaning up...")
		ingestor.Stop()
	case err := <-runErr:
		if errors.Is(err, stream.ErrStopped) {
			log.Printf("[ethtrend] stream stopped permanently: %v", err)
			notifier.Send(context.Background(), notification.Alert{
				Level: notification.AlertCritical,
				Title: "stream stopped",
				Body:  notification.ErrorHTML(err),
			})
		} else {
			log.Printf("[ethtrend] stream ended: %v", err)
		}
	}
	cancel()

	notifier.Send(context.Background(), notification.Alert{
		Level: notification.AlertInfo,
		Title: "shutdown",
		Body:  notification.ShutdownHTML(),
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[ethtrend] shutdown complete.")
}
