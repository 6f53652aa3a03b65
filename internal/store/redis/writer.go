// Package redis publishes analysis snapshots to Redis so downstream
// consumers (dashboards, bots) can subscribe or poll the latest result.
package redis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"ethtrend/internal/model"
)

const (
	defaultLatestTTL   = 30 * time.Minute
	breakerMaxFailures = 5
	breakerResetAfter  = 10 * time.Second
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // latest-key TTL, default 30m
}

// Writer publishes analysis snapshots to Redis: SET of the latest snapshot
// with a TTL plus PUBLISH on the analysis channel. Failures trip a circuit
// breaker so a dead Redis never stalls the analysis path.
type Writer struct {
	client  *goredis.Client
	symbol  string
	ttl     time.Duration
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig, symbol string) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}

	breaker := NewCircuitBreaker(breakerMaxFailures, breakerResetAfter)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{
		client:  client,
		symbol:  strings.ToLower(symbol),
		ttl:     ttl,
		breaker: breaker,
	}, nil
}

// LatestKey is the key holding the most recent snapshot JSON.
func (w *Writer) LatestKey() string { return "latest:analysis:" + w.symbol }

// Channel is the pubsub channel snapshots are published on.
func (w *Writer) Channel() string { return "pub:analysis:" + w.symbol }

// Publish writes one snapshot: SET latest with TTL + PUBLISH, pipelined.
// When the breaker is open the snapshot is dropped with a log line.
func (w *Writer) Publish(ctx context.Context, snap *model.AnalysisSnapshot) error {
	err := w.breaker.Execute(func() error {
		jsonData := string(snap.JSON())

		pipe := w.client.Pipeline()
		pipe.Set(ctx, w.LatestKey(), jsonData, w.ttl)
		pipe.Publish(ctx, w.Channel(), jsonData)

		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		if err == ErrCircuitOpen {
			log.Printf("[redis] breaker open, snapshot dropped")
		} else {
			log.Printf("[redis] publish error: %v", err)
		}
		return err
	}
	return nil
}

// Close releases the client connection.
func (w *Writer) Close() error {
	return w.client.Close()
}
