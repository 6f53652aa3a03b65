// Package sqlite journals analysis snapshots to a local database so the
// analysis history survives restarts and can be inspected offline.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ethtrend/internal/model"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/ethtrend.db"
}

// Writer is a single-connection SQLite journal for analysis snapshots.
// Snapshot volume is one row per scheduler gate opening, so there is no
// batching; each Record is its own transaction.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL,
			ts             TEXT    NOT NULL,
			direction      TEXT    NOT NULL,
			confidence     REAL    NOT NULL,
			trend_strength REAL    NOT NULL,
			data           TEXT    NOT NULL,
			created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_ts
			ON analysis_snapshots (symbol, ts);
	`)
	return err
}

// Record journals one snapshot. The full JSON is stored alongside the
// indexed columns so the row is self-describing.
func (w *Writer) Record(symbol string, snap *model.AnalysisSnapshot) error {
	_, err := w.db.Exec(`
		INSERT INTO analysis_snapshots (symbol, ts, direction, confidence, trend_strength, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, symbol, snap.Timestamp, string(snap.Direction), snap.Confidence, snap.TrendStrength,
		string(snap.JSON()), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	return nil
}

// LastSnapshot returns the most recently journaled snapshot for symbol,
// or nil when the journal is empty. Used at startup to log what the
// previous run last saw.
func (w *Writer) LastSnapshot(symbol string) (*model.AnalysisSnapshot, error) {
	var data string
	err := w.db.QueryRow(`
		SELECT data FROM analysis_snapshots
		WHERE symbol = ?
		ORDER BY id DESC LIMIT 1
	`, symbol).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query last snapshot: %w", err)
	}

	var snap model.AnalysisSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("sqlite decode snapshot: %w", err)
	}
	return &snap, nil
}

// Count returns the number of journaled snapshots for symbol.
func (w *Writer) Count(symbol string) (int, error) {
	var n int
	err := w.db.QueryRow(
		`SELECT COUNT(*) FROM analysis_snapshots WHERE symbol = ?`, symbol,
	).Scan(&n)
	return n, err
}

// Close flushes and closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
