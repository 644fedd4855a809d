// Package sqlite persists the order/fill journal. The journal is
// write-only observability: the controller never reads it back, so a
// crash loses nothing the venue doesn't already know.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"spiderexec/internal/metrics"
	"spiderexec/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// JournalConfig configures the SQLite journal.
type JournalConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/journal.db"
}

// Journal is a single-goroutine SQLite writer for order lifecycle events.
type Journal struct {
	db   *sql.DB
	prom *metrics.Metrics
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New creates a new Journal, initializes the database with WAL mode and schema.
func New(cfg JournalConfig, prom *metrics.Metrics) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened journal at %s", cfg.DBPath)
	return &Journal{db: db, prom: prom}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS order_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type   TEXT    NOT NULL,
			account      TEXT    NOT NULL,
			instrument   TEXT    NOT NULL,
			order_id     TEXT,
			action       TEXT    NOT NULL,
			qty          INTEGER NOT NULL,
			limit_price  REAL    NOT NULL,
			signal       TEXT    NOT NULL,
			filled_qty   INTEGER NOT NULL DEFAULT 0,
			avg_price    REAL    NOT NULL DEFAULT 0,
			ts           INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_order_events_instrument
			ON order_events (account, instrument, ts);
	`)
	return err
}

// Run consumes order events from eventCh and persists them one by one.
// Journal traffic is low-rate (a handful of rows per session), so no
// batching is needed. Blocks until ctx is cancelled or eventCh is closed.
func (j *Journal) Run(ctx context.Context, eventCh <-chan model.OrderEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			start := time.Now()
			if err := j.insert(ev); err != nil {
				log.Printf("[sqlite] journal insert error: %v", err)
				continue
			}
			if j.prom != nil {
				j.prom.JournalWriteDur.Observe(time.Since(start).Seconds())
			}
		}
	}
}

func (j *Journal) insert(ev model.OrderEvent) error {
	_, err := j.db.Exec(`
		INSERT INTO order_events
			(event_type, account, instrument, order_id, action, qty, limit_price, signal, filled_qty, avg_price, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.Order.Account, ev.Order.Instrument, ev.Order.ID,
		string(ev.Order.Action), ev.Order.Qty, ev.Order.LimitPrice, ev.Order.Signal,
		ev.FilledQty, ev.AvgFillPrice, ev.TS.Unix(),
	)
	return err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
