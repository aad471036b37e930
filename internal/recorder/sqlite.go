package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raidenblackout/CTB/internal/portfolio"
)

// SQLiteRecorder persists agent activity to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for concurrent reads while the agent writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			tick_id   INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			strategy  TEXT,
			symbol    TEXT,
			side      TEXT,
			size_pct  REAL,
			reason    TEXT,
			outcome   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_tick ON signals(tick_id)`,

		`CREATE TABLE IF NOT EXISTS fills (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			tick_id   INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			order_id  TEXT,
			strategy  TEXT,
			symbol    TEXT,
			side      TEXT,
			quantity  TEXT,
			price     TEXT,
			fee       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_tick ON fills(tick_id)`,

		`CREATE TABLE IF NOT EXISTS ticks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			tick_id     INTEGER NOT NULL,
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER,
			signals     INTEGER,
			planned     INTEGER,
			executed    INTEGER,
			failed      INTEGER,
			equity      REAL,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_tick ON ticks(tick_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignal(evt *SignalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO signals
		(tick_id, timestamp, strategy, symbol, side, size_pct, reason, outcome)
		VALUES (?,?,?,?,?,?,?,?)`,
		evt.TickID, time.Now().Unix(), evt.Strategy, evt.Symbol,
		evt.Side, evt.Size, evt.Reason, evt.Outcome,
	)
	return err
}

func (r *SQLiteRecorder) RecordFill(tickID int64, fill portfolio.Fill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO fills
		(tick_id, timestamp, order_id, strategy, symbol, side, quantity, price, fee)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		tickID, fill.Timestamp.Unix(), fill.OrderID, fill.Strategy,
		fill.Symbol, string(fill.Side),
		fill.Quantity.String(), fill.Price.String(), fill.Fee.String(),
	)
	return err
}

func (r *SQLiteRecorder) RecordTick(evt *TickEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO ticks
		(tick_id, started_at, duration_ms, signals, planned, executed, failed, equity, error)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.TickID, evt.StartedAt.Unix(), evt.Duration.Milliseconds(),
		evt.Signals, evt.Planned, evt.Executed, evt.Failed, evt.Equity, evt.Err,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
