package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/johnayoung/crypto-candlesticks/internal/models"
	"github.com/marcboeker/go-duckdb/v2"
)

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS "Candlestick" (
	"ID" BIGINT PRIMARY KEY,
	"Timestamp" DOUBLE,
	"Open" DOUBLE,
	"Close" DOUBLE,
	"High" DOUBLE,
	"Low" DOUBLE,
	"Volume" DOUBLE,
	"Ticker" VARCHAR,
	"Interval" VARCHAR
)`

// DuckDBStorage writes candles to a DuckDB file using the Appender API.
// The appender fills every column, so IDs are assigned here, continuing from
// the highest ID already stored. Each write runs in one transaction.
type DuckDBStorage struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewDuckDBStorage creates a store for dbPath, which may be ":memory:".
func NewDuckDBStorage(dbPath string, logger *slog.Logger) *DuckDBStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDBStorage{dbPath: dbPath, logger: logger}
}

// Initialize implements CandleWriter.
func (d *DuckDBStorage) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := sql.Open("duckdb", d.dbPath)
	if err != nil {
		return NewStorageError("open", "", fmt.Errorf("failed to open DuckDB database: %w", err))
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, duckdbSchema); err != nil {
		db.Close()
		return NewStorageError("initialize", TableName, fmt.Errorf("failed to create table: %w", err))
	}

	d.db = db
	d.logger.Debug("duckdb storage initialized", "db_path", d.dbPath)
	return nil
}

// WriteCandles implements CandleWriter.
func (d *DuckDBStorage) WriteCandles(ctx context.Context, ticker, interval string, result models.AccumulatedResult) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return 0, NewInsertError(TableName, fmt.Errorf("database connection is closed"))
	}

	rows := RowsFrom(ticker, interval, result)
	if len(rows) == 0 {
		return 0, nil
	}

	start := time.Now()

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("failed to get connection: %w", err))
	}
	defer conn.Close()

	var lastID int64
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX("ID"), 0) FROM "Candlestick"`).Scan(&lastID); err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("failed to read last id: %w", err))
	}

	var driverConn *duckdb.Conn
	err = conn.Raw(func(dc any) error {
		var ok bool
		driverConn, ok = dc.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("underlying connection is not a DuckDB connection")
		}
		return nil
	})
	if err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("failed to get DuckDB connection: %w", err))
	}

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("failed to begin transaction: %w", err))
	}
	rollback := func(cause error) (int, error) {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); err != nil {
			d.logger.Warn("rollback failed", "db_path", d.dbPath, "error", err)
		}
		return 0, NewInsertError(TableName, cause)
	}

	appender, err := duckdb.NewAppenderFromConn(driverConn, "", TableName)
	if err != nil {
		return rollback(fmt.Errorf("failed to create appender: %w", err))
	}

	for i, row := range rows {
		values := append([]driver.Value{lastID + int64(i) + 1}, toDriverValues(row.FloatArgs())...)
		if err := appender.AppendRow(values...); err != nil {
			_ = appender.Close()
			return rollback(fmt.Errorf("failed to append row %d: %w", i, err))
		}
	}

	// Close flushes the remaining rows into the open transaction.
	if err := appender.Close(); err != nil {
		return rollback(fmt.Errorf("failed to flush appender: %w", err))
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return rollback(fmt.Errorf("failed to commit: %w", err))
	}

	d.logger.Debug("stored candles",
		"db_path", d.dbPath,
		"count", len(rows),
		"duration", time.Since(start))

	return len(rows), nil
}

// CountRows implements RowCounter.
func (d *DuckDBStorage) CountRows(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return 0, NewStorageError("query", TableName, fmt.Errorf("database connection is closed"))
	}

	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "Candlestick"`).Scan(&n); err != nil {
		return 0, NewStorageError("query", TableName, err)
	}
	return n, nil
}

// Close implements CandleWriter.
func (d *DuckDBStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return NewStorageError("close", "", fmt.Errorf("failed to close database: %w", err))
	}
	d.db = nil
	return nil
}

func toDriverValues(args []any) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
