// Package storage persists downloaded candles to a relational store.
// Every backend writes the same logical row: timestamp, open, close, high, low,
// volume, ticker and interval, plus an auto-increment id, into a Candlestick table.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/johnayoung/crypto-candlesticks/internal/config"
	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
)

// TableName is the table every backend writes to.
const TableName = "Candlestick"

// CandleWriter persists a finished download.
type CandleWriter interface {
	// Initialize opens the store and creates the table if needed.
	Initialize(ctx context.Context) error

	// WriteCandles inserts one row per record of result, in order, and returns
	// how many rows were written. A failed write leaves no rows behind.
	WriteCandles(ctx context.Context, ticker, interval string, result models.AccumulatedResult) (int, error)

	// Close releases the store.
	Close() error
}

// RowCounter reports how many rows a store holds.
type RowCounter interface {
	CountRows(ctx context.Context) (int, error)
}

// Row is one persisted candle.
type Row struct {
	ID        int64
	Timestamp models.Number
	Open      models.Number
	Close     models.Number
	High      models.Number
	Low       models.Number
	Volume    models.Number
	Ticker    string
	Interval  string
}

// RowsFrom maps every record of result to a Row, preserving order. IDs are left zero.
func RowsFrom(ticker, interval string, result models.AccumulatedResult) []Row {
	rows := make([]Row, 0, result.RecordCount())
	for _, batch := range result {
		for _, c := range batch {
			rows = append(rows, Row{
				Timestamp: c.Timestamp,
				Open:      c.Open,
				Close:     c.Close,
				High:      c.High,
				Low:       c.Low,
				Volume:    c.Volume,
				Ticker:    ticker,
				Interval:  interval,
			})
		}
	}
	return rows
}

// Args returns the insert parameters in column order. Numbers bind through
// their driver.Valuer, so integers stay integers.
func (r Row) Args() []any {
	return []any{r.Timestamp, r.Open, r.Close, r.High, r.Low, r.Volume, r.Ticker, r.Interval}
}

// FloatArgs is Args for drivers whose numeric columns only accept float64.
func (r Row) FloatArgs() []any {
	return []any{
		r.Timestamp.Float64(), r.Open.Float64(), r.Close.Float64(),
		r.High.Float64(), r.Low.Float64(), r.Volume.Float64(),
		r.Ticker, r.Interval,
	}
}

// FileName is the database file for one ticker and interval, e.g. BTCUSD-1D.sqlite.
func FileName(dir, ticker, interval, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.%s", ticker, interval, strings.TrimPrefix(ext, ".")))
}

// New returns the backend named by cfg.Type. File backends are named after ticker and interval.
func New(cfg config.StorageConfig, ticker, interval string, logger *slog.Logger) (CandleWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case "sqlite", "":
		return NewSQLiteStorage(FileName(cfg.Directory, ticker, interval, "sqlite"), logger), nil
	case "duckdb":
		return NewDuckDBStorage(FileName(cfg.Directory, ticker, interval, "duckdb"), logger), nil
	case "postgres":
		return NewPostgresStorage(cfg.DatabaseURL, logger), nil
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, apperrors.New(apperrors.ErrorTypeConfiguration, "storage", "new",
			fmt.Errorf("unsupported storage type %q", cfg.Type))
	}
}

// StorageError represents errors that occur during storage operations.
type StorageError struct {
	// Operation is the storage operation that failed (e.g., "insert", "initialize")
	Operation string

	// Table is the database table involved in the operation
	Table string

	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a classified StorageError.
func NewStorageError(operation, table string, err error) error {
	return apperrors.New(apperrors.ErrorTypeStorage, "storage", operation, &StorageError{
		Operation: operation,
		Table:     table,
		Err:       err,
	})
}

// NewInsertError creates a StorageError specifically for insert operations.
func NewInsertError(table string, err error) error {
	return NewStorageError("insert", table, err)
}
