package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/johnayoung/crypto-candlesticks/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS Candlestick (
	ID INTEGER PRIMARY KEY AUTOINCREMENT,
	Timestamp REAL,
	Open REAL,
	Close REAL,
	High REAL,
	Low REAL,
	Volume REAL,
	Ticker TEXT,
	Interval TEXT
)`

const sqliteInsert = `INSERT INTO Candlestick (Timestamp, Open, Close, High, Low, Volume, Ticker, Interval) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteStorage writes candles to a SQLite file through the pure-Go modernc driver.
type SQLiteStorage struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSQLiteStorage creates a store for path. Nothing is opened until Initialize.
func NewSQLiteStorage(path string, logger *slog.Logger) *SQLiteStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStorage{path: path, logger: logger}
}

// Path returns the database file.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Initialize implements CandleWriter.
func (s *SQLiteStorage) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return NewStorageError("initialize", "", fmt.Errorf("failed to create directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return NewStorageError("open", "", fmt.Errorf("failed to open SQLite database: %w", err))
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return NewStorageError("open", "", fmt.Errorf("failed to reach SQLite database: %w", err))
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		s.logger.Warn("failed to set busy timeout", "error", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return NewStorageError("initialize", TableName, fmt.Errorf("failed to create table: %w", err))
	}

	s.db = db
	s.logger.Debug("sqlite storage initialized", "path", s.path)
	return nil
}

// WriteCandles implements CandleWriter. All rows go in one transaction.
func (s *SQLiteStorage) WriteCandles(ctx context.Context, ticker, interval string, result models.AccumulatedResult) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, NewInsertError(TableName, fmt.Errorf("database is not initialized"))
	}

	rows := RowsFrom(ticker, interval, result)
	if len(rows) == 0 {
		return 0, nil
	}

	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Args()...); err != nil {
			return 0, NewInsertError(TableName, fmt.Errorf("failed to insert row %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("failed to commit: %w", err))
	}

	s.logger.Debug("stored candles", "path", s.path, "count", len(rows), "duration", time.Since(start))
	return len(rows), nil
}

// CountRows implements RowCounter.
func (s *SQLiteStorage) CountRows(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, NewStorageError("query", TableName, fmt.Errorf("database is not initialized"))
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Candlestick").Scan(&n); err != nil {
		return 0, NewStorageError("query", TableName, err)
	}
	return n, nil
}

// ReadRows returns every stored row in insertion order.
// Columns are REAL, so values come back in plain decimal notation: a volume
// sent as 1.5e-7 reads back as 0.00000015, equal in value but not in text.
func (s *SQLiteStorage) ReadRows(ctx context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, NewStorageError("query", TableName, fmt.Errorf("database is not initialized"))
	}

	rs, err := s.db.QueryContext(ctx, `SELECT ID, Timestamp, Open, Close, High, Low, Volume, Ticker, Interval FROM Candlestick ORDER BY ID`)
	if err != nil {
		return nil, NewStorageError("query", TableName, err)
	}
	defer rs.Close()

	var out []Row
	for rs.Next() {
		var (
			row    Row
			values [6]float64
		)
		if err := rs.Scan(&row.ID, &values[0], &values[1], &values[2], &values[3], &values[4], &values[5], &row.Ticker, &row.Interval); err != nil {
			return nil, NewStorageError("query", TableName, err)
		}
		numbers := make([]models.Number, len(values))
		for i, v := range values {
			n, err := models.ParseNumber(formatFloat(v))
			if err != nil {
				return nil, NewStorageError("query", TableName, err)
			}
			numbers[i] = n
		}
		row.Timestamp, row.Open, row.Close, row.High, row.Low, row.Volume = numbers[0], numbers[1], numbers[2], numbers[3], numbers[4], numbers[5]
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, NewStorageError("query", TableName, err)
	}
	return out, nil
}

// Close implements CandleWriter.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
