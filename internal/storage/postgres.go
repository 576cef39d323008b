package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS "Candlestick" (
	"ID" BIGSERIAL PRIMARY KEY,
	"Timestamp" DOUBLE PRECISION,
	"Open" DOUBLE PRECISION,
	"Close" DOUBLE PRECISION,
	"High" DOUBLE PRECISION,
	"Low" DOUBLE PRECISION,
	"Volume" DOUBLE PRECISION,
	"Ticker" TEXT,
	"Interval" TEXT
)`

var candleColumns = []string{"Timestamp", "Open", "Close", "High", "Low", "Volume", "Ticker", "Interval"}

// PostgresStorage writes candles to a shared PostgreSQL table with COPY.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	dsn    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewPostgresStorage creates a store for dsn. Nothing is dialed until Initialize.
func NewPostgresStorage(dsn string, logger *slog.Logger) *PostgresStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStorage{dsn: dsn, logger: logger}
}

// Initialize implements CandleWriter.
func (p *PostgresStorage) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := pgxpool.ParseConfig(p.dsn)
	if err != nil {
		return NewStorageError("open", "", fmt.Errorf("parse pgx config: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return NewStorageError("open", "", fmt.Errorf("create pgx pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return NewStorageError("open", "", fmt.Errorf("ping postgres: %w", err))
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return NewStorageError("initialize", TableName, fmt.Errorf("failed to create table: %w", err))
	}

	p.pool = pool
	p.logger.Debug("postgres storage initialized", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return nil
}

// WriteCandles implements CandleWriter. COPY is a single statement, so a
// failure stores nothing.
func (p *PostgresStorage) WriteCandles(ctx context.Context, ticker, interval string, result models.AccumulatedResult) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool == nil {
		return 0, NewInsertError(TableName, fmt.Errorf("pool is not initialized"))
	}

	rows := RowsFrom(ticker, interval, result)
	if len(rows) == 0 {
		return 0, nil
	}

	start := time.Now()
	copyRows := make([][]any, 0, len(rows))
	for _, row := range rows {
		copyRows = append(copyRows, row.FloatArgs())
	}

	n, err := p.pool.CopyFrom(
		ctx,
		pgx.Identifier{TableName},
		candleColumns,
		pgx.CopyFromRows(copyRows),
	)
	if err != nil {
		return 0, NewInsertError(TableName, fmt.Errorf("copy candles: %w", err))
	}

	p.logger.Debug("stored candles", "count", n, "duration", time.Since(start))
	return int(n), nil
}

// CountRows implements RowCounter.
func (p *PostgresStorage) CountRows(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool == nil {
		return 0, NewStorageError("query", TableName, fmt.Errorf("pool is not initialized"))
	}

	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM "Candlestick"`).Scan(&n); err != nil {
		return 0, NewStorageError("query", TableName, err)
	}
	return n, nil
}

// Close implements CandleWriter.
func (p *PostgresStorage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}
