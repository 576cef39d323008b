package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/johnayoung/crypto-candlesticks/internal/models"
)

// MemoryStorage keeps rows in memory. It backs tests and dry runs.
type MemoryStorage struct {
	mu sync.RWMutex

	rows   []Row
	nextID int64

	// FailWith, when set, makes every WriteCandles call fail without storing.
	FailWith error

	initialized bool
	closed      bool
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{nextID: 1}
}

// Initialize implements CandleWriter.
func (m *MemoryStorage) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("initialize", "", errors.New("storage is closed"))
	}
	m.initialized = true
	return nil
}

// WriteCandles implements CandleWriter.
func (m *MemoryStorage) WriteCandles(ctx context.Context, ticker, interval string, result models.AccumulatedResult) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, NewInsertError(TableName, err)
	}
	if !m.initialized || m.closed {
		return 0, NewInsertError(TableName, errors.New("storage is not open"))
	}
	if m.FailWith != nil {
		return 0, NewInsertError(TableName, m.FailWith)
	}

	rows := RowsFrom(ticker, interval, result)
	for i := range rows {
		rows[i].ID = m.nextID
		m.nextID++
	}
	m.rows = append(m.rows, rows...)
	return len(rows), nil
}

// CountRows implements RowCounter.
func (m *MemoryStorage) CountRows(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows), nil
}

// Rows returns a copy of everything stored.
func (m *MemoryStorage) Rows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Row(nil), m.rows...)
}

// Close implements CandleWriter.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
