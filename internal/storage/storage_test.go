package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johnayoung/crypto-candlesticks/internal/config"
	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candle(ts, open, close, high, low, volume string) models.CandleRecord {
	return models.CandleRecord{
		Timestamp: models.MustNumber(ts),
		Open:      models.MustNumber(open),
		Close:     models.MustNumber(close),
		High:      models.MustNumber(high),
		Low:       models.MustNumber(low),
		Volume:    models.MustNumber(volume),
	}
}

func sampleResult() models.AccumulatedResult {
	return models.AccumulatedResult{
		{
			candle("1604275200000", "13780.5", "13737", "13800", "13650", "1234.5"),
			candle("1604188800000", "13800", "13780.5", "13900", "13700", "987.25"),
		},
		{},
		{
			candle("1604361600000", "13737", "13550", "13810", "13400", "2000"),
		},
	}
}

func TestRowsFrom(t *testing.T) {
	rows := RowsFrom("BTCUSD", "1D", sampleResult())

	require.Len(t, rows, 3)
	assert.Equal(t, "1604275200000", rows[0].Timestamp.String())
	assert.Equal(t, "1604188800000", rows[1].Timestamp.String())
	assert.Equal(t, "1604361600000", rows[2].Timestamp.String())
	for _, r := range rows {
		assert.Equal(t, "BTCUSD", r.Ticker)
		assert.Equal(t, "1D", r.Interval)
		assert.Zero(t, r.ID)
	}

	args := rows[0].Args()
	require.Len(t, args, 8)
	assert.Equal(t, models.MustNumber("13780.5"), args[1], "open precedes close")
	assert.Equal(t, models.MustNumber("13737"), args[2])

	floats := rows[0].FloatArgs()
	assert.Equal(t, 1604275200000.0, floats[0])
	assert.Equal(t, 1234.5, floats[5])
	assert.Equal(t, "1D", floats[7])

	assert.Empty(t, RowsFrom("BTCUSD", "1D", nil))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "BTCUSD-1D.sqlite"), FileName("data", "BTCUSD", "1D", "sqlite"))
	assert.Equal(t, "ETHEUR-1h.duckdb", FileName("", "ETHEUR", "1h", ".duckdb"))
}

func TestNew(t *testing.T) {
	logger := createTestLogger()

	w, err := New(config.StorageConfig{Type: "sqlite", Directory: "out"}, "BTCUSD", "1D", logger)
	require.NoError(t, err)
	sqlite, ok := w.(*SQLiteStorage)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("out", "BTCUSD-1D.sqlite"), sqlite.Path())

	w, err = New(config.StorageConfig{Type: "duckdb"}, "BTCUSD", "1D", logger)
	require.NoError(t, err)
	assert.IsType(t, &DuckDBStorage{}, w)

	w, err = New(config.StorageConfig{Type: "postgres", DatabaseURL: "postgres://localhost/candles"}, "BTCUSD", "1D", logger)
	require.NoError(t, err)
	assert.IsType(t, &PostgresStorage{}, w)

	w, err = New(config.StorageConfig{Type: "memory"}, "BTCUSD", "1D", logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, w)

	_, err = New(config.StorageConfig{Type: "mongo"}, "BTCUSD", "1D", logger)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeConfiguration, apperrors.GetErrorType(err))
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewInsertError(TableName, cause)

	assert.Equal(t, apperrors.ErrorTypeStorage, apperrors.GetErrorType(err))
	assert.ErrorIs(t, err, cause)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "insert", storageErr.Operation)
	assert.Contains(t, storageErr.Error(), "on table Candlestick")
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	_, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.Error(t, err, "writes before Initialize fail")

	require.NoError(t, store.Initialize(ctx))

	n, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows := store.Rows()
	require.Len(t, rows, 6)
	for i, r := range rows {
		assert.Equal(t, int64(i+1), r.ID)
	}

	count, err := store.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	t.Run("failure stores nothing", func(t *testing.T) {
		store.FailWith = errors.New("boom")
		defer func() { store.FailWith = nil }()

		_, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
		require.Error(t, err)
		count, _ := store.CountRows(ctx)
		assert.Equal(t, 6, count)
	})

	require.NoError(t, store.Close())
	_, err = store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	assert.Error(t, err)
}

func TestSQLiteStorage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "BTCUSD-1D.sqlite")
	store := NewSQLiteStorage(path, createTestLogger())

	_, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.Error(t, err)

	require.NoError(t, store.Initialize(ctx))
	defer store.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file is created")

	n, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.WriteCandles(ctx, "BTCUSD", "1D", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := store.ReadRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, int64(3), rows[2].ID)
	assert.Equal(t, "1604275200000", rows[0].Timestamp.String())
	assert.Equal(t, "13780.5", rows[0].Open.String())
	assert.Equal(t, "13737", rows[0].Close.String())
	assert.Equal(t, "13800", rows[0].High.String())
	assert.Equal(t, "13650", rows[0].Low.String())
	assert.Equal(t, "1234.5", rows[0].Volume.String())
	assert.Equal(t, "BTCUSD", rows[0].Ticker)
	assert.Equal(t, "1D", rows[0].Interval)

	t.Run("reopening appends", func(t *testing.T) {
		require.NoError(t, store.Close())
		require.NoError(t, store.Initialize(ctx))

		_, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
		require.NoError(t, err)

		count, err := store.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 6, count)
	})

	t.Run("exponent literals read back in decimal notation", func(t *testing.T) {
		tiny := models.AccumulatedResult{{candle("1604448000000", "13550", "13600", "13650", "13500", "1.5e-7")}}
		_, err := store.WriteCandles(ctx, "BTCUSD", "1D", tiny)
		require.NoError(t, err)

		rows, err := store.ReadRows(ctx)
		require.NoError(t, err)
		last := rows[len(rows)-1]

		assert.Equal(t, "0.00000015", last.Volume.String())
		assert.True(t, last.Volume.Decimal().Equal(models.MustNumber("1.5e-7").Decimal()))
	})

	t.Run("canceled context stores nothing", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.WriteCandles(canceled, "BTCUSD", "1D", sampleResult())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeStorage, apperrors.GetErrorType(err))

		count, err := store.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, count)
	})
}

func TestDuckDBStorage(t *testing.T) {
	ctx := context.Background()
	store := NewDuckDBStorage(filepath.Join(t.TempDir(), "BTCUSD-1D.duckdb"), createTestLogger())

	require.NoError(t, store.Initialize(ctx))
	defer store.Close()

	n, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.NoError(t, err)

	count, err := store.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	var maxID int64
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT MAX("ID") FROM "Candlestick"`).Scan(&maxID))
	assert.Equal(t, int64(6), maxID)
}

func TestDuckDBStorage_FailedWriteLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	store := NewDuckDBStorage(filepath.Join(t.TempDir(), "BTCUSD-1D.duckdb"), createTestLogger())

	require.NoError(t, store.Initialize(ctx))
	defer store.Close()

	// Same columns, but a second candle at an existing timestamp is rejected.
	_, err := store.db.ExecContext(ctx, `DROP TABLE "Candlestick"`)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, strings.Replace(duckdbSchema, `"Timestamp" DOUBLE,`, `"Timestamp" DOUBLE UNIQUE,`, 1))
	require.NoError(t, err)

	_, err = store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.NoError(t, err)

	clash := models.AccumulatedResult{{
		candle("1604448000000", "13550", "13600", "13650", "13500", "100"),
		candle("1604534400000", "13600", "13650", "13700", "13550", "100"),
		candle("1604275200000", "13780.5", "13737", "13800", "13650", "1234.5"),
	}}
	_, err = store.WriteCandles(ctx, "BTCUSD", "1D", clash)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeStorage, apperrors.GetErrorType(err))

	count, err := store.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "rows appended before the failure are rolled back")

	n, err := store.WriteCandles(ctx, "BTCUSD", "1D", models.AccumulatedResult{clash[0][:2]})
	require.NoError(t, err, "the store stays usable after a rollback")
	assert.Equal(t, 2, n)
}

func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("CANDLESTICKS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CANDLESTICKS_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store := NewPostgresStorage(dsn, createTestLogger())
	require.NoError(t, store.Initialize(ctx))
	defer store.Close()

	before, err := store.CountRows(ctx)
	require.NoError(t, err)

	n, err := store.WriteCandles(ctx, "BTCUSD", "1D", sampleResult())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	after, err := store.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+3, after)
}
