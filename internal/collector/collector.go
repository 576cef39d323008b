// Package collector drives a complete candle download.
//
// The Driver walks the requested time range one slice at a time, waiting a
// courtesy delay between requests, and either returns every batch or none:
// a failure on any slice aborts the run and discards what was fetched. The
// Pipeline hands a successful result to persistence and then to export.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/exchange"
	"github.com/johnayoung/crypto-candlesticks/internal/metrics"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
)

const componentName = "collector"

// Defaults for Config.
const (
	DefaultSliceWidth    = 24 * time.Hour
	DefaultCourtesyDelay = 500 * time.Millisecond
)

// State is where a download run is in its life.
type State int

const (
	StateRunning State = iota
	StateSucceeded
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config controls pagination. Zero delays are allowed.
type Config struct {
	SliceWidth    time.Duration
	CourtesyDelay time.Duration
}

// DefaultConfig returns one-day slices half a second apart.
func DefaultConfig() Config {
	return Config{
		SliceWidth:    DefaultSliceWidth,
		CourtesyDelay: DefaultCourtesyDelay,
	}
}

// Request builds the FetchRequest for a download using this slice width.
func (c Config) Request(ticker, interval string, startMs, endMs int64) models.FetchRequest {
	return models.FetchRequest{
		Ticker:       ticker,
		Interval:     interval,
		StartMs:      startMs,
		EndMs:        endMs,
		SliceWidthMs: c.SliceWidth.Milliseconds(),
	}
}

// ProgressFunc receives a copy of everything fetched so far after each slice.
type ProgressFunc func(snapshot models.AccumulatedResult)

// Result is the outcome of Driver.Run.
type Result struct {
	State   State
	Batches models.AccumulatedResult // nil unless State is StateSucceeded
	Slices  int                      // slices fetched successfully
	Records int
	Elapsed time.Duration
}

// AbortError reports the slice a run failed on.
type AbortError struct {
	Slice models.Slice
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("download aborted at slice %d [%d, %d]: %v", e.Slice.Index, e.Slice.FromMs, e.Slice.ToMs, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Driver runs the pagination loop against a CandleFetcher.
type Driver struct {
	fetcher       exchange.CandleFetcher
	courtesyDelay time.Duration
	progress      ProgressFunc
	logger        *slog.Logger
	recorder      *metrics.Recorder
}

// NewDriver creates a Driver. A nil logger means slog.Default().
func NewDriver(fetcher exchange.CandleFetcher, cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		fetcher:       fetcher,
		courtesyDelay: cfg.CourtesyDelay,
		logger:        logger,
	}
}

// WithProgress sets the callback invoked after every appended batch.
func (d *Driver) WithProgress(fn ProgressFunc) *Driver {
	d.progress = fn
	return d
}

// WithRecorder sets where slice counters are recorded.
func (d *Driver) WithRecorder(r *metrics.Recorder) *Driver {
	d.recorder = r
	return d
}

// Run downloads every slice of req in order. It returns a StateSucceeded result
// holding one batch per slice (empty batches included), or a StateAborted result
// with no batches and an *AbortError.
func (d *Driver) Run(ctx context.Context, req models.FetchRequest) (*Result, error) {
	started := time.Now()
	result := &Result{State: StateRunning}

	abort := func(err error) (*Result, error) {
		result.State = StateAborted
		result.Batches = nil
		result.Records = 0
		result.Elapsed = time.Since(started)
		d.recorder.RecordDuration(metrics.DownloadDuration, result.Elapsed)
		return result, err
	}

	if err := req.Validate(); err != nil {
		return abort(apperrors.New(apperrors.ErrorTypeValidation, componentName, "run", err))
	}

	count := req.SliceCount()
	acc := models.AccumulatedResult{}

	d.logger.Info("download started",
		"ticker", req.Ticker,
		"interval", req.Interval,
		"start", req.StartMs,
		"end", req.EndMs,
		"slices", count)

	for slice := req.FirstSlice(); ; slice = req.NextSlice(slice) {
		sliceStarted := time.Now()

		batch, err := d.fetcher.FetchCandles(ctx, req.Ticker, req.Interval, slice.FromMs, slice.ToMs)
		if err != nil {
			d.logger.Error("slice failed, discarding download",
				"slice", slice.Index,
				"from", slice.FromMs,
				"to", slice.ToMs,
				"fetched_slices", result.Slices,
				"error", err)
			return abort(&AbortError{Slice: slice, Err: err})
		}
		if batch == nil {
			batch = models.CandleBatch{}
		}

		acc = append(acc, batch)
		result.Slices++
		result.Records += len(batch)

		d.recorder.RecordCounter(metrics.SlicesFetched, 1)
		d.recorder.RecordDuration(metrics.SliceDuration, time.Since(sliceStarted))
		d.logger.Debug("slice fetched",
			"slice", slice.Index,
			"from", slice.FromMs,
			"to", slice.ToMs,
			"records", len(batch))

		if d.progress != nil {
			d.progress(acc.Clone())
		}

		if slice.Index >= count-1 {
			break
		}
		if err := d.pause(ctx); err != nil {
			return abort(&AbortError{Slice: req.NextSlice(slice), Err: apperrors.New(apperrors.ErrorTypeCanceled, componentName, "pause", err)})
		}
	}

	result.State = StateSucceeded
	result.Batches = acc
	result.Elapsed = time.Since(started)
	d.recorder.RecordDuration(metrics.DownloadDuration, result.Elapsed)

	d.logger.Info("download completed",
		"ticker", req.Ticker,
		"interval", req.Interval,
		"slices", result.Slices,
		"records", result.Records,
		"elapsed", result.Elapsed)

	return result, nil
}

func (d *Driver) pause(ctx context.Context) error {
	if d.courtesyDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d.courtesyDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
