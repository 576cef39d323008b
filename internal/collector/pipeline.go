package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/export"
	"github.com/johnayoung/crypto-candlesticks/internal/logger"
	"github.com/johnayoung/crypto-candlesticks/internal/metrics"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
	"github.com/johnayoung/crypto-candlesticks/internal/storage"
)

// Reporter receives the status lines shown between stages.
type Reporter interface {
	Info(msg string)
	Success(msg string)
}

type nopReporter struct{}

func (nopReporter) Info(string)    {}
func (nopReporter) Success(string) {}

// Summary is the outcome of a successful Pipeline.Run.
type Summary struct {
	Result     *Result
	RowsStored int
	ExportPath string
}

// Pipeline downloads, stores and exports one request.
type Pipeline struct {
	driver   *Driver
	writer   storage.CandleWriter
	exporter export.Exporter
	reporter Reporter
	recorder *metrics.Recorder
	log      *logger.ComponentLogger
}

// NewPipeline creates a Pipeline. exporter may be nil to skip the spreadsheet.
func NewPipeline(driver *Driver, writer storage.CandleWriter, exporter export.Exporter, l *slog.Logger) *Pipeline {
	if l == nil {
		l = slog.Default()
	}
	return &Pipeline{
		driver:   driver,
		writer:   writer,
		exporter: exporter,
		reporter: nopReporter{},
		log:      &logger.ComponentLogger{Logger: l},
	}
}

// WithReporter sets where stage messages go.
func (p *Pipeline) WithReporter(r Reporter) *Pipeline {
	if r != nil {
		p.reporter = r
	}
	return p
}

// WithRecorder sets where row counts and stage durations are recorded.
func (p *Pipeline) WithRecorder(r *metrics.Recorder) *Pipeline {
	p.recorder = r
	return p
}

// Run downloads req and, only if every slice succeeded, writes the rows and
// exports them. An aborted download touches neither the store nor the exporter.
func (p *Pipeline) Run(ctx context.Context, req models.FetchRequest) (*Summary, error) {
	p.reporter.Info(fmt.Sprintf("Downloading %s data for %s interval...", req.Ticker, req.Interval))

	result, err := p.driver.Run(ctx, req)
	if err != nil {
		return &Summary{Result: result}, err
	}
	p.reporter.Success("Data download completed!")

	summary := &Summary{Result: result}

	p.reporter.Info("Processing data...")

	started := time.Now()
	err = p.log.LogOperation(ctx, "store", func(ctx context.Context) error {
		n, err := p.store(ctx, req, result.Batches)
		summary.RowsStored = n
		return err
	})
	if err != nil {
		return summary, err
	}
	p.recorder.RecordCounter(metrics.RowsStored, int64(summary.RowsStored))
	p.recorder.RecordDuration(metrics.StorageDuration, time.Since(started))
	p.log.Info("rows stored", "ticker", req.Ticker, "interval", req.Interval, "rows", summary.RowsStored)
	p.reporter.Success("Writing to database completed!")

	if p.exporter == nil {
		return summary, nil
	}

	started = time.Now()
	err = p.log.LogOperation(ctx, "export", func(ctx context.Context) error {
		path, err := p.exporter.Export(ctx, req.Ticker, req.Interval, result.Batches)
		summary.ExportPath = path
		return err
	})
	if err != nil {
		return summary, err
	}
	p.recorder.RecordCounter(metrics.RowsExported, int64(result.Records))
	p.recorder.RecordDuration(metrics.ExportDuration, time.Since(started))
	p.log.Info("rows exported", "path", summary.ExportPath, "rows", result.Records)
	p.reporter.Success("Writing to Excel completed!")

	return summary, nil
}

// store writes every row in one Initialize/WriteCandles/Close cycle.
func (p *Pipeline) store(ctx context.Context, req models.FetchRequest, batches models.AccumulatedResult) (int, error) {
	if err := p.writer.Initialize(ctx); err != nil {
		return 0, err
	}
	n, err := p.writer.WriteCandles(ctx, req.Ticker, req.Interval, batches)
	closeErr := p.writer.Close()
	if err != nil {
		return 0, err
	}
	if closeErr != nil {
		return 0, apperrors.New(apperrors.ErrorTypeStorage, componentName, "close_storage", closeErr)
	}
	return n, nil
}
