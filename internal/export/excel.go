// Package export renders a finished download to a spreadsheet.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
	"github.com/xuri/excelize/v2"
)

// DefaultSheetName is the worksheet the rows are written to.
const DefaultSheetName = "Crypto-candlesticks"

// FileTimeLayout is the timestamp suffix of exported file names.
const FileTimeLayout = "2006-01-02 15-04-05"

// Header is the first row of every export, in cell order.
var Header = []string{"open", "close", "high", "low", "volume", "interval", "ticker", "timestamp"}

// Exporter writes a download somewhere and returns where.
type Exporter interface {
	Export(ctx context.Context, ticker, interval string, result models.AccumulatedResult) (string, error)
}

// ExportError reports a spreadsheet that could not be written.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// XLSXExporter writes one xlsx workbook per download.
type XLSXExporter struct {
	dir       string
	sheetName string
	now       func() time.Time
	logger    *slog.Logger
}

// NewXLSXExporter creates an exporter writing into dir. An empty sheetName uses DefaultSheetName.
func NewXLSXExporter(dir, sheetName string, logger *slog.Logger) *XLSXExporter {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXExporter{
		dir:       dir,
		sheetName: sheetName,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces time.Now, for tests.
func (x *XLSXExporter) WithClock(now func() time.Time) *XLSXExporter {
	x.now = now
	return x
}

// FileName returns the workbook path for a download finished at t.
func (x *XLSXExporter) FileName(ticker, interval string, t time.Time) string {
	return filepath.Join(x.dir, fmt.Sprintf("%s-%s-%s.xlsx", ticker, interval, t.UTC().Format(FileTimeLayout)))
}

// Export implements Exporter. Numbers are written as the literal the exchange
// sent, so 100 stays "100" and 100.5 stays "100.5".
func (x *XLSXExporter) Export(ctx context.Context, ticker, interval string, result models.AccumulatedResult) (string, error) {
	path := x.FileName(ticker, interval, x.now())

	fail := func(op string, err error) (string, error) {
		return "", apperrors.New(apperrors.ErrorTypeExport, "export", op, &ExportError{Path: path, Err: err})
	}

	if err := ctx.Err(); err != nil {
		return fail("export", err)
	}

	if x.dir != "" {
		if err := os.MkdirAll(x.dir, 0755); err != nil {
			return fail("mkdir", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", x.sheetName); err != nil {
		return fail("sheet", err)
	}

	sw, err := f.NewStreamWriter(x.sheetName)
	if err != nil {
		return fail("stream", err)
	}

	if err := sw.SetRow("A1", stringsToCells(Header)); err != nil {
		return fail("write_header", err)
	}

	rowNum := 2
	for _, batch := range result {
		for _, c := range batch {
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return fail("write_row", err)
			}
			if err := sw.SetRow(cell, stringsToCells(Cells(c, ticker, interval))); err != nil {
				return fail("write_row", err)
			}
			rowNum++
		}
	}

	if err := sw.Flush(); err != nil {
		return fail("flush", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fail("save", err)
	}

	x.logger.Debug("spreadsheet written", "path", path, "rows", rowNum-2)
	return path, nil
}

// Cells is one spreadsheet row for c, in Header order.
func Cells(c models.CandleRecord, ticker, interval string) []string {
	return []string{
		c.Open.String(),
		c.Close.String(),
		c.High.String(),
		c.Low.String(),
		c.Volume.String(),
		interval,
		ticker,
		c.DateTime(),
	}
}

func stringsToCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
