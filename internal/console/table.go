package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
)

// Columns of the progress table.
var Columns = []string{"Open", "Close", "High", "Low", "Volume", "Ticker", "Interval", "Time"}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
)

// Render draws every record of batches as a table. With maxRows > 0 only the
// newest maxRows records are drawn. Render has no side effects.
func Render(ticker, interval string, batches models.AccumulatedResult, maxRows int) string {
	records := batches.Records()
	if maxRows > 0 && len(records) > maxRows {
		records = records[len(records)-maxRows:]
	}

	rows := make([][]string, 0, len(records))
	for _, c := range records {
		rows = append(rows, []string{
			c.Open.String(),
			c.Close.String(),
			c.High.String(),
			c.Low.String(),
			c.Volume.String(),
			ticker,
			interval,
			c.DateTime(),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(Columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	return t.Render()
}

// ProgressPrinter redraws the table after every slice.
type ProgressPrinter struct {
	w        io.Writer
	ticker   string
	interval string
	maxRows  int
	mu       sync.Mutex
}

// NewProgressPrinter creates a printer for one download.
func NewProgressPrinter(w io.Writer, ticker, interval string, maxRows int) *ProgressPrinter {
	return &ProgressPrinter{w: w, ticker: ticker, interval: interval, maxRows: maxRows}
}

// Update writes a fresh render of snapshot. Its signature matches collector.ProgressFunc.
func (p *ProgressPrinter) Update(snapshot models.AccumulatedResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, Render(p.ticker, p.interval, snapshot, p.maxRows))
}
