// Package console writes what the person running a download sees: styled
// status lines and a progress table redrawn after every slice.
package console

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e5c07b"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#26a641"))
)

// Printer writes styled status lines.
type Printer struct {
	w     io.Writer
	sleep func(time.Duration)
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, sleep: time.Sleep}
}

// WithSleep replaces time.Sleep, for tests.
func (p *Printer) WithSleep(sleep func(time.Duration)) *Printer {
	p.sleep = sleep
	return p
}

// Info prints msg in yellow.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.w, infoStyle.Render(msg))
}

// Success prints msg in green.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.w, successStyle.Render(msg))
}

// Failure prints msg in red.
func (p *Printer) Failure(msg string) {
	fmt.Fprintln(p.w, failureStyle.Render(msg))
}

// Notify implements exchange.Notifier.
func (p *Printer) Notify(msg string) {
	p.Failure(msg)
}

// Countdown prints seconds, seconds-1, ..., 1 one second apart.
func (p *Printer) Countdown(seconds int) {
	for i := seconds; i > 0; i-- {
		p.Info(fmt.Sprintf("%d...", i))
		p.sleep(time.Second)
	}
}

// Banner prints msg bold inside a rounded border.
func (p *Printer) Banner(msg string) {
	fmt.Fprintln(p.w, bannerStyle.
		Border(lipgloss.RoundedBorder()).
		Padding(0, 2).
		Render(msg))
}
