// Package validator checks download parameters before any candle is requested:
// the symbol must be listed by the exchange, the base currency and interval must
// be supported, and calendar dates are clamped and converted to epoch milliseconds.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/exchange"
)

// DateLayout is the accepted calendar date format.
const DateLayout = "2006-01-02"

const componentName = "validator"

// Intervals the candle endpoint accepts. Case matters: 1m is a minute, 1M a month.
var Intervals = []string{"1m", "5m", "15m", "30m", "1h", "3h", "6h", "12h", "1D", "7D", "14D", "1M"}

// BaseCurrencies a symbol can be quoted in.
var BaseCurrencies = []string{"USD", "UST", "EUR", "CNHT", "GBP", "JPY", "DAI", "BTC", "EOS", "ETH", "XCH", "USTF0"}

// EarliestDate is the lower clamp for requested dates.
var EarliestDate = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)

// Offsets added to the requested start and end days.
const (
	startOfDayOffset = 1 * time.Second
	endOfDayOffset   = 2 * time.Second
)

// Defaults is the request made when the user passes nothing.
var Defaults = Request{
	Symbol:       "BTC",
	BaseCurrency: "USD",
	Interval:     "1D",
	StartDate:    "2020-11-01",
	EndDate:      "2021-01-01",
}

// Request is the unvalidated user input.
type Request struct {
	Symbol       string
	BaseCurrency string
	Interval     string
	StartDate    string
	EndDate      string
}

// Ticker is the symbol joined with its base currency, upper-cased.
func (r Request) Ticker() string {
	return strings.ToUpper(r.Symbol + r.BaseCurrency)
}

// IsDefault reports whether r is exactly the default request.
func (r Request) IsDefault() bool {
	return r == Defaults
}

// InputError lists every invalid field of a Request.
type InputError struct {
	Problems []string
}

func (e *InputError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// DateError reports a date that cannot be used.
type DateError struct {
	Field string
	Value string
	Err   error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("%s date %q: %v", e.Field, e.Value, e.Err)
}

func (e *DateError) Unwrap() error {
	return e.Err
}

// Validator checks requests against the exchange and the allow-lists.
type Validator struct {
	symbols exchange.SymbolLister
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Validator. A nil logger means slog.Default().
func New(symbols exchange.SymbolLister, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		symbols: symbols,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces time.Now, for tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// CheckSymbol reports whether symbol appears in the exchange's symbol list.
// The list is searched as text, lower-cased; a list that cannot be fetched
// makes every symbol invalid.
func (v *Validator) CheckSymbol(ctx context.Context, symbol string) bool {
	if strings.TrimSpace(symbol) == "" {
		return false
	}

	symbols, err := v.symbols.FetchSymbols(ctx)
	if err != nil {
		v.logger.Warn("could not fetch symbol list", "error", err)
		return false
	}

	return strings.Contains(symbols, strings.ToLower(symbol))
}

// CheckBaseCurrency reports whether currency is supported, ignoring case.
func CheckBaseCurrency(currency string) bool {
	currency = strings.ToUpper(currency)
	for _, c := range BaseCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// CheckInterval reports whether interval is supported.
func CheckInterval(interval string) bool {
	for _, i := range Intervals {
		if i == interval {
			return true
		}
	}
	return false
}

// ValidateInputs checks symbol, base currency and interval, reporting every problem at once.
func (v *Validator) ValidateInputs(ctx context.Context, req Request) error {
	var problems []string

	if !v.CheckSymbol(ctx, req.Symbol) {
		problems = append(problems, fmt.Sprintf("symbol %q is not listed on Bitfinex", req.Symbol))
	}
	if !CheckBaseCurrency(req.BaseCurrency) {
		problems = append(problems, fmt.Sprintf("base currency %q is not one of %s", req.BaseCurrency, strings.Join(BaseCurrencies, ", ")))
	}
	if !CheckInterval(req.Interval) {
		problems = append(problems, fmt.Sprintf("interval %q is not one of %s", req.Interval, strings.Join(Intervals, ", ")))
	}

	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrorTypeValidation, componentName, "validate_inputs", &InputError{Problems: problems})
	}
	return nil
}

// NormalizeDates parses both dates, clamps them into [EarliestDate, today] and
// returns epoch milliseconds: the start at 00:00:01 UTC, the end at 00:00:02 UTC.
func (v *Validator) NormalizeDates(startDate, endDate string) (startMs, endMs int64, err error) {
	today := v.now().UTC().Truncate(24 * time.Hour)

	start, err := v.parseAndClamp("start", startDate, today)
	if err != nil {
		return 0, 0, err
	}
	end, err := v.parseAndClamp("end", endDate, today)
	if err != nil {
		return 0, 0, err
	}

	if start.After(end) {
		return 0, 0, apperrors.New(apperrors.ErrorTypeValidation, componentName, "normalize_dates",
			&DateError{Field: "start", Value: startDate, Err: fmt.Errorf("is after end date %s", end.Format(DateLayout))})
	}

	return start.Add(startOfDayOffset).UnixMilli(), end.Add(endOfDayOffset).UnixMilli(), nil
}

func (v *Validator) parseAndClamp(field, value string, today time.Time) (time.Time, error) {
	day, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperrors.New(apperrors.ErrorTypeValidation, componentName, "normalize_dates",
			&DateError{Field: field, Value: value, Err: fmt.Errorf("expected YYYY-MM-DD")})
	}

	switch {
	case day.Before(EarliestDate):
		v.logger.Info("date clamped to earliest supported day", "field", field, "requested", value)
		return EarliestDate, nil
	case day.After(today):
		v.logger.Info("date clamped to today", "field", field, "requested", value)
		return today, nil
	}
	return day, nil
}
