// Package exchange defines the exchange-facing interfaces of the downloader and
// their Bitfinex implementation.
//
// The interfaces are small so the pagination loop and input validation can be
// tested against stubs instead of the live API.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnayoung/crypto-candlesticks/internal/models"
)

// SymbolLister returns the exchange's symbol list as raw text.
type SymbolLister interface {
	// FetchSymbols returns the body of the symbols endpoint unparsed. Callers
	// search it for a symbol rather than decoding it.
	FetchSymbols(ctx context.Context) (string, error)
}

// CandleFetcher retrieves one slice of candles.
type CandleFetcher interface {
	// FetchCandles returns the candles in [startMs, endMs] for symbol at interval,
	// in the order the exchange sends them (newest first). An empty batch is not
	// an error.
	FetchCandles(ctx context.Context, symbol, interval string, startMs, endMs int64) (models.CandleBatch, error)
}

// RateLimitInfo exposes the client-side request limiter.
type RateLimitInfo interface {
	// WaitForLimit blocks until the limiter allows another request or ctx ends.
	WaitForLimit(ctx context.Context) error
}

// Exchange is everything the downloader needs from an exchange.
type Exchange interface {
	SymbolLister
	CandleFetcher
	RateLimitInfo
}

// Notifier receives messages meant for the person running the download.
type Notifier interface {
	Notify(message string)
}

// RetryPolicy bounds how often a request is retried after a transport failure.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	Delay       time.Duration // fixed pause between attempts
}

// DefaultRetryPolicy is fifteen attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 15, Delay: time.Second}
}

var (
	// ErrNoData is matched by every non-200 response.
	ErrNoData = errors.New("exchange returned no data")
	// ErrCannotConnect is matched when every attempt failed in transport.
	ErrCannotConnect = errors.New("cannot connect to exchange")
)

// StatusError is a response with a status other than 200 OK.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Is makes every StatusError match ErrNoData.
func (e *StatusError) Is(target error) bool {
	return target == ErrNoData
}

// ParseError is a 200 response whose body is not a candle list.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError reports that every attempt allowed by the RetryPolicy failed.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Is makes every RetryExhaustedError match ErrCannotConnect.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrCannotConnect
}
