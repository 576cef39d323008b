package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/johnayoung/crypto-candlesticks/internal/config"
	apperrors "github.com/johnayoung/crypto-candlesticks/internal/errors"
	"github.com/johnayoung/crypto-candlesticks/internal/metrics"
	"github.com/johnayoung/crypto-candlesticks/internal/models"
	"golang.org/x/time/rate"
)

const (
	bitfinexV1URL = "https://api.bitfinex.com/v1"
	bitfinexV2URL = "https://api.bitfinex.com/v2"

	symbolsEndpoint = "/symbols"
	candlesEndpoint = "/candles/trade:%s:t%s/hist"

	defaultRecordsPerRequest = 10000
	requestTimeout           = 30 * time.Second
	maxErrorBodyBytes        = 512

	// CannotConnectMessage is shown when every retry failed.
	CannotConnectMessage = "Cannot connect to Bitfinex, please try again"

	componentName = "exchange"
)

// ClientConfig holds the BitfinexClient settings.
type ClientConfig struct {
	BaseURLV1         string
	BaseURLV2         string
	Timeout           time.Duration
	RecordsPerRequest int
	RequestsPerMinute int // 0 disables the client-side limiter
	Retry             RetryPolicy
	UserAgent         string
}

// DefaultClientConfig targets the public Bitfinex API.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURLV1:         bitfinexV1URL,
		BaseURLV2:         bitfinexV2URL,
		Timeout:           requestTimeout,
		RecordsPerRequest: defaultRecordsPerRequest,
		Retry:             DefaultRetryPolicy(),
		UserAgent:         "crypto-candlesticks/1.0",
	}
}

// ClientConfigFrom converts the loaded application configuration.
func ClientConfigFrom(cfg config.ExchangeConfig, version string) ClientConfig {
	return ClientConfig{
		BaseURLV1:         strings.TrimRight(cfg.BaseURLV1, "/"),
		BaseURLV2:         strings.TrimRight(cfg.BaseURLV2, "/"),
		Timeout:           cfg.HTTPTimeout(),
		RecordsPerRequest: cfg.RecordsPerRequest,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Retry: RetryPolicy{
			MaxAttempts: cfg.RetryPolicy.MaxAttempts,
			Delay:       cfg.RetryPolicy.RetryDelay(),
		},
		UserAgent: "crypto-candlesticks/" + version,
	}
}

// BitfinexClient implements Exchange against the Bitfinex REST API.
type BitfinexClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURLV1   string
	baseURLV2   string
	limit       int
	retry       RetryPolicy
	userAgent   string
	logger      *slog.Logger
	notifier    Notifier
	recorder    *metrics.Recorder
}

// NewBitfinexClient creates a client. A nil logger means slog.Default().
func NewBitfinexClient(cfg ClientConfig, logger *slog.Logger) *BitfinexClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.RecordsPerRequest <= 0 {
		cfg.RecordsPerRequest = defaultRecordsPerRequest
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &BitfinexClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(limit, 1),
		baseURLV1:   cfg.BaseURLV1,
		baseURLV2:   cfg.BaseURLV2,
		limit:       cfg.RecordsPerRequest,
		retry:       cfg.Retry,
		userAgent:   cfg.UserAgent,
		logger:      logger,
	}
}

// WithNotifier sets who is told when the exchange stays unreachable.
func (c *BitfinexClient) WithNotifier(n Notifier) *BitfinexClient {
	c.notifier = n
	return c
}

// WithRecorder sets where request counters are recorded.
func (c *BitfinexClient) WithRecorder(r *metrics.Recorder) *BitfinexClient {
	c.recorder = r
	return c
}

// FetchSymbols implements SymbolLister.
func (c *BitfinexClient) FetchSymbols(ctx context.Context) (string, error) {
	var symbols string
	err := c.get(ctx, "fetch_symbols", c.baseURLV1+symbolsEndpoint, func(body []byte) error {
		symbols = string(body)
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("fetched symbol list", "bytes", len(symbols))
	return symbols, nil
}

// FetchCandles implements CandleFetcher.
func (c *BitfinexClient) FetchCandles(ctx context.Context, symbol, interval string, startMs, endMs int64) (models.CandleBatch, error) {
	requestURL := c.candlesURL(symbol, interval, startMs, endMs)

	var batch models.CandleBatch
	err := c.get(ctx, "fetch_candles", requestURL, func(body []byte) error {
		return json.Unmarshal(body, &batch)
	})
	if err != nil {
		return nil, err
	}
	if batch == nil {
		batch = models.CandleBatch{}
	}

	c.recorder.RecordCounter(metrics.CandlesFetched, int64(len(batch)))
	c.logger.Debug("fetched candles",
		"symbol", symbol,
		"interval", interval,
		"start", startMs,
		"end", endMs,
		"count", len(batch))

	return batch, nil
}

// WaitForLimit implements RateLimitInfo.
func (c *BitfinexClient) WaitForLimit(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

func (c *BitfinexClient) candlesURL(symbol, interval string, startMs, endMs int64) string {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("start", strconv.FormatInt(startMs, 10))
	params.Set("end", strconv.FormatInt(endMs, 10))
	params.Set("sort", "-1")

	path := fmt.Sprintf(candlesEndpoint, interval, strings.ToUpper(symbol))
	return c.baseURLV2 + path + "?" + params.Encode()
}

// get performs one logical GET. Transport failures, including a failed body read,
// are retried per the RetryPolicy with a fixed delay. A non-200 status or a body
// decode rejects the request at once. The first successful decode ends the loop.
func (c *BitfinexClient) get(ctx context.Context, operation, requestURL string, decode func([]byte) error) error {
	attempts := 0
	var lastErr error

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retry.Delay), uint64(c.retry.MaxAttempts-1)),
		ctx,
	)

	attempt := func() error {
		if err := c.WaitForLimit(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limit wait failed: %w", err))
		}

		attempts++
		c.recorder.RecordCounter(metrics.HTTPRequests, 1)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			return lastErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			return backoff.Permanent(&StatusError{
				StatusCode: resp.StatusCode,
				URL:        requestURL,
				Body:       strings.TrimSpace(string(body)),
			})
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			return lastErr
		}

		if err := decode(body); err != nil {
			return backoff.Permanent(&ParseError{URL: requestURL, Err: err})
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.recorder.RecordCounter(metrics.HTTPRetries, 1)
		c.logger.Warn("request failed, retrying",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", c.retry.MaxAttempts,
			"retry_in", wait,
			"error", err)
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	if err == nil {
		return nil
	}

	c.recorder.RecordCounter(metrics.HTTPFailures, 1)

	var statusErr *StatusError
	var parseErr *ParseError
	switch {
	case errors.As(err, &statusErr):
		c.logger.Warn("exchange rejected request", "operation", operation, "status", statusErr.StatusCode)
		return apperrors.New(apperrors.ErrorTypeStatus, componentName, operation, statusErr)
	case errors.As(err, &parseErr):
		c.logger.Error("exchange response could not be decoded", "operation", operation, "error", parseErr.Err)
		return apperrors.New(apperrors.ErrorTypeParse, componentName, operation, parseErr)
	case ctx.Err() != nil:
		return apperrors.New(apperrors.ErrorTypeCanceled, componentName, operation, ctx.Err())
	case lastErr == nil:
		return apperrors.Classify(err, componentName, operation)
	}

	exhausted := &RetryExhaustedError{Attempts: attempts, Err: lastErr}
	c.logger.Error("exchange unreachable", "operation", operation, "attempts", attempts, "error", lastErr)
	if c.notifier != nil {
		c.notifier.Notify(CannotConnectMessage)
	}
	return apperrors.New(apperrors.ErrorTypeNetwork, componentName, operation, exhausted)
}
