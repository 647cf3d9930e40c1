package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/internal/ratelimit"
	"github.com/Alias1177/Trader/models"
)

// Client fetches bars and quotes from the Twelve Data API. Every call goes
// through the shared "market-data" rate limiter, a provider circuit breaker
// and bounded exponential-backoff retries; once retries are exhausted the
// failure is demoted to ErrDataUnavailable so callers skip the symbol and
// the cycle continues.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	retryLimit time.Duration
	logger     zerolog.Logger
}

func NewClient(cfg config.MarketDataConfig, limiter *ratelimit.Limiter) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "market-data",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.D()},
		limiter:    limiter,
		breaker:    breaker,
		maxRetries: uint64(cfg.MaxRetries),
		retryLimit: cfg.RetryTimeout.D(),
		logger:     log.With().Str("component", "marketdata_client").Logger(),
	}
}

// timeSeriesResponse mirrors the Twelve Data time_series payload
type timeSeriesResponse struct {
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   int64   `json:"volume,string,omitempty"`
	} `json:"values"`
	Status string `json:"status"`
}

type priceResponse struct {
	Price float64 `json:"price,string"`
}

// GetBars fetches up to lookback daily bars for a symbol, oldest first
func (c *Client) GetBars(ctx context.Context, symbol string, lookback int) ([]models.Bar, error) {
	url := fmt.Sprintf(
		"%s/time_series?symbol=%s&interval=1day&outputsize=%d&apikey=%s",
		c.baseURL, symbol, lookback, c.apiKey,
	)

	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var data timeSeriesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing time series for %s: %w", symbol, err)
	}
	if len(data.Values) == 0 {
		return nil, fmt.Errorf("%w: empty time series for %s", models.ErrDataUnavailable, symbol)
	}

	// Oldest first for indicator math
	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Datetime < data.Values[j].Datetime
	})

	bars := make([]models.Bar, 0, len(data.Values))
	for _, v := range data.Values {
		ts, err := parseDatetime(v.Datetime)
		if err != nil {
			c.logger.Warn().Str("symbol", symbol).Str("datetime", v.Datetime).Msg("Unparseable bar timestamp, skipped")
			continue
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      v.Open,
			High:      v.High,
			Low:       v.Low,
			Close:     v.Close,
			Volume:    v.Volume,
		})
	}

	c.logger.Debug().Str("symbol", symbol).Int("count", len(bars)).Msg("Fetched bars")
	return bars, nil
}

// GetLatestQuote fetches the latest price for a symbol
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/price?symbol=%s&apikey=%s", c.baseURL, symbol, c.apiKey)

	body, err := c.fetch(ctx, url)
	if err != nil {
		return 0, err
	}

	var data priceResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("parsing quote for %s: %w", symbol, err)
	}
	if data.Price <= 0 {
		return 0, fmt.Errorf("%w: no quote for %s", models.ErrDataUnavailable, symbol)
	}
	return data.Price, nil
}

// fetch performs one rate-limited, breaker-guarded, retried GET
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var body []byte
	operation := func() error {
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, url)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				// Retrying against an open breaker is pointless
				return backoff.Permanent(err)
			}
			return err
		}
		body = res.([]byte)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.retryLimit
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	if err := backoff.Retry(operation, retries); err != nil {
		c.logger.Warn().Err(err).Msg("Market data request failed after retries")
		return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.ExternalServiceError{Provider: "market-data", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.ExternalServiceError{
			Provider: "market-data",
			Err:      fmt.Errorf("non-200 status code: %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ExternalServiceError{Provider: "market-data", Err: err}
	}

	if strings.Contains(string(body), `"status":"error"`) {
		return nil, &models.ExternalServiceError{
			Provider: "market-data",
			Err:      fmt.Errorf("API error response: %s", body),
		}
	}
	return body, nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
