package ismr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// ErrMissingAPIKey is returned when the webservice credential is absent.
var ErrMissingAPIKey = errors.New("ismr: API key is not configured (set ISMR_API_KEY)")

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// DefaultFields is the field list requested from the webservice.
var DefaultFields = []string{"time_utc", "svid", "elev", "s4", "s4_correction"}

// BackoffConfig controls retry behaviour within one page request.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ClientConfig bundles webservice and politeness settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Station string

	HTTPClient *http.Client
	Chunk      time.Duration // date-range size of one page
	Pause      time.Duration // pause between pages
	Backoff    BackoffConfig
}

// Client fetches ISMR observations page by page.
type Client struct {
	cfg     ClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient validates the configuration and returns a client. A missing
// API key fails here, before any request is attempted.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Chunk <= 0 {
		cfg.Chunk = 24 * time.Hour
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.Backoff.MaxRetries == 0 {
		cfg.Backoff = BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ismr",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &Client{cfg: cfg, circuit: cb}, nil
}

// Fetch retrieves observations for [from, to) in date chunks, pausing
// between pages so the remote service is never hammered.
func (c *Client) Fetch(ctx context.Context, from, to time.Time, fields []string) ([]Observation, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}

	var out []Observation
	for start := from; start.Before(to); start = start.Add(c.cfg.Chunk) {
		end := start.Add(c.cfg.Chunk)
		if end.After(to) {
			end = to
		}

		page, err := c.fetchPage(ctx, start, end, fields)
		if err != nil {
			return nil, fmt.Errorf("ismr: page %s..%s: %w",
				start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}
		out = append(out, page...)

		if end.Before(to) && c.cfg.Pause > 0 {
			timer := time.NewTimer(c.cfg.Pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return out, nil
}

// fetchPage requests one date chunk with retries, exponential backoff and
// the circuit breaker.
func (c *Client) fetchPage(ctx context.Context, from, to time.Time, fields []string) ([]Observation, error) {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := c.buildRequest(ctx, from, to, fields)
		if err != nil {
			return nil, err
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			resp, execErr := c.cfg.HTTPClient.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return nil, fmt.Errorf("credential rejected (HTTP %d): %s", resp.StatusCode, body)
			}
			if resp.StatusCode >= 500 {
				return nil, errServerError
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
			}

			var page []Observation
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
			return page, nil
		})

		if err == nil {
			return result.([]Observation), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		// Only transient failures are retried.
		if !errors.Is(err, errRateLimited) && !errors.Is(err, errServerError) {
			return nil, err
		}
		lastErr = err
		if attempt >= c.cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := c.cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.cfg.Backoff.MaxInterval > 0 && delay > c.cfg.Backoff.MaxInterval {
			delay = c.cfg.Backoff.MaxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

func (c *Client) buildRequest(ctx context.Context, from, to time.Time, fields []string) (*http.Request, error) {
	values := url.Values{}
	values.Set("key", c.cfg.APIKey)
	values.Set("station", c.cfg.Station)
	values.Set("date_begin", from.UTC().Format("2006-01-02 15:04:05"))
	values.Set("date_end", to.UTC().Format("2006-01-02 15:04:05"))
	for _, f := range fields {
		values.Add("field", f)
	}
	values.Set("mode", "json")

	u := c.cfg.BaseURL + "?" + values.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}
