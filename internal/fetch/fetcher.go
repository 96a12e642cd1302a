package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	httpTimeout   = 30 * time.Second
	httpUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// defaultMaxRetries counts retries after the first attempt, so the
	// default policy makes at most 5 requests per URL.
	defaultMaxRetries      = 4
	defaultInitialInterval = 2 * time.Second

	defaultDelayMin = 3 * time.Second
	defaultDelayMax = 6 * time.Second
)

// ErrNotFound marks a page that is gone (HTTP 404/410). Callers treat
// the subject or character as skippable rather than failed.
var ErrNotFound = errors.New("page not found")

// StatusError is a non-OK HTTP response. Transient statuses (429, 5xx)
// are retried internally; a StatusError that escapes the client is
// final for this URL.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// Client performs GET/POST with capped exponential backoff plus jitter,
// and a randomized fixed delay before every request to respect the
// target sites' rate limits.
type Client struct {
	httpClient      *http.Client
	logger          *zap.Logger
	maxRetries      uint64
	initialInterval time.Duration
	referer         string
	delayFunc       func()
}

func NewClient(logger *zap.Logger, referer string) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: httpTimeout},
		logger:          logger,
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
		referer:         referer,
	}
	c.delayFunc = func() { time.Sleep(randDuration(defaultDelayMin, defaultDelayMax)) }
	return c
}

// SetRetryPolicy overrides the retry count and the initial backoff
// interval. Intended for tests.
func (c *Client) SetRetryPolicy(maxRetries uint64, initialInterval time.Duration) {
	c.maxRetries = maxRetries
	c.initialInterval = initialInterval
}

// SetDelayBand overrides the happy-path inter-request delay band.
func (c *Client) SetDelayBand(min, max time.Duration) {
	c.delayFunc = func() { time.Sleep(randDuration(min, max)) }
}

// SetDelayFunc replaces the delay entirely. Intended for tests.
func (c *Client) SetDelayFunc(fn func()) {
	c.delayFunc = fn
}

// Fetch GETs the URL and returns the body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, "", nil)
}

// Post sends body with the given content type and returns the response.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, contentType, body)
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	c.delayFunc()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval

	op := func() ([]byte, error) {
		return c.once(ctx, method, url, contentType, body)
	}
	notify := func(err error, next time.Duration) {
		c.logger.Info("fetch attempt failed, backing off",
			zap.String("url", url), zap.Error(err), zap.Duration("next", next))
	}

	data, err := backoff.RetryNotifyWithData(op,
		backoff.WithMaxRetries(backoff.WithContext(bo, ctx), c.maxRetries), notify)
	if err != nil {
		c.logger.Error("fetch failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	return data, nil
}

// once performs a single request. Transient failures return a plain
// error so the backoff loop retries them; anything final is wrapped in
// backoff.Permanent.
func (c *Client) once(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", httpUserAgent)
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// connection errors and timeouts are retryable
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, backoff.Permanent(fmt.Errorf("%s: %w", url, ErrNotFound))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	default:
		return nil, backoff.Permanent(&StatusError{URL: url, Status: resp.StatusCode})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		// incomplete reads are retryable
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return data, nil
}

func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
