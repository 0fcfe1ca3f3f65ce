package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alvmarrod/ticker-weaver/internal/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// Page is one fetched document
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Client fetches pages one at a time through a Colly collector
type Client struct {
	collector       *colly.Collector
	retry           RetryPolicy
	metricsCallback func(statusCode int, elapsed time.Duration)
}

// NewClient creates a new fetch client
func NewClient(cfg *config.Config, metricsCallback func(int, time.Duration)) *Client {
	c := &Client{
		retry:           PolicyFromConfig(cfg),
		metricsCallback: metricsCallback,
	}

	c.setupColly(time.Duration(cfg.RequestTimeoutMs) * time.Millisecond)
	return c
}

// setupColly configures the base collector. Every fetch runs on a clone so
// response callbacks never leak between requests.
func (c *Client) setupColly(timeout time.Duration) {
	c.collector = colly.NewCollector(
		colly.AllowURLRevisit(),        // the same page is re-requested after a 429
		colly.ParseHTTPErrorResponse(), // 4xx/5xx reach OnResponse with their status
		colly.MaxDepth(0),
	)

	c.collector.SetRequestTimeout(timeout)
}

// SetRetryPolicy replaces the backoff policy
func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.retry = p
}

// Fetch performs a single GET and reports whatever status came back.
// Only transport failures are returned as errors.
func (c *Client) Fetch(ctx context.Context, url string, headers http.Header) (*Page, error) {
	collector := c.collector.Clone()
	collector.Context = ctx

	var page *Page
	collector.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	start := time.Now()
	err := collector.Request(http.MethodGet, url, nil, nil, headers.Clone())
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if page == nil {
		return nil, fmt.Errorf("failed to fetch %s: no response", url)
	}

	logrus.Debugf("Fetched %s (status=%d, %v)", url, page.StatusCode, elapsed)
	if c.metricsCallback != nil {
		c.metricsCallback(page.StatusCode, elapsed)
	}

	return page, nil
}

// Get fetches url until it answers 200. A 429 is retried with bounded
// exponential backoff and yields ErrRateLimited once the attempts run out.
// Any other status is returned as a *StatusError without retrying.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*Page, error) {
	var page *Page

	operation := func() error {
		p, err := c.Fetch(ctx, url, headers)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch p.StatusCode {
		case http.StatusOK:
			page = p
			return nil
		case http.StatusTooManyRequests:
			return errTooManyRequests
		default:
			return backoff.Permanent(&StatusError{URL: url, Code: p.StatusCode})
		}
	}

	notify := func(err error, wait time.Duration) {
		logrus.Warnf("Too many requests for %s, retrying in %v", url, wait.Round(time.Millisecond))
	}

	err := backoff.RetryNotify(operation, c.retry.backOff(ctx), notify)
	if errors.Is(err, errTooManyRequests) {
		return nil, fmt.Errorf("%w: %s after %d retries", ErrRateLimited, url, c.retry.Attempts)
	}
	if err != nil {
		return nil, err
	}

	return page, nil
}
