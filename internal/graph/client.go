package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const (
	maxRetries = 5

	// Backoff doubles from baseBackoff up to maxBackoff, then each wait is
	// spread by up to jitterFraction either way.
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25

	userAgent = "onedrive-fs/0.1"
)

// TokenSource yields the bearer token for the next request. Session is the
// production implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Refresher is implemented by token sources that can discard their cached
// token and fetch a new one. The client refreshes once on a 401.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Client talks to one Graph endpoint on behalf of one credential set.
type Client struct {
	baseURL string
	hc      *http.Client
	token   TokenSource
	logger  *slog.Logger
	metrics *Metrics

	// sleepFunc waits between attempts; tests replace it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient returns a Client rooted at baseURL (normally DefaultBaseURL).
// A nil hc or logger falls back to the package defaults.
func NewClient(baseURL string, hc *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		hc:        hc,
		token:     token,
		logger:    logger,
		sleepFunc: sleepCtx,
	}
}

// WithMetrics attaches request counters to the client and returns it.
func (c *Client) WithMetrics(m *Metrics) *Client {
	c.metrics = m
	return c
}

// BaseURL returns the API root every relative path is appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends method+path to the Graph API with a bearer token. A non-nil
// body is sent as JSON and must implement io.Seeker so retries can replay
// it. On success the caller closes the response body; any other outcome
// is returned as an error (a *GraphError for HTTP failures).
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path

	ex := exchange{
		label:  method + " " + path,
		method: method,
		send: func() (*http.Response, error) {
			if err := rewindBody(body); err != nil {
				return nil, haltError{err}
			}

			return c.doOnce(ctx, method, url, body)
		},
	}

	if r, ok := c.token.(Refresher); ok {
		ex.refresher = r
	}

	return c.execute(ctx, ex)
}

// getPreAuth fetches a pre-authenticated URL (download URL, async monitor
// URL) under the same retry policy as Do but without an Authorization
// header. label names the request in logs and errors; the URL embeds
// credentials and is never logged.
func (c *Client) getPreAuth(ctx context.Context, label, rawURL string) (*http.Response, error) {
	return c.execute(ctx, exchange{
		label:  label,
		method: http.MethodGet,
		send: func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
			if err != nil {
				return nil, haltError{fmt.Errorf("creating %s request: %w", label, err)}
			}

			req.Header.Set("User-Agent", userAgent)

			return c.hc.Do(req)
		},
	})
}

// exchange is one logical request: send is called once per attempt.
// refresher, when set, gets a single chance to renew the token on a 401.
type exchange struct {
	label     string
	method    string
	send      func() (*http.Response, error)
	refresher Refresher
}

// haltError carries a send failure that is not a transport fault and
// must be returned without retrying.
type haltError struct{ err error }

func (h haltError) Error() string { return h.err.Error() }
func (h haltError) Unwrap() error { return h.err }

func (c *Client) execute(ctx context.Context, ex exchange) (*http.Response, error) {
	refreshed := false

	for attempt := 0; ; attempt++ {
		resp, err := ex.send()
		if err == nil {
			c.metrics.observeRequest(ex.method, resp.StatusCode)
		}

		var wait time.Duration

		switch {
		case err != nil:
			var halt haltError
			if errors.As(err, &halt) {
				return nil, fmt.Errorf("graph: %s: %w", ex.label, halt.err)
			}

			if ctx.Err() != nil {
				return nil, fmt.Errorf("graph: %s canceled: %w", ex.label, ctx.Err())
			}

			if attempt >= maxRetries {
				return nil, fmt.Errorf("graph: %s failed after %d retries: %w", ex.label, maxRetries, err)
			}

			wait = c.calcBackoff(attempt)
			c.logger.Warn("retrying after network error",
				slog.String("request", ex.label),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)

		case isSuccess(resp.StatusCode):
			c.logger.Debug("request succeeded",
				slog.String("request", ex.label),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized && ex.refresher != nil && !refreshed:
			drainAndClose(resp)
			refreshed = true

			c.logger.Info("refreshing token after 401", slog.String("request", ex.label))

			if err := ex.refresher.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("graph: refreshing token: %w", err)
			}

			// A refresh does not consume a retry.
			attempt--

			continue

		case isRetryable(resp.StatusCode) && attempt < maxRetries:
			wait = c.retryBackoff(resp, attempt)
			drainAndClose(resp)

			c.logger.Warn("retrying after HTTP error",
				slog.String("request", ex.label),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
			)

		default:
			graphErr := newGraphError(resp)

			if attempt > 0 {
				c.logger.Error("request failed after retries",
					slog.String("request", ex.label),
					slog.Int("status", graphErr.StatusCode),
					slog.Int("attempts", attempt+1),
				)
			}

			return nil, graphErr
		}

		c.metrics.observeRetry()

		if err := c.sleepFunc(ctx, wait); err != nil {
			return nil, fmt.Errorf("graph: %s canceled: %w", ex.label, err)
		}
	}
}

// doOnce sends one authenticated request.
func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, haltError{fmt.Errorf("creating request: %w", err)}
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, haltError{fmt.Errorf("obtaining token: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.hc.Do(req)
}

// rewindBody seeks a replayable request body back to its start.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	seeker, ok := body.(io.Seeker)
	if !ok {
		return errors.New("request body is not rewindable")
	}

	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}

	return nil
}

// drainAndClose discards the rest of a response body so the connection
// can be reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
	resp.Body.Close()
}

// retryBackoff prefers the server's Retry-After (whole seconds) on 429
// and 503 and falls back to calcBackoff.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return c.calcBackoff(attempt)
}

func (c *Client) calcBackoff(attempt int) time.Duration {
	d := min(float64(baseBackoff)*math.Pow(backoffFactor, float64(attempt)), float64(maxBackoff))
	spread := d * jitterFraction * (2*rand.Float64() - 1) //nolint:gosec // jitter needs no crypto rand

	return time.Duration(d + spread)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
