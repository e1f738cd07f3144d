package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// Retry tuning, mirroring internal/graph/client.go's constants (there:
// base 1s/factor 2x/max 60s/jitter 25%/5 retries for the Graph API; here
// SPEC_FULL.md §4.J tightens the envelope to the hub's own documented
// backoff window).
const (
	maxRetries     = 5
	baseBackoff    = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	defaultUserAgent = "briefcase-manager/1.0"
)

// TokenSource provides bearer tokens for hub requests. Defined at the
// consumer per "accept interfaces, return structs" — mirrors
// internal/graph.TokenSource. An adapter over golang.org/x/oauth2's
// TokenSource satisfies this in production.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is an HTTP implementation of Capability against a REST hub.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string

	// sleepFunc waits between retries; tests override it to avoid real
	// delays, mirroring internal/graph.Client.sleepFunc.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a hub Client.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		sleepFunc:  sleepCtx,
	}
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

// do executes an authenticated request with JSON body/response and
// exponential backoff retry on transient failures, mirroring
// internal/graph.Client.doRetry.
func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("hub: marshal request: %w", err)
		}
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			d := backoffDuration(attempt)
			c.logger.Debug("hub: retrying", "attempt", attempt, "path", path, "delay", d)
			if err := c.sleepFunc(ctx, d); err != nil {
				return err
			}
		}

		resp, err := c.doOnce(ctx, method, path, payload)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		herr := classify(resp)
		if herr == nil {
			defer resp.Body.Close()
			if respBody != nil {
				if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
					return fmt.Errorf("hub: decode response: %w", err)
				}
			}
			return nil
		}

		resp.Body.Close()

		if !isRetryableStatus(resp.StatusCode) {
			return herr
		}
		lastErr = herr
	}

	return fmt.Errorf("hub: exhausted %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("hub: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != nil {
		tok, err := c.token.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("hub: resolve token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	return c.httpClient.Do(req)
}

// backoffDuration computes attempt N's delay: base * factor^(N-1), capped
// at maxBackoff, with +-25% jitter (spec §4.J, §4.G).
func backoffDuration(attempt int) time.Duration {
	d := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt-1))
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	jitter := d * jitterFraction * (2*rand.Float64() - 1)
	d += jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusLocked,
		http.StatusConflict:
		return true
	default:
		return false
	}
}

// classify maps an HTTP response to a *Error, returning nil for 2xx.
func classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	herr := &Error{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		Message:    resp.Status,
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		herr.Err = ErrVersionNotFound
	case resp.StatusCode == http.StatusConflict && resp.Header.Get("X-Hub-Conflict") == "another-user-pushing":
		herr.Err = ErrAnotherUserPushing
	case resp.StatusCode == http.StatusConflict && resp.Header.Get("X-Hub-Conflict") == "pull-required":
		herr.Err = ErrPullIsRequired
	case resp.StatusCode == http.StatusLocked:
		herr.Err = ErrDatabaseTemporarilyLocked
	case resp.StatusCode == http.StatusConflict && resp.Header.Get("X-Hub-Conflict") == "changeset-exists":
		herr.Err = ErrChangeSetAlreadyExists
	case resp.StatusCode == http.StatusConflict && resp.Header.Get("X-Hub-Conflict") == "conflicting-codes":
		herr.Err = ErrConflictingCodes
		herr.DeniedCodes = parseDeniedCodes(resp.Header.Get("X-Hub-Denied-Codes"))
	case resp.StatusCode >= 500:
		herr.Err = ErrServerError
	default:
		herr.Err = ErrOperationFailed
	}

	return herr
}

func parseDeniedCodes(header string) []string {
	if header == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(header); i++ {
		if i == len(header) || header[i] == ',' {
			if i > start {
				out = append(out, header[start:i])
			}
			start = i + 1
		}
	}
	return out
}

var _ Capability = (*Client)(nil)
