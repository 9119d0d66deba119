// Package invoker is the HTTP client for the remote stage-execution
// functions. The functions are opaque: an invocation returns only an
// acknowledgment, and the actual processing reports job state out-of-band
// via the ingest API.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout for invocation requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (invocations per second).
	DefaultRateLimit = 5
)

// Ack is the synchronous acknowledgment returned by a stage function.
// Success=false means the invocation was rejected before any processing
// started; no job state will ever be reported for it.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Request is the invocation payload sent to a stage function.
type Request struct {
	ListID      string `json:"list_id"`
	JobID       string `json:"job_id"`
	CallbackURL string `json:"callback_url"`
}

// Client invokes remote stage-execution functions.
type Client struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	logger      arbor.ILogger
	limiter     *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the invocation request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets a custom rate limit. Non-positive values are ignored.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// NewClient creates a new stage function client. baseURL is the root of the
// remote function host; callbackURL is the externally reachable base URL of
// this service, handed to the functions for status reporting.
func NewClient(baseURL, callbackURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: strings.TrimRight(callbackURL, "/"),
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke calls the named stage function for a list. The returned Ack is the
// invocation acknowledgment only; job state arrives later on the callback
// URL. A non-nil error means the call itself failed (network error or a
// non-2xx response with no parseable body).
func (c *Client) Invoke(ctx context.Context, stage, listID, jobID string) (*Ack, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	payload := Request{
		ListID:      listID,
		JobID:       jobID,
		CallbackURL: fmt.Sprintf("%s/api/ingest/jobs/%s", c.callbackURL, jobID),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invocation payload: %w", err)
	}

	url := fmt.Sprintf("%s/functions/%s", c.baseURL, stage)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("stage", stage).
			Str("list_id", listID).
			Str("job_id", jobID).
			Msg("Invoking stage function")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stage function request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("stage function returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return nil, fmt.Errorf("failed to decode acknowledgment: %w", err)
	}

	return &ack, nil
}
