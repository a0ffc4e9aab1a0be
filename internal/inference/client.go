package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

const maxResponseBytes = 4 << 20

var errAttemptTimeout = errors.New("attempt timed out")

// Request is one outbound JSON call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// Response is a validated 2xx response.
type Response struct {
	StatusCode int
	Attempts   int
	Body       []byte
	Result     GenerateResponse
}

// Text returns the first candidate's text.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return r.Result.Text()
}

// RetryHook is called before each retry with the 1-based retry number, the delay about to be
// waited and the error that caused it.
type RetryHook func(retry int, delay time.Duration, err error)

// Client wraps outbound calls with bounded exponential-backoff retry, cancellation and
// reachability gating. Zero value is not usable; use NewClient.
type Client struct {
	http           *http.Client
	reachability   Reachability
	logger         *zap.Logger
	attemptTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	onRetry        RetryHook
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the transport client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithReachability sets the connectivity signal read at call time.
func WithReachability(r Reachability) ClientOption {
	return func(c *Client) {
		if r != nil {
			c.reachability = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAttemptTimeout bounds each attempt. Zero disables the per-attempt bound.
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.attemptTimeout = d
	}
}

// WithSleeper replaces the cancellable backoff wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithRetryHook observes retries.
func WithRetryHook(hook RetryHook) ClientOption {
	return func(c *Client) {
		c.onRetry = hook
	}
}

// NewClient builds a client with pooled transport defaults.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		reachability:   AlwaysConnected,
		logger:         zap.NewNop(),
		attemptTimeout: 30 * time.Second,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs req under policy. Only connection-lost errors are retried; everything else,
// including non-2xx statuses and unparsable payloads, is terminal.
func (c *Client) Call(ctx context.Context, req Request, policy RetryPolicy) (*Response, error) {
	if !c.reachability.Connected() {
		return nil, apperrors.NewUnreachable("no network connectivity")
	}

	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, apperrors.NewClientError("bad_request", "request body is not serializable", err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	attempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := policy.Delay(attempt - 1)
			c.logger.Warn("retrying inference call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if c.onRetry != nil {
				c.onRetry(attempt-1, delay, lastErr)
			}
			if err := c.sleep(ctx, delay); err != nil {
				return nil, apperrors.FromContext(ctx, "inference call")
			}
		}

		status, body, err := c.attempt(ctx, method, req, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperrors.FromContext(ctx, "inference call")
			}
			if !isTransient(err) {
				return nil, apperrors.NewClientError("transport", err.Error(), err)
			}
			lastErr = err
			continue
		}

		if status < 200 || status > 299 {
			return nil, apperrors.NewClientError("status", statusDetail(status, body), nil)
		}

		result, err := parseGenerateResponse(body)
		if err != nil {
			return nil, apperrors.NewParseError("malformed inference response", err)
		}
		return &Response{StatusCode: status, Attempts: attempt, Body: body, Result: result}, nil
	}

	return nil, apperrors.NewTransientNetwork(attempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, method string, req Request, payload []byte) (int, []byte, error) {
	attemptCtx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeoutCause(ctx, c.attemptTimeout, errAttemptTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() == nil && errors.Is(context.Cause(attemptCtx), errAttemptTimeout) {
			return 0, nil, fmt.Errorf("%w: %w", errAttemptTimeout, err)
		}
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func statusDetail(status int, body []byte) string {
	detail := fmt.Sprintf("inference endpoint returned status %d", status)
	if len(body) == 0 {
		return detail
	}
	snippet := strings.ReplaceAll(string(body), "\n", " ")
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	return detail + ": " + snippet
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
