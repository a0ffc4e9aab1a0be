package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/portal-session/internal/inference"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

const okBody = `{"candidates":[{"content":{"parts":[{"text":"hello"},{"text":" world"}]}}]}`

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// scripted fails with errs in order, then answers 200 okBody.
func scripted(calls *atomic.Int32, errs ...error) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := int(calls.Add(1))
		if n <= len(errs) {
			return nil, errs[n-1]
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(okBody)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}
}

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayRecorder) sleep(ctx context.Context, delay time.Duration) error {
	d.mu.Lock()
	d.delays = append(d.delays, delay)
	d.mu.Unlock()
	return ctx.Err()
}

func (d *delayRecorder) recorded() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}

func request() inference.Request {
	return inference.Request{URL: "http://inference.test/v1/generate", Body: inference.NewTextRequest("hi")}
}

func TestCallRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	recorder := &delayRecorder{}
	client := inference.NewClient(
		inference.WithHTTPClient(scripted(&calls, syscall.ECONNRESET, io.ErrUnexpectedEOF)),
		inference.WithSleeper(recorder.sleep),
	)

	resp, err := client.Call(context.Background(), request(), inference.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Multiplier:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Text())
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), calls.Load())

	delays := recorder.recorded()
	require.Len(t, delays, 2)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 20*time.Millisecond, delays[1])
	assert.GreaterOrEqual(t, delays[1], delays[0])
}

func TestCallNonTransientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	recorder := &delayRecorder{}
	client := inference.NewClient(
		inference.WithHTTPClient(scripted(&calls, errors.New("tls: handshake failure"))),
		inference.WithSleeper(recorder.sleep),
	)

	_, err := client.Call(context.Background(), request(), inference.DefaultPolicy())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrClient)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, recorder.recorded())
}

func TestCallExhaustsTransientRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	recorder := &delayRecorder{}
	client := inference.NewClient(
		inference.WithHTTPClient(scripted(&calls, syscall.ECONNRESET, syscall.ECONNRESET, syscall.EPIPE, syscall.ECONNRESET)),
		inference.WithSleeper(recorder.sleep),
	)

	_, err := client.Call(context.Background(), request(), inference.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransientNetwork)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Millisecond, 3 * time.Millisecond}, recorder.recorded())
}

func TestCallUnreachableMakesNoAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := inference.NewClient(
		inference.WithHTTPClient(scripted(&calls)),
		inference.WithReachability(inference.ReachabilityFunc(func() bool { return false })),
	)

	_, err := client.Call(context.Background(), request(), inference.DefaultPolicy())
	assert.ErrorIs(t, err, apperrors.ErrUnreachable)
	assert.Zero(t, calls.Load())
}

func TestCallStatusAndPayloadErrorsAreTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad"}`, wantErr: apperrors.ErrClient},
		{name: "server error", status: http.StatusServiceUnavailable, body: ``, wantErr: apperrors.ErrClient},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantErr: apperrors.ErrParse},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, wantErr: apperrors.ErrParse},
		{name: "no parts", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[]}}]}`, wantErr: apperrors.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			recorder := &delayRecorder{}
			client := inference.NewClient(inference.WithSleeper(recorder.sleep))
			_, err := client.Call(context.Background(), inference.Request{URL: server.URL, Body: inference.NewTextRequest("hi")}, inference.DefaultPolicy())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(1), calls.Load())
			assert.Empty(t, recorder.recorded())
		})
	}
}

func TestCallSendsHeadersAndBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret-key", r.Header.Get("X-Goog-Api-Key"))

		var body inference.GenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Contents, 1) && assert.Len(t, body.Contents[0].Parts, 1) {
			assert.Equal(t, "summarize my labs", body.Contents[0].Parts[0].Text)
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	client := inference.NewClient()
	resp, err := client.Call(context.Background(), inference.Request{
		URL:     server.URL,
		Headers: map[string]string{"x-goog-api-key": "secret-key"},
		Body:    inference.NewTextRequest("summarize my labs"),
	}, inference.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, resp.Attempts)
}

func TestCallCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := inference.NewClient(inference.WithHTTPClient(scripted(&calls, syscall.ECONNRESET, syscall.ECONNRESET)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Call(ctx, request(), inference.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCancelled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallCancelDuringAttempt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	client := inference.NewClient(inference.WithAttemptTimeout(0))
	_, err := client.Call(ctx, inference.Request{URL: server.URL, Body: inference.NewTextRequest("hi")}, inference.DefaultPolicy())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestCallAttemptTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	recorder := &delayRecorder{}
	client := inference.NewClient(
		inference.WithAttemptTimeout(50*time.Millisecond),
		inference.WithSleeper(recorder.sleep),
	)

	resp, err := client.Call(context.Background(), inference.Request{URL: server.URL, Body: inference.NewTextRequest("hi")}, inference.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Len(t, recorder.recorded(), 1)
}

func TestCallRetryHook(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var retries []int
	client := inference.NewClient(
		inference.WithHTTPClient(scripted(&calls, syscall.ECONNRESET)),
		inference.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		inference.WithRetryHook(func(retry int, _ time.Duration, err error) {
			retries = append(retries, retry)
			assert.ErrorIs(t, err, syscall.ECONNRESET)
		}),
	)

	_, err := client.Call(context.Background(), request(), inference.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, retries)
}

func TestCallUnserializableBody(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := inference.NewClient(inference.WithHTTPClient(scripted(&calls)))
	_, err := client.Call(context.Background(), inference.Request{URL: "http://x", Body: make(chan int)}, inference.DefaultPolicy())
	assert.ErrorIs(t, err, apperrors.ErrClient)
	assert.Zero(t, calls.Load())
}
