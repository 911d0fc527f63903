package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second
	// maxErrorBody bounds how much of a failed response is kept in StatusError.
	maxErrorBody = 512
	// DefaultMaxBody bounds how much of a response is read.
	DefaultMaxBody = 32 << 20
)

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultConnectTimeout,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: defaultTLSTimeout,
			MaxIdleConnsPerHost: 8,
		},
	}
}

// HTTP is a Transport over net/http that speaks JSON.
type HTTP struct {
	client  *http.Client
	header  http.Header
	limiter *rate.Limiter
	maxBody int64
}

// ErrBodyTooLarge is returned when a response exceeds the body limit.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithClient replaces the default http.Client.
func WithClient(c *http.Client) HTTPOption {
	return func(t *HTTP) {
		if c != nil {
			t.client = c
		}
	}
}

// WithHeader adds a header sent with every request (e.g. Authorization).
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTP) {
		t.header.Add(key, value)
	}
}

// WithMaxBody sets the response body limit in bytes. n <= 0 keeps the default.
func WithMaxBody(n int64) HTTPOption {
	return func(t *HTTP) {
		if n > 0 {
			t.maxBody = n
		}
	}
}

// WithRateLimit paces outgoing requests to rps per second with the given burst.
// Waiting for a token honours request cancellation.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(t *HTTP) {
		if rps <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTP creates an HTTP transport.
func NewHTTP(opts ...HTTPOption) *HTTP {
	t := &HTTP{
		client:  defaultClient(),
		header:  make(http.Header),
		maxBody: DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do sends req and returns the response body of a 2xx response.
func (t *HTTP) Do(ctx context.Context, req *Request) ([]byte, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if req.Body != nil {
		b, err := gojson.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range t.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > t.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, t.maxBody)
	}
	return data, nil
}
