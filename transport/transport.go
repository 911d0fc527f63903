// Package transport provides the request/response primitive collections use
// to talk to their backend resource.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request describes one call to the backend.
type Request struct {
	Method  string
	URL     string
	Timeout time.Duration
	// Body is JSON-encoded when non-nil.
	Body any
}

// Transport performs a request and returns the raw response body.
//
// Implementations must return promptly once ctx is cancelled; that is how
// in-flight calls are aborted.
type Transport interface {
	Do(ctx context.Context, req *Request) ([]byte, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, req *Request) ([]byte, error)

// Do calls f.
func (f Func) Do(ctx context.Context, req *Request) ([]byte, error) {
	return f(ctx, req)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	// Body is the start of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, body)
}
