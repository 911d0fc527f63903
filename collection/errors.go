package collection

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/stevemurr/restcollection/transport"
)

var (
	// ErrNoEndpoint is returned synchronously when a network operation is
	// attempted before an endpoint is configured.
	ErrNoEndpoint = errors.New("collection: endpoint not set")

	// ErrNoLimit rejects pagination when no page size can be resolved.
	ErrNoLimit = errors.New("collection: pagination requires a limit")

	// ErrTimeout rejects a request that did not settle within RequestTimeout.
	ErrTimeout = errors.New("timeout")

	// ErrAborted rejects a request superseded by a newer one on the same collection.
	ErrAborted = errors.New("abort")

	// ErrClosed rejects requests issued after Close.
	ErrClosed = errors.New("collection: closed")
)

// IsTransient reports whether err is worth retrying by the caller:
// timeouts, network errors and 5xx/429 responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == 429
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// ResultError rejects a response whose result attribute holds neither an object nor an array.
type ResultError struct {
	Attribute string
	Got       any
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("collection: result attribute %q holds %T, want object or array", e.Attribute, e.Got)
}
