package collection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

// NewTextLogger creates a logger writing human-readable lines to stderr.
func NewTextLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger discards all output.
func NoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c *Collection) logDispatch(ctx context.Context, seq uint64, method, url string) {
	c.logger.DebugContext(ctx, "request dispatched",
		"seq", seq,
		"method", method,
		"url", url,
	)
}

func (c *Collection) logSettled(ctx context.Context, seq uint64, method string, err error) {
	switch {
	case err == nil:
		c.logger.DebugContext(ctx, "request completed",
			"seq", seq,
			"method", method,
		)
	case errors.Is(err, ErrAborted):
		c.logger.DebugContext(ctx, "request superseded",
			"seq", seq,
			"method", method,
		)
	default:
		c.logger.WarnContext(ctx, "request failed",
			"seq", seq,
			"method", method,
			"error", err,
		)
	}
}
