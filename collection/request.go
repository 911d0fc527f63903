package collection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stevemurr/restcollection/transport"
)

// RequestTimeout bounds every request. A request that has not settled by then
// is rejected with ErrTimeout.
const RequestTimeout = 5 * time.Second

// inflight is the handle of the single live request of a collection.
type inflight struct {
	seq     uint64
	cancel  context.CancelFunc
	aborted bool
}

// abortLocked cancels the live request, if any. Called with c.mu held.
func (c *Collection) abortLocked() {
	if c.inflight == nil {
		return
	}
	c.inflight.aborted = true
	c.inflight.cancel()
	c.inflight = nil
}

// issue builds and dispatches a request, superseding the live one.
//
// build runs with c.mu held, so parameter changes and dispatch happen as one
// step: the last caller's request is always the live one. A build error is
// returned synchronously and nothing is sent.
//
// prepare turns a decoded response into what apply needs. It runs without the
// lock, so it may call back into c.
//
// apply runs with c.mu held, and only if the request succeeded and is still
// the live one. Superseded requests settle with ErrAborted and never reach apply.
func issue[T, P any](c *Collection, build func() (*transport.Request, error), prepare func(*Record) (P, error), apply func(P) (T, error)) (*Future[T], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Rejected[T](ErrClosed), nil
	}
	req, err := build()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.abortLocked()
	c.seq++
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	fl := &inflight{seq: c.seq, cancel: cancel}
	c.inflight = fl
	req.Timeout = c.timeout
	c.mu.Unlock()

	f := newFuture[T]()
	c.logDispatch(ctx, fl.seq, req.Method, req.URL)
	start := time.Now()

	go func() {
		defer cancel()

		// The request settles on abort or deadline even if the transport
		// does not return promptly.
		done := make(chan result, 1)
		go func() {
			b, err := c.transport.Do(ctx, req)
			done <- result{body: b, err: err}
		}()
		var (
			body []byte
			err  error
		)
		select {
		case r := <-done:
			body, err = r.body, r.err
		case <-ctx.Done():
			err = ctx.Err()
		}

		var prepared P
		if err == nil {
			var resp *Record
			if resp, err = decodeResponse(body); err == nil {
				prepared, err = prepare(resp)
			}
		}

		var value T
		c.mu.Lock()
		live := c.inflight == fl
		if live {
			c.inflight = nil
		}
		switch {
		case fl.aborted || !live:
			err = ErrAborted
		case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
			err = ErrTimeout
		case err == nil:
			value, err = apply(prepared)
		}
		c.mu.Unlock()

		c.metrics.RecordRequest(req.Method, time.Since(start), err)
		c.logSettled(ctx, fl.seq, req.Method, err)
		f.settle(value, err)
	}()
	return f, nil
}

type result struct {
	body []byte
	err  error
}

func decodeResponse(body []byte) (*Record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return NewRecord(), nil
	}
	rec, err := ParseRecord(body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rec, nil
}

// Controller exposes the raw request verbs of a collection. Verbs share the
// collection's single-flight slot but never modify its store.
type Controller struct {
	c *Collection
}

// Remote returns the request controller of c.
func (c *Collection) Remote() *Controller {
	return &Controller{c: c}
}

func passthrough(r *Record) (*Record, error) { return r, nil }

// Get requests endpoint[/path][?params]. params may be Params, a map or a
// pre-built query string.
func (rc *Controller) Get(params any, path string) (*Future[*Record], error) {
	return rc.send(http.MethodGet, path, params, nil)
}

// Put sends data to endpoint[/path].
func (rc *Controller) Put(data any, path string) (*Future[*Record], error) {
	return rc.send(http.MethodPut, path, nil, data)
}

// Post sends data to endpoint[/path].
func (rc *Controller) Post(data any, path string) (*Future[*Record], error) {
	return rc.send(http.MethodPost, path, nil, data)
}

// Delete sends data to endpoint[?params].
func (rc *Controller) Delete(data any, params any) (*Future[*Record], error) {
	return rc.send(http.MethodDelete, "", params, data)
}

func (rc *Controller) send(method, path string, params, data any) (*Future[*Record], error) {
	c := rc.c
	return issue(c, func() (*transport.Request, error) {
		if c.settings.Endpoint == "" {
			return nil, ErrNoEndpoint
		}
		return &transport.Request{
			Method: method,
			URL:    BuildURL(c.settings.Endpoint, path, params),
			Body:   data,
		}, nil
	}, passthrough, passthrough)
}
