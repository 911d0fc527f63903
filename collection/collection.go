// Package collection represents a remote, paginated, filterable resource as an
// in-memory ordered set of records.
//
// A Collection keeps at most one request in flight. Issuing a new request aborts
// the previous one, so the last call always wins and a stale response can never
// overwrite a newer one. Every successful fetch replaces the whole store with the
// records found under Settings.ResultAttribute in the response.
//
//	c, err := collection.New(collection.Settings{
//	    Endpoint: "http://localhost:8080/collections/tasks/items",
//	    Params:   collection.Params{"limit": 20},
//	})
//	f, err := c.Filter("status", "open")
//	records, err := f.Wait(ctx)
//
// Local queries (Get, GetWhere, FindWhere, Like) only look at records already loaded.
package collection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stevemurr/restcollection/transport"
)

// Collection is an ordered set of records synchronized with one backend resource.
// It is safe for concurrent use.
type Collection struct {
	mu       sync.Mutex
	settings Settings
	records  []*Record

	transport transport.Transport
	logger    *slog.Logger
	metrics   MetricsCollector
	hook      func(*Record) error
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	seq      uint64
	inflight *inflight

	initMu      sync.Mutex
	initialized *Future[[]*Record]
}

type options struct {
	transport transport.Transport
	logger    *slog.Logger
	metrics   MetricsCollector
	hook      func(*Record) error
	seed      *Record
	ctx       context.Context
}

// Option configures a Collection.
type Option func(*options)

// WithTransport sets the request primitive. Defaults to transport.NewHTTP().
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the request metrics sink.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithRecordHook validates or normalizes every record before it enters the store.
// If the hook fails for any record of a response, the response is rejected and
// the store keeps its previous contents.
//
// The hook runs without the collection lock and may call its methods. It also
// sees records of responses that are superseded before they are stored.
func WithRecordHook(fn func(*Record) error) Option {
	return func(o *options) { o.hook = fn }
}

// WithSeed populates the collection from data instead of fetching.
// Each attribute value of data is one record payload; attribute order is record order.
func WithSeed(data *Record) Option {
	return func(o *options) { o.seed = data }
}

// WithContext sets the parent context of every request.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// New creates a collection. When settings.Autoload is set and no seed is given,
// the initial fetch is issued before New returns; retrieve it with Init.
func New(settings Settings, opts ...Option) (*Collection, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = transport.NewHTTP()
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}

	c := &Collection{
		settings:  settings.withDefaults(),
		transport: o.transport,
		logger:    o.logger,
		metrics:   o.metrics,
		hook:      o.hook,
		timeout:   RequestTimeout,
	}
	c.ctx, c.cancel = context.WithCancel(o.ctx)

	if o.seed != nil {
		if err := c.Populate(o.seed); err != nil {
			c.cancel()
			return nil, err
		}
		return c, nil
	}
	if c.settings.Autoload {
		if _, err := c.Init(nil); err != nil {
			c.cancel()
			return nil, err
		}
	}
	return c, nil
}

// Close aborts the in-flight request. Requests issued afterwards are rejected with ErrClosed.
func (c *Collection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.abortLocked()
	c.cancel()
}

// Settings returns a copy of the current settings.
func (c *Collection) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.settings
	s.Params = s.Params.Clone()
	return s
}

// Params returns a copy of the current query parameters.
func (c *Collection) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Params.Clone()
}

// SetEndpoint changes the base resource URL.
func (c *Collection) SetEndpoint(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Endpoint = endpoint
}

// URL is the URL a fetch would request with the current parameters.
func (c *Collection) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.urlLocked(c.settings.Params)
}

func (c *Collection) urlLocked(p Params) string {
	return BuildURL(c.settings.Endpoint, "", p)
}

// Param sets params[key] to value, or removes key when value is empty
// (nil, false, zero or ""). It does not fetch.
func (c *Collection) Param(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	setParam(c.settings.Params, key, value)
}

func setParam(p Params, key string, value any) {
	if truthy(value) {
		p[key] = value
		return
	}
	delete(p, key)
}

// Filter sets (or with an empty value removes) a filter field, goes back to
// the first page and refetches.
func (c *Collection) Filter(field string, value any) (*Future[[]*Record], error) {
	return c.requery(func(p Params) { setParam(p, field, value) })
}

// Sort sets (or with "" removes) the sort key, goes back to the first page and refetches.
func (c *Collection) Sort(value string) (*Future[[]*Record], error) {
	return c.requery(func(p Params) { setParam(p, ParamSort, value) })
}

// Search sets (or with "" removes) the search query, goes back to the first page and refetches.
func (c *Collection) Search(value string) (*Future[[]*Record], error) {
	return c.requery(func(p Params) { setParam(p, ParamSearch, value) })
}

func (c *Collection) requery(mutate func(Params)) (*Future[[]*Record], error) {
	return issue(c, func() (*transport.Request, error) {
		if c.settings.Endpoint == "" {
			return nil, ErrNoEndpoint
		}
		mutate(c.settings.Params)
		c.settings.Params[ParamOffset] = 0
		return c.fetchRequestLocked(), nil
	}, c.extract, c.storeLocked)
}

// Init performs the initial fetch, merging params into the current parameters.
// Only the first successful call dispatches a request; later calls return the
// same future whatever their params.
func (c *Collection) Init(params Params) (*Future[[]*Record], error) {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized != nil {
		return c.initialized, nil
	}
	f, err := issue(c, func() (*transport.Request, error) {
		if c.settings.Endpoint == "" {
			return nil, ErrNoEndpoint
		}
		for k, v := range params {
			c.settings.Params[k] = v
		}
		return c.fetchRequestLocked(), nil
	}, c.extract, c.storeLocked)
	if err != nil {
		return nil, err
	}
	c.initialized = f
	return f, nil
}

// Fetch refetches with the current parameters.
func (c *Collection) Fetch() (*Future[[]*Record], error) {
	return issue(c, func() (*transport.Request, error) {
		if c.settings.Endpoint == "" {
			return nil, ErrNoEndpoint
		}
		return c.fetchRequestLocked(), nil
	}, c.extract, c.storeLocked)
}

// Replace swaps the parameters wholesale (when params is non-nil), empties the
// store and refetches.
func (c *Collection) Replace(params Params) (*Future[[]*Record], error) {
	return issue(c, func() (*transport.Request, error) {
		if c.settings.Endpoint == "" {
			return nil, ErrNoEndpoint
		}
		if params != nil {
			c.settings.Params = params.Clone()
		}
		c.records = nil
		return c.fetchRequestLocked(), nil
	}, c.extract, c.storeLocked)
}

func (c *Collection) fetchRequestLocked() *transport.Request {
	return &transport.Request{
		Method: http.MethodGet,
		URL:    c.urlLocked(c.settings.Params),
	}
}

// Len is the number of loaded records.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns the loaded records in store order.
func (c *Collection) Records() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collection) snapshotLocked() []*Record {
	out := make([]*Record, len(c.records))
	copy(out, c.records)
	return out
}

// At returns the i-th record, or nil when out of range.
func (c *Collection) At(i int) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.records) {
		return nil
	}
	return c.records[i]
}

// Empty removes every record.
func (c *Collection) Empty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

// Populate appends one record per attribute value of data, in attribute order.
// Values that are not objects are skipped.
func (c *Collection) Populate(data *Record) error {
	recs, err := c.payloads(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, recs...)
	return nil
}

// payloads wraps each payload of data into a record and runs the record hook.
// It does not touch the store.
func (c *Collection) payloads(data any) ([]*Record, error) {
	var values []any
	switch d := data.(type) {
	case nil:
	case *Record:
		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			values = append(values, v)
		}
	case []any:
		values = d
	default:
		return nil, &ResultError{Attribute: c.settings.ResultAttribute, Got: data}
	}

	recs := make([]*Record, 0, len(values))
	for _, v := range values {
		rec, ok := toRecord(v)
		if !ok {
			continue
		}
		if c.hook != nil {
			if err := c.hook(rec); err != nil {
				return nil, err
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// extract reads the records of a response.
func (c *Collection) extract(resp *Record) ([]*Record, error) {
	data, ok := resp.Get(c.settings.ResultAttribute)
	if !ok {
		c.logger.Warn("response has no result attribute", "attribute", c.settings.ResultAttribute)
	}
	return c.payloads(data)
}

// storeLocked replaces the store with recs. Called with c.mu held.
func (c *Collection) storeLocked(recs []*Record) ([]*Record, error) {
	c.records = recs
	return c.snapshotLocked(), nil
}
