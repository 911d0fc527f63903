package collection_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevemurr/restcollection/collection"
	"github.com/stevemurr/restcollection/transport"
)

// fakeBackend records every request and answers with reply.
type fakeBackend struct {
	mu    sync.Mutex
	reqs  []*transport.Request
	reply func(ctx context.Context, req *transport.Request) ([]byte, error)
}

func newFake(body string) *fakeBackend {
	return &fakeBackend{reply: func(context.Context, *transport.Request) ([]byte, error) {
		return []byte(body), nil
	}}
}

func (f *fakeBackend) Do(ctx context.Context, req *transport.Request) ([]byte, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	reply := f.reply
	f.mu.Unlock()
	return reply(ctx, req)
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeBackend) last() *transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		return nil
	}
	return f.reqs[len(f.reqs)-1]
}

// dataResponse renders {"data": {"<id>": {"id": "<id>"}, ...}}.
func dataResponse(ids ...string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`%q:{"id":%q}`, id, id)
	}
	return `{"data":{` + strings.Join(parts, ",") + `}}`
}

const endpoint = "http://api.test/items"

func newCollection(t *testing.T, tr transport.Transport, params collection.Params, opts ...collection.Option) *collection.Collection {
	t.Helper()
	opts = append([]collection.Option{collection.WithTransport(tr)}, opts...)
	c, err := collection.New(collection.Settings{Endpoint: endpoint, Params: params}, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func wait[T any](t *testing.T, f *collection.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future did not settle")
	return v, err
}
