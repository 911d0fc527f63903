package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stevemurr/restcollection/collection"
	"github.com/stevemurr/restcollection/handler"
	"github.com/stevemurr/restcollection/store"
	"github.com/stevemurr/restcollection/transport"
)

func TestReportRequests(t *testing.T) {
	metrics, reg := newMetrics()
	metrics.RecordRequest("GET", time.Millisecond, nil)
	metrics.RecordRequest("GET", time.Millisecond, nil)
	metrics.RecordRequest("GET", time.Millisecond, collection.ErrAborted)
	metrics.RecordRequest("POST", time.Millisecond, &transport.StatusError{Code: 500})

	var out bytes.Buffer
	if err := reportRequests(&out, reg); err != nil {
		t.Fatal(err)
	}
	want := "requests GET aborted: 1\nrequests GET ok: 2\nrequests POST error: 1\n"
	if out.String() != want {
		t.Fatalf("expected\n%s\ngot\n%s", want, out.String())
	}
}

func TestSyncCollections(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("t%d", i)
		rec, err := collection.ParseRecord([]byte(fmt.Sprintf(`{"id":%q}`, key)))
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Put("tasks", key, rec); err != nil {
			t.Fatal(err)
		}
	}
	ts := httptest.NewServer(handler.New(s))
	defer ts.Close()

	cfg, err := collection.ParseConfig([]byte(fmt.Sprintf(`
collections:
  tasks:
    endpoint: %[1]s/collections/tasks/items
    params: {limit: 2}
  users:
    endpoint: %[1]s/collections/users/items
`, ts.URL)))
	if err != nil {
		t.Fatal(err)
	}

	metrics, reg := newMetrics()
	options := []collection.Option{
		collection.WithTransport(transport.NewHTTP()),
		collection.WithMetrics(metrics),
	}
	var out bytes.Buffer
	if err := syncCollections(context.Background(), cfg, 2, options, &out); err != nil {
		t.Fatal(err)
	}
	if want := "tasks: 2 records\nusers: 0 records\n"; out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}

	out.Reset()
	if err := reportRequests(&out, reg); err != nil {
		t.Fatal(err)
	}
	if want := "requests GET ok: 2\n"; out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}

func TestSyncCollectionsFailure(t *testing.T) {
	ts := httptest.NewServer(handler.New(store.NewMemoryStore()))
	defer ts.Close()

	cfg, err := collection.ParseConfig([]byte(fmt.Sprintf(`
collections:
  missing:
    endpoint: %s/nowhere
`, ts.URL)))
	if err != nil {
		t.Fatal(err)
	}

	metrics, reg := newMetrics()
	options := []collection.Option{
		collection.WithTransport(transport.NewHTTP()),
		collection.WithMetrics(metrics),
	}
	var out bytes.Buffer
	err = syncCollections(context.Background(), cfg, 1, options, &out)
	if err == nil || !strings.HasPrefix(err.Error(), "missing: ") {
		t.Fatalf("expected error naming the collection, got %v", err)
	}

	out.Reset()
	if err := reportRequests(&out, reg); err != nil {
		t.Fatal(err)
	}
	if want := "requests GET error: 1\n"; out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}
