package collection_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/restcollection/collection"
	"github.com/stevemurr/restcollection/transport"
)

// noNetwork fails the test on any request.
func noNetwork(t *testing.T) transport.Transport {
	return transport.Func(func(_ context.Context, req *transport.Request) ([]byte, error) {
		t.Errorf("unexpected request %s %s", req.Method, req.URL)
		return nil, errors.New("no network")
	})
}

func seeded(t *testing.T, raw string) *collection.Collection {
	t.Helper()
	data, err := collection.ParseRecord([]byte(raw))
	require.NoError(t, err)
	c, err := collection.New(collection.Settings{}, collection.WithSeed(data), collection.WithTransport(noNetwork(t)))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func ids(recs []*collection.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = collection.Stringify(r.ID())
	}
	return out
}

const people = `{
	"1": {"id": 1, "name": "John", "role": "admin", "a": 1, "b": 2},
	"2": {"id": "2", "name": "Joanna", "role": "user", "a": 1, "b": 3},
	"3": {"id": 3.0, "name": "Bob", "role": "admin", "a": "1", "b": "2"},
	"x": "not a record"
}`

func TestSeedSkipsNonObjects(t *testing.T) {
	c := seeded(t, people)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"1", "2", "3.0"}, ids(c.Records()))
	assert.Nil(t, c.At(3))
	assert.Nil(t, c.At(-1))
	name, _ := c.At(0).Get("name")
	assert.Equal(t, "John", name)
}

func TestGetLooseID(t *testing.T) {
	c := seeded(t, people)

	for _, id := range []any{1, "1", 1.0, json.Number("1")} {
		rec := c.Get(id)
		require.NotNil(t, rec, "%#v", id)
		name, _ := rec.Get("name")
		assert.Equal(t, "John", name)
	}

	rec := c.Get(2)
	require.NotNil(t, rec)
	name, _ := rec.Get("name")
	assert.Equal(t, "Joanna", name)

	assert.NotNil(t, c.Get("3"))
	assert.Nil(t, c.Get(99))
	assert.Nil(t, c.Get(nil))
}

func TestGetWhere(t *testing.T) {
	c := seeded(t, people)

	// every clause must match
	got := c.GetWhere(map[string]any{"a": 1, "b": 2}, 0)
	assert.Equal(t, []string{"1", "3.0"}, ids(got))

	got = c.GetWhere(map[string]any{"role": "admin"}, 0)
	assert.Equal(t, []string{"1", "3.0"}, ids(got))

	// scanning stops at limit
	got = c.GetWhere(map[string]any{"a": 1}, 2)
	assert.Equal(t, []string{"1", "2"}, ids(got))

	// absent attribute never matches
	assert.Empty(t, c.GetWhere(map[string]any{"missing": nil}, 0))

	assert.Empty(t, c.GetWhere(nil, 0))
	assert.NotNil(t, c.GetWhere(nil, 0))
	assert.Len(t, c.GetWhere(map[string]any{}, 0), 3)
}

func TestFindWhere(t *testing.T) {
	c := seeded(t, people)

	rec := c.FindWhere(map[string]any{"id": 2})
	require.NotNil(t, rec)
	assert.Equal(t, "2", rec.ID())

	rec = c.FindWhere(map[string]any{"id": "3"})
	require.NotNil(t, rec)
	name, _ := rec.Get("name")
	assert.Equal(t, "Bob", name)

	assert.Nil(t, c.FindWhere(map[string]any{"id": 5}))
	assert.Nil(t, c.FindWhere(nil))
}

func TestLike(t *testing.T) {
	c := seeded(t, people)

	assert.Equal(t, []string{"1", "2"}, ids(c.Like(map[string]any{"name": "jo"})))
	assert.Equal(t, []string{"1"}, ids(c.Like(map[string]any{"name": "jo", "role": "admin"})))
	assert.Equal(t, []string{"3.0"}, ids(c.Like(map[string]any{"name": "^b"})))
	assert.Equal(t, []string{"1", "3.0"}, ids(c.Like(map[string]any{"b": 2})))
	assert.Empty(t, ids(c.Like(map[string]any{"missing": "x"})))
	assert.Empty(t, ids(c.Like(map[string]any{"name": "("})))
	assert.Empty(t, c.Like(nil))
	assert.Len(t, c.Like(map[string]any{}), 3)
}

func TestEmptyThenQuery(t *testing.T) {
	c := seeded(t, people)
	c.Empty()

	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Get(1))
	assert.Empty(t, c.GetWhere(map[string]any{"id": 1}, 0))
	assert.Nil(t, c.FindWhere(map[string]any{"id": 1}))
	assert.Empty(t, c.Like(map[string]any{"name": "jo"}))
}

func TestMatchPredicates(t *testing.T) {
	rec, err := collection.ParseRecord([]byte(`{"name":"Ada Lovelace","born":1815,"tags":["math"]}`))
	require.NoError(t, err)

	assert.True(t, collection.MatchWhere(rec, map[string]any{"born": "1815"}))
	assert.False(t, collection.MatchWhere(rec, map[string]any{"born": 1816}))
	assert.True(t, collection.MatchLike(rec, map[string]any{"name": "LOVE", "born": "18"}))
	assert.True(t, collection.MatchLike(rec, map[string]any{"tags": "math"}))
	assert.True(t, collection.MatchLike(rec, map[string]any{"name": "a.a"}))
	assert.False(t, collection.MatchLike(rec, map[string]any{"name": "a.b"}))
}

func TestLooseEqual(t *testing.T) {
	rec := collection.NewRecord()
	tests := []struct {
		a, b any
		want bool
	}{
		{5, "5", true},
		{"5", 5.0, true},
		{json.Number("5"), 5, true},
		{"5", "5.0", false},
		{"abc", "abc", true},
		{"abc", "ABC", false},
		{true, 1, true},
		{false, 0, true},
		{true, false, false},
		{nil, nil, true},
		{nil, 0, false},
		{"", 0, false},
		{rec, rec, true},
		{rec, collection.NewRecord(), false},
		{rec, "x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, collection.LooseEqual(tt.a, tt.b), "%#v == %#v", tt.a, tt.b)
	}
}

func TestStringify(t *testing.T) {
	rec, err := collection.ParseRecord([]byte(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, "x", collection.Stringify("x"))
	assert.Equal(t, "12", collection.Stringify(json.Number("12")))
	assert.Equal(t, "true", collection.Stringify(true))
	assert.Equal(t, "null", collection.Stringify(nil))
	assert.Equal(t, `{"a":1}`, collection.Stringify(rec))
	assert.Equal(t, `[1,"b"]`, collection.Stringify([]any{1, "b"}))
}
