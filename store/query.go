package store

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/stevemurr/restcollection/collection"
)

// Query selects a window of a collection.
type Query struct {
	// Where holds exact filters. Values come from a query string, so a record
	// attribute matches when it loosely equals the value or renders to it.
	Where map[string]string
	// Search is a case-insensitive substring matched against every attribute.
	Search string
	// Sort names the attribute to order by; a leading '-' sorts descending.
	Sort string
	// Limit of 0 returns everything from Offset on.
	Limit  int
	Offset int
}

// ParseQuery reads limit, offset, sort and q from values. Every other key
// becomes a Where filter. Negative offsets are treated as 0.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{Where: map[string]string{}}
	for key, vs := range values {
		if len(vs) == 0 {
			continue
		}
		v := vs[len(vs)-1]
		switch key {
		case collection.ParamLimit:
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return Query{}, fmt.Errorf("invalid limit %q", v)
			}
			q.Limit = n
		case collection.ParamOffset:
			n, err := strconv.Atoi(v)
			if err != nil {
				return Query{}, fmt.Errorf("invalid offset %q", v)
			}
			q.Offset = max(n, 0)
		case collection.ParamSort:
			q.Sort = v
		case collection.ParamSearch:
			q.Search = v
		default:
			q.Where[key] = v
		}
	}
	return q, nil
}

// Apply filters, sorts and windows entries. entries is not modified.
func Apply(entries []Entry, q Query) *Page {
	matched := make([]Entry, 0, len(entries))
	needle := strings.ToLower(q.Search)
	for _, e := range entries {
		if !matchWhere(e.Record, q.Where) {
			continue
		}
		if needle != "" && !containsText(e.Record, needle) {
			continue
		}
		matched = append(matched, e)
	}

	if q.Sort != "" {
		field, desc := strings.TrimPrefix(q.Sort, "-"), strings.HasPrefix(q.Sort, "-")
		sort.SliceStable(matched, func(i, j int) bool {
			a, aok := matched[i].Record.Get(field)
			b, bok := matched[j].Record.Get(field)
			// Records without the field go last either way.
			if aok != bok {
				return aok
			}
			if desc {
				return less(b, a)
			}
			return less(a, b)
		})
	}

	page := &Page{Total: len(matched)}
	start := min(q.Offset, len(matched))
	end := len(matched)
	if q.Limit > 0 {
		end = min(start+q.Limit, end)
	}
	page.Entries = matched[start:end]
	return page
}

func matchWhere(rec *collection.Record, where map[string]string) bool {
	for key, want := range where {
		got, ok := rec.Get(key)
		if !ok {
			return false
		}
		if !collection.LooseEqual(got, want) && collection.Stringify(got) != want {
			return false
		}
	}
	return true
}

func containsText(rec *collection.Record, needle string) bool {
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		if strings.Contains(strings.ToLower(collection.Stringify(v)), needle) {
			return true
		}
	}
	return false
}

func less(a, b any) bool {
	af, aerr := strconv.ParseFloat(collection.Stringify(a), 64)
	bf, berr := strconv.ParseFloat(collection.Stringify(b), 64)
	if aerr == nil && berr == nil {
		return af < bf
	}
	return collection.Stringify(a) < collection.Stringify(b)
}
