package collection

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Get returns the first loaded record whose id loosely equals id, or nil.
// It never touches the network.
func (c *Collection) Get(id any) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range c.records {
		if v, ok := rec.Get("id"); ok && LooseEqual(v, id) {
			return rec
		}
	}
	return nil
}

// GetWhere returns the loaded records matching every clause in where, in store order.
// Scanning stops once limit matches are collected; limit <= 0 means no limit.
// A nil where yields an empty result.
func (c *Collection) GetWhere(where map[string]any, limit int) []*Record {
	if where == nil {
		return []*Record{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := []*Record{}
	for _, rec := range c.records {
		if !MatchWhere(rec, where) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// FindWhere is GetWhere with a limit of one: it returns the single matching
// record, or nil when nothing matches.
func (c *Collection) FindWhere(where map[string]any) *Record {
	found := c.GetWhere(where, 1)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// Like returns the loaded records for which every clause matches as a
// case-insensitive regular expression against the attribute's string form.
// A nil like yields an empty result.
func (c *Collection) Like(like map[string]any) []*Record {
	if like == nil {
		return []*Record{}
	}
	m := compileLike(like)

	c.mu.Lock()
	defer c.mu.Unlock()

	out := []*Record{}
	for _, rec := range c.records {
		if m.match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// MatchWhere reports whether rec satisfies every clause using loose equality.
// An absent attribute never matches.
func MatchWhere(rec *Record, where map[string]any) bool {
	for key, want := range where {
		got, ok := rec.Get(key)
		if !ok || !LooseEqual(got, want) {
			return false
		}
	}
	return true
}

// MatchLike reports whether every clause matches rec case-insensitively.
// Clause values are regular expressions; an invalid expression is matched literally.
func MatchLike(rec *Record, like map[string]any) bool {
	return compileLike(like).match(rec)
}

type likeClause struct {
	key string
	re  *regexp.Regexp
}

type likeMatcher []likeClause

func compileLike(like map[string]any) likeMatcher {
	m := make(likeMatcher, 0, len(like))
	for key, v := range like {
		pattern := Stringify(v)
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
		}
		m = append(m, likeClause{key: key, re: re})
	}
	return m
}

func (m likeMatcher) match(rec *Record) bool {
	matched := 0
	for _, cl := range m {
		v, ok := rec.Get(cl.key)
		if !ok {
			continue
		}
		if cl.re.MatchString(Stringify(v)) {
			matched++
		}
	}
	return matched == len(m)
}

// Stringify returns the string form of an attribute value as used by Like:
// strings as-is, numbers and bools in literal form, objects as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *Record, []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return formatValue(v)
	}
}

// LooseEqual compares two attribute values with numeric coercion:
// 5, 5.0, json.Number("5") and "5" are all equal. Two strings compare exactly,
// booleans coerce to 1 and 0 against numbers, and nil only equals nil.
// Objects and arrays are equal only when they are the same instance.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return as == bs
	}

	ab, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool && bBool {
		return ab == bb
	}

	af, aNum := toNumber(a)
	bf, bNum := toNumber(b)
	if aNum && bNum {
		return af == bf
	}

	if ar, ok := a.(*Record); ok {
		br, ok := b.(*Record)
		return ok && ar == br
	}
	return false
}

// toNumber coerces numbers, numeric strings and booleans to float64.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
