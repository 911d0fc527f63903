package collection

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Reserved parameter keys.
const (
	ParamLimit  = "limit"
	ParamOffset = "offset"
	ParamSort   = "sort"
	ParamSearch = "q"
)

// DefaultResultAttribute names the response field holding the records.
const DefaultResultAttribute = "data"

// Settings configures one collection instance.
type Settings struct {
	// Endpoint is the base resource URL. Required before any network operation.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Params are the query parameters sent with every fetch.
	Params Params `yaml:"params" json:"params"`
	// ResultAttribute names the response field containing the record payloads.
	ResultAttribute string `yaml:"result_attribute" json:"result_attribute"`
	// Autoload fetches at construction time when no seed data is given.
	Autoload bool `yaml:"autoload" json:"autoload"`
}

func (s Settings) withDefaults() Settings {
	if s.ResultAttribute == "" {
		s.ResultAttribute = DefaultResultAttribute
	}
	s.Params = s.Params.Clone()
	if s.Params == nil {
		s.Params = Params{}
	}
	return s
}

// Params maps query keys to scalar values. A nil value is an unset filter:
// the key exists but is never serialized.
type Params map[string]any

// Clone returns a shallow copy. Values are scalars so this is a full copy in practice.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Int returns the parameter as an int when it holds a number or a numeric string.
func (p Params) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := toNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// Encode serializes the parameters as k=v pairs joined by '&', keys sorted,
// keys and values percent-encoded, nil values skipped. No leading '?'.
func (p Params) Encode() string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(formatValue(p[k])))
	}
	return b.String()
}

// escape percent-encodes like encodeURIComponent: spaces become %20, not '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// formatValue renders a scalar the way it appears in a query string.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case nil:
		return "null"
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// QueryString turns params into the query part of a URL, including the leading '?'.
//
// params may be Params, map[string]any, a pre-built string or nil. A string is
// used verbatim, so it must carry its own '?'. An empty parameter set yields "".
func QueryString(params any) string {
	switch p := params.(type) {
	case nil:
		return ""
	case string:
		return p
	case Params:
		return prefixQuery(p.Encode())
	case map[string]any:
		return prefixQuery(Params(p).Encode())
	default:
		return prefixQuery(formatValue(p))
	}
}

func prefixQuery(q string) string {
	if q == "" {
		return ""
	}
	return "?" + q
}

// BuildURL joins endpoint, an optional path segment and the query string.
// Trailing slashes on the endpoint are stripped before joining.
func BuildURL(endpoint, path string, params any) string {
	u := strings.TrimRight(endpoint, "/")
	if path != "" {
		u += "/" + strings.TrimLeft(path, "/")
	}
	return u + QueryString(params)
}

// truthy mirrors "has a value": nil, false, zero numbers and "" are empty.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	if f, ok := toNumber(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}
