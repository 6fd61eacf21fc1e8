// Package extract resolves typed fields out of loosely shaped feed records.
//
// The upstream service has renamed and moved fields across its own versions,
// so every logical field is described by an ordered list of candidate paths.
// Resolution takes the first candidate that is present, non-null and
// coercible to the wanted type; anything else falls through to the next
// candidate and finally to the zero value. Nothing here returns an error.
package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a raw video record as decoded from a feed payload.
type Record map[string]any

// Path locates a value inside a Record, one key per nesting level.
type Path []string

// P builds a Path.
func P(keys ...string) Path {
	return Path(keys)
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Lookup walks the path and returns the value if every step exists and the
// final value is not null.
func (r Record) Lookup(p Path) (any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, key := range p {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Keys returns the top-level keys, for diagnostics.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	return keys
}

// String resolves the first candidate that is a non-empty string. Numbers are
// formatted, which covers numeric video ids.
func String(r Record, candidates ...Path) string {
	for _, p := range candidates {
		v, ok := r.Lookup(p)
		if !ok {
			continue
		}
		if s, ok := toString(v); ok && s != "" {
			return s
		}
	}
	return ""
}

// Int resolves the first candidate coercible to an integer.
func Int(r Record, candidates ...Path) (int64, bool) {
	for _, p := range candidates {
		v, ok := r.Lookup(p)
		if !ok {
			continue
		}
		if n, ok := toInt(v); ok {
			return n, true
		}
	}
	return 0, false
}

// Count resolves a non-negative counter. Missing, malformed and negative
// values all yield 0.
func Count(r Record, candidates ...Path) int64 {
	n, _ := Int(r, candidates...)
	if n < 0 {
		return 0
	}
	return n
}

// Bool resolves the first candidate coercible to a boolean.
func Bool(r Record, candidates ...Path) bool {
	for _, p := range candidates {
		v, ok := r.Lookup(p)
		if !ok {
			continue
		}
		if b, ok := toBool(v); ok {
			return b
		}
	}
	return false
}

// millisThreshold separates epoch seconds from epoch milliseconds; seconds
// will not reach it before the year 33658.
const millisThreshold = 1_000_000_000_000

// Epoch resolves a Unix timestamp. Values above millisThreshold are read as
// milliseconds. Zero and negative values are treated as absent.
func Epoch(r Record, candidates ...Path) (time.Time, bool) {
	for _, p := range candidates {
		v, ok := r.Lookup(p)
		if !ok {
			continue
		}
		n, ok := toInt(v)
		if !ok || n <= 0 {
			continue
		}
		if n >= millisThreshold {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// tagKeys are the object keys a hashtag entry has been seen under.
var tagKeys = []string{"title", "name", "hashtagName"}

// Strings resolves a list of labels such as hashtags. A candidate may hold a
// list of strings, a list of objects carrying one of tagKeys, or a single
// comma separated string. Order is kept and empty entries are dropped.
func Strings(r Record, candidates ...Path) []string {
	for _, p := range candidates {
		v, ok := r.Lookup(p)
		if !ok {
			continue
		}
		if out := toStrings(v); len(out) > 0 {
			return out
		}
	}
	return []string{}
}

func toStrings(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := labelOf(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func labelOf(item any) string {
	if m, ok := asMap(item); ok {
		for _, k := range tagKeys {
			if s, ok := toString(m[k]); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}
	s, _ := toString(item)
	return strings.TrimSpace(s)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	}
	return nil, false
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		return floatToInt(f, err == nil)
	case float64:
		return floatToInt(t, true)
	case float32:
		return floatToInt(float64(t), true)
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return floatToInt(f, err == nil)
	}
	return 0, false
}

func floatToInt(f float64, ok bool) (int64, bool) {
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	if n, ok := toInt(v); ok {
		return n != 0, true
	}
	return false, false
}
