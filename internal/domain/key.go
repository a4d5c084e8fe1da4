package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Key is the alert's identity. Wazuh ids look like "<epoch>.<offset>", so
// alerts from the same second share ID and differ only here.
func (a AlertRecord) Key() string {
	return CanonicalKey(a.RawID, a.ID)
}

// CanonicalKey normalises an id as written in the log. Integral values map
// to their decimal form so "42", "42.0" and 42 agree; anything else keeps
// its text. An empty raw id falls back to id.
func CanonicalKey(raw string, id int64) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return strconv.FormatInt(id, 10)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(id, 10)
	}
	return raw
}

// KeySeq returns the integer part of a key, the value checkpoints compare against.
func KeySeq(key string) (int64, bool) {
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(key, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// KeyLess orders keys by integer part, then by the offset after the dot.
// Offsets are compared as integers, so "1.9" sorts before "1.10".
// Non-numeric keys sort last.
func KeyLess(a, b string) bool {
	sa, okA := KeySeq(a)
	sb, okB := KeySeq(b)
	switch {
	case okA != okB:
		return okA
	case okA && sa != sb:
		return sa < sb
	case len(a) != len(b):
		return len(a) < len(b)
	}
	return a < b
}

// SortKeys orders keys in place with KeyLess.
func SortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool { return KeyLess(keys[i], keys[j]) })
}
