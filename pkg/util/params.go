package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseTime accepts RFC3339 (with or without fractional seconds) and unix
// seconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseSince reads a lower time bound given either as a timestamp or as a
// lookback duration such as "90m" relative to now.
func ParseSince(s string, now time.Time, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return now.Add(-d)
	}
	return def
}

// ParseIntDefault parses s or returns def when it is empty or invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
