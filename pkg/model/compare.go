package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Compare orders two values the way a store would: numbers numerically, times
// chronologically, booleans false before true, anything else as text. A string
// compared against a number or time is parsed first, so request values ("1000")
// compare against stored ones (1000.0). ok is false when either side is nil.
func Compare(a, b any) (c int, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return cmpFloat(af, bf), true
		}
	}

	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			return at.Compare(bt), true
		}
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := toBool(b); bok {
			return cmpBool(ab, bb), true
		}
	}
	if bb, bok := b.(bool); bok {
		if ab, aok := toBool(a); aok {
			return cmpBool(ab, bb), true
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

// Match evaluates "a op b" using Compare.
func Match(a any, op string, b any) bool {
	c, ok := Compare(a, b)
	if !ok {
		return false
	}
	switch op {
	case "=":
		return c == 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	}
	return false
}

// KeyString returns the canonical text form of an identifier so that 9, 9.0,
// int64(9) and "9" address the same entity.
func KeyString(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
	case float32:
		if n == float32(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
	}
	return fmt.Sprint(v)
}

// NormalizeID turns an identifier taken from a URL into an integer when it looks like one.
func NormalizeID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
