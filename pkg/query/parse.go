package query

import (
	"regexp"
	"strings"
)

const (
	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

// RangeFilter is one `key[lower:upper]` segment of a filter parameter.
type RangeFilter struct {
	Key   string
	Lower string
	Upper string
}

// Comparison is one `key<op>value` expression of a where parameter.
type Comparison struct {
	Key      string
	Operator string
	Value    string
}

// OrderToken is a parsed `field[:direction]` token.
type OrderToken struct {
	Field     string
	Direction string
}

var (
	rangeFilterRegex = regexp.MustCompile(`^([^\[\]:,]+)\[([^:\[\]]+):([^\[\]]+)\]$`)
	whereRegex       = regexp.MustCompile(`^\[(.+)\]$`)
)

// ParseRangeFilters parses "key1[lo1:hi1],key2[lo2:hi2]". Parsing stops at the
// first malformed segment: the segments before it are returned together with
// the offending literal and ok=false.
func ParseRangeFilters(s string) (filters []RangeFilter, malformed string, ok bool) {
	for _, segment := range strings.Split(s, ",") {
		f, valid := ParseRangeFilter(segment)
		if !valid {
			return filters, segment, false
		}
		filters = append(filters, f)
	}
	return filters, "", true
}

// ParseRangeFilter parses a single "key[lower:upper]" segment. Both bounds are
// mandatory and the lower bound ends at the first colon.
func ParseRangeFilter(segment string) (RangeFilter, bool) {
	m := rangeFilterRegex.FindStringSubmatch(strings.TrimSpace(segment))
	if m == nil {
		return RangeFilter{}, false
	}
	return RangeFilter{Key: m[1], Lower: m[2], Upper: m[3]}, true
}

// ParseWhere strips the mandatory outer brackets of "[expr1,expr2]" and splits
// the expressions. ok is false when the bracket structure does not match.
func ParseWhere(s string) (exprs []string, ok bool) {
	m := whereRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, false
	}
	return strings.Split(m[1], ","), true
}

// comparisonOperators in matching priority: the two-character operators must be
// tried first so that "a>=1" never reads as "a>" "=1".
var comparisonOperators = []string{">=", "<=", "=", ">", "<"}

// ParseComparison splits expr at the first operator found in priority order.
// Key and value must both be non-empty.
func ParseComparison(expr string) (Comparison, bool) {
	for _, op := range comparisonOperators {
		key, value, found := strings.Cut(expr, op)
		if !found {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			return Comparison{}, false
		}
		return Comparison{Key: key, Operator: op, Value: value}, true
	}
	return Comparison{}, false
}

// SplitPath splits "relation.field". Exactly two non-empty segments are required.
func SplitPath(path string) (relation, field string, ok bool) {
	parts := strings.Split(path, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseOrder parses "field" or "field:direction". A missing or unknown direction
// silently becomes ascending; directions are case-insensitive. A token with
// more than one colon is taken whole as the field, so the allow-list rejects it.
func ParseOrder(s string) OrderToken {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return OrderToken{Field: s, Direction: DirectionAsc}
	}
	return OrderToken{Field: parts[0], Direction: normalizeDirection(parts[1])}
}

func normalizeDirection(dir string) string {
	switch d := strings.ToLower(strings.TrimSpace(dir)); d {
	case DirectionAsc, DirectionDesc:
		return d
	}
	return DirectionAsc
}

// ParseWith parses a relation token of the with parameter. A trailing "!" asks
// for the relation to be counted as well as included; it is stripped from the name.
func ParseWith(token string) (relation string, count bool) {
	token = strings.TrimSpace(token)
	if name, found := strings.CutSuffix(token, "!"); found {
		return name, true
	}
	return token, false
}
