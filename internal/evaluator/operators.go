package evaluator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxRegexTargetLength guards str_matches against pathological inputs.
const maxRegexTargetLength = 1000

// toNumber coerces a condition operand to float64. Numbers pass through,
// bools become 1 or 0, and strings parse; anything else fails.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// toString renders an operand for string comparisons. Floats that are
// whole numbers print without a fraction so "31" matches 31.0 from JSON.
func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// compareNumbers coerces both sides and applies the comparison; a side
// that fails coercion fails the condition.
func compareNumbers(value, target any, compare func(a, b float64) bool) bool {
	a, okA := toNumber(value)
	b, okB := toNumber(target)
	if !okA || !okB {
		return false
	}
	return compare(a, b)
}

// parseVersion splits a version string into numeric parts, stripping any
// -suffix first ("1.2.3-beta" compares as "1.2.3"). A non-numeric part
// fails the whole comparison.
func parseVersion(value any) ([]int64, bool) {
	raw := strings.TrimSpace(toString(value))
	if raw == "" {
		return nil, false
	}
	if idx := strings.Index(raw, "-"); idx >= 0 {
		raw = raw[:idx]
	}

	pieces := strings.Split(raw, ".")
	parts := make([]int64, len(pieces))
	for i, piece := range pieces {
		n, err := strconv.ParseInt(piece, 10, 64)
		if err != nil {
			return nil, false
		}
		parts[i] = n
	}
	return parts, true
}

// compareVersions compares dotted versions lexicographically over their
// integer parts, padding the shorter side with zeros.
func compareVersions(value, target any, compare func(cmp int) bool) bool {
	a, okA := parseVersion(value)
	b, okB := parseVersion(target)
	if !okA || !okB {
		return false
	}

	length := len(a)
	if len(b) > length {
		length = len(b)
	}

	for i := range length {
		var partA, partB int64
		if i < len(a) {
			partA = a[i]
		}
		if i < len(b) {
			partB = b[i]
		}
		if partA != partB {
			if partA < partB {
				return compare(-1)
			}
			return compare(1)
		}
	}
	return compare(0)
}

// matchesAny reports whether value matches any element of target (which
// may be an array or a scalar). Matching is loose: string-equal (case per
// flag) or numerically equal.
func matchesAny(value, target any, caseSensitive bool) bool {
	for _, candidate := range asArray(target) {
		if looseMatch(value, candidate, caseSensitive) {
			return true
		}
	}
	return false
}

// looseMatch compares one pair: numeric equality when both coerce, string
// equality otherwise.
func looseMatch(value, candidate any, caseSensitive bool) bool {
	a, okA := toNumber(value)
	b, okB := toNumber(candidate)
	if okA && okB {
		return a == b
	}

	left := toString(value)
	right := toString(candidate)
	if caseSensitive {
		return left == right
	}
	return strings.EqualFold(left, right)
}

// asArray normalizes a target operand to a slice: arrays pass through,
// scalars become single-element slices, nil is empty.
func asArray(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// stringMatchesAny lowercases both sides and applies a string predicate
// against every element of target.
func stringMatchesAny(value, target any, predicate func(value, target string) bool) bool {
	left := strings.ToLower(toString(value))
	for _, candidate := range asArray(target) {
		if predicate(left, strings.ToLower(toString(candidate))) {
			return true
		}
	}
	return false
}

// matchesRegex applies str_matches semantics: oversized values and
// uncompilable patterns fail closed.
func matchesRegex(value, target any) bool {
	subject := toString(value)
	if len(subject) >= maxRegexTargetLength {
		return false
	}

	pattern, err := regexp.Compile(toString(target))
	if err != nil {
		return false
	}
	return pattern.MatchString(subject)
}

// looseEqual implements eq: equal as-is, or equal after numeric coercion
// (so "31" == 31). Nil equals nil only.
func looseEqual(value, target any) bool {
	if value == nil || target == nil {
		return value == nil && target == nil
	}

	if a, okA := toNumber(value); okA {
		if b, okB := toNumber(target); okB {
			return a == b
		}
	}
	return toString(value) == toString(target)
}

// parseDate interprets an operand as a point in time: ISO date strings
// first, then epoch milliseconds.
func parseDate(value any) (time.Time, bool) {
	if s, ok := value.(string); ok {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}

	if ms, ok := toNumber(value); ok {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

// compareDates parses both sides and applies the comparison; unparseable
// sides fail the condition.
func compareDates(value, target any, truncateToDay bool, compare func(a, b time.Time) bool) bool {
	a, okA := parseDate(value)
	b, okB := parseDate(target)
	if !okA || !okB {
		return false
	}

	if truncateToDay {
		a = truncateToLocalMidnight(a)
		b = truncateToLocalMidnight(b)
	}
	return compare(a, b)
}

func truncateToLocalMidnight(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
}

// arraySetEntry normalizes an array element for set comparisons: numeric
// strings collapse onto their numeric form so ["1"] matches [1].
func arraySetEntry(value any) string {
	if n, ok := toNumber(value); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strings.ToLower(toString(value))
}

// arraySet builds a membership set from an array operand.
func arraySet(value any) (map[string]struct{}, bool) {
	arr, ok := value.([]any)
	if !ok {
		return nil, false
	}

	set := make(map[string]struct{}, len(arr))
	for _, entry := range arr {
		set[arraySetEntry(entry)] = struct{}{}
	}
	return set, true
}

// arrayContainsAny reports whether the value array shares any element with
// the target array.
func arrayContainsAny(value, target any) bool {
	valueSet, okV := arraySet(value)
	targetSet, okT := arraySet(target)
	if !okV || !okT {
		return false
	}

	for entry := range targetSet {
		if _, ok := valueSet[entry]; ok {
			return true
		}
	}
	return false
}

// arrayContainsAll reports whether the value array contains every element
// of the target array.
func arrayContainsAll(value, target any) bool {
	valueSet, okV := arraySet(value)
	targetSet, okT := arraySet(target)
	if !okV || !okT {
		return false
	}

	for entry := range targetSet {
		if _, ok := valueSet[entry]; !ok {
			return false
		}
	}
	return true
}
