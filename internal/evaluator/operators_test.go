package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{name: "float64 passes through", input: 3.5, want: 3.5, wantOK: true},
		{name: "int converts", input: 7, want: 7, wantOK: true},
		{name: "numeric string parses", input: "42", want: 42, wantOK: true},
		{name: "padded numeric string parses", input: " 42 ", want: 42, wantOK: true},
		{name: "bool true is 1", input: true, want: 1, wantOK: true},
		{name: "non-numeric string fails", input: "forty-two", wantOK: false},
		{name: "nil fails", input: nil, wantOK: false},
		{name: "map fails", input: map[string]any{}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toNumber(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCompareNumbers(t *testing.T) {
	t.Parallel()

	gt := func(a, b float64) bool { return a > b }

	assert.True(t, compareNumbers(float64(31), "30", gt))
	assert.False(t, compareNumbers("oops", "30", gt), "uncoercible value fails closed")
	assert.False(t, compareNumbers(nil, "30", gt), "nil operand fails closed")
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	eq := func(cmp int) bool { return cmp == 0 }
	gtOp := func(cmp int) bool { return cmp > 0 }
	ltOp := func(cmp int) bool { return cmp < 0 }

	tests := []struct {
		name    string
		value   any
		target  any
		compare func(int) bool
		want    bool
	}{
		{name: "Equal versions", value: "1.2.3", target: "1.2.3", compare: eq, want: true},
		{name: "Shorter side is zero-padded", value: "1.2", target: "1.2.0", compare: eq, want: true},
		{name: "Greater patch wins", value: "1.2.4", target: "1.2.3", compare: gtOp, want: true},
		{name: "Lexicographic over integers, not strings", value: "1.10.0", target: "1.9.0", compare: gtOp, want: true},
		{name: "Suffix is stripped before comparing", value: "1.2.3-beta", target: "1.2.3", compare: eq, want: true},
		{name: "Non-numeric part fails", value: "1.x.3", target: "1.2.3", compare: eq, want: false},
		{name: "Empty value fails", value: "", target: "1.2.3", compare: ltOp, want: false},
		{name: "Nil value fails", value: nil, target: "1.2.3", compare: ltOp, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareVersions(tt.value, tt.target, tt.compare))
		})
	}
}

func TestMatchesAny(t *testing.T) {
	t.Parallel()

	target := []any{"iOS", "Android", float64(10)}

	assert.True(t, matchesAny("ios", target, false), "case-insensitive by default")
	assert.False(t, matchesAny("ios", target, true), "case-sensitive variant")
	assert.True(t, matchesAny("iOS", target, true))
	assert.True(t, matchesAny("10", target, false), "numeric string matches number")
	assert.True(t, matchesAny(float64(10), target, false))
	assert.False(t, matchesAny("windows", target, false))
	assert.True(t, matchesAny("solo", "solo", false), "scalar target acts as one-element array")
}

func TestStringMatchesAny(t *testing.T) {
	t.Parallel()

	targets := []any{"@Company.com", "@corp.com"}

	assert.True(t, stringMatchesAny("dev@company.com", targets, func(v, t string) bool {
		return len(v) >= len(t) && v[len(v)-len(t):] == t
	}), "suffix predicate is case-insensitive on both sides")
}

func TestMatchesRegex(t *testing.T) {
	t.Parallel()

	assert.True(t, matchesRegex("user-123", `^user-\d+$`))
	assert.False(t, matchesRegex("other-123", `^user-\d+$`))
	assert.False(t, matchesRegex("anything", `($invalid`), "uncompilable pattern fails closed")

	// Oversized values never reach the regex engine.
	huge := make([]byte, maxRegexTargetLength)
	for i := range huge {
		huge[i] = 'a'
	}
	assert.False(t, matchesRegex(string(huge), `a+`))
}

func TestLooseEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, looseEqual("31", float64(31)), "string coerces to number")
	assert.True(t, looseEqual(float64(31), float64(31)))
	assert.True(t, looseEqual("abc", "abc"))
	assert.False(t, looseEqual("abc", "ABC"), "eq is case-sensitive")
	assert.True(t, looseEqual(nil, nil))
	assert.False(t, looseEqual(nil, "x"))
	assert.False(t, looseEqual("x", nil))
}

func TestCompareDates(t *testing.T) {
	t.Parallel()

	before := func(a, b time.Time) bool { return a.Before(b) }
	equal := func(a, b time.Time) bool { return a.Equal(b) }

	t.Run("ISO strings compare", func(t *testing.T) {
		assert.True(t, compareDates("2023-01-01T00:00:00Z", "2024-01-01T00:00:00Z", false, before))
		assert.False(t, compareDates("2025-01-01T00:00:00Z", "2024-01-01T00:00:00Z", false, before))
	})

	t.Run("Epoch millis compare", func(t *testing.T) {
		assert.True(t, compareDates(float64(1_000), float64(2_000), false, before))
	})

	t.Run("Mixed forms compare", func(t *testing.T) {
		jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
		assert.True(t, compareDates(float64(jan1-1), "2024-01-01T00:00:00Z", false, before))
	})

	t.Run("On truncates both sides to local midnight", func(t *testing.T) {
		morning := time.Date(2024, 6, 1, 8, 30, 0, 0, time.Local).UnixMilli()
		evening := time.Date(2024, 6, 1, 22, 15, 0, 0, time.Local).UnixMilli()
		assert.True(t, compareDates(float64(morning), float64(evening), true, equal))
	})

	t.Run("Unparseable side fails", func(t *testing.T) {
		assert.False(t, compareDates("soon", "2024-01-01", false, before))
	})
}

func TestArraySetOperators(t *testing.T) {
	t.Parallel()

	value := []any{"a", "b", float64(1)}

	t.Run("array_contains_any", func(t *testing.T) {
		assert.True(t, arrayContainsAny(value, []any{"b", "z"}))
		assert.True(t, arrayContainsAny(value, []any{"1"}), "numeric string matches its numeric form")
		assert.False(t, arrayContainsAny(value, []any{"z"}))
		assert.False(t, arrayContainsAny("not-an-array", []any{"a"}))
	})

	t.Run("array_contains_all", func(t *testing.T) {
		assert.True(t, arrayContainsAll(value, []any{"a", "b"}))
		assert.False(t, arrayContainsAll(value, []any{"a", "z"}))
		assert.True(t, arrayContainsAll(value, []any{}))
	})
}
