// Package jsonvalue implements the comparison and conversion rules shared by
// the form evaluators. Values are the shapes produced by JSON and YAML
// decoding: nil, bool, string, Go numbers, []any and map[string]any.
//
// All comparisons are type-strict. A string that looks like a number is
// still a string.
package jsonvalue

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Number reports whether v is a real number and returns it as float64.
// Strings are never coerced.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	}
	return 0, false
}

// IsEmpty reports whether v is nil, the empty string or an empty array.
// Booleans are never empty, false included.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// StrictEqual compares two values without coercion. Numbers compare by value
// regardless of their Go kind. Arrays and objects are never equal because
// each decoded value is a distinct instance.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := Number(a); ok {
		y, ok := Number(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

// Contains reports whether list holds an element strictly equal to v.
func Contains(list []any, v any) bool {
	for _, item := range list {
		if StrictEqual(item, v) {
			return true
		}
	}
	return false
}

// IsArray reports whether v is an array value.
func IsArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

// IsObject reports whether v is an object value.
func IsObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// String renders v the way it appears when interpolated into text. Missing
// values render as the empty string.
func String(v any) string {
	if v == nil {
		return ""
	}
	if n, ok := Number(v); ok {
		return FormatNumber(n)
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// FormatNumber formats n in its shortest round-trip form.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Truthy reports whether v is truthy: false, 0, NaN, "" and nil are falsy,
// everything else is truthy.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if n, ok := Number(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}
	return true
}

// ParseFloat parses the longest leading decimal number in s, ignoring leading
// white space. It returns NaN when no number prefix exists.
func ParseFloat(s string) float64 {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	s = s[i:]

	for _, inf := range []string{"Infinity", "+Infinity", "-Infinity"} {
		if len(s) >= len(inf) && s[:len(inf)] == inf {
			if inf[0] == '-' {
				return math.Inf(-1)
			}
			return math.Inf(1)
		}
	}

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		if exp < len(s) && isDigit(s[exp]) {
			for exp < len(s) && isDigit(s[exp]) {
				exp++
			}
			end = exp
		}
	}

	// The prefix is well formed, so the only possible error is a range error,
	// for which ParseFloat still returns ±Inf or 0.
	f, _ := strconv.ParseFloat(s[:end], 64)
	return f
}

// ToNumber converts v to a number the way a numeric cast does: numbers are
// kept, booleans become 1 or 0, strings are parsed in full (blank strings are
// 0) and everything else is NaN.
func ToNumber(v any) float64 {
	if n, ok := Number(v); ok {
		return n
	}
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return 0
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
