// Package strings provides string list helpers for configuration loading.
package strings

import (
	"strings"
)

// Normalize applies fn to every element and drops empty results and
// duplicates. Order is preserved and a nil input stays nil.
func Normalize(values []string, fn func(string) string) []string {
	if values == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := fn(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}

// Trim is strings.TrimSpace, for use with Normalize.
func Trim(s string) string { return strings.TrimSpace(s) }

// TrimUpper trims and upper-cases s. HTTP methods and header names compare
// this way.
func TrimUpper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
