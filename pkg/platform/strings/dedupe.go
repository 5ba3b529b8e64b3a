// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// Dedupe removes duplicates and empty strings from a slice. Order of first
// occurrence is preserved, which the cluster view relies on: the primary
// contact's value is passed first and must stay first.
//
// Example:
//
//	Dedupe([]string{"a@x.com", "", "b@x.com", "a@x.com"})
//	// Returns: []string{"a@x.com", "b@x.com"}
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}

// DedupeAndTrim is like Dedupe but trims whitespace from each element first.
// Used for comma-separated config lists (brokers, CORS origins).
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		trimmed = append(trimmed, strings.TrimSpace(v))
	}
	return Dedupe(trimmed)
}
