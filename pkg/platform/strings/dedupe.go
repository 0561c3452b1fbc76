// Package strings cleans list- and map-valued settings parsed from the
// environment.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empties and repeats, keeping the
// first occurrence's position. Used for comma-separated lists such as broker
// addresses, where "a, b,,a" means {a, b}.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// TrimPairs trims keys and values of a key=value setting and drops pairs with
// an empty side. Returns nil when nothing survives.
func TrimPairs(pairs map[string]string) map[string]string {
	var result map[string]string
	for k, v := range pairs {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if result == nil {
			result = make(map[string]string, len(pairs))
		}
		result[k] = v
	}
	return result
}
