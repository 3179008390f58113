package utils

import "strings"

// ParseQueryList handles both repeated and comma-separated query params.
// Empty entries and duplicates are dropped, first occurrence wins.
// Example:
//
//	?pricing=budget,premium          → ["budget","premium"]
//	?pricing=budget&pricing=premium  → ["budget","premium"]
func ParseQueryList(q map[string][]string, key string) []string {
	values := q[key]
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
