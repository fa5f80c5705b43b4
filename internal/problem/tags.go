package problem

import "strings"

// TagSeparator joins a tag key and value.
const TagSeparator = ":"

// FormatTag renders a remote {key, value} tag pair as a single tag string.
func FormatTag(key, value string) string {
	return key + TagSeparator + value
}

// ParseTags splits a comma-separated tag expression, trimming whitespace
// around each item. Empty items are dropped and duplicates collapse to the
// first occurrence.
func ParseTags(expr string) []string {
	parts := strings.Split(expr, ",")
	tags := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}
