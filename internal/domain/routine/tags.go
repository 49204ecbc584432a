package routine

import "strings"

// TagSeparator joins tags into the single metadata string the store holds.
const TagSeparator = ", "

// ParseTags splits a stored tag string on commas, trims whitespace,
// drops empty entries and keeps the first occurrence of duplicates.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return normalizeTags(strings.Split(s, ","))
}

// JoinTags renders tags in storage form.
func JoinTags(tags []string) string {
	return strings.Join(normalizeTags(tags), TagSeparator)
}

func normalizeTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
