// Package preference turns the free-text preference field into the ordered
// list sent to the recommendation backend.
package preference

import "strings"

// Separator is the only character that splits preferences.
const Separator = ","

// Normalize splits raw on commas and trims each segment. Segments that are
// empty after trimming are dropped, so "cats," yields ["cats"] and "" yields
// an empty, non-nil list.
func Normalize(raw string) []string {
	parts := strings.Split(raw, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Join renders a list back into the comma-separated form shown in the input.
func Join(prefs []string) string {
	return strings.Join(prefs, Separator+" ")
}
