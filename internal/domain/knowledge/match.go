package knowledge

import "strings"

// Matches returns every entry whose key occurs in input as a literal,
// case-sensitive substring, in table order.
func (t *Table) Matches(input string) []Entry {
	var matched []Entry
	for _, e := range t.entries {
		if strings.Contains(input, e.Key) {
			matched = append(matched, e)
		}
	}
	return matched
}

// Match joins the values of all matching entries with a single space, or
// returns Fallback when nothing matches. It never returns an empty string.
func (t *Table) Match(input string) string {
	matched := t.Matches(input)
	if len(matched) == 0 {
		return Fallback
	}

	values := make([]string, len(matched))
	for i, e := range matched {
		values[i] = e.Value
	}
	return strings.Join(values, " ")
}

// Instruction combines the user text and the match result into the single
// instruction string sent to the image model.
func Instruction(text, match string) string {
	return text + "\nContext: " + match
}
