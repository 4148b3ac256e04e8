package roster

import "regexp"

// A name part starts with a capital and continues either in lower case or
// with a hyphen/apostrophe joining another capitalised piece (O'Brien,
// Smith-Jones). Single-letter initials ("A.") may sit between parts.
const (
	namePart     = `[A-Z](?:[a-z]+|[-'][A-Z][a-z]*)+`
	nameInitial  = `[A-Z]\.`
	fullNameExpr = `\b` + namePart + `(?:\s+(?:` + nameInitial + `\s+)*` + namePart + `)+\b`
)

var fullNamePattern = regexp.MustCompile(fullNameExpr)

// ExtractNames keeps only the candidates that contain full personal names.
// A candidate holding several names (a merged header such as
// "John Smith / Jane Doe") contributes each of them, all mapped to the
// candidate's row. Candidates without a name are dropped. When the same
// name appears on several rows the topmost row is kept, so the result does
// not depend on map iteration order.
func ExtractNames(candidates map[string]int) map[string]int {
	names := make(map[string]int, len(candidates))
	for text, row := range candidates {
		for _, name := range FindNames(text) {
			if existing, ok := names[name]; ok && existing <= row {
				continue
			}
			names[name] = row
		}
	}
	return names
}

// FindNames returns every non-overlapping full name in s, left to right.
func FindNames(s string) []string {
	return fullNamePattern.FindAllString(s, -1)
}
