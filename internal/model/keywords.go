package model

import "strings"

// ParseKeywords splits a comma-delimited phrase list into trimmed,
// lowercased phrases. Empty phrases are dropped.
func ParseKeywords(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseNegativeKeywords is ParseKeywords with the optional leading "-"
// of each phrase removed.
func ParseNegativeKeywords(raw string) []string {
	var out []string
	for _, p := range ParseKeywords(raw) {
		p = strings.TrimSpace(strings.TrimLeft(p, "-"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinKeywords serializes phrases into the comma-delimited storage form.
func JoinKeywords(phrases []string) string {
	return strings.Join(phrases, ", ")
}
