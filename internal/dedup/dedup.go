// Package dedup detects near-duplicate article titles.
//
// Titles are compared as sets of lowercase whitespace-separated words.
// There is no stemming or semantic matching.
package dedup

import "strings"

// Threshold is the similarity a title must exceed to count as a duplicate.
const Threshold = 0.8

// Candidate is an already admitted title.
type Candidate struct {
	ID    string
	Title string
}

// Similarity returns the Jaccard index of the word sets of a and b.
// Two titles with no words at all are identical.
func Similarity(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// IsDuplicate reports whether title is more similar than Threshold to any
// of existing. It returns the first matching candidate and its score.
// A title without words is never a duplicate.
func IsDuplicate(title string, existing []Candidate) (bool, string, float64) {
	if len(words(title)) == 0 {
		return false, "", 0
	}
	for _, c := range existing {
		if s := Similarity(title, c.Title); s > Threshold {
			return true, c.ID, s
		}
	}
	return false, "", 0
}

func words(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
