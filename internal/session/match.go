package session

import "strings"

// MatchTerms returns the vocabulary terms that occur in text as exact,
// case-sensitive substrings, in vocabulary order
func MatchTerms(vocabulary []string, text string) []string {
	if text == "" {
		return nil
	}
	var matched []string
	for _, term := range vocabulary {
		if term != "" && strings.Contains(text, term) {
			matched = append(matched, term)
		}
	}
	return matched
}
