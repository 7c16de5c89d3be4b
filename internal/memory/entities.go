package memory

import (
	"strings"
	"unicode"
)

// Common sentence starters that look like names when capitalized.
var entityStopwords = map[string]struct{}{
	"the": {}, "this": {}, "that": {}, "who": {}, "what": {}, "when": {},
	"where": {}, "why": {}, "how": {}, "did": {}, "does": {}, "has": {},
	"have": {}, "was": {}, "were": {}, "are": {}, "can": {}, "could": {},
	"should": {}, "would": {}, "will": {}, "show": {}, "tell": {},
	"give": {}, "list": {}, "find": {}, "remember": {}, "please": {},
	"about": {}, "today": {}, "yesterday": {}, "tomorrow": {},
}

// ExtractEntities pulls likely proper nouns out of free text:
// capitalized words longer than two characters, stopwords removed,
// first occurrence order preserved.
func ExtractEntities(text string) []string {
	var (
		entities []string
		seen     = map[string]struct{}{}
	)
	for _, field := range strings.Fields(text) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) <= 2 {
			continue
		}
		runes := []rune(word)
		if !unicode.IsUpper(runes[0]) {
			continue
		}
		lower := strings.ToLower(word)
		if _, ok := entityStopwords[lower]; ok {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		entities = append(entities, word)
	}
	return entities
}
