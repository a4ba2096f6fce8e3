// Package keywords turns free-form English or Polish queries into a small
// set of lower-case search tokens.
package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTokens caps the size of a normalized token set.
const MaxTokens = 5

// minTokenLen is the shortest token kept; anything shorter is noise.
const minTokenLen = 3

// Tokenize splits the query on whitespace, lower-cases and trims surrounding
// punctuation, then drops stop-words and tokens shorter than three runes.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		word := strings.TrimFunc(f, isTrimmable)
		if utf8.RuneCountInString(word) < minTokenLen {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		out = append(out, word)
	}
	return out
}

// Normalize returns the deduplicated search tokens for a query, at most
// MaxTokens of them. City inflections collapse to one canonical form and
// Polish domain terms are translated. An empty result means "match all".
func Normalize(query string) []string {
	tokens := make([]string, 0, MaxTokens)
	seen := make(map[string]struct{}, MaxTokens)

	add := func(tok string) {
		if len(tokens) >= MaxTokens || utf8.RuneCountInString(tok) < minTokenLen {
			return
		}
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}

	for _, word := range Tokenize(query) {
		for _, tok := range expand(word) {
			add(tok)
		}
		if len(tokens) >= MaxTokens {
			break
		}
	}
	return tokens
}

// expand applies city canonicalization first, then translation, then
// passes the word through unchanged.
func expand(word string) []string {
	if canonical, ok := canonicalFor[word]; ok && canonical != word {
		return []string{canonical}
	}
	if mapped, ok := translations[word]; ok {
		return mapped
	}
	return []string{word}
}

// CanonicalCity maps any known spelling of a city to its canonical form.
func CanonicalCity(token string) (string, bool) {
	canonical, ok := canonicalFor[strings.ToLower(strings.TrimFunc(token, isTrimmable))]
	return canonical, ok
}

// DetectCity returns the canonical name of the first known city mentioned
// in the query, or "".
func DetectCity(query string) string {
	for _, f := range strings.Fields(query) {
		if canonical, ok := CanonicalCity(f); ok {
			return canonical
		}
	}
	return ""
}

// KnownCities lists the canonical city names in table order.
func KnownCities() []string {
	out := make([]string, len(knownCities))
	copy(out, knownCities)
	return out
}

func isTrimmable(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// CityForms returns every known spelling of a canonical city, canonical
// form first. Unknown cities yield just the input.
func CityForms(canonical string) []string {
	for _, forms := range cityForms {
		if forms[0] == canonical {
			out := make([]string, len(forms))
			copy(out, forms)
			return out
		}
	}
	return []string{canonical}
}
