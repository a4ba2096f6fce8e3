package retrieval

import (
	"regexp"
	"strings"
)

// Intent represents the classified intent of a query.
type Intent string

const (
	IntentListAll       Intent = "list_all"
	IntentStatistics    Intent = "statistics"
	IntentDefaultSearch Intent = "default_search"
)

// listTriggers are matched as whole words so "small" never reads as "all".
var listTriggers = map[string]struct{}{
	"list":      {},
	"all":       {},
	"available": {},
	"catalog":   {},
	"catalogue": {},
	"lista":     {},
	"wszystkie": {},
	"dostępne":  {},
}

// statsTriggers are matched as substrings so plurals and Polish
// inflections ("bookings", "rezerwacji") are covered.
var statsTriggers = []string{
	"booking",
	"booked",
	"reservation",
	"reserved",
	"how many",
	"rezerwac",
	"zarezerwowan",
}

var statsWords = map[string]struct{}{
	"ile": {},
	"ilu": {},
}

var rankingPattern = regexp.MustCompile(`(?i)\b(most|top|popular|best[- ]selling|ranking)\b|najpopularniejsz|najczęściej`)

var productPattern = regexp.MustCompile(`(?i)tour|trip|excursion|walk|offer|product|list|available|wycieczk|zwiedza|ofert|produkt|lista|dostępn`)

// fillerWords are stripped from a statistics query before keyword matching.
var fillerWords = map[string]struct{}{
	"how": {}, "many": {}, "much": {}, "number": {}, "of": {}, "total": {},
	"bookings": {}, "booking": {}, "booked": {}, "reservations": {}, "reservation": {},
	"for": {}, "are": {}, "is": {}, "there": {}, "did": {}, "do": {}, "we": {},
	"have": {}, "has": {}, "the": {}, "most": {}, "top": {}, "popular": {},
	"ile": {}, "rezerwacji": {}, "rezerwacje": {}, "dla": {}, "jest": {}, "było": {},
}

// ClassifyIntent picks the structured strategy for a raw query. It is a pure
// function of the query and does not depend on normalization.
func ClassifyIntent(query string) Intent {
	q := strings.ToLower(query)

	words := strings.Fields(q)
	for i, word := range words {
		words[i] = strings.Trim(word, ".,!?;:()\"'")
		if _, ok := listTriggers[words[i]]; ok {
			return IntentListAll
		}
	}

	for _, trigger := range statsTriggers {
		if strings.Contains(q, trigger) {
			return IntentStatistics
		}
	}
	for _, word := range words {
		if _, ok := statsWords[word]; ok {
			return IntentStatistics
		}
	}

	return IntentDefaultSearch
}

// IsRankingQuery reports whether a statistics query asks for a ranking
// ("most booked") rather than a plain count.
func IsRankingQuery(query string) bool {
	return rankingPattern.MatchString(query)
}

// IsProductQuery reports whether the query looks like a request about tours
// or other bookable products, in English or Polish.
func IsProductQuery(query string) bool {
	return productPattern.MatchString(query)
}

// StatisticsBasis removes quantity and question filler from a statistics
// query, keeping the words that name what is being counted.
// "how many bookings for City Tour?" becomes "City Tour".
func StatisticsBasis(query string) string {
	words := strings.Fields(query)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		clean := strings.Trim(w, ".,!?;:()\"'")
		if clean == "" {
			continue
		}
		if _, filler := fillerWords[strings.ToLower(clean)]; filler {
			continue
		}
		kept = append(kept, clean)
	}
	return strings.Join(kept, " ")
}
