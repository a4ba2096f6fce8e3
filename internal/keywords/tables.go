package keywords

// cityForms lists the inflected and alternative spellings of each city the
// catalog covers. The first entry of each group is the canonical form.
var cityForms = [][]string{
	{"krakow", "kraków", "krakowie", "krakowem", "krakowa", "krakowowi", "cracow", "krakau"},
	{"warsaw", "warszawa", "warszawie", "warszawy", "warszawą", "warszawę", "warschau"},
	{"gdansk", "gdańsk", "gdanska", "gdańska", "gdansku", "gdańsku", "gdańskiem", "danzig"},
	{"wroclaw", "wrocław", "wroclawia", "wrocławia", "wroclawiu", "wrocławiu", "breslau"},
	{"poznan", "poznań", "poznania", "poznaniu", "poznaniem", "posen"},
	{"hamburg", "hamburgu", "hamburga", "hamburgiem"},
}

// translations maps Polish domain terms onto the English vocabulary used by
// the catalog. An empty slice drops the word (question words, "we have").
var translations = map[string][]string{
	"wycieczka":   {"tour"},
	"wycieczki":   {"tour", "tours"},
	"wycieczek":   {"tour", "tours"},
	"wycieczkach": {"tour", "tours"},
	"wycieczkę":   {"tour"},
	"zwiedzanie":  {"tour", "visit"},
	"zwiedzania":  {"tour", "visit"},
	"produkt":     {"product"},
	"produkty":    {"product", "products"},
	"produktach":  {"product", "products"},
	"oferta":      {"offer", "product"},
	"oferty":      {"offer", "product"},
	"ofercie":     {"offer", "product"},
	"artykul":     {"article"},
	"artykuł":     {"article"},
	"artykuly":    {"article", "articles"},
	"artykuły":    {"article", "articles"},
	"artykulach":  {"article", "articles"},
	"rezerwacja":  {"booking", "reservation"},
	"rezerwacje":  {"booking", "reservation"},
	"rezerwacji":  {"booking", "reservation"},
	"przewodnik":  {"guide"},
	"spacer":      {"walk"},
	"jedzenie":    {"food"},
	"jakie":       {},
	"jaki":        {},
	"jaka":        {},
	"mamy":        {},
	"mam":         {},
	"macie":       {},
	"ile":         {},
	"ilu":         {},
	"gdzie":       {},
	"kiedy":       {},
	"wszystkie":   {},
	"dostępne":    {},
}

var stopWordList = []string{
	// English
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "from", "as", "is", "are", "was", "were", "been",
	"be", "have", "has", "had", "do", "does", "did", "will", "would",
	"could", "should", "may", "might", "can", "we", "you", "how", "many",
	"much", "what", "when", "where", "who", "which", "this", "that",
	"these", "those", "there", "any", "some", "about", "me", "tell", "show",
	// Polish
	"w", "o", "z", "do", "na", "i", "czy", "jak", "jaki", "jakie", "mamy",
	"mam", "dla", "się", "to", "jest", "są", "oraz", "po", "ze", "we",
}

// Read-only lookup structures built once at init.
var (
	stopWords    map[string]struct{}
	canonicalFor map[string]string
	knownCities  []string
)

func init() {
	stopWords = make(map[string]struct{}, len(stopWordList))
	for _, w := range stopWordList {
		stopWords[w] = struct{}{}
	}

	canonicalFor = make(map[string]string)
	for _, forms := range cityForms {
		canonical := forms[0]
		knownCities = append(knownCities, canonical)
		for _, form := range forms {
			canonicalFor[form] = canonical
		}
	}
}
