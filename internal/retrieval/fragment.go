package retrieval

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxContentChars caps fragment content when no limit is configured.
const DefaultMaxContentChars = 1000

// Fragment is one unit of retrieved knowledge handed to prompt assembly.
type Fragment struct {
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// NewFragment builds a fragment with content capped to maxChars runes and a
// non-nil metadata map.
func NewFragment(source, content string, metadata map[string]any, maxChars int) Fragment {
	if maxChars <= 0 {
		maxChars = DefaultMaxContentChars
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Fragment{
		Source:   source,
		Content:  Truncate(content, maxChars),
		Metadata: metadata,
	}
}

// Truncate cuts s to at most n runes. Word boundaries are ignored.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
