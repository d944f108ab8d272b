package engine

import (
	"regexp"
	"strings"
)

// maxKeywords caps how many query keywords feed tag matching.
const maxKeywords = 10

var wordPattern = regexp.MustCompile(`[a-zA-Z]{3,}`)

// stopwords are common words excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "what": true, "when": true, "where": true,
	"who": true, "which": true, "why": true, "how": true, "about": true,
	"with": true, "this": true, "that": true, "from": true, "they": true,
	"their": true, "there": true, "would": true, "could": true, "should": true,
	"will": true, "been": true, "were": true, "does": true, "did": true,
	"doing": true, "just": true, "more": true, "some": true, "than": true,
	"then": true, "them": true, "these": true, "those": true, "into": true,
	"over": true, "under": true, "again": true, "very": true, "tell": true,
	"know": true, "like": true, "want": true, "need": true, "please": true,
}

// ExtractKeywords pulls lowercase content words from a query, dropping
// stopwords and duplicates while preserving order.
func ExtractKeywords(query string) []string {
	var keywords []string
	seen := make(map[string]bool)

	for _, word := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) >= maxKeywords {
			break
		}
	}

	return keywords
}
