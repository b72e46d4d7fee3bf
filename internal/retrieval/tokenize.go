package retrieval

import (
	"strings"
	"unicode"
)

// #region stopwords

// stopwords contains common English words excluded from similarity token sets.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "me": true,
	"i": true, "my": true, "your": true, "we": true, "they": true,
	"he": true, "she": true, "her": true, "him": true, "us": true,
	"them": true,
}

// #endregion stopwords

// #region term-counts

// termCounts produces the per-term occurrence map used by the index. Every
// lowercase whitespace-delimited token counts; the index keeps single-letter
// terms and stopwords so document-frequency bookkeeping stays exact.
func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		counts[w]++
	}
	return counts
}

// #endregion term-counts

// #region token-sets

// TokenSet returns the set of non-trivial tokens in text: lowercase letter
// runs of length ≥2 with stopwords removed. Used for novelty and overlap
// scoring, not for indexing.
func TokenSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	set := make(map[string]struct{})
	for _, w := range words {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// Jaccard computes |a∩b| / |a∪b| over two token sets. Two empty sets are
// treated as identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// #endregion token-sets
