package mitre

import "strings"

// Stopwords dropped from keyword sets: articles, prepositions and
// conjunctions that carry no signal in technique names.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "for": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "by": {}, "with": {},
	"via": {}, "over": {}, "under": {}, "using": {}, "use": {},
	"from": {}, "into": {}, "at": {}, "as": {},
}

// minDescriptionToken is the shortest description token kept as a keyword.
// Name tokens are kept at any length.
const minDescriptionToken = 4

// Tokenize lowercases s and splits it on runs of non-alphanumeric
// characters.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// TokenSet returns the unique tokens of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// deriveKeywords builds a technique's keyword set: every name token plus
// every description token of length >= minDescriptionToken, stopwords
// removed, first occurrence wins.
func deriveKeywords(name, description string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(tok string) {
		if _, stop := stopwords[tok]; stop {
			return
		}
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	for _, tok := range Tokenize(name) {
		add(tok)
	}
	for _, tok := range Tokenize(description) {
		if len(tok) >= minDescriptionToken {
			add(tok)
		}
	}
	return keywords
}
