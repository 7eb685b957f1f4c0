package ml

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// englishStopWords are excluded from the learned vocabulary. The list covers
// the common function words that show up in transaction descriptions.
var englishStopWords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "against": {},
	"all": {}, "am": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {},
	"at": {}, "be": {}, "because": {}, "been": {}, "before": {}, "being": {},
	"below": {}, "between": {}, "both": {}, "but": {}, "by": {}, "can": {},
	"did": {}, "do": {}, "does": {}, "doing": {}, "down": {}, "during": {},
	"each": {}, "few": {}, "for": {}, "from": {}, "further": {}, "had": {},
	"has": {}, "have": {}, "having": {}, "he": {}, "her": {}, "here": {},
	"hers": {}, "him": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "just": {}, "me": {}, "more": {},
	"most": {}, "my": {}, "no": {}, "nor": {}, "not": {}, "now": {}, "of": {},
	"off": {}, "on": {}, "once": {}, "only": {}, "or": {}, "other": {},
	"our": {}, "ours": {}, "out": {}, "over": {}, "own": {}, "same": {},
	"she": {}, "should": {}, "so": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "theirs": {}, "them": {}, "then": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"through": {}, "to": {}, "too": {}, "under": {}, "until": {}, "up": {},
	"very": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "while": {}, "who": {}, "whom": {}, "why": {},
	"will": {}, "with": {}, "you": {}, "your": {}, "yours": {},
}

// TfidfVectorizer learns a bounded vocabulary over free-text transaction
// descriptions in fit mode and produces TF-IDF term weights in transform
// mode. The vocabulary is fixed at fit time and never grows afterwards.
//
// All fields are exported so the fitted state survives gob round-trips.
type TfidfVectorizer struct {
	MaxFeatures int
	Terms       []string  // column index -> term, alphabetical
	IDF         []float64 // column index -> inverse document frequency
	Fitted      bool
}

// NewTfidfVectorizer builds an unfitted vectorizer with the given vocabulary
// cap.
func NewTfidfVectorizer(maxFeatures int) *TfidfVectorizer {
	return &TfidfVectorizer{MaxFeatures: maxFeatures}
}

// descNormalizer strips diacritics so "café" and "cafe" land on the same
// term.
var descNormalizer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func tokenize(text string) []string {
	normalized, _, err := transform.String(descNormalizer, strings.ToLower(text))
	if err != nil {
		normalized = strings.ToLower(text)
	}
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := englishStopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Fit learns the vocabulary: the MaxFeatures most frequent terms across the
// corpus (ties broken alphabetically), columns ordered alphabetically.
func (v *TfidfVectorizer) Fit(docs []string) {
	termCount := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			termCount[tok]++
			seen[tok] = struct{}{}
		}
		for tok := range seen {
			docFreq[tok]++
		}
	}

	terms := make([]string, 0, len(termCount))
	for t := range termCount {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termCount[terms[i]] != termCount[terms[j]] {
			return termCount[terms[i]] > termCount[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.Terms = terms
	v.IDF = make([]float64, len(terms))
	for i, t := range terms {
		// Smoothed IDF, matching the conventional formulation.
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}
	v.Fitted = true
}

// Transform maps each document to a row of TF-IDF weights over the fitted
// vocabulary, L2-normalized. Documents with no known terms produce all-zero
// rows.
func (v *TfidfVectorizer) Transform(docs []string) [][]float64 {
	index := make(map[string]int, len(v.Terms))
	for i, t := range v.Terms {
		index[t] = i
	}

	rows := make([][]float64, len(docs))
	for r, doc := range docs {
		row := make([]float64, len(v.Terms))
		for _, tok := range tokenize(doc) {
			if col, ok := index[tok]; ok {
				row[col]++
			}
		}
		var sumSq float64
		for col := range row {
			row[col] *= v.IDF[col]
			sumSq += row[col] * row[col]
		}
		if sumSq > 0 {
			inv := 1 / math.Sqrt(sumSq)
			for col := range row {
				row[col] *= inv
			}
		}
		rows[r] = row
	}
	return rows
}

// FitTransform fits the vocabulary and transforms the same corpus.
func (v *TfidfVectorizer) FitTransform(docs []string) [][]float64 {
	v.Fit(docs)
	return v.Transform(docs)
}
