package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/linnemanlabs/raven/internal/news"
)

// DefaultTitleWeight is the share of the score contributed by title overlap.
const DefaultTitleWeight = 0.4

// Similarity scores how alike two items are. Scores are in [0,1] and must be
// symmetric; the source of an item is not considered.
type Similarity interface {
	Score(a, b news.Item) float64
}

// Indexer is implemented by similarities that can precompute per-item state
// once for a batch. The returned func scores items by index.
type Indexer interface {
	Index(items []news.Item) func(i, j int) float64
}

// TokenOverlap compares normalized word sets of title and content using
// Jaccard overlap, weighting the two by TitleWeight.
type TokenOverlap struct {
	TitleWeight float64
}

// NewTokenOverlap returns a TokenOverlap with the default title weight.
func NewTokenOverlap() TokenOverlap {
	return TokenOverlap{TitleWeight: DefaultTitleWeight}
}

// Score implements Similarity.
func (t TokenOverlap) Score(a, b news.Item) float64 {
	return t.combine(fingerprintOf(a), fingerprintOf(b))
}

// Index implements Indexer, tokenizing each item once.
func (t TokenOverlap) Index(items []news.Item) func(i, j int) float64 {
	fps := make([]fingerprint, len(items))
	for i := range items {
		fps[i] = fingerprintOf(items[i])
	}
	return func(i, j int) float64 {
		return t.combine(fps[i], fps[j])
	}
}

func (t TokenOverlap) combine(a, b fingerprint) float64 {
	w := t.TitleWeight
	if w < 0 || w > 1 {
		w = DefaultTitleWeight
	}
	return w*jaccard(a.title, b.title) + (1-w)*jaccard(a.content, b.content)
}

type fingerprint struct {
	title   map[string]struct{}
	content map[string]struct{}
}

func fingerprintOf(it news.Item) fingerprint {
	return fingerprint{
		title:   tokenSet(it.Title),
		content: tokenSet(it.Content),
	}
}

// jaccard returns |a∩b| / |a∪b|. Two empty sets share nothing.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func tokenSet(s string) map[string]struct{} {
	folded, _, err := transform.String(accentStripper, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {}, "and": {}, "any": {},
	"are": {}, "as": {}, "at": {}, "be": {}, "been": {}, "before": {}, "but": {}, "by": {},
	"can": {}, "could": {}, "did": {}, "do": {}, "does": {}, "for": {}, "from": {}, "had": {},
	"has": {}, "have": {}, "he": {}, "her": {}, "his": {}, "how": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "may": {}, "more": {}, "new": {}, "no": {},
	"not": {}, "of": {}, "on": {}, "one": {}, "or": {}, "our": {}, "over": {}, "said": {},
	"says": {}, "she": {}, "so": {}, "some": {}, "than": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"to": {}, "up": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "which": {},
	"who": {}, "will": {}, "with": {}, "would": {}, "you": {}, "your": {},
}
