// Package keyword is a deterministic relevance backend. It matches profile
// terms in item text with an Aho-Corasick automaton and scores the hits by
// the kind of term matched. It needs no network access, so it serves offline
// runs and tests.
package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/linnemanlabs/raven/internal/news"
	"github.com/linnemanlabs/raven/internal/relevance"
)

// Weights is the contribution of a single matched term of each kind.
var Weights = map[news.TermKind]float64{
	news.KindThirdPartyProvider: 0.6,
	news.KindCriticalSystem:     0.6,
	news.KindCompliance:         0.45,
	news.KindHighPriority:       0.4,
	news.KindCloud:              0.35,
	news.KindInfrastructure:     0.35,
	news.KindFramework:          0.3,
	news.KindLanguage:           0.2,
}

// Backend implements relevance.Backend.
type Backend struct {
	mu      sync.Mutex
	profile *news.Profile
	index   *termIndex
}

// New returns a keyword backend.
func New() *Backend {
	return &Backend{}
}

// Evaluate scores the request's item. Stage 1 reads the title and the
// excerpt and counts each kind of term once; stage 2 reads the full content
// and counts every distinct term.
func (b *Backend) Evaluate(ctx context.Context, req *relevance.Request) (*relevance.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Profile == nil {
		return nil, fmt.Errorf("keyword backend: no profile")
	}

	idx := b.indexFor(req.Profile)

	content := req.Item.Content
	if req.Stage == relevance.Stage1 {
		content = relevance.Excerpt(content, relevance.ExcerptRunes)
	}
	hits := idx.match(req.Item.Title + " " + content)

	if req.Stage == relevance.Stage1 {
		hits = onePerKind(hits)
	}
	return evaluation(hits), nil
}

func (b *Backend) indexFor(p *news.Profile) *termIndex {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.profile != p || b.index == nil {
		b.profile = p
		b.index = newTermIndex(p.Terms())
	}
	return b.index
}

type termIndex struct {
	matcher  *ahocorasick.Matcher
	patterns []string
	terms    map[string]news.Term // normalized pattern -> strongest term
}

// newTermIndex keeps one term per normalized pattern. A term listed under
// several kinds keeps the strongest one.
func newTermIndex(terms []news.Term) *termIndex {
	idx := &termIndex{terms: make(map[string]news.Term)}
	for _, t := range terms {
		p := normalize(t.Text)
		if strings.TrimSpace(p) == "" {
			continue
		}
		prev, ok := idx.terms[p]
		if !ok {
			idx.patterns = append(idx.patterns, p)
		}
		if !ok || stronger(t, prev) {
			idx.terms[p] = t
		}
	}
	if len(idx.patterns) > 0 {
		idx.matcher = ahocorasick.NewStringMatcher(idx.patterns)
	}
	return idx
}

// match returns the distinct terms found in text, strongest first.
func (idx *termIndex) match(text string) []news.Term {
	if idx.matcher == nil {
		return nil
	}
	var out []news.Term
	for _, hit := range idx.matcher.Match([]byte(normalize(text))) {
		if hit < 0 || hit >= len(idx.patterns) {
			continue
		}
		out = append(out, idx.terms[idx.patterns[hit]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return stronger(out[i], out[j])
		}
		return strings.ToLower(out[i].Text) < strings.ToLower(out[j].Text)
	})
	return out
}

// stronger orders terms by weight, then by kind.
func stronger(a, b news.Term) bool {
	wa, wb := Weights[a.Kind], Weights[b.Kind]
	if wa != wb {
		return wa > wb
	}
	return a.Kind < b.Kind
}

func onePerKind(terms []news.Term) []news.Term {
	seen := make(map[news.TermKind]bool)
	out := terms[:0:0]
	for _, t := range terms {
		if seen[t.Kind] {
			continue
		}
		seen[t.Kind] = true
		out = append(out, t)
	}
	return out
}

// evaluation combines term weights as independent evidence:
// 1 - prod(1 - w).
func evaluation(hits []news.Term) *relevance.Evaluation {
	ev := &relevance.Evaluation{}
	if len(hits) == 0 {
		ev.Rationale = "no profile terms mentioned"
		return ev
	}

	miss := 1.0
	reasons := make([]string, 0, len(hits))
	for _, t := range hits {
		miss *= 1 - Weights[t.Kind]
		ev.MatchedTerms = append(ev.MatchedTerms, t.Text)
		reasons = append(reasons, fmt.Sprintf("%s %s", t.Kind.Label(), t.Text))
	}
	ev.Score = 1 - miss
	ev.Rationale = "mentions " + strings.Join(reasons, "; ")
	return ev
}

// normalize lower-cases s, turns everything but letters and digits into
// single spaces and pads the result so patterns only match whole words.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
