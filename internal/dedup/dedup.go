// Package dedup collapses duplicate coverage of the same event into groups
// with one canonical item each. Deduplicate is pure: no I/O, no logging.
package dedup

import (
	"sort"

	"github.com/linnemanlabs/raven/internal/news"
)

// DefaultThreshold is the similarity at or above which two items are duplicates.
const DefaultThreshold = 0.5

// Group is a set of items judged to describe the same event.
type Group struct {
	CanonicalID string   `json:"canonical_id"`
	MemberIDs   []string `json:"member_ids"` // canonical first
}

// Suppression records that an item was dropped in favour of its canonical.
type Suppression struct {
	ID          string `json:"id"`
	CanonicalID string `json:"canonical_id"`
}

// Result is the outcome of Deduplicate. Canonical keeps the input order of
// the surviving items; Groups is ordered the same way.
type Result struct {
	Canonical  []news.Item
	Groups     []Group
	Suppressed []Suppression
}

// Engine groups items by pairwise similarity. A zero Engine is disabled.
type Engine struct {
	Enabled    bool
	Threshold  float64
	Similarity Similarity
}

// New returns an enabled engine using TokenOverlap. A non-positive threshold
// selects DefaultThreshold.
func New(threshold float64) Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Engine{
		Enabled:    true,
		Threshold:  threshold,
		Similarity: NewTokenOverlap(),
	}
}

// WithEnabled returns a copy of e with Enabled set.
func (e Engine) WithEnabled(on bool) Engine {
	e.Enabled = on
	return e
}

// GroupOf returns a lookup from any member ID to its group.
func (r *Result) GroupOf() map[string]Group {
	out := make(map[string]Group, len(r.Groups))
	for _, g := range r.Groups {
		for _, id := range g.MemberIDs {
			out[id] = g
		}
	}
	return out
}

// Deduplicate partitions items into duplicate groups. Items with
// similarity >= Threshold end up in the same group, transitively. Within a
// group the canonical is the earliest published item, then the longer
// content, then the smaller source, then the smaller ID.
func (e Engine) Deduplicate(items []news.Item) Result {
	if !e.Enabled || len(items) < 2 {
		return passthrough(items)
	}

	sim := e.Similarity
	if sim == nil {
		sim = NewTokenOverlap()
	}
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var score func(i, j int) float64
	if ix, ok := sim.(Indexer); ok {
		score = ix.Index(items)
	} else {
		score = func(i, j int) float64 { return sim.Score(items[i], items[j]) }
	}

	uf := newUnionFind(len(items))
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if score(i, j) >= threshold {
				uf.union(i, j)
			}
		}
	}

	members := make(map[int][]int)
	for i := range items {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}

	canonicalIdx := make([]int, 0, len(members))
	byCanonical := make(map[int][]int, len(members))
	for _, idx := range members {
		sort.SliceStable(idx, func(a, b int) bool {
			return preferred(items[idx[a]], items[idx[b]])
		})
		canonicalIdx = append(canonicalIdx, idx[0])
		byCanonical[idx[0]] = idx
	}
	sort.Ints(canonicalIdx)

	res := Result{
		Canonical: make([]news.Item, 0, len(canonicalIdx)),
		Groups:    make([]Group, 0, len(canonicalIdx)),
	}
	for _, ci := range canonicalIdx {
		canon := items[ci]
		g := Group{CanonicalID: canon.ID}
		for _, mi := range byCanonical[ci] {
			g.MemberIDs = append(g.MemberIDs, items[mi].ID)
			if mi != ci {
				res.Suppressed = append(res.Suppressed, Suppression{ID: items[mi].ID, CanonicalID: canon.ID})
			}
		}
		res.Canonical = append(res.Canonical, canon)
		res.Groups = append(res.Groups, g)
	}
	return res
}

func passthrough(items []news.Item) Result {
	res := Result{
		Canonical: make([]news.Item, len(items)),
		Groups:    make([]Group, len(items)),
	}
	copy(res.Canonical, items)
	for i, it := range items {
		res.Groups[i] = Group{CanonicalID: it.ID, MemberIDs: []string{it.ID}}
	}
	return res
}

// preferred reports whether a should be canonical over b.
func preferred(a, b news.Item) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.Before(b.PublishedAt)
	}
	if len(a.Content) != len(b.Content) {
		return len(a.Content) > len(b.Content)
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.ID < b.ID
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
