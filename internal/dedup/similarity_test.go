package dedup

import (
	"testing"

	"github.com/linnemanlabs/raven/internal/news"
)

func TestTokenOverlap_Score(t *testing.T) {
	t.Parallel()

	sim := NewTokenOverlap()
	a, b := oktaPair()

	tests := []struct {
		name    string
		a, b    news.Item
		wantMin float64
		wantMax float64
	}{
		{"identical", a, a, 1, 1},
		{"same event", a, b, 0.5, 1},
		{"unrelated", a, news.Item{Title: "Exchange zero-day patched", Content: "Microsoft fixed a mail server flaw."}, 0, 0.1},
		{"empty", news.Item{}, news.Item{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := sim.Score(tt.a, tt.b)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Score = %v, want in [%v, %v]", got, tt.wantMin, tt.wantMax)
			}
			if rev := sim.Score(tt.b, tt.a); rev != got {
				t.Errorf("Score not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestTokenSet_Normalizes(t *testing.T) {
	t.Parallel()

	got := tokenSet("Café CRÉDIT: the résumé of a Breach")
	for _, want := range []string{"cafe", "credit", "resume", "breach"} {
		if _, ok := got[want]; !ok {
			t.Errorf("missing token %q in %v", want, got)
		}
	}
	for _, stop := range []string{"the", "of", "a"} {
		if _, ok := got[stop]; ok {
			t.Errorf("stop word %q kept", stop)
		}
	}
}

func TestTokenOverlap_IndexMatchesScore(t *testing.T) {
	t.Parallel()

	sim := NewTokenOverlap()
	a, b := oktaPair()
	score := sim.Index([]news.Item{a, b})
	if got, want := score(0, 1), sim.Score(a, b); got != want {
		t.Errorf("Index score = %v, Score = %v", got, want)
	}
}
