package keyword

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/linnemanlabs/raven/internal/news"
	"github.com/linnemanlabs/raven/internal/relevance"
)

func profile() *news.Profile {
	return &news.Profile{
		Name: "Acme",
		TechStack: news.TechStack{
			Cloud:          []string{"AWS"},
			Languages:      []string{"Go", "Python"},
			Infrastructure: []string{"Kubernetes"},
		},
		SecurityConcerns: news.SecurityConcerns{
			Compliance:          []string{"SOC2"},
			ThirdPartyProviders: []string{"Okta"},
		},
		Assets: news.Assets{CriticalSystems: []string{"payments-api"}},
	}
}

func eval(t *testing.T, b *Backend, stage relevance.Stage, title, content string) *relevance.Evaluation {
	t.Helper()
	ev, err := b.Evaluate(context.Background(), &relevance.Request{
		Stage:   stage,
		Item:    news.Item{ID: "x", Title: title, Content: content},
		Profile: profile(),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return ev
}

func TestEvaluate_ThirdPartyProvider(t *testing.T) {
	t.Parallel()

	b := New()
	ev := eval(t, b, relevance.Stage2,
		"Okta support system breached",
		"Attackers used stolen credentials to reach Okta customer support files.")

	if !reflect.DeepEqual(ev.MatchedTerms, []string{"Okta"}) {
		t.Errorf("MatchedTerms = %v, want [Okta]", ev.MatchedTerms)
	}
	if ev.Score < 0.59 || ev.Score > 0.61 {
		t.Errorf("Score = %v, want ~0.6", ev.Score)
	}
	if !strings.Contains(ev.Rationale, "third-party provider Okta") {
		t.Errorf("Rationale = %q", ev.Rationale)
	}
}

func TestEvaluate_WholeWordsOnly(t *testing.T) {
	t.Parallel()

	b := New()
	ev := eval(t, b, relevance.Stage2, "Gopher conference recap", "Talks about going fast and awsome tooling.")
	if len(ev.MatchedTerms) != 0 || ev.Score != 0 {
		t.Errorf("expected no match, got %v (%v)", ev.MatchedTerms, ev.Score)
	}
}

func TestEvaluate_HyphenatedTerm(t *testing.T) {
	t.Parallel()

	b := New()
	ev := eval(t, b, relevance.Stage2, "Outage", "The payments-api was unreachable.")
	if !reflect.DeepEqual(ev.MatchedTerms, []string{"payments-api"}) {
		t.Errorf("MatchedTerms = %v", ev.MatchedTerms)
	}
}

func TestEvaluate_StageOneCountsKindsOnce(t *testing.T) {
	t.Parallel()

	b := New()
	text := "Go and Python libraries"
	s1 := eval(t, b, relevance.Stage1, text, "")
	s2 := eval(t, b, relevance.Stage2, text, "")

	if len(s1.MatchedTerms) != 1 {
		t.Errorf("stage 1 matched %v, want one language", s1.MatchedTerms)
	}
	if len(s2.MatchedTerms) != 2 {
		t.Errorf("stage 2 matched %v, want both languages", s2.MatchedTerms)
	}
	if s2.Score <= s1.Score {
		t.Errorf("stage 2 score %v should exceed stage 1 score %v", s2.Score, s1.Score)
	}
}

func TestEvaluate_StageOneUsesExcerpt(t *testing.T) {
	t.Parallel()

	b := New()
	content := strings.Repeat("filler ", 200) + "Okta"
	if ev := eval(t, b, relevance.Stage1, "Weekly roundup", content); ev.Score != 0 {
		t.Errorf("stage 1 score = %v, want 0 for term past the excerpt", ev.Score)
	}
	if ev := eval(t, b, relevance.Stage2, "Weekly roundup", content); ev.Score == 0 {
		t.Error("stage 2 should see the full content")
	}
}

func TestEvaluate_StrongestFirst(t *testing.T) {
	t.Parallel()

	b := New()
	ev := eval(t, b, relevance.Stage2, "Kubernetes and SOC2 news", "Okta and AWS too.")
	want := []string{"Okta", "SOC2", "AWS", "Kubernetes"}
	if !reflect.DeepEqual(ev.MatchedTerms, want) {
		t.Errorf("MatchedTerms = %v, want %v", ev.MatchedTerms, want)
	}
	if ev.Score <= 0 || ev.Score > 1 {
		t.Errorf("Score = %v out of range", ev.Score)
	}
}

func TestEvaluate_TermUnderTwoKinds(t *testing.T) {
	t.Parallel()

	p := profile()
	p.SecurityConcerns.HighPriority = []string{"okta"}

	b := New()
	ev, err := b.Evaluate(context.Background(), &relevance.Request{
		Stage:   relevance.Stage2,
		Item:    news.Item{ID: "x", Title: "Okta breach", Content: "Okta confirmed the incident."},
		Profile: p,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if !reflect.DeepEqual(ev.MatchedTerms, []string{"Okta"}) {
		t.Errorf("MatchedTerms = %v, want [Okta]", ev.MatchedTerms)
	}
	if ev.Score < 0.59 || ev.Score > 0.61 {
		t.Errorf("Score = %v, want ~0.6", ev.Score)
	}
	if strings.Contains(ev.Rationale, "high-priority topic") {
		t.Errorf("Rationale = %q, want only the stronger kind", ev.Rationale)
	}
}

func TestEvaluate_NoProfile(t *testing.T) {
	t.Parallel()

	_, err := New().Evaluate(context.Background(), &relevance.Request{Stage: relevance.Stage1})
	if err == nil {
		t.Fatal("expected error without profile")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Okta":          " okta ",
		"payments-api":  " payments api ",
		"  AWS, GCP!  ": " aws gcp ",
		"":              " ",
	}
	for in, want := range tests {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
