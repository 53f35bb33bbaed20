package relevance

import (
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/raven/internal/news"
)

// ExcerptRunes is how much content the stage 1 screen sees.
const ExcerptRunes = 500

// Prompter renders backend prompts. Swap it to change wording without
// touching the pipeline.
type Prompter interface {
	System(stage Stage) string
	Stage1(item news.Item, profile *news.Profile) string
	Stage2(item news.Item, profile *news.Profile) string
}

// DefaultPrompter asks for a JSON object with score, matched_terms and
// rationale.
type DefaultPrompter struct{}

const responseContract = `Respond with a single JSON object and nothing else:
{"score": <number between 0 and 1>, "matched_terms": [<profile elements the article affects>], "rationale": "<one or two sentences>"}`

// System implements Prompter.
func (DefaultPrompter) System(stage Stage) string {
	if stage == Stage1 {
		return `You are Raven, a security news analyst. You screen headlines for a security team.
Score how likely the article is to affect the organization described in the prompt.
A quick read is enough; this is a first pass and borderline items go to a full review.

` + responseContract
	}
	return `You are Raven, a security news analyst. You decide which security news a security team must read.
Score the article from 0 (no impact on this organization) to 1 (direct impact requiring action).
Direct mentions of the organization's third-party providers, critical systems or compliance regimes weigh most.
List only profile elements the article actually concerns in matched_terms.

` + responseContract
}

// Stage1 implements Prompter with the title, an excerpt and the compact
// profile summary.
func (DefaultPrompter) Stage1(item news.Item, profile *news.Profile) string {
	return fmt.Sprintf(`Article: %s
Source: %s
Published: %s

Excerpt:
%s

Organization technology:
%s
Compliance: %s`,
		item.Title,
		item.Source,
		item.PublishedAt.Format(time.RFC3339),
		Excerpt(item.Content, ExcerptRunes),
		techSummary(profile),
		joinOrNone(complianceOf(profile)),
	)
}

// Stage2 implements Prompter with the full content and the complete profile.
func (DefaultPrompter) Stage2(item news.Item, profile *news.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article: %s\nSource: %s\nPublished: %s\n", item.Title, item.Source, item.PublishedAt.Format(time.RFC3339))
	if item.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", item.URL)
	}
	if len(item.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(item.Categories, ", "))
	}
	fmt.Fprintf(&b, "\nContent:\n%s\n\n", item.Content)

	b.WriteString("Organization profile:\n")
	if profile != nil {
		fmt.Fprintf(&b, "Name: %s\nIndustry: %s\nSize: %s\nRegion: %s\n", profile.Name, profile.Industry, profile.Size, profile.Region)
	}
	b.WriteString(techSummary(profile))
	fmt.Fprintf(&b, "Compliance: %s\n", joinOrNone(complianceOf(profile)))
	if profile != nil {
		fmt.Fprintf(&b, "Third-party providers: %s\n", joinOrNone(profile.SecurityConcerns.ThirdPartyProviders))
		fmt.Fprintf(&b, "High-priority topics: %s\n", joinOrNone(profile.SecurityConcerns.HighPriority))
		fmt.Fprintf(&b, "Critical systems: %s\n", joinOrNone(profile.Assets.CriticalSystems))
	}
	return b.String()
}

// Excerpt returns at most n runes of s, cut at the last space when possible.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := r[:n]
	for i := len(cut) - 1; i > n/2; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return string(cut) + "..."
}

func techSummary(p *news.Profile) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	rows := []struct {
		label string
		vals  []string
	}{
		{"Cloud", p.TechStack.Cloud},
		{"Languages", p.TechStack.Languages},
		{"Frameworks", p.TechStack.Frameworks},
		{"Infrastructure", p.TechStack.Infrastructure},
	}
	for _, r := range rows {
		if len(r.vals) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", r.label, strings.Join(r.vals, ", "))
	}
	return b.String()
}

func complianceOf(p *news.Profile) []string {
	if p == nil {
		return nil
	}
	return p.SecurityConcerns.Compliance
}

func joinOrNone(vals []string) string {
	if len(vals) == 0 {
		return "none"
	}
	return strings.Join(vals, ", ")
}
