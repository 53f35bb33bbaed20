// Package console renders run reports for a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/news"
	"github.com/linnemanlabs/raven/internal/pipeline"
)

const (
	// PreviewRunes is how much content a dry-run listing shows per item.
	PreviewRunes = 200

	panelWidth = 78
	dateLayout = "2006-01-02 15:04 MST"
)

// Printer writes reports to w. Colour is used only when w is a terminal.
type Printer struct {
	w io.Writer

	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
	heading lipgloss.Style
	panel   lipgloss.Style
	failed  lipgloss.Style
}

// New returns a Printer writing to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		label:   r.NewStyle().Foreground(lipgloss.Color("#F7B801")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#999999")),
		warn:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50")),
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1).
			Width(panelWidth),
		failed: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1).
			Width(panelWidth),
	}
}

const banner = `
██████╗  █████╗ ██╗   ██╗███████╗███╗   ██╗
██╔══██╗██╔══██╗██║   ██║██╔════╝████╗  ██║
██████╔╝███████║██║   ██║█████╗  ██╔██╗ ██║
██╔══██╗██╔══██║╚██╗ ██╔╝██╔══╝  ██║╚██╗██║
██║  ██║██║  ██║ ╚████╔╝ ███████╗██║ ╚████║
╚═╝  ╚═╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝╚═╝  ╚═══╝`

// Banner prints the start-up banner.
func (p *Printer) Banner() error {
	_, err := fmt.Fprintf(p.w, "%s\n%s\n\n", p.title.Render(banner), p.label.Render("Risk Analysis & Vulnerability Executive News"))
	return err
}

// ConfigSummary prints what a valid configuration file will do.
func (p *Printer) ConfigSummary(f *cfg.File, runOverride int) error {
	var b strings.Builder
	b.WriteString(p.heading.Render("Configuration is valid!"))
	b.WriteString("\n\n")
	p.field(&b, "Company", f.Company.Name)
	p.field(&b, "Industry", f.Company.Industry)
	names := f.EnabledCollectors()
	if len(names) == 0 {
		p.field(&b, "Collectors", p.warn.Render("none enabled"))
	}
	for _, name := range names {
		p.field(&b, "Collector", fmt.Sprintf("%s (max age %d days)", name, f.EffectiveMaxAge(name, runOverride)))
	}
	p.field(&b, "LLM Model", f.LLM.Model)
	p.field(&b, "Relevance threshold", fmt.Sprintf("%.2f", f.LLM.Threshold()))
	_, err := io.WriteString(p.w, b.String())
	return err
}

// Send implements pipeline.Notifier.
func (p *Printer) Send(_ context.Context, r *pipeline.Report) error {
	var b strings.Builder
	if r.DryRun {
		p.dryRun(&b, r)
	} else {
		p.report(&b, r)
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

func (p *Printer) report(b *strings.Builder, r *pipeline.Report) {
	for _, a := range r.Included {
		b.WriteString(p.panel.Render(p.alert(a)))
		b.WriteString("\n")
	}

	if len(r.AnalysisFailed) > 0 {
		b.WriteString("\n")
		b.WriteString(p.warn.Render(fmt.Sprintf("Analysis failed for %d item(s), review manually:", len(r.AnalysisFailed))))
		b.WriteString("\n")
		for _, a := range r.AnalysisFailed {
			b.WriteString(p.failed.Render(p.failure(a)))
			b.WriteString("\n")
		}
	}

	p.summary(b, r)
}

func (p *Printer) alert(a pipeline.Annotated) string {
	var b strings.Builder
	b.WriteString(p.title.Render(a.Item.Title))
	b.WriteString("\n\n")
	p.field(&b, "Source", a.Item.Source)
	p.field(&b, "Published", a.Item.PublishedAt.Format(dateLayout))
	if a.Item.URL != "" {
		p.field(&b, "URL", a.Item.URL)
	}
	if a.Group != nil && len(a.Group.MemberIDs) > 1 {
		p.field(&b, "Also reported", fmt.Sprintf("%d other item(s)", len(a.Group.MemberIDs)-1))
	}
	if v := a.Verdict; v != nil {
		if len(v.MatchedTerms) > 0 {
			p.field(&b, "Matched", strings.Join(v.MatchedTerms, ", "))
		}
		p.field(&b, "Relevance score", fmt.Sprintf("%.2f", v.Score()))
		if v.Rationale != "" {
			b.WriteString("\n")
			b.WriteString(p.label.Render("Analysis:"))
			b.WriteString("\n")
			b.WriteString(v.Rationale)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Printer) failure(a pipeline.Annotated) string {
	var b strings.Builder
	b.WriteString(p.title.Render(a.Item.Title))
	b.WriteString("\n")
	p.field(&b, "Source", a.Item.Source)
	if a.Item.URL != "" {
		p.field(&b, "URL", a.Item.URL)
	}
	if a.Verdict != nil && a.Verdict.Err != "" {
		p.field(&b, "Error", a.Verdict.Err)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Printer) summary(b *strings.Builder, r *pipeline.Report) {
	s := r.Summary
	b.WriteString("\n")
	b.WriteString(p.heading.Render("Processing Summary:"))
	b.WriteString("\n")
	fmt.Fprintf(b, "- Items collected: %d\n", s.Collected)
	if s.RepeatedIDs > 0 {
		fmt.Fprintf(b, "- Repeated items: %d\n", s.RepeatedIDs)
	}
	fmt.Fprintf(b, "- Too old: %d\n", s.AgeFilteredOut)
	fmt.Fprintf(b, "- Duplicates suppressed: %d\n", s.DeduplicatedAway)
	fmt.Fprintf(b, "- Relevant items: %d\n", s.Included)
	fmt.Fprintf(b, "- Items filtered out: %d\n", s.ExcludedByRelevance)
	fmt.Fprintf(b, "- Analysis failed: %d\n", s.AnalysisFailed)
	if s.CollectorErrors > 0 {
		b.WriteString(p.warn.Render(fmt.Sprintf("- Collector errors: %d", s.CollectorErrors)))
		b.WriteString("\n")
		for _, ce := range r.CollectorErrors {
			fmt.Fprintf(b, "  %s: %s\n", ce.Collector, ce.Error)
		}
	}
	fmt.Fprintf(b, "- Threshold: %.2f, took %s\n", r.Threshold, r.Duration().Round(time.Millisecond))
}

func (p *Printer) dryRun(b *strings.Builder, r *pipeline.Report) {
	b.WriteString(p.warn.Render("=== DRY RUN MODE ==="))
	b.WriteString("\n\n")
	b.WriteString(p.title.Render("Would process these items:"))
	b.WriteString("\n")
	for _, it := range r.Candidates {
		p.candidate(b, it)
	}
	fmt.Fprintf(b, "\nTotal items: %d\n", len(r.Candidates))
	if r.Summary.AgeFilteredOut > 0 {
		fmt.Fprintf(b, "Skipped as too old: %d\n", r.Summary.AgeFilteredOut)
	}
	for _, ce := range r.CollectorErrors {
		b.WriteString(p.warn.Render(fmt.Sprintf("Collector %s failed: %s", ce.Collector, ce.Error)))
		b.WriteString("\n")
	}
	b.WriteString("=== DRY RUN COMPLETE ===\n")
}

func (p *Printer) candidate(b *strings.Builder, it news.Item) {
	b.WriteString("\n")
	p.field(b, "Source", it.Source)
	p.field(b, "Title", it.Title)
	p.field(b, "Date", it.PublishedAt.Format(dateLayout))
	p.field(b, "URL", it.URL)
	p.field(b, "Categories", strings.Join(it.Categories, ", "))
	b.WriteString(p.label.Render("Content Preview:"))
	b.WriteString("\n")
	b.WriteString(Preview(it.Content, PreviewRunes))
	b.WriteString("\n")
	b.WriteString(p.muted.Render(fmt.Sprintf("Content length: %d characters", utf8.RuneCountInString(it.Content))))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 80))
	b.WriteString("\n")
}

func (p *Printer) field(b *strings.Builder, name, value string) {
	b.WriteString(p.label.Render(name + ":"))
	b.WriteString(" ")
	b.WriteString(value)
	b.WriteString("\n")
}

// Preview returns the first n runes of s, with "..." appended when s was cut.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
