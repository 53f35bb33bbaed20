// Package collector fetches news items from upstream sources. Collectors do
// not filter by age; the pipeline does that uniformly.
package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/linnemanlabs/raven/internal/news"
)

// Collector produces the current items of one source.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]news.Item, error)
}

// Source is an enabled collector with its optional max-age override in
// days (0 means use the global setting).
type Source struct {
	Collector  Collector
	MaxAgeDays int
}

// Error is a per-source failure. It never aborts a run.
type Error struct {
	Collector string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("collector %s: %v", e.Collector, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Static returns a fixed set of items, or Err. Used in tests and dry runs.
type Static struct {
	SourceName string
	Items      []news.Item
	Err        error
}

// Name implements Collector.
func (s *Static) Name() string { return s.SourceName }

// Collect implements Collector. The returned slice is a copy.
func (s *Static) Collect(ctx context.Context) ([]news.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]news.Item, len(s.Items))
	copy(out, s.Items)
	return out, nil
}

// htmlText flattens an HTML fragment to whitespace-normalized text.
func htmlText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return selectionText(doc.Selection)
}

// selectionText joins the text of every node with single spaces.
func selectionText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
