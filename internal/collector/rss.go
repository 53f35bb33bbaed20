package collector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/news"
)

const (
	RiskyBizSource  = "risky.biz"
	RiskyBizFeedURL = "https://risky.biz/feeds/risky-business/"
)

// RSS collects items from an RSS or Atom feed.
type RSS struct {
	name    string
	source  string
	feedURL string
	parser  *gofeed.Parser
	logger  log.Logger
	now     func() time.Time
}

// NewRSS creates a feed collector. source is the name stamped on items.
func NewRSS(name, source, feedURL string, client *http.Client, logger log.Logger, now func() time.Time) *RSS {
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = userAgent
	return &RSS{
		name:    name,
		source:  source,
		feedURL: feedURL,
		parser:  p,
		logger:  logger,
		now:     now,
	}
}

// NewRSSFactory returns a Factory for a feed with a default URL.
func NewRSSFactory(source, defaultURL string) Factory {
	return func(name string, c cfg.CollectorConfig, deps Deps) (Collector, error) {
		u := c.FeedURL
		if u == "" {
			u = defaultURL
		}
		if u == "" {
			return nil, fmt.Errorf("feed_url is required")
		}
		return NewRSS(name, source, u, deps.HTTPClient, deps.Logger, deps.Now), nil
	}
}

// Name implements Collector.
func (r *RSS) Name() string { return r.name }

// Collect implements Collector. Entries without a parseable date are skipped.
func (r *RSS) Collect(ctx context.Context) ([]news.Item, error) {
	L := r.logger.With("collector", r.name, "feed_url", r.feedURL)

	feed, err := r.parser.ParseURLWithContext(r.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	collected := r.now()
	items := make([]news.Item, 0, len(feed.Items))
	skipped := 0
	for _, e := range feed.Items {
		published := e.PublishedParsed
		if published == nil {
			published = e.UpdatedParsed
		}
		if published == nil || e.Title == "" {
			skipped++
			continue
		}

		content := htmlText(e.Description)
		if body := htmlText(e.Content); len(body) > len(content) {
			content = body
		}

		items = append(items, news.NewItem(r.source, e.Title, content, e.Link, published.UTC(), collected, e.Categories))
	}

	L.Info(ctx, "feed collected", "items", len(items), "skipped", skipped)
	return items, nil
}
