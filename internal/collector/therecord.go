package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/news"
)

const (
	TheRecordSource  = "The Record Media"
	TheRecordBaseURL = "https://therecord.media"

	userAgent     = "Mozilla/5.0 (compatible; raven/1.0; +https://github.com/linnemanlabs/raven)"
	articleFetchN = 4
)

// TheRecord scrapes the therecord.media news listing. The listing is a
// Next.js page; article metadata comes from its __NEXT_DATA__ payload and
// bodies from each article page.
type TheRecord struct {
	name    string
	baseURL string
	client  *http.Client
	logger  log.Logger
	now     func() time.Time
}

// NewTheRecord is a Factory. feed_url overrides the site base URL.
func NewTheRecord(name string, c cfg.CollectorConfig, deps Deps) (Collector, error) {
	base := strings.TrimRight(c.FeedURL, "/")
	if base == "" {
		base = TheRecordBaseURL
	}
	return &TheRecord{
		name:    name,
		baseURL: base,
		client:  deps.HTTPClient,
		logger:  deps.Logger,
		now:     deps.Now,
	}, nil
}

// Name implements Collector.
func (r *TheRecord) Name() string { return r.name }

type nextData struct {
	Props struct {
		PageProps struct {
			LatestNewsItems []listing `json:"latestNewsItems"`
		} `json:"pageProps"`
	} `json:"props"`
}

type listing struct {
	Attributes struct {
		Title string `json:"title"`
		Date  string `json:"date"`
		Page  struct {
			Data struct {
				Attributes struct {
					Slug string `json:"slug"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"page"`
	} `json:"attributes"`
}

// Collect implements Collector. A broken listing page fails the collector;
// a broken article is logged and skipped.
func (r *TheRecord) Collect(ctx context.Context) ([]news.Item, error) {
	L := r.logger.With("collector", r.name)

	doc, err := r.fetch(ctx, r.baseURL+"/news")
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return nil, fmt.Errorf("listing page has no __NEXT_DATA__")
	}
	var nd nextData
	if err := json.Unmarshal([]byte(script.Text()), &nd); err != nil {
		return nil, fmt.Errorf("decode __NEXT_DATA__: %w", err)
	}

	entries := nd.Props.PageProps.LatestNewsItems
	collected := r.now()
	slots := make([]*news.Item, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(articleFetchN)
	for i, e := range entries {
		g.Go(func() error {
			it, err := r.article(gctx, e, collected)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				L.Warn(ctx, "skipping article", "title", e.Attributes.Title, "err", err)
				return nil
			}
			slots[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]news.Item, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}
	L.Info(ctx, "listing collected", "entries", len(entries), "items", len(items))
	return items, nil
}

func (r *TheRecord) article(ctx context.Context, e listing, collected time.Time) (*news.Item, error) {
	published, err := time.Parse(time.RFC3339, e.Attributes.Date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", e.Attributes.Date, err)
	}
	slug := e.Attributes.Page.Data.Attributes.Slug
	if slug == "" {
		return nil, fmt.Errorf("missing slug")
	}
	if !strings.HasPrefix(slug, "/") {
		slug = "/" + slug
	}
	url := r.baseURL + slug

	doc, err := r.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	body := doc.Find("div.article__content").First()
	if body.Length() == 0 {
		body = doc.Find("div.wysiwyg").First()
	}

	it := news.NewItem(TheRecordSource, e.Attributes.Title, selectionText(body), url, published.UTC(), collected, slugCategories(slug))
	return &it, nil
}

func (r *TheRecord) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// slugCategories turns "/cybercrime/ransomware-gang" into
// ["cybercrime", "ransomware-gang"], dropping a leading "news".
func slugCategories(slug string) []string {
	var out []string
	for _, part := range strings.Split(slug, "/") {
		if part == "" || part == "news" {
			continue
		}
		out = append(out, part)
	}
	return out
}
