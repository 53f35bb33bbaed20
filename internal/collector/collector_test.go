package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/news"
)

var fixedNow = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

func testDeps(client *http.Client) Deps {
	return Deps{HTTPClient: client, Logger: log.Nop(), Now: func() time.Time { return fixedNow }}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	items := []news.Item{{ID: "a"}, {ID: "b"}}
	s := &Static{SourceName: "static", Items: items}

	got, err := s.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !reflect.DeepEqual(got, items) {
		t.Errorf("got %v, want %v", got, items)
	}
	got[0].ID = "mutated"
	if s.Items[0].ID != "a" {
		t.Error("Collect returned the backing slice")
	}

	boom := errors.New("boom")
	if _, err := (&Static{Err: boom}).Collect(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("timeout")
	var err error = &Error{Collector: "riskybiz", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
	if !strings.Contains(err.Error(), "riskybiz") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRegistry_Build(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"b", "a", "c"} {
		r.Register(name, func(name string, _ cfg.CollectorConfig, _ Deps) (Collector, error) {
			return &Static{SourceName: name}, nil
		})
	}

	sources, err := r.Build(map[string]cfg.CollectorConfig{
		"a": {Enabled: true, MaxAgeDays: 3},
		"b": {Enabled: true},
		"c": {Enabled: false},
	}, Deps{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var names []string
	for _, s := range sources {
		names = append(names, s.Collector.Name())
	}
	if !reflect.DeepEqual(names, []string{"b", "a"}) {
		t.Errorf("names = %v, want registration order [b a]", names)
	}
	if sources[1].MaxAgeDays != 3 {
		t.Errorf("MaxAgeDays = %d, want 3", sources[1].MaxAgeDays)
	}

	if _, err := r.Build(map[string]cfg.CollectorConfig{"nope": {Enabled: true}}, Deps{}); err == nil {
		t.Error("expected error for unknown collector")
	}
}

func TestDefaultRegistry_Names(t *testing.T) {
	t.Parallel()

	want := []string{"riskybiz", "therecord", "mock"}
	if got := DefaultRegistry().Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Risky Business</title>
  <item>
    <title>Okta support breach</title>
    <link>https://risky.biz/okta</link>
    <description>&lt;p&gt;Attackers reached &lt;b&gt;Okta&lt;/b&gt; support files.&lt;/p&gt;</description>
    <category>news</category>
    <pubDate>Mon, 10 Mar 2025 12:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Undated entry</title>
    <link>https://risky.biz/undated</link>
    <description>no date</description>
  </item>
</channel>
</rss>`

func TestRSS_Collect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	c, err := NewRSSFactory(RiskyBizSource, RiskyBizFeedURL)("riskybiz", cfg.CollectorConfig{FeedURL: srv.URL}, testDeps(srv.Client()))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	items, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (undated skipped)", len(items))
	}

	it := items[0]
	if it.Source != RiskyBizSource || it.Title != "Okta support breach" {
		t.Errorf("item = %+v", it)
	}
	if it.Content != "Attackers reached Okta support files." {
		t.Errorf("Content = %q", it.Content)
	}
	if !it.PublishedAt.Equal(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", it.PublishedAt)
	}
	if !it.CollectedAt.Equal(fixedNow) {
		t.Errorf("CollectedAt = %v", it.CollectedAt)
	}
	if it.ID != news.ItemID(RiskyBizSource, "https://risky.biz/okta", "") {
		t.Errorf("ID = %q", it.ID)
	}
}

func TestRSS_FetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRSS("riskybiz", RiskyBizSource, srv.URL, srv.Client(), log.Nop(), time.Now)
	if _, err := c.Collect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func theRecordServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"latestNewsItems":[
 {"attributes":{"title":"Ransomware hits hospital","date":"2025-03-11T08:30:00.000Z","page":{"data":{"attributes":{"slug":"/cybercrime/ransomware-hospital"}}}}},
 {"attributes":{"title":"Legacy article","date":"2025-03-10T08:30:00Z","page":{"data":{"attributes":{"slug":"/news/legacy"}}}}},
 {"attributes":{"title":"No slug","date":"2025-03-10T08:30:00Z","page":{"data":{"attributes":{}}}}},
 {"attributes":{"title":"Gone","date":"2025-03-10T08:30:00Z","page":{"data":{"attributes":{"slug":"/gone"}}}}}
]}}}
</script></body></html>`)
	})
	mux.HandleFunc("/cybercrime/ransomware-hospital", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div class="article__content"><p>Emergency rooms</p><p>diverted ambulances.</p></div></body></html>`)
	})
	mux.HandleFunc("/news/legacy", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div class="wysiwyg">Older layout body.</div></body></html>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	return httptest.NewServer(mux)
}

func TestTheRecord_Collect(t *testing.T) {
	t.Parallel()

	srv := theRecordServer(t)
	defer srv.Close()

	c, err := NewTheRecord("therecord", cfg.CollectorConfig{FeedURL: srv.URL}, testDeps(srv.Client()))
	if err != nil {
		t.Fatalf("NewTheRecord: %v", err)
	}
	items, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	first := items[0]
	if first.Title != "Ransomware hits hospital" || first.Source != TheRecordSource {
		t.Errorf("first = %+v", first)
	}
	if first.Content != "Emergency rooms diverted ambulances." {
		t.Errorf("Content = %q", first.Content)
	}
	if first.URL != srv.URL+"/cybercrime/ransomware-hospital" {
		t.Errorf("URL = %q", first.URL)
	}
	if !reflect.DeepEqual(first.Categories, []string{"cybercrime", "ransomware-hospital"}) {
		t.Errorf("Categories = %v", first.Categories)
	}

	if items[1].Content != "Older layout body." {
		t.Errorf("fallback Content = %q", items[1].Content)
	}
	if !reflect.DeepEqual(items[1].Categories, []string{"legacy"}) {
		t.Errorf("fallback Categories = %v", items[1].Categories)
	}
}

func TestTheRecord_MissingNextData(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>maintenance</body></html>`)
	}))
	defer srv.Close()

	c, _ := NewTheRecord("therecord", cfg.CollectorConfig{FeedURL: srv.URL}, testDeps(srv.Client()))
	if _, err := c.Collect(context.Background()); err == nil {
		t.Fatal("expected error without __NEXT_DATA__")
	}
}

func TestMock_Collect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := `- title: Okta breach
  content: Support files accessed.
  url: https://example.com/okta
  published_date: "2025-03-10T12:00:00"
  categories: [identity]
- title: No url item
  content: body
  published_date: "2025-03-11T00:00:00Z"
`
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(good), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("- title: bad\n  published_date: yesterday\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, _ := NewMock("mock", cfg.CollectorConfig{DataDir: dir}, testDeps(nil))
	items, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Source != MockSource || items[0].Title != "Okta breach" {
		t.Errorf("first = %+v", items[0])
	}
	if !items[0].PublishedAt.Equal(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", items[0].PublishedAt)
	}
	if items[0].ID == items[1].ID {
		t.Error("items without url must still get distinct IDs")
	}
}

func TestMock_MissingDir(t *testing.T) {
	t.Parallel()

	c, _ := NewMock("mock", cfg.CollectorConfig{DataDir: filepath.Join(t.TempDir(), "absent")}, testDeps(nil))
	items, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
}

func TestHTMLText(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"plain   text\n here", "plain text here"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"Fish &amp; chips", "Fish & chips"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := htmlText(tt.in); got != tt.want {
			t.Errorf("htmlText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
