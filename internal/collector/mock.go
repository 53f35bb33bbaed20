package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/news"
)

const (
	MockSource         = "Mock News"
	DefaultMockDataDir = "data/mock_news"
)

// Mock reads items from YAML files. Each file holds a list of entries.
type Mock struct {
	name   string
	dir    string
	logger log.Logger
	now    func() time.Time
}

type mockEntry struct {
	Title         string   `yaml:"title"`
	Content       string   `yaml:"content"`
	URL           string   `yaml:"url"`
	PublishedDate string   `yaml:"published_date"`
	Categories    []string `yaml:"categories"`
}

// NewMock is a Factory. data_dir defaults to data/mock_news.
func NewMock(name string, c cfg.CollectorConfig, deps Deps) (Collector, error) {
	dir := c.DataDir
	if dir == "" {
		dir = DefaultMockDataDir
	}
	return &Mock{name: name, dir: dir, logger: deps.Logger, now: deps.Now}, nil
}

// Name implements Collector.
func (m *Mock) Name() string { return m.name }

// Collect implements Collector. A missing directory yields no items; a bad
// file is logged and skipped.
func (m *Mock) Collect(ctx context.Context) ([]news.Item, error) {
	L := m.logger.With("collector", m.name, "dir", m.dir)

	files, err := filepath.Glob(filepath.Join(m.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list mock files: %w", err)
	}
	sort.Strings(files)

	collected := m.now()
	var items []news.Item
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := m.readFile(path, collected)
		if err != nil {
			L.Warn(ctx, "skipping mock file", "file", path, "err", err)
			continue
		}
		items = append(items, got...)
	}

	L.Info(ctx, "mock items collected", "files", len(files), "items", len(items))
	return items, nil
}

func (m *Mock) readFile(path string, collected time.Time) ([]news.Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []mockEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	items := make([]news.Item, 0, len(entries))
	for i, e := range entries {
		if e.Title == "" {
			return nil, fmt.Errorf("entry %d: missing title", i)
		}
		published, err := parseISOTime(e.PublishedDate)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		items = append(items, news.NewItem(MockSource, e.Title, e.Content, e.URL, published, collected, e.Categories))
	}
	return items, nil
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseISOTime accepts RFC 3339 and the zone-less ISO forms; zone-less
// values are taken as UTC.
func parseISOTime(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid published_date %q", s)
}
