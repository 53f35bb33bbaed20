// Package news defines the items Raven collects and the organization profile
// they are scored against. Both are plain values; nothing in this package
// mutates them after construction.
package news

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Item is a single collected news story. Items are immutable once a collector
// returns them; derived results (verdicts, duplicate groups) live elsewhere.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	CollectedAt time.Time `json:"collected_at"`
	Categories  []string  `json:"categories,omitempty"`
}

// NewItem builds an Item and derives its ID from source and url (or title
// when the url is empty).
func NewItem(source, title, content, url string, published, collected time.Time, categories []string) Item {
	return Item{
		ID:          ItemID(source, url, title),
		Title:       title,
		Content:     content,
		Source:      source,
		URL:         url,
		PublishedAt: published,
		CollectedAt: collected,
		Categories:  categories,
	}
}

// ItemID returns a stable identifier for an item: a truncated sha256 over
// source+url, falling back to source+title.
func ItemID(source, url, title string) string {
	key := url
	if key == "" {
		key = title
	}
	sum := sha256.Sum256([]byte(source + "|" + key))
	return hex.EncodeToString(sum[:12])
}

// Age reports how old the item was when it was collected.
func (it Item) Age() time.Duration {
	return it.CollectedAt.Sub(it.PublishedAt)
}
