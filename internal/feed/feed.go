package feed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/marketbrief/internal/logger"
	"github.com/deusflow/marketbrief/internal/metrics"
	"github.com/deusflow/marketbrief/internal/store"
)

// MaxEntriesPerFeed caps how many entries of a single feed are considered per
// run, to bound article-fetch and clustering cost.
const MaxEntriesPerFeed = 60

// FeedConfig describes one configured feed.
type FeedConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

// feedsFile is the YAML config structure:
//
// feeds:
//   - name: Reuters Markets
//     url: https://...
//     category: markets
type feedsFile struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feed: read feeds config: %w", err)
	}
	var cfg feedsFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("feed: parse feeds config %s: %w", path, err)
	}
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("feed: no feeds configured in %s", path)
	}
	for i, f := range cfg.Feeds {
		if f.Name == "" || f.URL == "" {
			return nil, fmt.Errorf("feed: feeds[%d] needs both name and url", i)
		}
	}
	return cfg.Feeds, nil
}

// ArticleFetcher retrieves best-effort full article text for a URL. An error
// means "unavailable" and the caller falls back to the feed summary.
type ArticleFetcher interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Stats counts what happened to one feed's entries during normalization.
type Stats struct {
	Seen    int // entries considered, after the per-feed cap
	Skipped int // malformed entries dropped (missing title or link)
}

// Normalizer converts raw feed entries into canonical store records.
type Normalizer struct {
	parser   *gofeed.Parser
	articles ArticleFetcher
	timeout  time.Duration
	now      func() time.Time
}

// NewNormalizer builds a Normalizer. articles may be nil, in which case records
// carry only the feed-provided summary text.
func NewNormalizer(feedTimeout time.Duration, articles ArticleFetcher) *Normalizer {
	return &Normalizer{
		parser:   gofeed.NewParser(),
		articles: articles,
		timeout:  feedTimeout,
		now:      time.Now,
	}
}

// Fetch downloads and parses one feed, then normalizes its entries.
func (n *Normalizer) Fetch(ctx context.Context, cfg FeedConfig) ([]store.Record, Stats, error) {
	fctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	parsed, err := n.parser.ParseURLWithContext(cfg.URL, fctx)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("feed: fetch %s: %w", cfg.URL, err)
	}
	recs, stats := n.Normalize(ctx, cfg, parsed.Items)
	logger.Info("feed fetched", "feed", cfg.Name, "seen", stats.Seen, "skipped", stats.Skipped)
	return recs, stats, nil
}

// Normalize converts raw entries into records, applying the per-feed cap,
// dropping entries with an empty title or link and stamping inserted_at.
func (n *Normalizer) Normalize(ctx context.Context, cfg FeedConfig, entries []*gofeed.Item) ([]store.Record, Stats) {
	if len(entries) > MaxEntriesPerFeed {
		entries = entries[:MaxEntriesPerFeed]
	}

	category := cfg.Category
	if category == "" {
		category = "unknown"
	}

	var (
		out   []store.Record
		stats Stats
	)
	for _, e := range entries {
		stats.Seen++
		metrics.Global.IncrementEntriesSeen()

		title := CollapseWhitespace(e.Title)
		link := strings.TrimSpace(e.Link)
		if title == "" || link == "" {
			// Feeds routinely carry malformed entries; not an error.
			stats.Skipped++
			metrics.Global.IncrementMalformedSkipped()
			continue
		}

		summary := CollapseWhitespace(e.Description)
		if summary == "" {
			summary = CollapseWhitespace(e.Content)
		}

		content := summary
		if n.articles != nil {
			if text, err := n.articles.Extract(ctx, link); err == nil && text != "" {
				content = text
			} else if err != nil {
				logger.Debug("article fetch failed, keeping summary", "url", link, "err", err)
				metrics.Global.IncrementArticleFetchFailures()
			}
		}

		out = append(out, store.Record{
			Source:      cfg.Name,
			Category:    category,
			Title:       title,
			URL:         link,
			PublishedAt: publishedTime(e),
			Content:     content,
			InsertedAt:  n.now().UTC(),
		})
	}
	return out, stats
}

// fallbackLayouts covers raw date strings gofeed left unparsed.
var fallbackLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// publishedTime extracts the source-reported timestamp leniently. Any parse
// failure yields nil rather than dropping the record.
func publishedTime(e *gofeed.Item) *time.Time {
	if e.PublishedParsed != nil {
		t := e.PublishedParsed.UTC()
		return &t
	}
	if e.UpdatedParsed != nil {
		t := e.UpdatedParsed.UTC()
		return &t
	}
	for _, raw := range []string{e.Published, e.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range fallbackLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				u := t.UTC()
				return &u
			}
		}
	}
	return nil
}

// CollapseWhitespace trims s and folds runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
