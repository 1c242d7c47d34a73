package brief

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/marketbrief/internal/config"
	"github.com/deusflow/marketbrief/internal/feed"
	"github.com/deusflow/marketbrief/internal/gemini"
	"github.com/deusflow/marketbrief/internal/logger"
	"github.com/deusflow/marketbrief/internal/metrics"
	"github.com/deusflow/marketbrief/internal/ranker"
	"github.com/deusflow/marketbrief/internal/render"
	"github.com/deusflow/marketbrief/internal/store"
)

// Clusterer is the clustering collaborator capability. Any compatible backend
// can stand behind it, including a deterministic stub in tests.
type Clusterer interface {
	Cluster(ctx context.Context, items []gemini.ClusterItem) (*gemini.ClusterResult, error)
}

// Drafter is the drafting collaborator capability.
type Drafter interface {
	Draft(ctx context.Context, req gemini.DraftRequest) (*gemini.Draft, error)
}

// Notifier posts run summaries somewhere visible. Optional.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// FeedStats is the per-feed slice of an ingest run.
type FeedStats struct {
	Feed     string `json:"feed"`
	Seen     int    `json:"seen"`
	Skipped  int    `json:"skipped"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

// IngestStats summarizes one ingest pass across all configured feeds.
type IngestStats struct {
	TotalFetched int         `json:"total_fetched"` // entries seen, pre-dedupe
	Inserted     int         `json:"inserted"`      // genuinely new records
	Duplicates   int         `json:"duplicates"`    // rejected by URL dedupe
	Skipped      int         `json:"skipped"`       // malformed entries dropped
	Feeds        []FeedStats `json:"feeds"`
}

// RunResult reports what a full pipeline run produced.
type RunResult struct {
	Date              string
	RunID             string
	Ingest            IngestStats
	StubWritten       bool
	BriefPath         string
	CandidatesPath    string
	PicksFromOverride bool
}

// Pipeline sequences ingest, selection, clustering, ranking and rendering.
type Pipeline struct {
	cfg        *config.Config
	store      *store.Store
	normalizer *feed.Normalizer
	clusterer  Clusterer
	drafter    Drafter
	notifier   Notifier
	now        func() time.Time
}

// New wires a Pipeline. clusterer, drafter and notifier may be nil for
// ingest-only use; Run refuses to start without the collaborators.
func New(cfg *config.Config, st *store.Store, normalizer *feed.Normalizer, clusterer Clusterer, drafter Drafter, notifier Notifier) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("brief: config is required")
	}
	if st == nil {
		return nil, fmt.Errorf("brief: store is required")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("brief: normalizer is required")
	}
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		normalizer: normalizer,
		clusterer:  clusterer,
		drafter:    drafter,
		notifier:   notifier,
		now:        time.Now,
	}, nil
}

// Ingest fetches and normalizes all configured feeds and persists the result.
// A feed that fails to fetch is logged and skipped; rerunning over the same
// feed content is safe, the store rejects duplicate URLs.
func (p *Pipeline) Ingest(ctx context.Context) (IngestStats, error) {
	feeds, err := feed.LoadFeeds(p.cfg.FeedsPath)
	if err != nil {
		return IngestStats{}, err
	}

	var stats IngestStats
	for _, fc := range feeds {
		fs := FeedStats{Feed: fc.Name}

		recs, fstats, err := p.normalizer.Fetch(ctx, fc)
		if err != nil {
			// One broken feed must not kill the run.
			logger.Error("feed fetch failed", "feed", fc.Name, "err", err)
			fs.Error = err.Error()
			stats.Feeds = append(stats.Feeds, fs)
			continue
		}

		fs.Seen = fstats.Seen
		fs.Skipped = fstats.Skipped
		stats.TotalFetched += fstats.Seen
		stats.Skipped += fstats.Skipped

		for i := range recs {
			inserted, err := p.store.Upsert(&recs[i])
			if err != nil {
				return stats, err
			}
			if inserted {
				fs.Inserted++
				stats.Inserted++
				metrics.Global.IncrementRecordsInserted()
			} else {
				stats.Duplicates++
				metrics.Global.IncrementDuplicatesSkipped()
			}
		}
		stats.Feeds = append(stats.Feeds, fs)
	}

	logger.Info("ingest complete",
		"feeds", len(feeds),
		"entries_seen", stats.TotalFetched,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"malformed", stats.Skipped)
	return stats, nil
}

// Run executes the full pipeline for the current UTC date.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	if p.clusterer == nil || p.drafter == nil {
		return nil, fmt.Errorf("brief: clustering and drafting collaborators are required")
	}
	if err := os.MkdirAll(p.cfg.DraftsDir, 0o755); err != nil {
		return nil, fmt.Errorf("brief: create drafts dir: %w", err)
	}

	stats, err := p.Ingest(ctx)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}

	now := p.now().UTC()
	date := now.Format("2006-01-02")
	result := &RunResult{
		Date:   date,
		RunID:  uuid.NewString(),
		Ingest: stats,
	}

	// Minimum-volume gate: a brief built from a trickle of entries is worse
	// than no brief.
	if stats.TotalFetched < p.cfg.MinEntries {
		stub := render.Stub(date, stats.TotalFetched, p.cfg.FeedsPath)
		path := p.draftPath(date)
		if err := os.WriteFile(path, []byte(stub), 0o644); err != nil {
			metrics.Global.SetError(err.Error())
			return nil, fmt.Errorf("brief: write stub: %w", err)
		}
		result.StubWritten = true
		result.BriefPath = path
		metrics.Global.IncrementStubBriefs()
		metrics.Global.SetLastRun()
		logger.Warn("not enough items, wrote stub brief", "date", date, "entries_seen", stats.TotalFetched)
		p.notify(ctx, fmt.Sprintf("⚠️ %s: only %d entries across feeds, wrote stub brief", date, stats.TotalFetched))
		return result, nil
	}

	since := now.Add(-time.Duration(p.cfg.WindowHours) * time.Hour)
	records, err := p.store.FetchRecent(since)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}
	// Pipeline policy, not a store invariant: bound the clustering payload.
	if len(records) > p.cfg.ClusterInputLimit {
		records = records[:p.cfg.ClusterInputLimit]
	}

	metrics.Global.IncrementClusterCalls()
	clusters, err := p.clusterer.Cluster(ctx, clusterItems(records))
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, fmt.Errorf("brief: clustering failed: %w", err)
	}

	// Clustering output is untrusted; reject it before any artifact exists.
	if err := ranker.Validate(clusters.Clusters, records); err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}

	candidatesPath, err := p.writeCandidates(date, result.RunID, stats, clusters)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}
	result.CandidatesPath = candidatesPath

	picks, fromOverride, err := p.resolvePicks(date, clusters, records)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}
	result.PicksFromOverride = fromOverride

	metrics.Global.IncrementDraftCalls()
	draft, err := p.drafter.Draft(ctx, buildDraftRequest(date, picks, clusters, records))
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, fmt.Errorf("brief: drafting failed: %w", err)
	}

	md, err := render.Daily(date, draft)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}
	path := p.draftPath(date)
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		metrics.Global.SetError(err.Error())
		return nil, fmt.Errorf("brief: write brief: %w", err)
	}
	result.BriefPath = path

	metrics.Global.IncrementBriefsWritten()
	metrics.Global.SetLastRun()
	logger.Info("brief written", "date", date, "path", path, "override", fromOverride)
	p.notify(ctx, fmt.Sprintf("📰 Daily brief for %s written (%d new records, %d entries seen)", date, stats.Inserted, stats.TotalFetched))
	return result, nil
}

// resolvePicks loads the per-date override verbatim when present, otherwise
// ranks fresh picks and persists them for reuse and audit. A present but
// unparseable override aborts the run; operator intent is never guessed.
func (p *Pipeline) resolvePicks(date string, clusters *gemini.ClusterResult, records []store.Record) (ranker.Picks, bool, error) {
	picks, found, err := p.loadPicks(date)
	if err != nil {
		return ranker.Picks{}, false, err
	}
	if found {
		logger.Info("using picks override", "date", date)
		return picks, true, nil
	}

	picks, err = ranker.SelectDefaults(clusters.Clusters, records)
	if err != nil {
		return ranker.Picks{}, false, err
	}
	if err := p.savePicks(date, picks); err != nil {
		return ranker.Picks{}, false, err
	}
	return picks, false, nil
}

func (p *Pipeline) notify(ctx context.Context, text string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, text); err != nil {
		logger.Warn("notification failed", "err", err)
	}
}

func clusterItems(records []store.Record) []gemini.ClusterItem {
	items := make([]gemini.ClusterItem, len(records))
	for i, r := range records {
		items[i] = gemini.ClusterItem{
			ID:          r.ID,
			Category:    r.Category,
			Source:      r.Source,
			Title:       r.Title,
			URL:         r.URL,
			PublishedAt: timeString(r.PublishedAt),
		}
	}
	return items
}

// draftContentCap bounds per-item content in the drafting payload.
const draftContentCap = 3500

// buildDraftRequest expands the picks into full source items: everything in
// the selected clusters plus the quick-hit and crypto selections, in received
// order, content capped.
func buildDraftRequest(date string, picks ranker.Picks, clusters *gemini.ClusterResult, records []store.Record) gemini.DraftRequest {
	selected := make(map[string]bool, len(picks.TopStoryClusterIDs))
	for _, id := range picks.TopStoryClusterIDs {
		selected[id] = true
	}

	var selectedClusters []gemini.Cluster
	wantedIDs := make(map[int64]bool)
	for _, c := range clusters.Clusters {
		if !selected[c.ClusterID] {
			continue
		}
		selectedClusters = append(selectedClusters, c)
		for _, id := range c.ItemIDs {
			wantedIDs[id] = true
		}
	}
	for _, id := range picks.QuickHitItemIDs {
		wantedIDs[id] = true
	}
	for _, id := range picks.CryptoItemIDs {
		wantedIDs[id] = true
	}

	var items []gemini.DraftItem
	for _, r := range records {
		if !wantedIDs[r.ID] {
			continue
		}
		content := r.Content
		if len([]rune(content)) > draftContentCap {
			content = string([]rune(content)[:draftContentCap])
		}
		items = append(items, gemini.DraftItem{
			ID:          r.ID,
			Category:    r.Category,
			Source:      r.Source,
			Title:       r.Title,
			URL:         r.URL,
			PublishedAt: timeString(r.PublishedAt),
			Content:     content,
		})
	}

	return gemini.DraftRequest{
		Date:             date,
		SelectedClusters: selectedClusters,
		SelectedItems:    items,
	}
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
