package ranker

import (
	"errors"
	"fmt"
	"sort"

	"github.com/deusflow/marketbrief/internal/gemini"
	"github.com/deusflow/marketbrief/internal/store"
)

const (
	topStoryCount = 3
	quickHitCap   = 10
	cryptoCap     = 3
)

// ErrTooFewClusters is returned when the clustering collaborator produced
// fewer clusters than the brief has top-story slots. The draft renders exactly
// three stories, so there is no sensible default here.
var ErrTooFewClusters = errors.New("ranker: fewer than 3 clusters")

// cryptoCategories are record categories selected into the crypto block.
var cryptoCategories = map[string]bool{
	"crypto":        true,
	"crypto_policy": true,
}

// Picks is the per-date selection of clusters and items to feature. The JSON
// shape is the persisted picks artifact, edited by hand for manual overrides.
type Picks struct {
	TopStoryClusterIDs []string `json:"top_story_cluster_ids"`
	QuickHitItemIDs    []int64  `json:"quick_hit_item_ids"`
	CryptoItemIDs      []int64  `json:"crypto_item_ids"`
}

// Validate checks a clustering response against the records it claims to
// cover. Clustering output is untrusted; any malformation fails the run
// before state is written.
func Validate(clusters []gemini.Cluster, records []store.Record) error {
	known := make(map[int64]bool, len(records))
	for _, r := range records {
		known[r.ID] = true
	}

	seen := make(map[string]bool, len(clusters))
	for i, c := range clusters {
		if c.ClusterID == "" {
			return fmt.Errorf("ranker: clusters[%d] has empty cluster_id", i)
		}
		if seen[c.ClusterID] {
			return fmt.Errorf("ranker: duplicate cluster_id %q", c.ClusterID)
		}
		seen[c.ClusterID] = true

		for _, id := range c.ItemIDs {
			if !known[id] {
				return fmt.Errorf("ranker: cluster %q references unknown item id %d", c.ClusterID, id)
			}
		}
		for _, axis := range gemini.ScoringAxes {
			score, ok := c.Scores[axis]
			if !ok {
				return fmt.Errorf("ranker: cluster %q missing score axis %q", c.ClusterID, axis)
			}
			if score < 0 || score > 5 {
				return fmt.Errorf("ranker: cluster %q score %s=%d out of range 0-5", c.ClusterID, axis, score)
			}
		}
	}
	return nil
}

// priority is the cluster's max score across the fixed axis set.
func priority(c gemini.Cluster) int {
	max := 0
	for _, axis := range gemini.ScoringAxes {
		if s := c.Scores[axis]; s > max {
			max = s
		}
	}
	return max
}

// SelectDefaults computes the deterministic picks used when no manual
// override exists. records must be in the order they were handed to the
// clusterer; all three result sequences preserve that order.
func SelectDefaults(clusters []gemini.Cluster, records []store.Record) (Picks, error) {
	if err := Validate(clusters, records); err != nil {
		return Picks{}, err
	}
	if len(clusters) < topStoryCount {
		return Picks{}, fmt.Errorf("%w: got %d", ErrTooFewClusters, len(clusters))
	}

	ranked := make([]gemini.Cluster, len(clusters))
	copy(ranked, clusters)
	// Stable keeps original order on equal priority.
	sort.SliceStable(ranked, func(i, j int) bool {
		return priority(ranked[i]) > priority(ranked[j])
	})

	top := make([]string, topStoryCount)
	excluded := make(map[int64]bool)
	for i := 0; i < topStoryCount; i++ {
		top[i] = ranked[i].ClusterID
		for _, id := range ranked[i].ItemIDs {
			excluded[id] = true
		}
	}

	quick := make([]int64, 0, quickHitCap)
	for _, r := range records {
		if len(quick) >= quickHitCap {
			break
		}
		if excluded[r.ID] {
			continue
		}
		quick = append(quick, r.ID)
	}

	// Crypto items are picked by category alone, independent of clusters.
	crypto := make([]int64, 0, cryptoCap)
	for _, r := range records {
		if len(crypto) >= cryptoCap {
			break
		}
		if cryptoCategories[r.Category] {
			crypto = append(crypto, r.ID)
		}
	}

	return Picks{
		TopStoryClusterIDs: top,
		QuickHitItemIDs:    quick,
		CryptoItemIDs:      crypto,
	}, nil
}
