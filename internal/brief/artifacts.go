package brief

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deusflow/marketbrief/internal/gemini"
	"github.com/deusflow/marketbrief/internal/ranker"
)

// candidatesArtifact is the audit trail of a run: what was ingested and the
// raw clustering output the picks were chosen from.
type candidatesArtifact struct {
	RunID       string                `json:"run_id"`
	Date        string                `json:"date"`
	GeneratedAt string                `json:"generated_at"`
	Ingest      IngestStats           `json:"ingest"`
	Clusters    *gemini.ClusterResult `json:"clusters"`
}

func (p *Pipeline) draftPath(date string) string {
	return filepath.Join(p.cfg.DraftsDir, date+"_draft.md")
}

func (p *Pipeline) picksPath(date string) string {
	return filepath.Join(p.cfg.DraftsDir, date+"_picks.json")
}

func (p *Pipeline) candidatesPath(date string) string {
	return filepath.Join(p.cfg.DraftsDir, date+"_candidates.json")
}

func (p *Pipeline) writeCandidates(date, runID string, stats IngestStats, clusters *gemini.ClusterResult) (string, error) {
	artifact := candidatesArtifact{
		RunID:       runID,
		Date:        date,
		GeneratedAt: p.now().UTC().Format(time.RFC3339),
		Ingest:      stats,
		Clusters:    clusters,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("brief: encode candidates: %w", err)
	}
	path := p.candidatesPath(date)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("brief: write candidates: %w", err)
	}
	return path, nil
}

func (p *Pipeline) loadPicks(date string) (ranker.Picks, bool, error) {
	data, err := os.ReadFile(p.picksPath(date))
	if os.IsNotExist(err) {
		return ranker.Picks{}, false, nil
	}
	if err != nil {
		return ranker.Picks{}, false, fmt.Errorf("brief: read picks override: %w", err)
	}
	var picks ranker.Picks
	if err := json.Unmarshal(data, &picks); err != nil {
		return ranker.Picks{}, false, fmt.Errorf("brief: malformed picks override %s: %w", p.picksPath(date), err)
	}
	return picks, true, nil
}

func (p *Pipeline) savePicks(date string, picks ranker.Picks) error {
	data, err := json.MarshalIndent(picks, "", "  ")
	if err != nil {
		return fmt.Errorf("brief: encode picks: %w", err)
	}
	if err := os.WriteFile(p.picksPath(date), data, 0o644); err != nil {
		return fmt.Errorf("brief: write picks: %w", err)
	}
	return nil
}
