package metrics

import (
	"sync"
	"time"
)

// Metrics tracks per-process run counters for the monitoring endpoints.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	EntriesSeen          int64
	RecordsInserted      int64
	DuplicatesSkipped    int64
	MalformedSkipped     int64
	ArticleFetchFailures int64
	ClusterCalls         int64
	DraftCalls           int64
	BriefsWritten        int64
	StubBriefs           int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementEntriesSeen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesSeen++
}

func (m *Metrics) IncrementRecordsInserted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsInserted++
}

func (m *Metrics) IncrementDuplicatesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesSkipped++
}

func (m *Metrics) IncrementMalformedSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MalformedSkipped++
}

func (m *Metrics) IncrementArticleFetchFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticleFetchFailures++
}

func (m *Metrics) IncrementClusterCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClusterCalls++
}

func (m *Metrics) IncrementDraftCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DraftCalls++
}

func (m *Metrics) IncrementBriefsWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BriefsWritten++
}

func (m *Metrics) IncrementStubBriefs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StubBriefs++
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"entries_seen":           m.EntriesSeen,
		"records_inserted":       m.RecordsInserted,
		"duplicates_skipped":     m.DuplicatesSkipped,
		"malformed_skipped":      m.MalformedSkipped,
		"article_fetch_failures": m.ArticleFetchFailures,
		"cluster_calls":          m.ClusterCalls,
		"draft_calls":            m.DraftCalls,
		"briefs_written":         m.BriefsWritten,
		"stub_briefs":            m.StubBriefs,
		"last_run_time":          m.LastRunTime.Format(time.RFC3339),
		"last_error_time":        m.LastErrorTime.Format(time.RFC3339),
		"last_error":             m.LastError,
		"is_healthy":             m.IsHealthy,
	}
}
