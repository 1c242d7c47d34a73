package store

import (
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates a Store backed by a temporary sqlite database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(url string, insertedAt time.Time) *Record {
	return &Record{
		Source:     "Test Wire",
		Category:   "markets",
		Title:      "Markets move on rate decision",
		URL:        url,
		Content:    "Some body text.",
		InsertedAt: insertedAt,
	}
}

func TestUpsertDeduplicatesOnURL(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	inserted, err := s.Upsert(testRecord("https://example.com/a", now))
	if err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if !inserted {
		t.Fatal("first Upsert: inserted = false, want true")
	}

	dup := testRecord("https://example.com/a", now.Add(time.Minute))
	dup.Title = "A different title, same URL"
	inserted, err = s.Upsert(dup)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if inserted {
		t.Error("second Upsert: inserted = true, want false")
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	// Existing row must be untouched.
	recs, err := s.FetchRecent(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Title != "Markets move on rate decision" {
		t.Errorf("title = %q, want the original", recs[0].Title)
	}
}

func TestUpsertAssignsID(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	r1 := testRecord("https://example.com/1", now)
	r2 := testRecord("https://example.com/2", now)
	if _, err := s.Upsert(r1); err != nil {
		t.Fatalf("Upsert r1: %v", err)
	}
	if _, err := s.Upsert(r2); err != nil {
		t.Fatalf("Upsert r2: %v", err)
	}
	if r1.ID == 0 || r2.ID == 0 {
		t.Fatalf("ids not assigned: %d, %d", r1.ID, r2.ID)
	}
	if r1.ID == r2.ID {
		t.Errorf("ids collide: %d", r1.ID)
	}
}

func TestFetchRecentWindowAndOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	urls := []string{"https://example.com/old", "https://example.com/mid", "https://example.com/new"}
	times := []time.Time{base.Add(-48 * time.Hour), base.Add(-12 * time.Hour), base.Add(-1 * time.Hour)}
	for i, u := range urls {
		if _, err := s.Upsert(testRecord(u, times[i])); err != nil {
			t.Fatalf("Upsert %s: %v", u, err)
		}
	}

	recs, err := s.FetchRecent(base.Add(-36 * time.Hour))
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].URL != "https://example.com/new" || recs[1].URL != "https://example.com/mid" {
		t.Errorf("order = [%s, %s], want newest first", recs[0].URL, recs[1].URL)
	}

	// Boundary is inclusive.
	recs, err = s.FetchRecent(times[0])
	if err != nil {
		t.Fatalf("FetchRecent at boundary: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("got %d records at inclusive boundary, want 3", len(recs))
	}
}

func TestFetchRecentSubsecondOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// A whole second must sort after a fractional one within it.
	if _, err := s.Upsert(testRecord("https://example.com/frac", base.Add(500*time.Millisecond))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := s.Upsert(testRecord("https://example.com/next", base.Add(time.Second))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	recs, err := s.FetchRecent(base)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].URL != "https://example.com/next" {
		t.Errorf("first = %s, want the later timestamp first", recs[0].URL)
	}
}

func TestNullPublishedAtRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	rec := testRecord("https://example.com/nodate", now)
	rec.PublishedAt = nil
	if _, err := s.Upsert(rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	published := now.Add(-2 * time.Hour)
	rec2 := testRecord("https://example.com/dated", now)
	rec2.PublishedAt = &published
	if _, err := s.Upsert(rec2); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	recs, err := s.FetchRecent(now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	byURL := map[string]Record{}
	for _, r := range recs {
		byURL[r.URL] = r
	}
	if got := byURL["https://example.com/nodate"].PublishedAt; got != nil {
		t.Errorf("nodate PublishedAt = %v, want nil", got)
	}
	if got := byURL["https://example.com/dated"].PublishedAt; got == nil || !got.Equal(published) {
		t.Errorf("dated PublishedAt = %v, want %v", got, published)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	now := time.Now().UTC()

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Upsert(testRecord("https://example.com/durable", now)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	// Dedupe still applies after restart.
	inserted, err := s2.Upsert(testRecord("https://example.com/durable", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Upsert after reopen: %v", err)
	}
	if inserted {
		t.Error("Upsert after reopen: inserted = true, want false")
	}

	recs, err := s2.FetchRecent(now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("FetchRecent after reopen: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records after reopen, want 1", len(recs))
	}
}
