package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one normalized, persisted news item.
type Record struct {
	ID          int64
	Source      string
	Category    string
	Title       string
	URL         string
	PublishedAt *time.Time // source-reported, nil when the feed date was unparseable
	Content     string
	InsertedAt  time.Time
}

// timeLayout is fixed-width UTC so that lexicographic order on the stored text
// equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS news_items (
	id INTEGER PRIMARY KEY,
	source TEXT NOT NULL,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	published_at TEXT,
	content TEXT,
	inserted_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_news_published ON news_items(published_at);
CREATE INDEX IF NOT EXISTS idx_news_category ON news_items(category);
CREATE INDEX IF NOT EXISTS idx_news_inserted ON news_items(inserted_at);
`

// Store provides durable, URL-deduplicated persistence for news records.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at dbPath, switches it to
// WAL mode and ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// WAL keeps readers isolated from the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts rec and reports whether a new row was created. A record whose
// URL already exists is left untouched and reported as (false, nil); duplicates
// are an expected outcome, not an error.
func (s *Store) Upsert(rec *Record) (bool, error) {
	var published sql.NullString
	if rec.PublishedAt != nil {
		published = sql.NullString{String: rec.PublishedAt.UTC().Format(timeLayout), Valid: true}
	}

	res, err := s.db.Exec(
		`INSERT INTO news_items (source, category, title, url, published_at, content, inserted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		rec.Source, rec.Category, rec.Title, rec.URL, published, rec.Content,
		rec.InsertedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("store: upsert %s: %w", rec.URL, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: upsert %s: rows affected: %w", rec.URL, err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("store: upsert %s: last insert id: %w", rec.URL, err)
	}
	rec.ID = id
	return true, nil
}

// FetchRecent returns all records with inserted_at >= since, most recent first.
func (s *Store) FetchRecent(since time.Time) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, source, category, title, url, published_at, content, inserted_at
		 FROM news_items
		 WHERE inserted_at >= ?
		 ORDER BY inserted_at DESC, id DESC`,
		since.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("store: fetch recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			published sql.NullString
			inserted  string
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Category, &rec.Title, &rec.URL,
			&published, &rec.Content, &inserted); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		if published.Valid {
			if t, err := time.Parse(timeLayout, published.String); err == nil {
				rec.PublishedAt = &t
			}
		}
		t, err := time.Parse(timeLayout, inserted)
		if err != nil {
			return nil, fmt.Errorf("store: record %d: bad inserted_at %q: %w", rec.ID, inserted, err)
		}
		rec.InsertedAt = t
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: fetch recent: %w", err)
	}
	return out, nil
}

// Count returns the total number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM news_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
