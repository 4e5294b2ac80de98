package identify

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// Cache persists built manifests to SQLite keyed by set tag, so a set switch
// back to a previously-built set skips the corpus rebuild. Invalidation is
// solely by set-tag mismatch: an entry is either fully usable or absent.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenCache opens (or creates) the manifest cache database.
func OpenCache(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS manifests (
		set_tag TEXT PRIMARY KEY,
		built_at TEXT NOT NULL,
		entries TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Load returns the cached manifest for setTag, or nil on a miss.
func (c *Cache) Load(setTag string) (*Manifest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builtAt, entriesJSON string
	err := c.db.QueryRow(
		"SELECT built_at, entries FROM manifests WHERE set_tag = ?", setTag,
	).Scan(&builtAt, &entriesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(entriesJSON), &entries); err != nil {
		return nil, fmt.Errorf("cache entry corrupt for %s: %w", setTag, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, builtAt)
	if err != nil {
		ts = time.Time{}
	}

	return &Manifest{SetTag: setTag, BuiltAt: ts, Entries: entries}, nil
}

// Store upserts a built manifest.
func (c *Cache) Store(m *Manifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entriesJSON, err := json.Marshal(m.Entries)
	if err != nil {
		return fmt.Errorf("marshal manifest entries: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO manifests (set_tag, built_at, entries) VALUES (?, ?, ?)",
		m.SetTag, m.BuiltAt.Format(time.RFC3339Nano), string(entriesJSON),
	)
	if err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	logging.Manifest("cached manifest %s (%d entities)", m.SetTag, m.Len())
	return nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}
