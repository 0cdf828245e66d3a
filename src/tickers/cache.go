// src/tickers/cache.go
package tickers

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/flexfolio/src/logger"
)

// Cache is the persistent ticker resolution cache, keyed by
// "isin:exchange". Entries expire by age and the table is held under a
// maximum entry count by evicting the oldest entries.
type Cache struct {
	db         *sql.DB
	retention  time.Duration
	maxEntries int
	now        func() time.Time
}

type CacheEntry struct {
	Symbol    string
	Source    string
	CreatedAt time.Time
}

func NewCache(db *sql.DB, retention time.Duration, maxEntries int) *Cache {
	return &Cache{db: db, retention: retention, maxEntries: maxEntries, now: time.Now}
}

// Get returns the cached entry for key if present and not expired.
func (c *Cache) Get(key string) (CacheEntry, bool, error) {
	var entry CacheEntry
	err := c.db.QueryRow(
		`SELECT symbol, source, created_at FROM ticker_cache WHERE cache_key = ?`, key,
	).Scan(&entry.Symbol, &entry.Source, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("ticker cache get %q: %w", key, err)
	}
	if c.now().Sub(entry.CreatedAt) > c.retention {
		return CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put stores a resolution and prunes the cache: entries older than the
// retention window are dropped, then the oldest remaining entries are
// evicted until the table is within the entry budget.
func (c *Cache) Put(key, symbol, source string) error {
	_, err := c.db.Exec(
		`INSERT INTO ticker_cache (cache_key, symbol, source, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET symbol = excluded.symbol, source = excluded.source, created_at = excluded.created_at`,
		key, symbol, source, c.now().UTC())
	if err != nil {
		return fmt.Errorf("ticker cache put %q: %w", key, err)
	}
	return c.prune()
}

func (c *Cache) prune() error {
	cutoff := c.now().UTC().Add(-c.retention)
	if _, err := c.db.Exec(`DELETE FROM ticker_cache WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("ticker cache prune by age: %w", err)
	}

	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM ticker_cache`).Scan(&count); err != nil {
		return fmt.Errorf("ticker cache count: %w", err)
	}
	if count <= c.maxEntries {
		return nil
	}
	excess := count - c.maxEntries
	if _, err := c.db.Exec(
		`DELETE FROM ticker_cache WHERE cache_key IN (
			SELECT cache_key FROM ticker_cache ORDER BY created_at ASC LIMIT ?)`, excess); err != nil {
		return fmt.Errorf("ticker cache prune by count: %w", err)
	}
	logger.L.Debug("Ticker cache evicted oldest entries", "evicted", excess, "budget", c.maxEntries)
	return nil
}
