package artifactcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"gifforge/internal/logging"
	"gifforge/internal/metrics"
)

// DefaultTTL is how long a cached artifact stays valid when the caller does
// not specify a TTL.
const DefaultTTL = 24 * time.Hour

const opTimeout = 5 * time.Second

// Cache stores finished artifacts keyed by conversion fingerprint so a
// repeated request serves bytes instead of re-running the pipeline.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the artifact cache database inside dir.
func Open(ctx context.Context, dir string) (*Cache, error) {
	dbPath := filepath.Join(dir, "artifacts.db")
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact cache: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close cache after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to artifact cache: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	c := &Cache{db: db}
	if err := c.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close cache after init failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize artifact cache schema: %w", err)
	}

	logging.Info("Artifact cache opened at %s", dbPath)
	return c, nil
}

func (c *Cache) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		fingerprint TEXT PRIMARY KEY,
		format TEXT NOT NULL,
		data BLOB NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_expires ON artifacts(expires_at);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Get returns the cached artifact for a fingerprint, or ok=false on miss.
// Expired entries count as misses and are removed lazily.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]byte, string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var data []byte
	var format string
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		"SELECT data, format, expires_at FROM artifacts WHERE fingerprint = ?",
		fingerprint).Scan(&data, &format, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.CacheMisses.Inc()
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("cache lookup failed: %w", err)
	}

	if time.Now().Unix() >= expiresAt {
		metrics.CacheMisses.Inc()
		if _, err := c.db.ExecContext(ctx, "DELETE FROM artifacts WHERE fingerprint = ?", fingerprint); err != nil {
			logging.Warn("failed to evict expired artifact %s: %v", fingerprint, err)
		}
		return nil, "", false, nil
	}

	metrics.CacheHits.Inc()
	return data, format, true, nil
}

// Set stores an artifact. A zero ttl uses DefaultTTL.
func (c *Cache) Set(ctx context.Context, fingerprint, format string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO artifacts (fingerprint, format, data, size, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			format = excluded.format,
			data = excluded.data,
			size = excluded.size,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		fingerprint, format, data, len(data), now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

// Purge removes all expired entries and returns how many were deleted.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx,
		"DELETE FROM artifacts WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cache purge failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Debug("Purged %d expired artifacts", n)
	}
	return n, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
