package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"siteaudit/internal/report"
	"siteaudit/internal/snapshot"
)

// SQLite is the durable Store implementation. Payloads are stored as
// JSON and decoded back into the concrete type named by the key's
// entry-type prefix, so snapshots survive process restarts.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the cache database at path.
func NewSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key        TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Get returns the live value for key, decoded into the concrete type
// the key prefix names. Expired or undecodable rows read as absent.
func (s *SQLite) Get(key string) (any, bool) {
	var payload string
	var expiresAt int64
	err := s.db.QueryRow(
		`SELECT payload, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		return nil, false
	}
	if s.now().UnixMilli() > expiresAt {
		s.Delete(key)
		return nil, false
	}

	value, err := decode(key, []byte(payload))
	if err != nil {
		s.Delete(key)
		return nil, false
	}
	return value, true
}

// Set stores value under key for ttl. Last writer wins. Values that do
// not marshal are dropped silently; the cache is best-effort.
func (s *SQLite) Set(key string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, payload, expires_at) VALUES (?, ?, ?)`,
		key, string(payload), s.now().Add(ttl).UnixMilli(),
	)
}

// Delete removes key.
func (s *SQLite) Delete(key string) {
	_, _ = s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
}

// Sweep removes every expired row and reports how many were dropped.
func (s *SQLite) Sweep() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at < ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// decode maps the key's entry-type prefix to its concrete type. Unknown
// prefixes are rejected rather than returned as raw JSON.
func decode(key string, payload []byte) (any, error) {
	prefix, _, ok := strings.Cut(key, ":")
	if !ok {
		return nil, fmt.Errorf("malformed cache key %q", key)
	}
	switch EntryType(prefix) {
	case TypeRawSnapshot:
		v := new(snapshot.Raw)
		return v, json.Unmarshal(payload, v)
	case TypeSiteSnapshot:
		v := new(snapshot.Site)
		return v, json.Unmarshal(payload, v)
	case TypePublicReport:
		v := new(report.AuditReport)
		return v, json.Unmarshal(payload, v)
	case TypePrivateFlags:
		v := new(report.PrivateFlags)
		return v, json.Unmarshal(payload, v)
	default:
		return nil, fmt.Errorf("unknown cache entry type %q", prefix)
	}
}
