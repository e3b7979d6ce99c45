// Package cache persists provider responses between one-shot CLI
// invocations in a per-user SQLite file. Entries carry their own TTL and
// outlive it on disk: the runner serves expired entries as a stale
// fallback when a provider is down, so pruning only removes entries no
// stale budget could still admit.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// DefaultListTTL is how long chain-list and token-list entries stay fresh.
// Stale entries remain servable as a fallback until the caller's max-stale
// budget runs out.
const DefaultListTTL = 5 * time.Minute

// fallbackHorizon is how long past expiry an entry stays on disk for
// stale fallback. Max-stale budgets run in minutes, so anything older
// can never be served again and is pruned at startup.
const fallbackHorizon = 24 * time.Hour

const lockAcquireTimeout = 5 * time.Second

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// Result reports a single lookup. Age and Stale are computed against the
// entry's own TTL; budget decisions stay with the caller, which knows how
// much time passes between the read and the moment it serves the data.
type Result struct {
	Hit   bool
	Value []byte
	Age   time.Duration
	Stale bool
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	// Pragmas go through the DSN so every pooled connection gets them,
	// not just the first one opened.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS swap_cache (
		key           TEXT PRIMARY KEY,
		payload       BLOB NOT NULL,
		created_at_ms INTEGER NOT NULL,
		ttl_ms        INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune removes entries expired beyond the stale fallback horizon. Called
// on every Open to keep the file from growing without bound.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	cutoff := s.now().UnixMilli() - fallbackHorizon.Milliseconds()
	if _, err := s.db.Exec("DELETE FROM swap_cache WHERE created_at_ms + ttl_ms < ?", cutoff); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(key string) (Result, error) {
	var payload []byte
	var createdMS, ttlMS int64
	err := s.db.QueryRow("SELECT payload, created_at_ms, ttl_ms FROM swap_cache WHERE key = ?", key).
		Scan(&payload, &createdMS, &ttlMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := s.now().Sub(time.UnixMilli(createdMS))
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlMS) * time.Millisecond
	return Result{
		Hit:   true,
		Value: payload,
		Age:   age,
		Stale: age > ttl,
	}, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	ttlMS := ttl.Milliseconds()
	if ttlMS <= 0 {
		ttlMS = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO swap_cache (key, payload, created_at_ms, ttl_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload=excluded.payload,
			created_at_ms=excluded.created_at_ms,
			ttl_ms=excluded.ttl_ms
	`, key, value, s.now().UnixMilli(), ttlMS)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// acquireLock takes the cross-process write lock with a bounded wait, so
// a wedged sibling process cannot hang the CLI.
func (s *Store) acquireLock() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockAcquireTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock cache: timed out after %s", lockAcquireTimeout)
	}
	return func() { _ = s.lock.Unlock() }, nil
}
