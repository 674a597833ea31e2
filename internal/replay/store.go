// Package replay records consumed payment signatures so a settled
// transaction cannot be presented twice for authorization.
package replay

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

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	ttl  time.Duration
}

// Open creates or reopens the consumed-signature database. Entries older
// than ttl are pruned on startup; the ledger itself ages transactions out
// of queryable history on a similar horizon, so unbounded retention buys
// nothing.
func Open(path, lockPath string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create replay directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open replay store: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS consumed_signatures (signature TEXT PRIMARY KEY, route TEXT NOT NULL, amount INTEGER NOT NULL, consumed_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init replay schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath), ttl: ttl}
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes consumed records older than the retention horizon.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := time.Now().UTC().Add(-s.ttl).Unix()
	if _, err := s.db.Exec("DELETE FROM consumed_signatures WHERE consumed_at < ?", cutoff); err != nil {
		return fmt.Errorf("prune replay store: %w", err)
	}
	return nil
}

// Seen reports whether a signature has already been consumed.
func (s *Store) Seen(signature string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM consumed_signatures WHERE signature = ?", signature).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("replay read: %w", err)
	}
	return true, nil
}

// Consume marks a signature as spent for a route. It returns true when
// this call was the first use, false when the signature was already
// consumed. The insert is the atomicity point: two concurrent requests
// presenting the same signature cannot both see first-use.
func (s *Store) Consume(signature, route string, amount uint64) (bool, error) {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return false, fmt.Errorf("lock replay store: %w", err)
	}
	if !locked {
		return false, fmt.Errorf("lock replay store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	res, err := s.db.Exec(`
		INSERT INTO consumed_signatures (signature, route, amount, consumed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(signature) DO NOTHING
	`, signature, route, int64(amount), time.Now().UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("replay write: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replay write: %w", err)
	}
	return affected == 1, nil
}
