// Package sqlite provides a SQLite-backed storage.Driver.
//
// Rows carry an expires_at column in unix milliseconds (0 = no expiry). Reads
// filter expired rows; a purge loop deletes them.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/goSession/storage"
)

//go:embed schema.sql
var schema string

const defaultPurgeInterval = 5 * time.Minute

var (
	_ storage.Driver  = (*Store)(nil)
	_ storage.Swapper = (*Store)(nil)
	_ storage.Closer  = (*Store)(nil)
)

// Store persists key-value entries in SQLite.
type Store struct {
	sqlDB *sql.DB
	log   logrus.FieldLogger
	now   func() time.Time

	purgeInterval time.Duration
	stopPurge     chan struct{}
	closeOnce     sync.Once
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens the database at b.Path and applies the schema.
func Open(ctx context.Context, log logrus.FieldLogger, b storage.SQLite) (*Store, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	cleanPath := filepath.Clean(b.Path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %v", storage.ErrStorage, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %v", storage.ErrStorage, err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", storage.ErrStorage, err)
	}

	interval := b.PurgeInterval
	if interval <= 0 {
		interval = defaultPurgeInterval
	}
	return &Store{
		sqlDB:         sqlDB,
		log:           log.WithField("component", "sqlite_storage"),
		now:           time.Now,
		purgeInterval: interval,
		stopPurge:     make(chan struct{}),
	}, nil
}

// Start runs the expired-row purge loop until ctx is cancelled or Close.
func (s *Store) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopPurge:
				return
			case <-ticker.C:
				n, err := s.Purge(ctx)
				if err != nil {
					s.log.WithError(err).Warn("Purge failed")
					continue
				}
				if n > 0 {
					s.log.WithField("removed", n).Debug("Purged expired rows")
				}
			}
		}
	}()
}

// Close stops the purge loop and closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.closeOnce.Do(func() { close(s.stopPurge) })
	return s.sqlDB.Close()
}

func (s *Store) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return toMillis(s.now().Add(ttl))
}

// Get returns the live value for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT value FROM kv_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, toMillis(s.now()),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return value, nil
}

// Set upserts key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.expiry(ttl),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return nil
}

// Keys lists live keys beginning with prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT key FROM kv_entries WHERE key LIKE ? ESCAPE '\' AND (expires_at = 0 OR expires_at > ?)`,
		escapeLike(prefix)+"%", toMillis(s.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return keys, nil
}

// CompareAndSwap updates key only when its live value still equals prev.
func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE kv_entries SET value = ?, expires_at = ?
		 WHERE key = ? AND value = ? AND (expires_at = 0 OR expires_at > ?)`,
		next, s.expiry(ttl), key, prev, toMillis(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return n == 1, nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM kv_entries WHERE expires_at != 0 AND expires_at <= ?`,
		toMillis(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return res.RowsAffected()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
