package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/storage"
)

// ErrConflict is returned by SaveIfCurrent when the stored record changed
// (or disappeared) since it was loaded.
var ErrConflict = errors.New("session modified concurrently")

// ErrAuthMissingAccessToken rejects an authenticated state without a token.
var ErrAuthMissingAccessToken = errors.New("authenticated session requires an access token")

// ErrAuthMissingExpiry rejects an authenticated state without an expiry.
var ErrAuthMissingExpiry = errors.New("authenticated session requires an access token expiry")

// DefaultKeyPrefix namespaces session keys in the storage driver.
const DefaultKeyPrefix = "sess:"

// Store owns session persistence. It combines a storage.Driver for records
// and a cookie.Codec for the client-held reference.
//
// Store does no in-process locking. Save is last-write-wins; SaveIfCurrent
// is the compare-and-swap variant used for token refresh results.
type Store struct {
	driver storage.Driver
	codec  *cookie.Codec
	prefix string
	maxAge time.Duration
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store. maxAge is both the record lifetime and the
// storage TTL written on every save.
func NewStore(driver storage.Driver, codec *cookie.Codec, maxAge time.Duration, opts ...Option) *Store {
	s := &Store{
		driver: driver,
		codec:  codec,
		prefix: DefaultKeyPrefix,
		maxAge: maxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// MaxAge returns the configured session lifetime.
func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}

// Cookie returns the signed cookie value referencing rec.
func (s *Store) Cookie(rec *Record) string {
	return s.codec.Sign(rec.ID)
}

// New returns an unsaved record with a fresh id.
func (s *Store) New(data Data) (*Record, error) {
	id, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now()
	return &Record{
		ID:             id,
		Data:           data.Clone(),
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(s.maxAge),
	}, nil
}

// Create generates a record and persists it immediately.
func (s *Store) Create(ctx context.Context, data Data) (*Record, error) {
	rec, err := s.New(data)
	if err != nil {
		return nil, err
	}
	if _, err := s.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Load verifies cookieValue and fetches the referenced record.
//
// An invalid signature, a storage miss, an undecodable entry and an expired
// record all yield (nil, nil): the caller starts a new session. Only driver
// failures return an error.
func (s *Store) Load(ctx context.Context, cookieValue string) (*Record, error) {
	id, err := s.codec.Verify(cookieValue)
	if err != nil {
		return nil, nil
	}
	// Signed with a current secret but not an id this store issued.
	if internal.ParseSessionID(id) != nil {
		return nil, nil
	}
	return s.LoadID(ctx, id)
}

// LoadID fetches a record by id with the same miss semantics as Load.
func (s *Store) LoadID(ctx context.Context, id string) (*Record, error) {
	rec, _, err := s.get(ctx, id)
	return rec, err
}

func (s *Store) get(ctx context.Context, id string) (*Record, []byte, error) {
	key := s.key(id)

	data, err := s.driver.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, storageErr(err)
	}

	rec, err := Decode(data)
	if err != nil {
		if err := s.driver.Remove(ctx, key); err != nil {
			return nil, nil, storageErr(err)
		}
		return nil, nil, nil
	}
	rec.ID = id

	// The record expiry is authoritative; storage TTL is only cleanup.
	if rec.Expired(s.now()) {
		if err := s.driver.Remove(ctx, key); err != nil {
			return nil, nil, storageErr(err)
		}
		return nil, nil, nil
	}

	return rec, data, nil
}

// Update applies fn to a deep copy of rec.Data and returns the new record.
// Nothing is persisted until Save.
func (s *Store) Update(rec *Record, fn func(Data) Data) *Record {
	out := rec.Clone()
	if out == nil {
		return nil
	}
	out.Data = fn(out.Data)
	return out
}

func (s *Store) prepare(rec *Record) (*Record, []byte, error) {
	if rec == nil || rec.ID == "" {
		return nil, nil, errors.New("session: cannot save record without id")
	}
	if err := rec.Data.Auth.Validate(); err != nil {
		return nil, nil, err
	}

	now := s.now()
	next := *rec
	next.LastAccessedAt = now
	next.ExpiresAt = now.Add(s.maxAge)
	next.Revision = rec.Revision + 1
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}

	data, err := Encode(&next)
	if err != nil {
		return nil, nil, err
	}
	return &next, data, nil
}

func (s *Store) commit(rec, next *Record) string {
	rec.LastAccessedAt = next.LastAccessedAt
	rec.ExpiresAt = next.ExpiresAt
	rec.CreatedAt = next.CreatedAt
	rec.Revision = next.Revision
	return s.codec.Sign(rec.ID)
}

// Save recomputes the expiry, writes rec with TTL = MaxAge and returns the
// signed cookie value. On success rec's timestamps and Revision are updated
// in place. Driver failures wrap storage.ErrStorage and are not retried.
func (s *Store) Save(ctx context.Context, rec *Record) (string, error) {
	next, data, err := s.prepare(rec)
	if err != nil {
		return "", err
	}
	if err := s.driver.Set(ctx, s.key(rec.ID), data, s.maxAge); err != nil {
		return "", storageErr(err)
	}
	return s.commit(rec, next), nil
}

// SaveIfCurrent writes rec only when the stored revision still equals
// rec.Revision. A missing record or a newer revision returns ErrConflict.
//
// Drivers implementing storage.Swapper make the check atomic; otherwise a
// read-compare-write narrows but does not close the race window.
func (s *Store) SaveIfCurrent(ctx context.Context, rec *Record) (string, error) {
	next, data, err := s.prepare(rec)
	if err != nil {
		return "", err
	}
	key := s.key(rec.ID)

	current, err := s.driver.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrConflict
		}
		return "", storageErr(err)
	}
	revision, err := revisionOf(current)
	if err != nil || revision != rec.Revision {
		return "", ErrConflict
	}

	if swapper, ok := s.driver.(storage.Swapper); ok {
		swapped, err := swapper.CompareAndSwap(ctx, key, current, data, s.maxAge)
		if err != nil {
			return "", storageErr(err)
		}
		if !swapped {
			return "", ErrConflict
		}
		return s.commit(rec, next), nil
	}

	if err := s.driver.Set(ctx, key, data, s.maxAge); err != nil {
		return "", storageErr(err)
	}
	return s.commit(rec, next), nil
}

// Regenerate moves rec's data to a fresh id and removes the old entry.
func (s *Store) Regenerate(ctx context.Context, rec *Record) (*Record, error) {
	next, err := s.New(rec.Data)
	if err != nil {
		return nil, err
	}
	if _, err := s.Save(ctx, next); err != nil {
		return nil, err
	}
	if err := s.DestroyID(ctx, rec.ID); err != nil {
		return nil, err
	}
	return next, nil
}

// Destroy removes rec from storage. The caller clears the cookie.
func (s *Store) Destroy(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	return s.DestroyID(ctx, rec.ID)
}

// DestroyID removes a record by id. Removing an absent record succeeds.
func (s *Store) DestroyID(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.driver.Remove(ctx, s.key(id)); err != nil {
		return storageErr(err)
	}
	return nil
}

// IDs lists the ids of persisted sessions. It walks the whole key prefix and
// is meant for batch jobs, not request paths.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	keys, err := s.driver.Keys(ctx, s.prefix)
	if err != nil {
		return nil, storageErr(err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, s.prefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func storageErr(err error) error {
	if errors.Is(err, storage.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrStorage, err)
}
