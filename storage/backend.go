package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend selects a storage implementation. It is a closed set: only the
// variants declared in this package satisfy it.
type Backend interface {
	// Kind returns a short name for logs.
	Kind() string
	// Validate checks the variant's own settings.
	Validate() error

	sealed()
}

// Memory keeps sessions in process memory. Sessions do not survive a restart
// and are not shared between replicas.
type Memory struct {
	// CleanupInterval controls how often expired entries are purged.
	// Zero uses one minute.
	CleanupInterval time.Duration
}

// Redis stores sessions in a Redis server or cluster.
type Redis struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// TLS enables TLS with the system roots.
	TLS bool
}

// SQLite stores sessions in a local SQLite database file.
type SQLite struct {
	Path string
	// PurgeInterval controls how often expired rows are deleted.
	// Zero uses five minutes.
	PurgeInterval time.Duration
}

func (Memory) sealed() {}
func (Redis) sealed()  {}
func (SQLite) sealed() {}

// Kind returns "memory".
func (Memory) Kind() string { return "memory" }

// Kind returns "redis".
func (Redis) Kind() string { return "redis" }

// Kind returns "sqlite".
func (SQLite) Kind() string { return "sqlite" }

// Validate checks the memory backend settings.
func (b Memory) Validate() error {
	if b.CleanupInterval < 0 {
		return errors.New("memory.cleanup_interval must be >= 0")
	}
	return nil
}

// Validate checks the Redis backend settings.
func (b Redis) Validate() error {
	if len(b.Addrs) == 0 {
		return errors.New("redis.addrs must contain at least one address")
	}
	for _, addr := range b.Addrs {
		if strings.TrimSpace(addr) == "" {
			return errors.New("redis.addrs must not contain empty entries")
		}
	}
	if b.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", b.DB)
	}
	return nil
}

// Validate checks the SQLite backend settings.
func (b SQLite) Validate() error {
	if strings.TrimSpace(b.Path) == "" {
		return errors.New("sqlite.path is required")
	}
	if b.PurgeInterval < 0 {
		return errors.New("sqlite.purge_interval must be >= 0")
	}
	return nil
}

// ParseKind maps a configuration string to an empty backend variant of that
// kind. It is used only by configuration loading; the core works with the
// resolved variant.
func ParseKind(kind string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return Memory{}, nil
	case "redis":
		return Redis{}, nil
	case "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
