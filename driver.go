package goSession

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/storage"
	"github.com/MrEthical07/goSession/storage/memory"
	"github.com/MrEthical07/goSession/storage/redisstore"
	"github.com/MrEthical07/goSession/storage/sqlite"
)

// OpenDriver resolves a storage backend into a driver. ctx bounds the
// connection check; background cleanup loops keep running until the returned
// driver is closed. A nil backend selects the in-memory driver.
func OpenDriver(ctx context.Context, backend storage.Backend, log logrus.FieldLogger) (storage.Driver, error) {
	if backend == nil {
		backend = storage.Memory{}
	}
	if err := backend.Validate(); err != nil {
		return nil, configErr("storage: %v", err)
	}

	switch b := backend.(type) {
	case storage.Memory:
		d := memory.New(log, memory.WithCleanupInterval(b.CleanupInterval))
		d.Start(context.Background())
		return d, nil
	case storage.Redis:
		return redisstore.Open(ctx, b)
	case storage.SQLite:
		s, err := sqlite.Open(ctx, log, b)
		if err != nil {
			return nil, err
		}
		s.Start(context.Background())
		return s, nil
	default:
		return nil, configErr("unsupported storage backend %T", backend)
	}
}
