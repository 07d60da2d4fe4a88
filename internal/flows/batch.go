package flows

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/session"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is used when BatchDeps.Concurrency is not positive.
const DefaultBatchConcurrency = 8

// BatchStore is the slice of session.Store the batch flow needs.
type BatchStore interface {
	IDs(ctx context.Context) ([]string, error)
	LoadID(ctx context.Context, id string) (*session.Record, error)
}

// BatchDeps captures batch refresh dependencies.
type BatchDeps struct {
	Concurrency int
	Now         func() time.Time
	Threshold   time.Duration
	Store       BatchStore
	// RefreshOne refreshes a single candidate session.
	RefreshOne func(ctx context.Context, rec *session.Record) RefreshResult
	// OnFailure observes per-session failures; it may be nil.
	OnFailure func(id string, err error)
}

// BatchResult aggregates one batch run.
//
// Total counts the sessions that were authenticated and inside the refresh
// window when loaded, plus sessions that could not be loaded at all.
// Skipped counts candidates that another writer refreshed first.
type BatchResult struct {
	Total     int
	Refreshed int
	Failed    int
	Skipped   int
}

// RunBatch refreshes every persisted session whose access token expires
// within the threshold. Only the listing failure is returned; per-session
// failures are counted and reported through OnFailure.
func RunBatch(ctx context.Context, deps BatchDeps) (BatchResult, error) {
	ids, err := deps.Store.IDs(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	limit := deps.Concurrency
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)
	record := func(fn func(*BatchResult)) {
		mu.Lock()
		fn(&result)
		mu.Unlock()
	}
	fail := func(id string, err error) {
		record(func(r *BatchResult) { r.Failed++ })
		if deps.OnFailure != nil {
			deps.OnFailure(id, err)
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for _, id := range ids {
		g.Go(func() error {
			rec, err := deps.Store.LoadID(ctx, id)
			if err != nil {
				record(func(r *BatchResult) { r.Total++ })
				fail(id, err)
				return nil
			}
			if rec == nil || !rec.Data.Auth.IsAuthenticated || !rec.Data.Auth.ExpiresWithin(deps.Now(), deps.Threshold) {
				return nil
			}
			record(func(r *BatchResult) { r.Total++ })

			res := deps.RefreshOne(ctx, rec)
			switch res.Kind {
			case RefreshDone:
				record(func(r *BatchResult) { r.Refreshed++ })
			case RefreshFailed:
				fail(id, res.Err)
			default:
				record(func(r *BatchResult) { r.Skipped++ })
			}
			return nil
		})
	}

	// Workers never return errors; Wait only joins them.
	_ = g.Wait()
	return result, nil
}
