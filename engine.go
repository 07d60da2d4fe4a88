package goSession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
)

// Engine is the OAuth authentication service. It owns the session store, the
// provider client, metrics and the audit dispatcher.
//
// An Engine is built once by Builder.Build and shared by every request; all
// methods are safe for concurrent use.
type Engine struct {
	config   Config
	sessions *session.Store
	driver   storage.Driver
	provider TokenProvider
	flows    flows.Deps
	audit    *auditDispatcher
	metrics  *Metrics
	log      logrus.FieldLogger
	now      func() time.Time

	closers   []func() error
	closeOnce sync.Once
	batch     atomic.Bool
}

// Close stops the audit dispatcher and releases storage drivers opened by
// Build. Injected drivers are left to their owner.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.audit != nil {
			e.audit.Close()
		}
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](); err != nil {
				e.log.WithError(err).Warn("Failed to close storage driver")
			}
		}
	})
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// CookieOptions returns the options the session cookie is issued with.
func (e *Engine) CookieOptions() cookie.Options {
	return e.config.Cookie.Options()
}

// Sessions exposes the session store used by the middleware.
func (e *Engine) Sessions() *session.Store {
	return e.sessions
}

// pinger is implemented by drivers that can report backend reachability.
type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Ping checks that the storage backend is reachable. Drivers without a
// health check are always reported healthy.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	p, ok := e.driver.(pinger)
	if !ok {
		return nil
	}
	latency, err := p.Ping(ctx)
	if err != nil {
		e.log.WithError(err).Warn("Storage health check failed")
		return err
	}
	e.log.WithField("latency", latency).Debug("Storage health check passed")
	return nil
}

// Logger returns the engine's logger.
func (e *Engine) Logger() logrus.FieldLogger {
	return e.log
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// NewSession returns an unsaved record for a visitor without a session.
func (e *Engine) NewSession() (*session.Record, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	rec, err := e.sessions.New(session.Data{})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)
	return rec, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}

/*
====================================
PROVIDER CALLS
====================================
*/

// exchange and refresh bound every provider call by ProviderTimeout and
// normalize its error into the ErrProvider / ErrRefreshTokenInvalid pair.

func (e *Engine) exchange(ctx context.Context, code, redirectURI string) (*provider.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.OAuth.ProviderTimeout)
	defer cancel()

	start := time.Now()
	tok, err := e.provider.Exchange(ctx, code, redirectURI)
	e.metrics.Observe(MetricProviderLatency, time.Since(start))
	if err != nil {
		return nil, providerErr(err)
	}
	return tok, nil
}

func (e *Engine) refresh(ctx context.Context, refreshToken string) (*provider.Token, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.OAuth.ProviderTimeout)
	defer cancel()

	start := time.Now()
	tok, err := e.provider.Refresh(ctx, refreshToken)
	e.metrics.Observe(MetricProviderLatency, time.Since(start))
	if err != nil {
		return nil, providerErr(err)
	}
	return tok, nil
}

func providerErr(err error) error {
	if errors.Is(err, ErrProvider) || errors.Is(err, ErrRefreshTokenInvalid) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			Now:             e.now,
			DefaultLifetime: e.config.OAuth.DefaultTokenLifetime,
			Exchange:        e.exchange,
			Store:           e.sessions,
			CSRFMismatch:    ErrCSRFMismatch,
		},
		Refresh: flows.RefreshDeps{
			Now:             e.now,
			Threshold:       e.config.Refresh.Threshold,
			DefaultLifetime: e.config.OAuth.DefaultTokenLifetime,
			Refresh:         e.refresh,
			Store:           e.sessions,
			MaxAttempts:     flows.DefaultRefreshAttempts,
		},
		Batch: flows.BatchDeps{
			Concurrency: e.config.Refresh.BatchConcurrency,
			Now:         e.now,
			Threshold:   e.config.Refresh.Threshold,
			Store:       e.sessions,
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func subjectOf(info session.UserInfo) string {
	sub, _ := info["sub"].(string)
	return sub
}
