package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

// RefreshToken runs the provider's refresh grant and maps the response into
// an authenticated state. The returned state keeps refreshToken when the
// provider does not rotate it. Nothing is persisted.
//
// A rejected grant returns ErrRefreshTokenInvalid, so the caller forces a
// new login instead of retrying; every other failure returns ErrProvider.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (session.AuthState, error) {
	if e == nil || e.provider == nil {
		return session.AuthState{}, ErrEngineNotReady
	}
	tok, err := e.refresh(ctx, refreshToken)
	if err != nil {
		return session.AuthState{}, err
	}
	return flows.AuthFromToken(tok, session.AuthState{RefreshToken: refreshToken}, e.now(), e.config.OAuth.DefaultTokenLifetime), nil
}

// RefreshSession refreshes rec's tokens when they expire within the refresh
// threshold and persists them with a compare-and-swap save.
//
// The returned record is the session as stored after the call: with the new
// tokens, with a concurrent winner's tokens (OutcomeSuperseded), or with the
// tokens cleared after ErrRefreshTokenInvalid.
func (e *Engine) RefreshSession(ctx context.Context, rec *session.Record) (RefreshOutcome, *session.Record, error) {
	if e == nil || e.sessions == nil {
		return OutcomeFailed, rec, ErrEngineNotReady
	}

	res := e.refreshOne(ctx, rec)
	outcome := outcomeOf(res.Kind)
	if res.Kind == flows.RefreshFailed {
		e.log.WithFields(logrus.Fields{
			"session": shortID(rec.ID),
			"error":   res.Err,
		}).Warn("Token refresh failed")
	}
	return outcome, res.Record, res.Err
}

// refreshOne runs the refresh flow and records metrics and audit events. It
// does not log failures; callers decide the context they are logged in.
func (e *Engine) refreshOne(ctx context.Context, rec *session.Record) flows.RefreshResult {
	res := flows.RunRefresh(ctx, rec, e.flows.Refresh)
	if res.Record == nil {
		res.Record = rec
	}

	var id string
	if rec != nil {
		id = rec.ID
	}

	switch res.Kind {
	case flows.RefreshDone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, subjectOf(res.Record.Data.Auth.UserInfo), id, nil, nil)
	case flows.RefreshSuperseded:
		e.metricInc(MetricRefreshSuperseded)
		e.emitAudit(ctx, auditEventRefreshSuperseded, true, subjectOf(res.Record.Data.Auth.UserInfo), id, nil, nil)
	case flows.RefreshFailed:
		if errors.Is(res.Err, ErrRefreshTokenInvalid) {
			e.metricInc(MetricRefreshTokenInvalid)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, subjectOf(rec.Data.Auth.UserInfo), id, res.Err, nil)
		} else {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshFailure, false, subjectOf(rec.Data.Auth.UserInfo), id, res.Err, nil)
		}
	}
	return res
}

func outcomeOf(kind flows.RefreshKind) RefreshOutcome {
	switch kind {
	case flows.RefreshDone:
		return OutcomeRefreshed
	case flows.RefreshNotAuthenticated:
		return OutcomeNotAuthenticated
	case flows.RefreshSuperseded:
		return OutcomeSuperseded
	case flows.RefreshFailed:
		return OutcomeFailed
	default:
		return OutcomeNoRefreshNeeded
	}
}

// AuthenticatedUser returns the user info of a logged-in session, refreshing
// the tokens first when they expire within the refresh threshold.
//
// A session that is not logged in, or whose refresh failed, returns
// ErrUnauthenticated so the caller redirects to login. Only storage
// failures are returned as ErrStorage. The returned record is the session as
// now stored.
func (e *Engine) AuthenticatedUser(ctx context.Context, rec *session.Record) (session.UserInfo, *session.Record, error) {
	if e == nil || e.sessions == nil {
		return nil, rec, ErrEngineNotReady
	}
	if rec == nil || !rec.Data.Auth.IsAuthenticated {
		e.metricInc(MetricUnauthenticated)
		return nil, rec, ErrUnauthenticated
	}

	outcome, current, err := e.RefreshSession(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrStorage) && !errors.Is(err, ErrRefreshTokenInvalid) {
			return nil, current, err
		}
		e.metricInc(MetricUnauthenticated)
		return nil, current, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if outcome == OutcomeNotAuthenticated || current == nil || !current.Data.Auth.IsAuthenticated {
		e.metricInc(MetricUnauthenticated)
		return nil, current, ErrUnauthenticated
	}

	return current.Data.Auth.Clone().UserInfo, current, nil
}

// RefreshExpiringTokens refreshes every persisted session whose access token
// expires within the refresh threshold.
//
// Sessions are refreshed with at most Refresh.BatchConcurrency provider calls
// in flight. Per-session failures are counted, never returned; only a failure
// to list sessions aborts the run. A run that overlaps another returns
// ErrRefreshJobRunning. The job is safe to run alongside live traffic.
func (e *Engine) RefreshExpiringTokens(ctx context.Context) (RefreshJobResult, error) {
	if e == nil || e.sessions == nil {
		return RefreshJobResult{}, ErrEngineNotReady
	}
	if !e.batch.CompareAndSwap(false, true) {
		return RefreshJobResult{}, ErrRefreshJobRunning
	}
	defer e.batch.Store(false)

	log := e.log.WithField("job", "refresh_expiring_tokens")
	start := time.Now()

	deps := e.flows.Batch
	deps.RefreshOne = e.refreshOne
	deps.OnFailure = func(id string, err error) {
		log.WithFields(logrus.Fields{
			"session": shortID(id),
			"error":   err,
		}).Warn("Session refresh failed")
	}

	res, err := flows.RunBatch(ctx, deps)
	if err != nil {
		log.WithError(err).Error("Failed to list sessions")
		e.emitAudit(ctx, auditEventRefreshBatch, false, "", "", err, nil)
		return RefreshJobResult{}, err
	}

	result := RefreshJobResult{
		Total:     res.Total,
		Refreshed: res.Refreshed,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
	}
	elapsed := time.Since(start)

	e.metricInc(MetricBatchRuns)
	e.metricAdd(MetricBatchRefreshed, result.Refreshed)
	e.metricAdd(MetricBatchFailed, result.Failed)
	e.emitAudit(ctx, auditEventRefreshBatch, result.Failed == 0, "", "", nil, func() map[string]string {
		return map[string]string{
			"total":     fmt.Sprint(result.Total),
			"refreshed": fmt.Sprint(result.Refreshed),
			"failed":    fmt.Sprint(result.Failed),
			"skipped":   fmt.Sprint(result.Skipped),
			"duration":  durationMillis(elapsed),
		}
	})
	log.WithFields(logrus.Fields{
		"total":     result.Total,
		"refreshed": result.Refreshed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"duration":  elapsed,
	}).Info("Token refresh run completed")

	return result, nil
}
