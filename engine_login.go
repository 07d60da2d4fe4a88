package goSession

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

// AuthorizationURL builds the provider authorization URL carrying state. An
// empty redirectURI uses the configured callback URL.
func (e *Engine) AuthorizationURL(state, redirectURI string) string {
	if redirectURI == "" {
		redirectURI = e.config.OAuth.CallbackURL
	}
	return e.provider.AuthCodeURL(state, redirectURI)
}

// BeginLogin stores a fresh CSRF state, the callback URI and the post-login
// target in rec, persists it and returns the authorization URL. A nil rec
// starts a new session.
//
// returnTo is reduced to a local path by SafeReturnTo.
func (e *Engine) BeginLogin(ctx context.Context, rec *session.Record, returnTo string) (string, *session.Record, error) {
	if e == nil || e.sessions == nil {
		return "", nil, ErrEngineNotReady
	}
	if rec == nil {
		var err error
		if rec, err = e.NewSession(); err != nil {
			return "", nil, err
		}
	}

	state, err := internal.NewStateToken()
	if err != nil {
		return "", rec, err
	}
	callback := e.config.OAuth.CallbackURL

	next := e.sessions.Update(rec, func(d session.Data) session.Data {
		d.OAuthState = state
		d.OAuthRedirectURI = callback
		d.ReturnTo = SafeReturnTo(returnTo)
		return d
	})
	if _, err := e.sessions.Save(ctx, next); err != nil {
		return "", rec, err
	}

	e.metricInc(MetricLoginStarted)
	e.emitAudit(ctx, auditEventLoginStarted, true, "", next.ID, nil, nil)

	return e.AuthorizationURL(state, callback), next, nil
}

// ExchangeCodeForTokens completes the OAuth callback.
//
// The stored state is cleared and persisted before the comparison, whatever
// its outcome. A mismatch, or a session that never started a login, returns
// ErrCSRFMismatch without contacting the provider. On success the session id
// is regenerated and the returned record is the one the cookie must now
// reference.
func (e *Engine) ExchangeCodeForTokens(ctx context.Context, rec *session.Record, code, state string) (session.AuthState, *session.Record, error) {
	if e == nil || e.sessions == nil {
		return session.AuthState{}, nil, ErrEngineNotReady
	}
	if rec == nil {
		var err error
		if rec, err = e.NewSession(); err != nil {
			return session.AuthState{}, nil, err
		}
	}

	res := flows.RunExchange(ctx, rec, code, state, e.flows.Login)
	log := e.log.WithField("session", shortID(rec.ID))

	switch res.Failure {
	case flows.ExchangeFailureNone:
	case flows.ExchangeFailureCSRF:
		e.metricInc(MetricCSRFMismatch)
		e.emitAudit(ctx, auditEventCSRFMismatch, false, "", rec.ID, res.Err, nil)
		log.Warn("OAuth callback state mismatch")
		return session.AuthState{}, res.Record, res.Err
	default:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", rec.ID, res.Err, nil)
		log.WithError(res.Err).Warn("OAuth code exchange failed")
		return session.AuthState{}, res.Record, res.Err
	}

	subject := subjectOf(res.Auth.UserInfo)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, subject, res.Record.ID, nil, nil)
	e.log.WithFields(logrus.Fields{
		"session": shortID(res.Record.ID),
		"subject": subject,
	}).Debug("Login completed")

	return res.Auth, res.Record, nil
}

// Logout destroys rec. The caller clears the cookie. Logging out a missing
// or already destroyed session succeeds.
func (e *Engine) Logout(ctx context.Context, rec *session.Record) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if rec == nil {
		return nil
	}
	if err := e.sessions.Destroy(ctx, rec); err != nil {
		return err
	}

	e.metricInc(MetricSessionDestroyed)
	e.emitAudit(ctx, auditEventLogout, true, subjectOf(rec.Data.Auth.UserInfo), rec.ID, nil, nil)
	return nil
}

// SafeReturnTo reduces a post-login target to a local absolute path. Anything
// that could leave the site (scheme, host, protocol-relative or backslash
// forms) becomes "/".
func SafeReturnTo(target string) string {
	if target == "" || target[0] != '/' {
		return "/"
	}
	if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return "/"
	}
	if strings.ContainsAny(target, "\r\n") {
		return "/"
	}
	return target
}
