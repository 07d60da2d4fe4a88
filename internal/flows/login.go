package flows

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/session"
)

// ExchangeFailureKind classifies callback failures for root-level mapping.
type ExchangeFailureKind int

const (
	ExchangeFailureNone ExchangeFailureKind = iota
	ExchangeFailureStorage
	ExchangeFailureCSRF
	ExchangeFailureProvider
)

// ExchangeStore is the slice of session.Store the callback flow needs.
type ExchangeStore interface {
	Save(ctx context.Context, rec *session.Record) (string, error)
	Regenerate(ctx context.Context, rec *session.Record) (*session.Record, error)
}

// LoginDeps captures callback flow dependencies.
type LoginDeps struct {
	Now             func() time.Time
	DefaultLifetime time.Duration
	Exchange        func(ctx context.Context, code, redirectURI string) (*provider.Token, error)
	Store           ExchangeStore
	CSRFMismatch    error
}

// ExchangeResult carries the authenticated state or failure metadata.
//
// Record is always the latest persisted version of the session: the
// regenerated record on success, the record with its CSRF state consumed on
// a CSRF or provider failure.
type ExchangeResult struct {
	Failure ExchangeFailureKind
	Err     error
	Auth    session.AuthState
	Record  *session.Record
}

// RunExchange completes the authorization-code callback for rec.
//
// The stored state is consumed and persisted before it is compared, so a
// state value can be presented at most once. A mismatch, or a session that
// never started a login, fails without contacting the provider.
func RunExchange(ctx context.Context, rec *session.Record, code, state string, deps LoginDeps) ExchangeResult {
	expected := rec.Data.OAuthState
	redirectURI := rec.Data.OAuthRedirectURI

	consumed := rec.Clone()
	consumed.Data.OAuthState = ""
	consumed.Data.OAuthRedirectURI = ""
	if _, err := deps.Store.Save(ctx, consumed); err != nil {
		return ExchangeResult{Failure: ExchangeFailureStorage, Err: err, Record: rec}
	}

	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		return ExchangeResult{Failure: ExchangeFailureCSRF, Err: deps.CSRFMismatch, Record: consumed}
	}

	tok, err := deps.Exchange(ctx, code, redirectURI)
	if err != nil {
		return ExchangeResult{Failure: ExchangeFailureProvider, Err: err, Record: consumed}
	}

	auth := AuthFromToken(tok, session.AuthState{}, deps.Now(), deps.DefaultLifetime)
	next := consumed.Clone()
	next.Data.Auth = auth

	regenerated, err := deps.Store.Regenerate(ctx, next)
	if err != nil {
		return ExchangeResult{Failure: ExchangeFailureStorage, Err: err, Record: consumed}
	}

	return ExchangeResult{Auth: auth.Clone(), Record: regenerated}
}
