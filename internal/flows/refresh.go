package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/session"
)

// RefreshKind classifies the result of one session refresh.
type RefreshKind int

const (
	// RefreshNotNeeded means the access token is outside the refresh window.
	RefreshNotNeeded RefreshKind = iota
	// RefreshDone means new tokens were persisted by this call.
	RefreshDone
	// RefreshNotAuthenticated means the session holds no tokens.
	RefreshNotAuthenticated
	// RefreshSuperseded means another writer refreshed the session first.
	RefreshSuperseded
	// RefreshFailed means the provider or storage failed; Err says which.
	RefreshFailed
)

// DefaultRefreshAttempts bounds compare-and-swap retries for one refresh.
const DefaultRefreshAttempts = 3

// RefreshStore is the slice of session.Store the refresh flow needs.
type RefreshStore interface {
	LoadID(ctx context.Context, id string) (*session.Record, error)
	SaveIfCurrent(ctx context.Context, rec *session.Record) (string, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now             func() time.Time
	Threshold       time.Duration
	DefaultLifetime time.Duration
	Refresh         func(ctx context.Context, refreshToken string) (*provider.Token, error)
	Store           RefreshStore
	MaxAttempts     int
}

// RefreshResult reports what RunRefresh did. Record is the session as it is
// now stored (or rec unchanged when nothing could be written).
type RefreshResult struct {
	Kind   RefreshKind
	Err    error
	Record *session.Record
}

// RunRefresh refreshes rec's tokens when they expire within the threshold and
// persists them with a compare-and-swap save.
//
// Exactly one of several concurrent refreshes of the same session persists.
// A loser either finds the winner's tokens on reload (RefreshSuperseded) or
// gets the provider's rejection of the already-rotated refresh token.
func RunRefresh(ctx context.Context, rec *session.Record, deps RefreshDeps) RefreshResult {
	if rec == nil || !rec.Data.Auth.IsAuthenticated {
		return RefreshResult{Kind: RefreshNotAuthenticated, Record: rec}
	}
	if !rec.Data.Auth.ExpiresWithin(deps.Now(), deps.Threshold) {
		return RefreshResult{Kind: RefreshNotNeeded, Record: rec}
	}

	tok, err := deps.Refresh(ctx, rec.Data.Auth.RefreshToken)
	if err != nil {
		if errors.Is(err, provider.ErrRefreshTokenInvalid) {
			return rejectRefresh(ctx, rec, err, deps)
		}
		return RefreshResult{Kind: RefreshFailed, Err: err, Record: rec}
	}

	auth := AuthFromToken(tok, rec.Data.Auth, deps.Now(), deps.DefaultLifetime)
	return persistRefresh(ctx, rec, auth, deps)
}

func persistRefresh(ctx context.Context, rec *session.Record, auth session.AuthState, deps RefreshDeps) RefreshResult {
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultRefreshAttempts
	}

	current := rec
	for range attempts {
		next := current.Clone()
		next.Data.Auth = auth.Clone()

		_, err := deps.Store.SaveIfCurrent(ctx, next)
		if err == nil {
			return RefreshResult{Kind: RefreshDone, Record: next}
		}
		if !errors.Is(err, session.ErrConflict) {
			return RefreshResult{Kind: RefreshFailed, Err: err, Record: rec}
		}

		latest, err := deps.Store.LoadID(ctx, rec.ID)
		if err != nil {
			return RefreshResult{Kind: RefreshFailed, Err: err, Record: rec}
		}
		if latest == nil {
			return RefreshResult{Kind: RefreshFailed, Err: session.ErrConflict, Record: rec}
		}

		// Some other field changed (or a rejected refresh cleared the
		// tokens): apply ours on top. Different tokens mean another
		// refresh won.
		if latest.Data.Auth.IsAuthenticated && !sameTokens(latest.Data.Auth, rec.Data.Auth) {
			return RefreshResult{Kind: RefreshSuperseded, Record: latest}
		}
		current = latest
	}

	return RefreshResult{Kind: RefreshFailed, Err: session.ErrConflict, Record: rec}
}

// rejectRefresh handles a refresh token the provider no longer accepts. If a
// concurrent refresh already stored new tokens the session is superseded;
// otherwise the tokens are cleared so the session is not retried forever.
func rejectRefresh(ctx context.Context, rec *session.Record, cause error, deps RefreshDeps) RefreshResult {
	for range 2 {
		latest, err := deps.Store.LoadID(ctx, rec.ID)
		if err != nil {
			return RefreshResult{Kind: RefreshFailed, Err: errors.Join(cause, err), Record: rec}
		}
		if latest == nil {
			return RefreshResult{Kind: RefreshFailed, Err: cause, Record: rec}
		}
		if !latest.Data.Auth.IsAuthenticated {
			return RefreshResult{Kind: RefreshFailed, Err: cause, Record: latest}
		}
		if !sameTokens(latest.Data.Auth, rec.Data.Auth) {
			return RefreshResult{Kind: RefreshSuperseded, Record: latest}
		}

		cleared := latest.Clone()
		cleared.Data.Auth = session.AuthState{}
		_, err = deps.Store.SaveIfCurrent(ctx, cleared)
		if err == nil {
			return RefreshResult{Kind: RefreshFailed, Err: cause, Record: cleared}
		}
		if !errors.Is(err, session.ErrConflict) {
			return RefreshResult{Kind: RefreshFailed, Err: errors.Join(cause, err), Record: rec}
		}
	}
	return RefreshResult{Kind: RefreshFailed, Err: cause, Record: rec}
}

func sameTokens(a, b session.AuthState) bool {
	return a.AccessToken == b.AccessToken && a.RefreshToken == b.RefreshToken
}
