package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/provider"
)

// TokenProvider is the OAuth2 client the Engine talks to. *provider.OAuth2
// implements it; tests inject fakes with Builder.WithProvider.
//
// Implementations should return errors wrapping provider.ErrProvider or
// provider.ErrRefreshTokenInvalid. Other errors are wrapped as ErrProvider.
type TokenProvider interface {
	AuthCodeURL(state, redirectURI string) string
	Exchange(ctx context.Context, code, redirectURI string) (*provider.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*provider.Token, error)
}

// RefreshOutcome reports what RefreshSession did.
type RefreshOutcome uint8

const (
	// OutcomeNoRefreshNeeded means the access token is outside the refresh
	// threshold; nothing was called or written.
	OutcomeNoRefreshNeeded RefreshOutcome = iota
	// OutcomeRefreshed means new tokens were obtained and persisted.
	OutcomeRefreshed
	// OutcomeNotAuthenticated means the session holds no tokens.
	OutcomeNotAuthenticated
	// OutcomeSuperseded means a concurrent refresh persisted first; the
	// returned record carries its tokens.
	OutcomeSuperseded
	// OutcomeFailed means the refresh failed; the error says why.
	OutcomeFailed
)

// String returns a lowercase label for logs.
func (o RefreshOutcome) String() string {
	switch o {
	case OutcomeNoRefreshNeeded:
		return "no_refresh_needed"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeNotAuthenticated:
		return "not_authenticated"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RefreshJobResult aggregates one RefreshExpiringTokens run.
//
// Total is the number of sessions considered: authenticated with an access
// token inside the refresh threshold, plus sessions that failed to load.
// Total = Refreshed + Failed + Skipped, where Skipped counts sessions a
// concurrent writer refreshed first.
type RefreshJobResult struct {
	Total     int `json:"total"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
