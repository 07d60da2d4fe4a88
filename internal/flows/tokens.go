package flows

import (
	"maps"
	"time"

	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/session"
)

// AuthFromToken maps a token response onto an authenticated state.
//
// A zero ExpiresIn falls back to defaultLifetime. The ID token, refresh token
// and user info are carried over from prev when the response omits them,
// which is the normal shape of a refresh grant.
func AuthFromToken(tok *provider.Token, prev session.AuthState, now time.Time, defaultLifetime time.Duration) session.AuthState {
	lifetime := tok.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}

	auth := session.AuthState{
		IsAuthenticated: true,
		AccessToken:     tok.AccessToken,
		IDToken:         tok.IDToken,
		RefreshToken:    tok.RefreshToken,
		ExpiresAt:       now.Add(lifetime).Unix(),
	}
	if tok.Claims != nil {
		auth.UserInfo = session.UserInfo(maps.Clone(tok.Claims))
	}

	if auth.IDToken == "" {
		auth.IDToken = prev.IDToken
	}
	if auth.RefreshToken == "" {
		auth.RefreshToken = prev.RefreshToken
	}
	if auth.UserInfo == nil && prev.UserInfo != nil {
		auth.UserInfo = prev.Clone().UserInfo
	}
	return auth
}
