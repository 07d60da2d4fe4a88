package session

import (
	"maps"
	"time"
)

// UserInfo holds identity claims returned by the provider (for example the
// decoded ID token). Its schema belongs to the provider.
type UserInfo map[string]any

// AuthState is the reserved authentication sub-record of a session.
//
// ExpiresAt is the access token expiry in epoch seconds and is the only input
// to refresh decisions.
type AuthState struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	AccessToken     string   `json:"accessToken,omitempty"`
	IDToken         string   `json:"idToken,omitempty"`
	RefreshToken    string   `json:"refreshToken,omitempty"`
	ExpiresAt       int64    `json:"expiresAt,omitempty"`
	UserInfo        UserInfo `json:"userInfo,omitempty"`
}

// Validate enforces that an authenticated state carries an access token and
// an expiry.
func (a AuthState) Validate() error {
	if !a.IsAuthenticated {
		return nil
	}
	if a.AccessToken == "" {
		return ErrAuthMissingAccessToken
	}
	if a.ExpiresAt == 0 {
		return ErrAuthMissingExpiry
	}
	return nil
}

// ExpiresWithin reports whether the access token expires at or before
// now+window. Already expired tokens report true.
func (a AuthState) ExpiresWithin(now time.Time, window time.Duration) bool {
	return a.ExpiresAt <= now.Add(window).Unix()
}

// Clone returns a deep copy of the mutable fields.
func (a AuthState) Clone() AuthState {
	a.UserInfo = cloneMap(a.UserInfo)
	return a
}

// Data is the typed session payload: the reserved authentication state, the
// in-flight login fields and an untyped extension map for application data.
type Data struct {
	Auth AuthState `json:"auth"`

	// OAuthState is the single-use CSRF token issued with the authorization URL.
	OAuthState string `json:"oauthState,omitempty"`
	// OAuthRedirectURI is the redirect_uri sent with the authorization request;
	// the code exchange must repeat it.
	OAuthRedirectURI string `json:"oauthRedirectUri,omitempty"`
	// ReturnTo is where the callback sends the browser after login.
	ReturnTo string `json:"returnTo,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep copy. Nested values inside Extra are copied one level
// deep; values stored there should be treated as immutable.
func (d Data) Clone() Data {
	d.Auth = d.Auth.Clone()
	d.Extra = cloneMap(d.Extra)
	return d
}

// Record is one persisted session.
type Record struct {
	ID   string
	Data Data

	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time

	// Revision increases by one on every save. SaveIfCurrent uses it to
	// detect concurrent writers.
	Revision uint64
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Data = r.Data.Clone()
	return &out
}

// Expired reports whether the record's own expiry has passed.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

func cloneMap[M ~map[string]any](m M) M {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
