package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrProvider wraps network and protocol failures talking to the provider.
var ErrProvider = errors.New("oauth provider error")

// ErrRefreshTokenInvalid is returned when the provider rejects a refresh
// grant (HTTP 400 or 401).
var ErrRefreshTokenInvalid = errors.New("refresh token invalid")

const (
	defaultAuthorizePath = "/authorize"
	defaultTokenPath     = "/oauth/token"
)

// Token is a normalized token endpoint response.
type Token struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	// ExpiresIn is the access token lifetime reported by the provider; zero
	// when the response carried no expiry.
	ExpiresIn time.Duration
	// Claims are the ID token claims, or nil when no ID token was returned.
	Claims map[string]any
}

// Config describes one OAuth2/OIDC client registration.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Audience is sent as the "audience" authorization parameter when set.
	Audience string
	// RedirectURL is the default redirect_uri (the callback route).
	RedirectURL string

	// Discovery loads endpoints and signing keys from
	// <issuer>/.well-known/openid-configuration and verifies ID tokens.
	Discovery bool
	// AuthorizePath and TokenPath are appended to Issuer when Discovery is off.
	AuthorizePath string
	TokenPath     string
	// AuthStyle is "header", "params" or "" for auto detection.
	AuthStyle string

	HTTPClient *http.Client
}

// OAuth2 implements the authorization-code and refresh grants.
type OAuth2 struct {
	oauth    oauth2.Config
	audience string
	verifier *oidc.IDTokenVerifier
	client   *http.Client
	parser   *jwt.Parser
}

// New builds a client. With Discovery enabled it fetches the provider
// metadata, so ctx bounds that network call.
func New(ctx context.Context, cfg Config) (*OAuth2, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("oauth config missing issuer or client id")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	issuer := strings.TrimRight(cfg.Issuer, "/")

	p := &OAuth2{
		audience: cfg.Audience,
		client:   client,
		parser:   jwt.NewParser(),
	}

	var endpoint oauth2.Endpoint
	if cfg.Discovery {
		oidcProvider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: oidc discovery: %v", ErrProvider, err)
		}
		endpoint = oidcProvider.Endpoint()
		p.verifier = oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	} else {
		authorizePath := cfg.AuthorizePath
		if authorizePath == "" {
			authorizePath = defaultAuthorizePath
		}
		tokenPath := cfg.TokenPath
		if tokenPath == "" {
			tokenPath = defaultTokenPath
		}
		endpoint = oauth2.Endpoint{
			AuthURL:  issuer + authorizePath,
			TokenURL: issuer + tokenPath,
		}
	}

	switch strings.ToLower(cfg.AuthStyle) {
	case "header":
		endpoint.AuthStyle = oauth2.AuthStyleInHeader
	case "params":
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	case "":
	default:
		return nil, fmt.Errorf("unknown oauth auth style %q", cfg.AuthStyle)
	}

	p.oauth = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}
	return p, nil
}

// AuthCodeURL returns the authorization URL for state. An empty redirectURI
// uses the configured callback.
func (p *OAuth2) AuthCodeURL(state, redirectURI string) string {
	opts := make([]oauth2.AuthCodeOption, 0, 2)
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}
	if p.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", p.audience))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

// Exchange redeems an authorization code. redirectURI must match the one used
// for the authorization request; empty uses the configured callback.
func (p *OAuth2) Exchange(ctx context.Context, code, redirectURI string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	tok, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, classify(err, false)
	}
	return p.normalize(ctx, tok, "")
}

// Refresh runs the refresh_token grant. When the provider does not rotate the
// refresh token, the returned Token keeps the one passed in.
func (p *OAuth2) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenInvalid
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classify(err, true)
	}
	return p.normalize(ctx, tok, refreshToken)
}

func (p *OAuth2) normalize(ctx context.Context, tok *oauth2.Token, previousRefresh string) (*Token, error) {
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", ErrProvider)
	}

	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = previousRefresh
	}
	if !tok.Expiry.IsZero() {
		out.ExpiresIn = time.Until(tok.Expiry).Round(time.Second)
	}

	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return out, nil
	}
	out.IDToken = raw

	claims, err := p.claims(ctx, raw)
	if err != nil {
		return nil, err
	}
	out.Claims = claims
	return out, nil
}

// claims verifies the ID token when discovery supplied signing keys. Without
// discovery the token came straight from the token endpoint over the client's
// TLS connection, so the claims are decoded without signature verification.
func (p *OAuth2) claims(ctx context.Context, raw string) (map[string]any, error) {
	if p.verifier != nil {
		idToken, err := p.verifier.Verify(oidc.ClientContext(ctx, p.client), raw)
		if err != nil {
			return nil, fmt.Errorf("%w: id_token verification failed: %v", ErrProvider, err)
		}
		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("%w: id_token claims: %v", ErrProvider, err)
		}
		return claims, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := p.parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: id_token parse: %v", ErrProvider, err)
	}
	return map[string]any(claims), nil
}

func classify(err error, refresh bool) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		if refresh && (status == http.StatusBadRequest || status == http.StatusUnauthorized) {
			return fmt.Errorf("%w: %s", ErrRefreshTokenInvalid, retrieveReason(re))
		}
		return fmt.Errorf("%w: token endpoint returned %d: %s", ErrProvider, status, retrieveReason(re))
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

func retrieveReason(re *oauth2.RetrieveError) string {
	if re.ErrorCode != "" {
		return re.ErrorCode
	}
	return http.StatusText(re.Response.StatusCode)
}
