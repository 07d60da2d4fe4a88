package goSession

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/storage"
)

// Config is the process-wide configuration. It is built once at startup and
// passed to New; nothing in this module reads configuration from globals.
type Config struct {
	Session SessionConfig
	Cookie  CookieConfig
	OAuth   OAuthConfig
	Refresh RefreshConfig
	// Storage selects the backend when no driver is injected with
	// Builder.WithDriver.
	Storage storage.Backend
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and cookie signing.
type SessionConfig struct {
	// Secrets signs cookies. Secrets[0] signs; every entry verifies, so a new
	// secret is rolled out by prepending it.
	Secrets []string
	// MaxAge is the session lifetime, renewed on every save.
	MaxAge time.Duration
	// KeyPrefix namespaces session keys in storage.
	KeyPrefix string
}

// CookieConfig controls how the session cookie is issued.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Options converts the configuration into cookie package options.
func (c CookieConfig) Options() cookie.Options {
	return cookie.Options{
		Name:     c.Name,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig describes the client registration at the OAuth2/OIDC provider.
type OAuthConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Audience     string
	// CallbackURL is the default redirect_uri.
	CallbackURL string

	// Discovery loads endpoints from the issuer's OIDC metadata and verifies
	// ID token signatures.
	Discovery     bool
	AuthorizePath string
	TokenPath     string
	AuthStyle     string

	// ProviderTimeout bounds every token endpoint call.
	ProviderTimeout time.Duration
	// DefaultTokenLifetime is used when a token response omits expires_in.
	DefaultTokenLifetime time.Duration
}

// RefreshConfig controls proactive token refresh.
type RefreshConfig struct {
	// Threshold is how close to expiry an access token must be before it is
	// refreshed, inline or by the batch job.
	Threshold time.Duration
	// BatchConcurrency bounds concurrent provider calls in the batch job.
	BatchConcurrency int
	// APIKey protects the batch trigger route. Empty disables the route.
	APIKey string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a configuration with every default applied. Secrets,
// issuer, client id and callback still have to be provided.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			MaxAge:    24 * time.Hour,
			KeyPrefix: "sess:",
		},
		Cookie: CookieConfig{
			Name:     cookie.DefaultName,
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
		OAuth: OAuthConfig{
			Scopes:               []string{"openid", "profile", "email", "offline_access"},
			ProviderTimeout:      10 * time.Second,
			DefaultTokenLifetime: time.Hour,
		},
		Refresh: RefreshConfig{
			Threshold:        5 * time.Minute,
			BatchConcurrency: 8,
		},
		Storage: storage.Memory{},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.Secrets = slices.Clone(cfg.Session.Secrets)
	out.OAuth.Scopes = slices.Clone(cfg.OAuth.Scopes)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// Validate checks the settings every Engine needs. OAuth client fields are
// checked separately by ValidateOAuth because tests and embedders may inject
// their own provider.
func (c *Config) Validate() error {
	if len(c.Session.Secrets) == 0 {
		return configErr("session secrets must not be empty")
	}
	for i, s := range c.Session.Secrets {
		if strings.TrimSpace(s) == "" {
			return configErr("session secret %d is empty", i)
		}
	}
	if c.Session.MaxAge <= 0 {
		return configErr("session max age must be > 0")
	}
	if c.Session.KeyPrefix == "" {
		return configErr("session key prefix must not be empty")
	}

	if c.Refresh.Threshold < 0 {
		return configErr("refresh threshold must be >= 0")
	}
	if c.Refresh.BatchConcurrency <= 0 {
		return configErr("refresh batch concurrency must be > 0")
	}

	if c.OAuth.ProviderTimeout <= 0 {
		return configErr("oauth provider timeout must be > 0")
	}
	if c.OAuth.DefaultTokenLifetime <= 0 {
		return configErr("oauth default token lifetime must be > 0")
	}

	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return configErr("storage: %v", err)
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("audit buffer size must be > 0")
	}
	return nil
}

// ValidateOAuth checks the fields needed to build the default provider.
func (c *Config) ValidateOAuth() error {
	if strings.TrimSpace(c.OAuth.Issuer) == "" {
		return configErr("oauth issuer is required")
	}
	if strings.TrimSpace(c.OAuth.ClientID) == "" {
		return configErr("oauth client id is required")
	}
	if strings.TrimSpace(c.OAuth.CallbackURL) == "" {
		return configErr("oauth callback url is required")
	}
	return nil
}
