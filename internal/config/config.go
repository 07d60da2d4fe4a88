// Package config loads sessiond configuration from a YAML file and
// GOSESSION_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/storage"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GOSESSION_"

// Config is the file and environment representation of a sessiond
// deployment. EngineConfig converts it to the engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Cookie  CookieConfig  `yaml:"cookie" envPrefix:"COOKIE_"`
	OAuth   OAuthConfig   `yaml:"oauth" envPrefix:"OAUTH_"`
	Refresh RefreshConfig `yaml:"refresh" envPrefix:"REFRESH_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Audit   AuditConfig   `yaml:"audit" envPrefix:"AUDIT_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	LoginPath         string        `yaml:"login_path" env:"LOGIN_PATH"`
	CallbackPath      string        `yaml:"callback_path" env:"CALLBACK_PATH"`
	// RefreshRate limits calls to the batch refresh route, in requests per
	// second. Zero disables the limit.
	RefreshRate  float64 `yaml:"refresh_rate" env:"REFRESH_RATE"`
	RefreshBurst int     `yaml:"refresh_burst" env:"REFRESH_BURST"`
}

// SessionConfig holds session lifetime and signing settings.
type SessionConfig struct {
	Secrets   []string      `yaml:"secrets" env:"SECRETS" envSeparator:","`
	MaxAge    time.Duration `yaml:"max_age" env:"MAX_AGE"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// CookieConfig holds session cookie attributes. SameSite is one of lax,
// strict or none.
type CookieConfig struct {
	Name     string `yaml:"name" env:"NAME"`
	Path     string `yaml:"path" env:"PATH"`
	Domain   string `yaml:"domain" env:"DOMAIN"`
	Secure   bool   `yaml:"secure" env:"SECURE"`
	SameSite string `yaml:"same_site" env:"SAME_SITE"`
}

// OAuthConfig holds the provider client registration.
type OAuthConfig struct {
	Issuer               string        `yaml:"issuer" env:"ISSUER"`
	ClientID             string        `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret         string        `yaml:"client_secret" env:"CLIENT_SECRET"`
	Scopes               []string      `yaml:"scopes" env:"SCOPES" envSeparator:","`
	Audience             string        `yaml:"audience" env:"AUDIENCE"`
	CallbackURL          string        `yaml:"callback_url" env:"CALLBACK_URL"`
	Discovery            bool          `yaml:"discovery" env:"DISCOVERY"`
	AuthorizePath        string        `yaml:"authorize_path" env:"AUTHORIZE_PATH"`
	TokenPath            string        `yaml:"token_path" env:"TOKEN_PATH"`
	AuthStyle            string        `yaml:"auth_style" env:"AUTH_STYLE"`
	ProviderTimeout      time.Duration `yaml:"provider_timeout" env:"PROVIDER_TIMEOUT"`
	DefaultTokenLifetime time.Duration `yaml:"default_token_lifetime" env:"DEFAULT_TOKEN_LIFETIME"`
}

// RefreshConfig holds proactive refresh settings.
type RefreshConfig struct {
	Threshold        time.Duration `yaml:"threshold" env:"THRESHOLD"`
	BatchConcurrency int           `yaml:"batch_concurrency" env:"BATCH_CONCURRENCY"`
	APIKey           string        `yaml:"api_key" env:"API_KEY"`
}

// StorageConfig selects and configures the session backend.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`

	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`

	RedisAddrs    []string `yaml:"redis_addrs" env:"REDIS_ADDRS" envSeparator:","`
	RedisUsername string   `yaml:"redis_username" env:"REDIS_USERNAME"`
	RedisPassword string   `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int      `yaml:"redis_db" env:"REDIS_DB"`
	RedisTLS      bool     `yaml:"redis_tls" env:"REDIS_TLS"`

	SQLitePath          string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	SQLitePurgeInterval time.Duration `yaml:"sqlite_purge_interval" env:"SQLITE_PURGE_INTERVAL"`
}

// AuditConfig controls the audit dispatcher. Events go to the log when
// enabled.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters and the /metrics route.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ENABLED"`
	EnableLatencyHistograms bool `yaml:"latency_histograms" env:"LATENCY_HISTOGRAMS"`
}

// Default returns the configuration used when neither file nor environment
// set a value.
func Default() *Config {
	d := goSession.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			LoginPath:         "/auth/login",
			CallbackPath:      "/login",
			RefreshRate:       1,
			RefreshBurst:      2,
		},
		Session: SessionConfig{
			MaxAge:    d.Session.MaxAge,
			KeyPrefix: d.Session.KeyPrefix,
		},
		Cookie: CookieConfig{
			Name:     d.Cookie.Name,
			Path:     d.Cookie.Path,
			Secure:   d.Cookie.Secure,
			SameSite: "lax",
		},
		OAuth: OAuthConfig{
			Scopes:               append([]string(nil), d.OAuth.Scopes...),
			ProviderTimeout:      d.OAuth.ProviderTimeout,
			DefaultTokenLifetime: d.OAuth.DefaultTokenLifetime,
		},
		Refresh: RefreshConfig{
			Threshold:        d.Refresh.Threshold,
			BatchConcurrency: d.Refresh.BatchConcurrency,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Audit: AuditConfig{
			Enabled:    d.Audit.Enabled,
			BufferSize: d.Audit.BufferSize,
			DropIfFull: d.Audit.DropIfFull,
		},
		Metrics: MetricsConfig{
			Enabled:                 d.Metrics.Enabled,
			EnableLatencyHistograms: d.Metrics.EnableLatencyHistograms,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then GOSESSION_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks settings that only this package understands. Engine
// settings are validated when the engine is built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.LoginPath, "/") {
		return errors.New("server.login_path must start with /")
	}
	if !strings.HasPrefix(c.Server.CallbackPath, "/") {
		return errors.New("server.callback_path must start with /")
	}
	if c.Server.RefreshRate < 0 {
		return errors.New("server.refresh_rate must be >= 0")
	}
	if c.Server.RefreshRate > 0 && c.Server.RefreshBurst < 1 {
		return errors.New("server.refresh_burst must be >= 1 when refresh_rate is set")
	}
	if _, err := parseSameSite(c.Cookie.SameSite); err != nil {
		return err
	}
	if _, err := c.backend(); err != nil {
		return err
	}
	return nil
}

// EngineConfig converts the loaded configuration into the engine configuration.
func (c *Config) EngineConfig() (goSession.Config, error) {
	sameSite, err := parseSameSite(c.Cookie.SameSite)
	if err != nil {
		return goSession.Config{}, err
	}
	backend, err := c.backend()
	if err != nil {
		return goSession.Config{}, err
	}

	out := goSession.DefaultConfig()
	out.Session = goSession.SessionConfig{
		Secrets:   append([]string(nil), c.Session.Secrets...),
		MaxAge:    c.Session.MaxAge,
		KeyPrefix: c.Session.KeyPrefix,
	}
	out.Cookie = goSession.CookieConfig{
		Name:     c.Cookie.Name,
		Path:     c.Cookie.Path,
		Domain:   c.Cookie.Domain,
		Secure:   c.Cookie.Secure,
		SameSite: sameSite,
	}
	out.OAuth = goSession.OAuthConfig{
		Issuer:               c.OAuth.Issuer,
		ClientID:             c.OAuth.ClientID,
		ClientSecret:         c.OAuth.ClientSecret,
		Scopes:               append([]string(nil), c.OAuth.Scopes...),
		Audience:             c.OAuth.Audience,
		CallbackURL:          c.OAuth.CallbackURL,
		Discovery:            c.OAuth.Discovery,
		AuthorizePath:        c.OAuth.AuthorizePath,
		TokenPath:            c.OAuth.TokenPath,
		AuthStyle:            c.OAuth.AuthStyle,
		ProviderTimeout:      c.OAuth.ProviderTimeout,
		DefaultTokenLifetime: c.OAuth.DefaultTokenLifetime,
	}
	out.Refresh = goSession.RefreshConfig{
		Threshold:        c.Refresh.Threshold,
		BatchConcurrency: c.Refresh.BatchConcurrency,
		APIKey:           c.Refresh.APIKey,
	}
	out.Storage = backend
	out.Audit = goSession.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	out.Metrics = goSession.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.EnableLatencyHistograms,
	}
	return out, nil
}

func (c *Config) backend() (storage.Backend, error) {
	kind, err := storage.ParseKind(c.Storage.Backend)
	if err != nil {
		return nil, err
	}
	switch kind.(type) {
	case storage.Redis:
		return storage.Redis{
			Addrs:    append([]string(nil), c.Storage.RedisAddrs...),
			Username: c.Storage.RedisUsername,
			Password: c.Storage.RedisPassword,
			DB:       c.Storage.RedisDB,
			TLS:      c.Storage.RedisTLS,
		}, nil
	case storage.SQLite:
		return storage.SQLite{
			Path:          c.Storage.SQLitePath,
			PurgeInterval: c.Storage.SQLitePurgeInterval,
		}, nil
	default:
		return storage.Memory{CleanupInterval: c.Storage.CleanupInterval}, nil
	}
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("cookie.same_site must be lax, strict or none, got %q", v)
	}
}
