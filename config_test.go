package goSession

import (
	"errors"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/storage"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secrets = []string{"0123456789abcdef0123456789abcdef"}
	cfg.OAuth.Issuer = "https://idp.test"
	cfg.OAuth.ClientID = "client"
	cfg.OAuth.CallbackURL = "https://app.test/login"
	cfg.Refresh.APIKey = "batch-key"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "no secrets", mutate: func(c *Config) { c.Session.Secrets = nil }},
		{name: "blank secret", mutate: func(c *Config) { c.Session.Secrets = []string{"a", " "} }},
		{name: "zero max age", mutate: func(c *Config) { c.Session.MaxAge = 0 }},
		{name: "empty prefix", mutate: func(c *Config) { c.Session.KeyPrefix = "" }},
		{name: "negative threshold", mutate: func(c *Config) { c.Refresh.Threshold = -time.Second }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Refresh.BatchConcurrency = 0 }},
		{name: "zero provider timeout", mutate: func(c *Config) { c.OAuth.ProviderTimeout = 0 }},
		{name: "zero default lifetime", mutate: func(c *Config) { c.OAuth.DefaultTokenLifetime = 0 }},
		{name: "redis without addrs", mutate: func(c *Config) { c.Storage = storage.Redis{} }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage = storage.SQLite{} }},
		{name: "audit without buffer", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestConfigValidateOAuth(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.ValidateOAuth(); err != nil {
		t.Fatalf("expected valid oauth config, got %v", err)
	}

	for _, mutate := range []func(*Config){
		func(c *Config) { c.OAuth.Issuer = "" },
		func(c *Config) { c.OAuth.ClientID = " " },
		func(c *Config) { c.OAuth.CallbackURL = "" },
	} {
		cfg := validTestConfig()
		mutate(&cfg)
		if err := cfg.ValidateOAuth(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	}
}

func TestBuildConfigImmutabilityAgainstExternalMutation(t *testing.T) {
	cfg := validTestConfig()
	engine, err := New().WithConfig(cfg).WithProvider(&fakeProvider{}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	cfg.Session.Secrets[0] = "mutated"
	cfg.OAuth.Scopes[0] = "mutated"

	got := engine.Config()
	if got.Session.Secrets[0] == "mutated" || got.OAuth.Scopes[0] == "mutated" {
		t.Fatal("engine config must not alias caller slices")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(validTestConfig()).WithProvider(&fakeProvider{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildRequiresOAuthWithoutInjectedProvider(t *testing.T) {
	cfg := validTestConfig()
	cfg.OAuth.Issuer = ""
	if _, err := New().WithConfig(cfg).Build(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLintDefaults(t *testing.T) {
	cfg := validTestConfig()
	codes := cfg.Lint().Codes()

	for _, unwanted := range []string{"cookie_insecure", "secret_short", "refresh_api_key_missing", "refresh_threshold_large"} {
		if slices.Contains(codes, unwanted) {
			t.Errorf("unexpected warning %q", unwanted)
		}
	}
	if !slices.Contains(codes, "storage_memory") {
		t.Error("expected storage_memory warning for the default backend")
	}
}

func TestLintFindings(t *testing.T) {
	cfg := validTestConfig()
	cfg.Cookie.Secure = false
	cfg.Cookie.SameSite = http.SameSiteNoneMode
	cfg.Session.Secrets = []string{"short"}
	cfg.Refresh.APIKey = ""
	cfg.Refresh.Threshold = 2 * time.Hour

	res := cfg.Lint()
	for _, code := range []string{"cookie_insecure", "cookie_samesite_none", "secret_short", "refresh_api_key_missing", "refresh_threshold_large"} {
		if !slices.Contains(res.Codes(), code) {
			t.Errorf("expected warning %q", code)
		}
	}

	high := res.BySeverity(LintHigh)
	if len(high) != 2 {
		t.Fatalf("expected two high findings, got %+v", high)
	}
	if err := res.AsError(LintHigh); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if err := (LintResult{}).AsError(LintInfo); err != nil {
		t.Fatalf("expected nil for empty result, got %v", err)
	}
}

func TestHostPrefixedCookieIsNotFlaggedInsecure(t *testing.T) {
	cfg := validTestConfig()
	cfg.Cookie.Secure = false
	cfg.Cookie.Name = "__Host-session"
	if slices.Contains(cfg.Lint().Codes(), "cookie_insecure") {
		t.Fatal("__Host- cookies are always secure")
	}
}
