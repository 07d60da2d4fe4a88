package goSession

import (
	"fmt"
	"net/http"
	"strings"
)

// LintSeverity ranks configuration warnings.
type LintSeverity uint8

const (
	// LintInfo marks a setting worth knowing about.
	LintInfo LintSeverity = iota
	// LintWarn marks a setting that weakens security or behavior.
	LintWarn
	// LintHigh marks a setting that should not reach production.
	LintHigh
)

// String returns the lowercase severity name.
func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is one advisory finding. Unlike Validate errors, warnings never
// prevent an Engine from being built.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings returned by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, len(r))
	for i, w := range r {
		codes[i] = w.Code
	}
	return codes
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins warnings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	selected := r.BySeverity(min)
	if len(selected) == 0 {
		return nil
	}
	msgs := make([]string, len(selected))
	for i, w := range selected {
		msgs[i] = w.Code + ": " + w.Message
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
}

// Lint reports settings that are valid but risky.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, msg string) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if !c.Cookie.Secure && !strings.HasPrefix(c.Cookie.Name, "__Host-") {
		add("cookie_insecure", LintHigh, "session cookie is sent over plain HTTP")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode {
		add("cookie_samesite_none", LintWarn, "SameSite=None sends the session cookie on cross-site requests")
	}
	for _, s := range c.Session.Secrets {
		if len(s) < 32 {
			add("secret_short", LintHigh, "session secrets should be at least 32 bytes")
			break
		}
	}
	if c.Refresh.APIKey == "" {
		add("refresh_api_key_missing", LintWarn, "refresh trigger route is disabled")
	}
	if c.Refresh.Threshold >= c.OAuth.DefaultTokenLifetime {
		add("refresh_threshold_large", LintWarn, "refresh threshold is not shorter than the default token lifetime; tokens refresh on every request")
	}
	if !c.OAuth.Discovery {
		add("id_token_unverified", LintInfo, "OIDC discovery is off; ID token claims are decoded without signature verification")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not recorded")
	}
	if c.Storage != nil && c.Storage.Kind() == "memory" {
		add("storage_memory", LintInfo, "sessions are kept in process memory and lost on restart")
	}
	return out
}
