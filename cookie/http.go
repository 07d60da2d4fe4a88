package cookie

import (
	"net/http"
	"strings"
	"time"
)

// DefaultName is used when Options.Name is empty.
const DefaultName = "session"

const hostPrefix = "__Host-"

// Options defines how session cookies are issued.
type Options struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// normalize applies safe defaults. Cookies are always HttpOnly. A __Host-
// name forces Secure, Path "/" and no Domain, as browsers require.
func (o Options) normalize() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	if strings.HasPrefix(o.Name, hostPrefix) {
		o.Secure = true
		o.Path = "/"
		o.Domain = ""
	}
	return o
}

// CookieName returns the effective cookie name.
func (o Options) CookieName() string {
	return o.normalize().Name
}

// Write issues the session cookie.
func Write(w http.ResponseWriter, opts Options, value string, expiresAt time.Time) {
	opts = opts.normalize()

	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// Clear removes the session cookie from the client.
func Clear(w http.ResponseWriter, opts Options) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// Read returns the raw session cookie value from r, or "" when absent.
func Read(r *http.Request, opts Options) string {
	c, err := r.Cookie(opts.normalize().Name)
	if err != nil {
		return ""
	}
	return c.Value
}
