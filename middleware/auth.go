package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

type userContextKey struct{}

// UserFromContext returns the user info stored by RequireAuth.
func UserFromContext(ctx context.Context) (session.UserInfo, bool) {
	user, ok := ctx.Value(userContextKey{}).(session.UserInfo)
	return user, ok
}

// RequireAuth admits only requests whose session is logged in, refreshing
// near-expiry tokens on the way. It must run inside Session.
//
// Unauthenticated browsers are redirected to loginPath with a return_to
// parameter; requests accepting JSON get a 401 body instead. Storage
// failures are 500s.
func RequireAuth(engine *goSession.Engine, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h, ok := FromContext(r.Context())
			if !ok || engine == nil {
				writeError(w, http.StatusInternalServerError, "session middleware not installed")
				return
			}

			user, rec, err := engine.AuthenticatedUser(r.Context(), h.Record())
			h.Replace(rec)
			if err != nil {
				if errors.Is(err, goSession.ErrStorage) && !errors.Is(err, goSession.ErrUnauthenticated) {
					writeError(w, http.StatusInternalServerError, "session storage unavailable")
					return
				}
				if wantsJSON(r) {
					writeError(w, http.StatusUnauthorized, "unauthenticated")
					return
				}
				http.Redirect(w, r, loginURL(loginPath, r), http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loginURL(loginPath string, r *http.Request) string {
	if loginPath == "" {
		loginPath = "/auth/login"
	}
	q := url.Values{}
	q.Set("return_to", r.URL.RequestURI())
	return loginPath + "?" + q.Encode()
}

func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
