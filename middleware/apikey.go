package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	goSession "github.com/MrEthical07/goSession"
)

// RequireAPIKey guards machine routes with a static bearer key.
//
// An empty key means the route was never configured: every request is logged
// at Error and gets a 500, so a missing secret is loud rather than an open
// door. A missing or wrong key gets a 401. Keys are compared in constant time.
func RequireAPIKey(key string, log logrus.FieldLogger) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(key))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				if log != nil {
					log.WithError(goSession.ErrConfiguration).
						WithField("path", r.URL.Path).
						Error("API key is not configured; rejecting request")
				}
				writeError(w, http.StatusInternalServerError, "api key not configured")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			got := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
