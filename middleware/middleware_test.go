package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
	"github.com/MrEthical07/goSession/storage/memory"
)

type stubProvider struct {
	refreshCalls atomic.Int32
}

func (p *stubProvider) AuthCodeURL(state, _ string) string {
	return "https://idp.test/authorize?state=" + state
}

func (p *stubProvider) Exchange(context.Context, string, string) (*provider.Token, error) {
	return &provider.Token{AccessToken: "at", RefreshToken: "rt", ExpiresIn: time.Hour}, nil
}

func (p *stubProvider) Refresh(_ context.Context, rt string) (*provider.Token, error) {
	p.refreshCalls.Add(1)
	return &provider.Token{AccessToken: "refreshed", RefreshToken: rt + "-next", ExpiresIn: time.Hour}, nil
}

// flakyDriver fails writes while failing is set.
type flakyDriver struct {
	*memory.Driver
	failing atomic.Bool
}

func (d *flakyDriver) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if d.failing.Load() {
		return errors.New("disk full")
	}
	return d.Driver.Set(ctx, key, value, ttl)
}

func newEngine(t *testing.T, driver storage.Driver, p goSession.TokenProvider) *goSession.Engine {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Session.Secrets = []string{"middleware-test-secret-0123456789"}
	cfg.OAuth.CallbackURL = "https://app.test/login"
	cfg.Refresh.APIKey = "k"

	logger, _ := logtest.NewNullLogger()
	if driver == nil {
		driver = memory.New(logger)
	}
	engine, err := goSession.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithDriver(driver).
		WithProvider(p).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func loggedInData(expiresIn time.Duration) session.Data {
	return session.Data{Auth: session.AuthState{
		IsAuthenticated: true,
		AccessToken:     "at",
		RefreshToken:    "rt",
		ExpiresAt:       time.Now().Add(expiresIn).Unix(),
		UserInfo:        session.UserInfo{"sub": "user-1"},
	}}
}

func TestSessionUntouchedVisitorGetsNoCookie(t *testing.T) {
	engine := newEngine(t, nil, &stubProvider{})
	handler := Session(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := FromContext(r.Context())
		require.True(t, ok)
		require.NotNil(t, h.Record())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Nil(t, sessionCookie(t, rr))
}

func TestSessionUpdatePersistsAndRoundTrips(t *testing.T) {
	engine := newEngine(t, nil, &stubProvider{})
	handler := Session(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := FromContext(r.Context())
		if r.URL.Path == "/set" {
			h.Update(func(d session.Data) session.Data {
				d.Extra = map[string]any{"cart": "3 items"}
				return d
			})
			_, _ = w.Write([]byte("ok"))
			return
		}
		_, _ = w.Write([]byte(h.Record().Data.Extra["cart"].(string)))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/set", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	c := sessionCookie(t, rr)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(c)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "3 items", rr.Body.String())
	assert.Nil(t, sessionCookie(t, rr), "unchanged session must not reissue the cookie")
}

func TestSessionForgedCookieStartsFresh(t *testing.T) {
	engine := newEngine(t, nil, &stubProvider{})
	rec, err := engine.Sessions().Create(context.Background(), session.Data{ReturnTo: "/secret"})
	require.NoError(t, err)
	forged, err := cookie.Sign(rec.ID, []string{"attacker-chosen-secret"})
	require.NoError(t, err)

	var seen *session.Record
	handler := Session(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := FromContext(r.Context())
		seen = h.Record()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: forged})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.NotEqual(t, rec.ID, seen.ID)
	assert.Empty(t, seen.Data.ReturnTo)
	c := sessionCookie(t, rr)
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)
}

func TestSessionSaveFailureIs500(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	driver := &flakyDriver{Driver: memory.New(logger)}
	engine := newEngine(t, driver, &stubProvider{})
	driver.failing.Store(true)

	handler := Session(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := FromContext(r.Context())
		h.Update(func(d session.Data) session.Data {
			d.ReturnTo = "/x"
			return d
		})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("handler body"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "handler body")
	assert.Nil(t, sessionCookie(t, rr))
}

func TestSessionRefreshesExpiringTokens(t *testing.T) {
	p := &stubProvider{}
	engine := newEngine(t, nil, p)
	ctx := context.Background()
	rec, err := engine.Sessions().Create(ctx, loggedInData(time.Minute))
	require.NoError(t, err)

	handler := Session(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := FromContext(r.Context())
		assert.Equal(t, "refreshed", h.Record().Data.Auth.AccessToken)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: engine.Sessions().Cookie(rec)})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, int32(1), p.refreshCalls.Load())
	assert.NotNil(t, sessionCookie(t, rr), "refreshed session reissues the cookie")
	stored, err := engine.Sessions().LoadID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "rt-next", stored.Data.Auth.RefreshToken)
}

func TestSessionUpdateKeepsConcurrentlyRefreshedTokens(t *testing.T) {
	engine := newEngine(t, nil, &stubProvider{})
	ctx := context.Background()
	rec, err := engine.Sessions().Create(ctx, loggedInData(time.Hour))
	require.NoError(t, err)

	handler := Session(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Another request stores new tokens while this one runs.
		other, err := engine.Sessions().LoadID(ctx, rec.ID)
		require.NoError(t, err)
		other.Data.Auth.AccessToken = "from-other-request"
		_, err = engine.Sessions().SaveIfCurrent(ctx, other)
		require.NoError(t, err)

		h, _ := FromContext(r.Context())
		h.Update(func(d session.Data) session.Data {
			d.ReturnTo = "/after"
			return d
		})
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: engine.Sessions().Cookie(rec)})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	stored, err := engine.Sessions().LoadID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "from-other-request", stored.Data.Auth.AccessToken)
	assert.Equal(t, "/after", stored.Data.ReturnTo)
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	engine := newEngine(t, nil, &stubProvider{})
	ctx := context.Background()
	rec, err := engine.Sessions().Create(ctx, loggedInData(time.Hour))
	require.NoError(t, err)

	handler := Session(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := FromContext(r.Context())
		require.NoError(t, h.Destroy(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: engine.Sessions().Cookie(rec)})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	c := sessionCookie(t, rr)
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)
	stored, err := engine.Sessions().LoadID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRequireAuth(t *testing.T) {
	engine := newEngine(t, nil, &stubProvider{})
	protected := Session(engine)(RequireAuth(engine, "/auth/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(user["sub"].(string)))
	})))

	t.Run("browser redirect", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/protected?x=1", nil))
		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/auth/login?return_to=%2Fapi%2Fprotected%3Fx%3D1", rr.Header().Get("Location"))
	})

	t.Run("json client", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
		req.Header.Set("Accept", "application/json")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"unauthenticated"}`, rr.Body.String())
	})

	t.Run("logged in", func(t *testing.T) {
		rec, err := engine.Sessions().Create(context.Background(), loggedInData(time.Hour))
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: engine.Sessions().Cookie(rec)})
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-1", rr.Body.String())
	})

	t.Run("without session middleware", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RequireAuth(engine, "")(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestRequireAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{name: "not configured", key: "", header: "Bearer anything", want: http.StatusInternalServerError},
		{name: "missing", key: "secret", header: "", want: http.StatusUnauthorized},
		{name: "wrong", key: "secret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", key: "secret", header: "Basic secret", want: http.StatusUnauthorized},
		{name: "prefix of key", key: "secret", header: "Bearer secre", want: http.StatusUnauthorized},
		{name: "valid", key: "secret", header: "Bearer secret", want: http.StatusAccepted},
		{name: "lowercase scheme", key: "secret", header: "bearer secret", want: http.StatusAccepted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/refresh-tokens", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			logger, hook := logtest.NewNullLogger()
			rr := httptest.NewRecorder()
			RequireAPIKey(tc.key, logger)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)

			if tc.key == "" {
				entry := hook.LastEntry()
				require.NotNil(t, entry, "unconfigured key must be logged")
				assert.Equal(t, logrus.ErrorLevel, entry.Level)
				assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), goSession.ErrConfiguration)
			} else {
				assert.Empty(t, hook.AllEntries())
			}
		})
	}
}
