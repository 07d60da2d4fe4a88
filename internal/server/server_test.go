package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/storage"
	"github.com/MrEthical07/goSession/storage/memory"
	"github.com/MrEthical07/goSession/storage/redisstore"
)

type stubProvider struct {
	exchangeErr error
}

func (p *stubProvider) AuthCodeURL(state, redirectURI string) string {
	q := url.Values{"state": {state}, "redirect_uri": {redirectURI}}
	return "https://idp.test/authorize?" + q.Encode()
}

func (p *stubProvider) Exchange(_ context.Context, code, _ string) (*provider.Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &provider.Token{
		AccessToken:  "at-" + code,
		RefreshToken: "rt-" + code,
		ExpiresIn:    time.Hour,
		Claims:       map[string]any{"sub": "user-1", "email": "user@example.test"},
	}, nil
}

func (p *stubProvider) Refresh(_ context.Context, rt string) (*provider.Token, error) {
	return &provider.Token{AccessToken: "at-refreshed", RefreshToken: rt, ExpiresIn: time.Hour}, nil
}

type testServer struct {
	*httptest.Server
	client *http.Client
}

func newTestServer(t *testing.T, p *stubProvider, opts Options) *testServer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return newTestServerWithDriver(t, p, opts, memory.New(logger))
}

func newTestServerWithDriver(t *testing.T, p *stubProvider, opts Options, driver storage.Driver) *testServer {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Session.Secrets = []string{"server-test-secret-0123456789abcdef"}
	cfg.OAuth.CallbackURL = "https://app.test/login"
	cfg.Refresh.APIKey = "batch-key"

	logger, _ := logtest.NewNullLogger()
	engine, err := goSession.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithDriver(driver).
		WithProvider(p).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := httptest.NewTLSServer(New(engine, logger, opts).Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := srv.Client()
	client.Jar = jar
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &testServer{Server: srv, client: client}
}

func (s *testServer) do(t *testing.T, method, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func jsonHeader() http.Header {
	return http.Header{"Accept": {"application/json"}}
}

// startLogin follows the login route and returns the issued state.
func (s *testServer) startLogin(t *testing.T, returnTo string) string {
	t.Helper()
	resp := s.do(t, http.MethodGet, "/auth/login?return_to="+url.QueryEscape(returnTo), nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "idp.test", loc.Host)
	assert.Equal(t, "https://app.test/login", loc.Query().Get("redirect_uri"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestLoginCallbackProtectedLogout(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	resp := s.do(t, http.MethodGet, "/api/protected", jsonHeader())
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	state := s.startLogin(t, "/dashboard")

	resp = s.do(t, http.MethodGet, "/login?code=abc&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp = s.do(t, http.MethodGet, "/api/protected", jsonHeader())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Message string         `json:"message"`
		User    map[string]any `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Authenticated", body.Message)
	assert.Equal(t, "user-1", body.User["sub"])

	resp = s.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/protected", jsonHeader())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logout is idempotent.
	resp = s.do(t, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestProtectedRedirectsBrowsers(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	resp := s.do(t, http.MethodGet, "/api/protected", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login?return_to=%2Fapi%2Fprotected", resp.Header.Get("Location"))
}

func TestLoginRejectsOffsiteReturnTo(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	state := s.startLogin(t, "https://evil.example/")
	resp := s.do(t, http.MethodGet, "/login?code=abc&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestCallbackErrors(t *testing.T) {
	t.Run("state mismatch", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{}, Options{})
		s.startLogin(t, "/")
		resp := s.do(t, http.MethodGet, "/login?code=abc&state=forged", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("no login started", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{}, Options{})
		resp := s.do(t, http.MethodGet, "/login?code=abc&state=", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("replayed callback", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{}, Options{})
		state := s.startLogin(t, "/")
		resp := s.do(t, http.MethodGet, "/login?code=abc&state="+url.QueryEscape(state), nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		resp = s.do(t, http.MethodGet, "/login?code=abc&state="+url.QueryEscape(state), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("provider failure", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{
			exchangeErr: fmt.Errorf("%w: token endpoint returned 500", goSession.ErrProvider),
		}, Options{})
		state := s.startLogin(t, "/")
		resp := s.do(t, http.MethodGet, "/login?code=abc&state="+url.QueryEscape(state), nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("authorization denied", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{}, Options{})
		resp := s.do(t, http.MethodGet, "/login?error=access_denied", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRefreshTokensRoute(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	resp := s.do(t, http.MethodPost, "/api/refresh-tokens", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/refresh-tokens", http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/refresh-tokens", http.Header{"Authorization": {"Bearer batch-key"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]any{
		"success": true, "total": float64(0), "refreshed": float64(0), "failed": float64(0), "skipped": float64(0),
	}, body)
}

func TestRefreshTokensRouteRateLimitsKeyGuesses(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{RefreshRate: 0.001, RefreshBurst: 1})
	auth := http.Header{"Authorization": {"Bearer batch-key"}}

	resp := s.do(t, http.MethodPost, "/api/refresh-tokens", http.Header{"Authorization": {"Bearer guess-1"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The wrong guess spent the only token.
	resp = s.do(t, http.MethodPost, "/api/refresh-tokens", http.Header{"Authorization": {"Bearer guess-2"}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp = s.do(t, http.MethodPost, "/api/refresh-tokens", auth)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "gosession_session_created_total 0\n")
	})
	s := newTestServer(t, &stubProvider{}, Options{Metrics: metrics})

	resp := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "gosession_"))
}

func TestHealthReportsRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := newTestServerWithDriver(t, &stubProvider{}, Options{}, redisstore.New(rdb))

	resp := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.Close()
	resp = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
