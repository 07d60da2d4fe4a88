package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/session"
)

type handleContextKey struct{}

// Handle is the per-request view of the session. Handlers read and change it
// through the request context; Session persists it once, right before the
// response headers are written.
type Handle struct {
	engine *goSession.Engine

	mu        sync.Mutex
	rec       *session.Record
	unsaved   bool
	dirty     bool
	reissue   bool
	destroyed bool
}

// FromContext returns the Handle installed by Session.
func FromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleContextKey{}).(*Handle)
	return h, ok
}

// Record returns a copy of the current session record.
func (h *Handle) Record() *session.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rec.Clone()
}

// Update applies fn to the session data. The change is saved when the
// response is committed.
func (h *Handle) Update(fn func(session.Data) session.Data) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rec = h.engine.Sessions().Update(h.rec, fn)
	h.dirty = true
	h.destroyed = false
}

// Replace adopts a record an Engine call has already persisted, such as the
// regenerated session after login. The cookie is reissued for it.
func (h *Handle) Replace(rec *session.Record) {
	if rec == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec != nil && h.rec.ID == rec.ID && h.rec.Revision == rec.Revision {
		return
	}
	h.rec = rec.Clone()
	h.unsaved = false
	h.reissue = true
	h.destroyed = false
}

// Destroy logs the session out and clears the cookie on commit. A new,
// unsaved session takes its place for the rest of the request.
func (h *Handle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.unsaved {
		if err := h.engine.Logout(ctx, h.rec); err != nil {
			return err
		}
	}
	rec, err := h.engine.NewSession()
	if err != nil {
		return err
	}
	h.rec = rec
	h.unsaved = true
	h.dirty = false
	h.reissue = false
	h.destroyed = true
	return nil
}

// commit persists pending changes and writes or clears the cookie.
func (h *Handle) commit(ctx context.Context, w http.ResponseWriter) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	opts := h.engine.CookieOptions()
	store := h.engine.Sessions()

	switch {
	case h.dirty:
		rec := h.rec
		if !h.unsaved {
			// Tokens belong to the Engine: when a concurrent refresh
			// persisted newer ones, keep them instead of writing back
			// the copy this request started with.
			stored, err := store.LoadID(ctx, rec.ID)
			if err != nil {
				return err
			}
			if stored != nil && stored.Revision > rec.Revision {
				rec.Data.Auth = stored.Data.Auth.Clone()
				rec.Revision = stored.Revision
			}
		}
		value, err := store.Save(ctx, rec)
		if err != nil {
			return err
		}
		h.unsaved, h.dirty, h.reissue = false, false, false
		cookie.Write(w, opts, value, rec.ExpiresAt)
	case h.reissue:
		h.reissue = false
		cookie.Write(w, opts, store.Cookie(h.rec), h.rec.ExpiresAt)
	case h.destroyed:
		cookie.Clear(w, opts)
	}
	return nil
}

// Session loads or creates the request's session and stores a *Handle in the
// request context.
//
// A missing, tampered or expired cookie yields a fresh session that is only
// persisted if the handler changes it. Tokens inside the refresh threshold
// are refreshed before the handler runs. Storage failures while loading or
// saving produce a 500 response.
func Session(engine *goSession.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusInternalServerError, "session engine not configured")
				return
			}

			ctx := goSession.WithClientIP(r.Context(), clientIP(r))
			ctx = goSession.WithUserAgent(ctx, r.UserAgent())
			log := engine.Logger()

			opts := engine.CookieOptions()
			rec, err := engine.Sessions().Load(ctx, cookie.Read(r, opts))
			if err != nil {
				log.WithError(err).Error("Failed to load session")
				writeError(w, http.StatusInternalServerError, "session storage unavailable")
				return
			}

			h := &Handle{engine: engine, rec: rec}
			if rec == nil {
				if h.rec, err = engine.NewSession(); err != nil {
					log.WithError(err).Error("Failed to create session")
					writeError(w, http.StatusInternalServerError, "session unavailable")
					return
				}
				h.unsaved = true
				if cookie.Read(r, opts) != "" {
					// Stale or forged cookie: drop it unless a new one is issued.
					h.destroyed = true
				}
			} else if rec.Data.Auth.IsAuthenticated {
				_, refreshed, err := engine.RefreshSession(ctx, rec)
				if err != nil && errors.Is(err, goSession.ErrStorage) && !errors.Is(err, goSession.ErrRefreshTokenInvalid) {
					writeError(w, http.StatusInternalServerError, "session storage unavailable")
					return
				}
				h.Replace(refreshed)
			}

			sw := &sessionWriter{ResponseWriter: w, handle: h, ctx: ctx, log: log}
			ctx = context.WithValue(ctx, handleContextKey{}, h)
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.finish()
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
