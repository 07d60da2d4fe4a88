package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

type refreshResponse struct {
	Success bool `json:"success"`
	goSession.RefreshJobResult
}

type protectedResponse struct {
	Message string           `json:"message"`
	User    session.UserInfo `json:"user"`
}

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	if err := s.engine.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	h, _ := middleware.FromContext(r.Context())

	url, rec, err := s.engine.BeginLogin(r.Context(), h.Record(), r.URL.Query().Get("return_to"))
	if err != nil {
		s.log.WithError(err).Error("Failed to start login")
		writeError(w, http.StatusInternalServerError, "login_unavailable")
		return
	}
	h.Replace(rec)

	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	h, _ := middleware.FromContext(r.Context())
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		s.log.WithFields(logrus.Fields{
			"error":       e,
			"description": q.Get("error_description"),
		}).Warn("Authorization denied by provider")
		writeError(w, http.StatusBadRequest, "authorization_denied")
		return
	}

	_, rec, err := s.engine.ExchangeCodeForTokens(r.Context(), h.Record(), q.Get("code"), q.Get("state"))
	h.Replace(rec)
	if err != nil {
		status, code := callbackStatus(err)
		writeError(w, status, code)
		return
	}

	http.Redirect(w, r, goSession.SafeReturnTo(rec.Data.ReturnTo), http.StatusFound)
}

func callbackStatus(err error) (int, string) {
	switch {
	case errors.Is(err, goSession.ErrCSRFMismatch):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, goSession.ErrProvider), errors.Is(err, goSession.ErrRefreshTokenInvalid):
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "session_unavailable"
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	h, _ := middleware.FromContext(r.Context())
	if err := h.Destroy(r.Context()); err != nil {
		s.log.WithError(err).Error("Failed to destroy session")
		writeError(w, http.StatusInternalServerError, "session_unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshTokens(w http.ResponseWriter, r *http.Request) {
	// A dropped client must not abort a run halfway.
	ctx := context.WithoutCancel(r.Context())

	res, err := s.engine.RefreshExpiringTokens(ctx)
	switch {
	case errors.Is(err, goSession.ErrRefreshJobRunning):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "refresh_in_progress"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{Error: "refresh_failed"})
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{Success: true, RefreshJobResult: res})
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, protectedResponse{Message: "Authenticated", User: user})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}
