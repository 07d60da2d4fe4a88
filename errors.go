package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/provider"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
)

var (
	// ErrSignatureInvalid marks a tampered, malformed or empty session cookie.
	// Session loading treats it as "no session"; it never reaches a response.
	ErrSignatureInvalid = cookie.ErrSignatureInvalid
	// ErrStorage marks a backing store failure. It is propagated, never dropped.
	ErrStorage = storage.ErrStorage
	// ErrCSRFMismatch is returned when the callback state does not match the
	// state stored in the session. No token exchange is attempted.
	ErrCSRFMismatch = errors.New("oauth state mismatch")
	// ErrProvider wraps network and HTTP failures talking to the provider.
	ErrProvider = provider.ErrProvider
	// ErrRefreshTokenInvalid means the provider rejected the refresh grant; the
	// user must authenticate again.
	ErrRefreshTokenInvalid = provider.ErrRefreshTokenInvalid
	// ErrConfiguration marks missing or invalid server configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnauthenticated is returned by AuthenticatedUser when the session is
	// not logged in or its tokens could not be refreshed.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict is returned when a compare-and-swap save lost to another writer.
	ErrConflict = session.ErrConflict
	// ErrRefreshJobRunning is returned when a batch refresh is already in progress.
	ErrRefreshJobRunning = errors.New("refresh job already running")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)
