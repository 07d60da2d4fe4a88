package middleware

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

// sessionWriter commits the session before the first header or body byte
// reaches the client, while headers can still carry the cookie.
type sessionWriter struct {
	http.ResponseWriter
	handle *Handle
	ctx    context.Context
	log    logrus.FieldLogger

	committed   bool
	failed      bool
	wroteHeader bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.handle.commit(w.ctx, w.ResponseWriter); err != nil {
		w.failed = true
		w.log.WithError(err).Error("Failed to save session")
		writeError(w.ResponseWriter, http.StatusInternalServerError, "session storage unavailable")
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.commit()
	w.wroteHeader = true
	if w.failed {
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// finish commits sessions of handlers that wrote nothing.
func (w *sessionWriter) finish() {
	if !w.wroteHeader {
		w.commit()
	}
}
