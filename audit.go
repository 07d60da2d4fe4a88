package goSession

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEvent is one security-relevant session or login event.
type AuditEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	SessionID string            `json:"session_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// LogSink writes audit events to a logger. Successful events log at Info,
// failures at Warn. Session ids are shortened so the log never carries a
// usable session reference.
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink wraps log. A nil logger discards events.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	if log == nil {
		return &LogSink{}
	}
	return &LogSink{log: log.WithField("component", "audit")}
}

// Emit logs event.
func (s *LogSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.log == nil {
		return
	}

	fields := logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.SessionID != "" {
		fields["session"] = shortID(event.SessionID)
	}
	if event.Subject != "" {
		fields["subject"] = event.Subject
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.UserAgent != "" {
		fields["user_agent"] = event.UserAgent
	}
	if event.Error != "" {
		fields["error_code"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := s.log.WithFields(fields).WithTime(event.Timestamp)
	if event.Success {
		entry.Info("Audit event")
		return
	}
	entry.Warn("Audit event")
}
