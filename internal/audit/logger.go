// Package audit records destructive store operations as structured events.
package audit

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`  // External id or natural key of the entity
	Details   string    `json:"details,omitempty"` // Additional details
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"` // Error message if the action failed
	TraceID   string    `json:"trace_id,omitempty"`
}

var (
	mu          sync.RWMutex
	auditLogger = zerolog.New(os.Stdout).With().Str("log", "audit").Logger()
)

// SetOutput redirects audit events to w and returns a function restoring the
// previous destination.
func SetOutput(w io.Writer) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	prev := auditLogger
	auditLogger = zerolog.New(w).With().Str("log", "audit").Logger()
	return func() {
		mu.Lock()
		auditLogger = prev
		mu.Unlock()
	}
}

// Log records an audit event. A nil err marks the action as successful.
func Log(ctx context.Context, component, action, target, details string, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Component: component,
		Action:    action,
		Target:    target,
		Details:   details,
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
	}

	mu.RLock()
	l := auditLogger
	mu.RUnlock()

	l.Log().Interface("audit_event", event).Msg("")
}
