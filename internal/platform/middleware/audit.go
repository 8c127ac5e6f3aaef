package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry captures who touched which appointment resource, when, and from
// where. Booking, cancellation and staff status changes are all recorded;
// the audit trail is what lets the agency answer a citizen's "who cancelled
// my appointment" complaint.
type AuditEntry struct {
	Actor      string
	Roles      []string
	Resource   string
	Action     string // read, create, update, delete, search
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. The default recorder writes zerolog
// lines; tests provide a mock.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns Echo middleware that records an audit line for every request
// under /api/v1/. The actor is the authenticated staff subject when present,
// otherwise "citizen".
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		evt := logger.Info().
			Str("type", "audit").
			Str("actor", entry.Actor).
			Str("resource", entry.Resource).
			Str("action", entry.Action).
			Str("ip", entry.IPAddress).
			Str("path", entry.Path).
			Str("method", entry.Method).
			Str("request_id", entry.RequestID).
			Int("status", entry.StatusCode).
			Time("ts", entry.Timestamp)
		if len(entry.Roles) > 0 {
			evt = evt.Strs("roles", entry.Roles)
		}
		evt.Msg("access")
		return nil
	})
	return AuditWithRecorder(recorder)
}

// AuditWithRecorder returns the audit middleware with a custom recorder.
func AuditWithRecorder(recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			actor := "citizen"
			var roles []string
			if subject, ok := c.Get("staff_subject").(string); ok && subject != "" {
				actor = subject
			}
			if r, ok := c.Get("staff_roles").([]string); ok {
				roles = r
			}
			rid, _ := c.Get("request_id").(string)

			_ = recorder.RecordAccess(AuditEntry{
				Actor:      actor,
				Roles:      roles,
				Resource:   resourceFromPath(path),
				Action:     methodToAction(c.Request().Method),
				IPAddress:  c.RealIP(),
				Path:       path,
				Method:     c.Request().Method,
				Timestamp:  time.Now().UTC(),
				RequestID:  rid,
				StatusCode: c.Response().Status,
			})

			return err
		}
	}
}

// resourceFromPath returns the first path segment after /api/v1/, e.g.
// /api/v1/appointments/123 -> appointments.
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func methodToAction(method string) string {
	switch method {
	case "GET":
		return "read"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
