package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one structured line per request. The level follows the
// outcome: handler errors and 5xx responses log at error, client errors at
// warn, and health probes at debug so they do not drown the booking traffic.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			status := c.Response().Status
			var evt *zerolog.Event
			switch {
			case err != nil || status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn()
			case strings.HasPrefix(req.URL.Path, "/health"):
				evt = logger.Debug()
			default:
				evt = logger.Info()
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start))

			// Staff requests are attributed to the agent, citizen
			// requests to the client address.
			if subject, ok := c.Get("staff_subject").(string); ok && subject != "" {
				evt.Str("staff_subject", subject)
			} else {
				evt.Str("remote_ip", c.RealIP())
			}
			evt.Msg("request")

			return err
		}
	}
}
