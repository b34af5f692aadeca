package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// RequestID tags the request with the caller's X-Request-ID, or a fresh UUID
// when it is missing or oversized, and echoes it on the response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Locals(requestIDHeader, id)
		c.Set(requestIDHeader, id)
		return c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID, or "".
func RequestIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDHeader).(string)
	return id
}

// Audit writes one access line per request naming the acting principal.
// Server faults are logged in full by ErrorHandler, so only the error code
// appears here.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		began := time.Now()
		err := c.Next()
		elapsed := time.Since(began)

		status := c.Response().StatusCode()
		line := make([]slog.Attr, 0, 7)
		if err != nil {
			var code string
			status, code, _ = Classify(err)
			line = append(line, slog.String("error_code", code))
		}
		line = append(line,
			slog.String("method", c.Method()),
			slog.String("route", c.Path()),
			slog.Int("status", status),
			slog.Int64("latency_ms", elapsed.Milliseconds()),
		)
		if id := RequestIDFrom(c); id != "" {
			line = append(line, slog.String("request_id", id))
		}
		if who := principalID(c); who != "" {
			line = append(line, slog.String("principal_id", who))
		}
		logger.LogAttrs(c.UserContext(), auditLevel(status), "http request", line...)
		return err
	}
}

func auditLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
